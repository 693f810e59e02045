// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
)

// Family is the address family of a flow.
type Family uint8

const (
	FamilyIPv4 Family = 4
	FamilyIPv6 Family = 6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ip4"
	case FamilyIPv6:
		return "ip6"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// FlowKey identifies a flow by its address pair. Src and Dst are taken as
// seen on the wire; Canonical folds both directions onto one key.
type FlowKey struct {
	Family Family
	Src    netip.Addr
	Dst    netip.Addr
}

// NewFlowKey builds an IPv4 or IPv6 key from the two addresses.
func NewFlowKey(src, dst netip.Addr) FlowKey {
	fam := FamilyIPv4
	if src.Is6() && !src.Is4In6() {
		fam = FamilyIPv6
	}
	return FlowKey{Family: fam, Src: src, Dst: dst}
}

// Reverse returns the key for the opposite direction.
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{Family: k.Family, Src: k.Dst, Dst: k.Src}
}

// Canonical returns a direction-agnostic string form: the lower address
// always comes first.
func (k FlowKey) Canonical() string {
	a, b := k.Src, k.Dst
	if b.Less(a) {
		a, b = b, a
	}
	return fmt.Sprintf("%s|%s|%s", k.Family, a, b)
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s %s -> %s", k.Family, k.Src, k.Dst)
}
