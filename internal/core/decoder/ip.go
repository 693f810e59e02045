// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"net/netip"

	"golang.org/x/net/ipv4"

	"firestige.xyz/ipingest/internal/core"
)

const (
	ipv4HeaderMinLen = ipv4.HeaderLen
	ipv4MaxSize      = 65535
)

// IPv4Header holds the fields of an IPv4 header as read off the wire.
type IPv4Header struct {
	IHL        uint8            // Header length in 32-bit words
	HeaderLen  int              // Header length in bytes
	TotalLen   int              // Declared total length
	ID         uint16           // Identification
	Flags      ipv4.HeaderFlags // MF and DF
	FragOffset int              // Fragment offset in bytes (field * 8)
	TTL        uint8
	Protocol   uint8
	Checksum   uint16
	SrcIP      netip.Addr
	DstIP      netip.Addr
}

// MoreFragments reports whether the MF flag is set.
func (h IPv4Header) MoreFragments() bool {
	return h.Flags&ipv4.MoreFragments != 0
}

// DontFragment reports whether the DF flag is set.
func (h IPv4Header) DontFragment() bool {
	return h.Flags&ipv4.DontFragment != 0
}

// IsFragment reports whether the datagram is a piece of a larger one.
func (h IPv4Header) IsFragment() bool {
	return h.MoreFragments() || h.FragOffset != 0
}

// ParseIPv4 validates and decodes the IPv4 header at the start of data.
// Bytes beyond the declared total length are tolerated (link-layer padding).
// It does not verify the checksum.
func ParseIPv4(data []byte) (IPv4Header, error) {
	if len(data) < ipv4HeaderMinLen {
		return IPv4Header{}, core.ErrTooSmall
	}

	// Total Length (2 bytes at offset 2)
	totalLen := int(binary.BigEndian.Uint16(data[2:4]))
	if len(data) < totalLen {
		return IPv4Header{}, core.ErrTruncated
	}

	// IHL - lower 4 bits of first byte, in 32-bit words
	ihl := data[0] & 0x0F
	if ihl < 5 {
		return IPv4Header{}, core.ErrBadIHL
	}
	headerLen := int(ihl) * 4
	if len(data) < headerLen || totalLen < headerLen {
		return IPv4Header{}, core.ErrBadIHL
	}

	// Flags (3 bits) + Fragment Offset (13 bits) at offset 6
	flagsOffset := binary.BigEndian.Uint16(data[6:8])

	h := IPv4Header{
		IHL:        ihl,
		HeaderLen:  headerLen,
		TotalLen:   totalLen,
		ID:         binary.BigEndian.Uint16(data[4:6]),
		Flags:      ipv4.HeaderFlags(flagsOffset >> 13),
		FragOffset: int(flagsOffset&0x1FFF) * 8,
		TTL:        data[8],
		Protocol:   data[9],
		Checksum:   binary.BigEndian.Uint16(data[10:12]),
		SrcIP:      netip.AddrFrom4([4]byte(data[12:16])),
		DstIP:      netip.AddrFrom4([4]byte(data[16:20])),
	}
	return h, nil
}
