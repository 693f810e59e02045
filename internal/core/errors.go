// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every one of them is terminal for the datagram that
// produced it; callers log and move on to the next datagram.
var (
	// Header validation errors
	ErrEmptyPacket = errors.New("ipingest: empty packet")
	ErrTooSmall    = errors.New("ipingest: packet too small for IPv4")
	ErrTruncated   = errors.New("ipingest: truncated IP packet")
	ErrBadIHL      = errors.New("ipingest: IP packet IHL is invalid")
	ErrBadChecksum = errors.New("ipingest: IP packet has invalid checksum")

	// Dispatch errors
	ErrUnhandledProtocol = errors.New("ipingest: IP protocol not handled")
	ErrUnimplemented     = errors.New("ipingest: not implemented")

	// IP reassembly errors
	ErrOversize = errors.New("ipingest: reassembled datagram exceeds 65535 bytes")

	// Configuration errors
	ErrConfigInvalid = errors.New("ipingest: invalid configuration")
)

// UnhandledProtocolError reports the protocol number of a datagram that no
// transport decoder accepts.
type UnhandledProtocolError struct {
	Protocol uint8
}

func (e *UnhandledProtocolError) Error() string {
	return fmt.Sprintf("ipingest: IP protocol %d not handled", e.Protocol)
}

// Is makes errors.Is(err, ErrUnhandledProtocol) hold.
func (e *UnhandledProtocolError) Is(target error) bool {
	return target == ErrUnhandledProtocol
}

// UnsupportedVersionError reports an IP version nibble other than 4 or 6.
type UnsupportedVersionError struct {
	Version uint8
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("ipingest: expecting IP, got version %d", e.Version)
}

func (e *UnsupportedVersionError) Is(target error) bool {
	return target == ErrUnimplemented
}
