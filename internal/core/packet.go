// Package core defines core data structures with zero external dependencies.
package core

import "time"

// RawPacket is one captured frame with the link layer already stripped, so
// Data begins with the IP header.
type RawPacket struct {
	Data       []byte    // IP datagram bytes, may carry link-layer padding
	Timestamp  time.Time // Capture timestamp
	CaptureLen uint32    // Captured length of the original frame
	OrigLen    uint32    // Wire length of the original frame
}
