// Package decoder implements protocol decoding.
package decoder

// Checksum computes the Internet checksum (RFC 1071) of b: the one's
// complement of the one's-complement sum of its 16-bit big-endian words. An
// odd trailing byte is the high byte of a final, zero-padded word.
//
// Over a header whose checksum field is filled in, a valid header yields 0.
func Checksum(b []byte) uint16 {
	var sum uint64
	for len(b) > 1 {
		sum += uint64(b[0])<<8 | uint64(b[1])
		b = b[2:]
	}
	if len(b) == 1 {
		sum += uint64(b[0]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}
