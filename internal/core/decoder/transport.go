// Package decoder implements protocol decoding.
package decoder

import (
	"firestige.xyz/ipingest/internal/core"
	"firestige.xyz/ipingest/internal/metrics"
)

// Protocol numbers
const (
	protocolICMP = 1
	protocolTCP  = 6
	protocolUDP  = 17
)

// TransportDecoder receives complete datagram payloads (IP header stripped)
// together with the flow context they belong to. Implementations must not
// retain payload after returning.
type TransportDecoder interface {
	ProcessTCP(ctx *core.Context, payload []byte) error
	ProcessUDP(ctx *core.Context, payload []byte) error
	ProcessICMP(ctx *core.Context, payload []byte) error
}

// dispatch routes payload to the decoder for protocol. Decoder errors are
// returned as-is.
func (p *IPv4Processor) dispatch(fc *core.Context, protocol uint8, payload []byte) error {
	switch protocol {
	case protocolTCP:
		metrics.DispatchTotal.WithLabelValues("tcp").Inc()
		return p.transport.ProcessTCP(fc, payload)
	case protocolUDP:
		metrics.DispatchTotal.WithLabelValues("udp").Inc()
		return p.transport.ProcessUDP(fc, payload)
	case protocolICMP:
		metrics.DispatchTotal.WithLabelValues("icmp").Inc()
		return p.transport.ProcessICMP(fc, payload)
	default:
		return &core.UnhandledProtocolError{Protocol: protocol}
	}
}
