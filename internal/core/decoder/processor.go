// Package decoder implements protocol decoding.
package decoder

import (
	"fmt"
	"time"

	"firestige.xyz/ipingest/internal/core"
	"firestige.xyz/ipingest/internal/metrics"
)

// Config contains configuration for the IPv4 processor.
type Config struct {
	MaxFragments  int           // Outstanding fragments per flow before eviction (default 50)
	ContextTTL    time.Duration // TTL refreshed on the flow context per datagram (default 120s)
	CheckChecksum bool          // Reject headers whose checksum does not verify
}

// IPv4Processor validates IP datagrams, reassembles fragments and hands
// complete payloads to a TransportDecoder. It is safe for concurrent use;
// datagrams of one flow are serialized on the flow context lock.
type IPv4Processor struct {
	cfg       Config
	store     core.ContextStore
	transport TransportDecoder
}

// NewIPv4Processor creates a processor backed by store and transport.
func NewIPv4Processor(cfg Config, store core.ContextStore, transport TransportDecoder) *IPv4Processor {
	if cfg.MaxFragments <= 0 {
		cfg.MaxFragments = DefaultMaxFragments
	}
	if cfg.ContextTTL <= 0 {
		cfg.ContextTTL = core.DefaultContextTTL
	}
	return &IPv4Processor{
		cfg:       cfg,
		store:     store,
		transport: transport,
	}
}

// Process handles one datagram believed to start with an IP header. It
// returns nil when the datagram was dispatched or stored as a fragment.
func (p *IPv4Processor) Process(data []byte) error {
	err := p.process(data)
	if err != nil {
		metrics.DatagramsTotal.WithLabelValues(metrics.ResultError).Inc()
	}
	return err
}

func (p *IPv4Processor) process(data []byte) error {
	if len(data) < 1 {
		return core.ErrEmptyPacket
	}

	switch version := data[0] >> 4; version {
	case 4:
		return p.processIPv4(data)
	case 6:
		return fmt.Errorf("IPv6 processing: %w", core.ErrUnimplemented)
	default:
		return &core.UnsupportedVersionError{Version: version}
	}
}

// processIPv4 loops once per datagram it has to parse: the one received, and
// at most one rebuilt datagram per completed reassembly. A rebuilt datagram
// has its identifier state purged, so the next pass goes to dispatch.
func (p *IPv4Processor) processIPv4(data []byte) error {
	for {
		hdr, err := ParseIPv4(data)
		if err != nil {
			return err
		}
		if p.cfg.CheckChecksum && Checksum(data[:hdr.HeaderLen]) != 0 {
			return core.ErrBadChecksum
		}

		fc := p.store.GetOrCreate(core.NewFlowKey(hdr.SrcIP, hdr.DstIP))
		p.store.SetTTL(fc, p.cfg.ContextTTL)

		whole, consumed, err := p.reassemble(fc, hdr, data)
		if err != nil {
			return err
		}
		if consumed {
			metrics.DatagramsTotal.WithLabelValues(metrics.ResultFragment).Inc()
			return nil
		}
		if whole != nil {
			data = whole
			continue
		}

		if err := p.dispatch(fc, hdr.Protocol, data[hdr.HeaderLen:hdr.TotalLen]); err != nil {
			return err
		}
		metrics.DatagramsTotal.WithLabelValues(metrics.ResultDispatched).Inc()
		return nil
	}
}
