// Package sink provides transport decoders that consume datagram payloads.
package sink

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/miekg/dns"

	"firestige.xyz/ipingest/internal/core"
)

const dnsPort = 53

// Counts is a snapshot of what a Summary has seen.
type Counts struct {
	TCP     uint64
	UDP     uint64
	ICMP    uint64
	DNS     uint64
	Invalid uint64
}

// Total returns the number of payloads accepted across protocols.
func (c Counts) Total() uint64 {
	return c.TCP + c.UDP + c.ICMP
}

// Summary decodes transport headers and tallies what it sees. It is safe for
// concurrent use.
type Summary struct {
	mu     sync.Mutex
	counts Counts
}

// NewSummary creates an empty Summary.
func NewSummary() *Summary {
	return &Summary{}
}

// Counts returns a snapshot of the tallies.
func (s *Summary) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// ProcessTCP decodes the TCP header of payload.
func (s *Summary) ProcessTCP(ctx *core.Context, payload []byte) error {
	var tcp layers.TCP
	if err := tcp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		s.invalid()
		return fmt.Errorf("decode tcp: %w", err)
	}
	s.mu.Lock()
	s.counts.TCP++
	s.mu.Unlock()
	slog.Debug("tcp segment",
		"flow", ctx.Key.String(),
		"src_port", uint16(tcp.SrcPort),
		"dst_port", uint16(tcp.DstPort),
		"seq", tcp.Seq,
		"len", len(tcp.Payload))
	return nil
}

// ProcessUDP decodes the UDP header of payload. Datagrams to or from port 53
// are also unpacked as DNS messages.
func (s *Summary) ProcessUDP(ctx *core.Context, payload []byte) error {
	var udp layers.UDP
	if err := udp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		s.invalid()
		return fmt.Errorf("decode udp: %w", err)
	}

	var msg *dns.Msg
	if udp.SrcPort == dnsPort || udp.DstPort == dnsPort {
		m := new(dns.Msg)
		if err := m.Unpack(udp.Payload); err != nil {
			slog.Debug("undecodable dns payload", "flow", ctx.Key.String(), "error", err)
		} else {
			msg = m
		}
	}

	s.mu.Lock()
	s.counts.UDP++
	if msg != nil {
		s.counts.DNS++
	}
	s.mu.Unlock()

	if msg != nil && len(msg.Question) > 0 {
		q := msg.Question[0]
		slog.Debug("dns message",
			"flow", ctx.Key.String(),
			"id", msg.Id,
			"response", msg.Response,
			"name", q.Name,
			"type", dns.TypeToString[q.Qtype])
		return nil
	}
	slog.Debug("udp datagram",
		"flow", ctx.Key.String(),
		"src_port", uint16(udp.SrcPort),
		"dst_port", uint16(udp.DstPort),
		"len", len(udp.Payload))
	return nil
}

// ProcessICMP decodes the ICMPv4 header of payload.
func (s *Summary) ProcessICMP(ctx *core.Context, payload []byte) error {
	var icmp layers.ICMPv4
	if err := icmp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		s.invalid()
		return fmt.Errorf("decode icmp: %w", err)
	}
	s.mu.Lock()
	s.counts.ICMP++
	s.mu.Unlock()
	slog.Debug("icmp message", "flow", ctx.Key.String(), "type", icmp.TypeCode.String())
	return nil
}

func (s *Summary) invalid() {
	s.mu.Lock()
	s.counts.Invalid++
	s.mu.Unlock()
}
