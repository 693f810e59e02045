// Package capture reads captured frames and strips their link layer.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/ipingest/internal/core"
	"firestige.xyz/ipingest/internal/metrics"
)

// ErrUnsupportedLinkType is returned for capture files whose link type has
// no decoder here.
var ErrUnsupportedLinkType = errors.New("capture: unsupported link type")

var decodeOptions = gopacket.DecodeOptions{NoCopy: true}

// PcapSource yields IP datagrams from a classic pcap stream.
type PcapSource struct {
	r       *pcapgo.Reader
	closer  io.Closer
	link    layers.LinkType
	skipped int
}

// Open opens the pcap file at path.
func Open(path string) (*PcapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	s, err := NewPcapSource(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewPcapSource reads a pcap stream from r. The file header is consumed
// immediately.
func NewPcapSource(r io.Reader) (*PcapSource, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	link := pr.LinkType()
	switch link {
	case layers.LinkTypeEthernet, layers.LinkTypeLinuxSLL, layers.LinkTypeRaw,
		layers.LinkTypeIPv4, layers.LinkTypeNull, layers.LinkTypeLoop:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLinkType, link)
	}
	return &PcapSource{r: pr, link: link}, nil
}

// LinkType returns the link type recorded in the file header.
func (s *PcapSource) LinkType() layers.LinkType {
	return s.link
}

// Skipped returns the number of frames dropped for carrying no IP datagram.
func (s *PcapSource) Skipped() int {
	return s.skipped
}

// Next returns the next frame carrying an IP datagram. Data starts at the
// IP header and keeps any trailing link-layer padding. It returns io.EOF
// once the stream is exhausted.
func (s *PcapSource) Next() (core.RawPacket, error) {
	for {
		data, ci, err := s.r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return core.RawPacket{}, io.EOF
			}
			return core.RawPacket{}, fmt.Errorf("failed to read packet: %w", err)
		}

		ip := s.network(data)
		if ip == nil {
			s.skipped++
			metrics.FramesSkippedTotal.Inc()
			slog.Debug("skipped non-IP frame", "link", s.link.String(), "len", len(data))
			continue
		}
		return core.RawPacket{
			Data:       ip,
			Timestamp:  ci.Timestamp,
			CaptureLen: uint32(ci.CaptureLength),
			OrigLen:    uint32(ci.Length),
		}, nil
	}
}

// network returns the bytes of data from the start of the first IP layer,
// or nil when the frame holds none.
func (s *PcapSource) network(data []byte) []byte {
	if s.link == layers.LinkTypeRaw || s.link == layers.LinkTypeIPv4 {
		if len(data) == 0 {
			return nil
		}
		return data
	}

	pkt := gopacket.NewPacket(data, s.link, decodeOptions)
	var prev gopacket.Layer
	for _, l := range pkt.Layers() {
		switch l.LayerType() {
		case layers.LayerTypeIPv4, layers.LayerTypeIPv6:
			if prev == nil {
				return data
			}
			// Payload of the enclosing layer keeps bytes the IP decoder trims.
			return prev.LayerPayload()
		}
		prev = l
	}
	return nil
}

// Close releases the underlying file, if any.
func (s *PcapSource) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
