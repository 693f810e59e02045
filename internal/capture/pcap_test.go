package capture

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	dstMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 2}
)

// ipv4UDP builds a UDP datagram long enough that Ethernet framing adds no
// minimum-size padding of its own.
func ipv4UDP(t *testing.T, tag string) []byte {
	t.Helper()
	payload := bytes.Repeat([]byte(tag), 64/len(tag)+1)
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Id:       0x4242,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: 9999}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(payload)))
	return append([]byte(nil), buf.Bytes()...)
}

func frame(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, ls...))
	return append([]byte(nil), buf.Bytes()...)
}

func writePcap(t *testing.T, link layers.LinkType, frames ...[]byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, link))
	ts := time.Unix(1700000000, 0)
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(f),
			Length:        len(f),
		}
		require.NoError(t, w.WritePacket(ci, f))
	}
	return &buf
}

func TestPcapSourceEthernet(t *testing.T) {
	ip := ipv4UDP(t, "hello")
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	arp := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeARP}
	vlan := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeDot1Q}
	tag := &layers.Dot1Q{VLANIdentifier: 7, Type: layers.EthernetTypeIPv4}

	padded := append(frame(t, eth, gopacket.Payload(ip)), 0, 0, 0, 0)

	src, err := NewPcapSource(writePcap(t,
		layers.LinkTypeEthernet,
		frame(t, arp, gopacket.Payload(make([]byte, 28))),
		padded,
		frame(t, vlan, tag, gopacket.Payload(ip)),
	))
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, src.LinkType())

	pkt, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte(nil), ip...), 0, 0, 0, 0), pkt.Data, "padding kept")
	assert.Equal(t, uint32(len(padded)), pkt.CaptureLen)
	assert.Equal(t, uint32(len(padded)), pkt.OrigLen)
	assert.True(t, pkt.Timestamp.Equal(time.Unix(1700000000, 0).Add(time.Millisecond)))

	pkt, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, ip, pkt.Data, "vlan tag stripped")

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, src.Skipped())
	assert.NoError(t, src.Close())
}

func TestPcapSourceRaw(t *testing.T) {
	ip := ipv4UDP(t, "raw")
	src, err := NewPcapSource(writePcap(t, layers.LinkTypeRaw, ip))
	require.NoError(t, err)

	pkt, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, ip, pkt.Data)

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPcapSourceLinuxSLL(t *testing.T) {
	ip := ipv4UDP(t, "sll")
	hdr := make([]byte, 16)
	hdr[14], hdr[15] = 0x08, 0x00 // EtherType IPv4
	src, err := NewPcapSource(writePcap(t, layers.LinkTypeLinuxSLL, append(hdr, ip...)))
	require.NoError(t, err)

	pkt, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, ip, pkt.Data)
}

func TestPcapSourceLoopback(t *testing.T) {
	ip := ipv4UDP(t, "lo")
	lo := frame(t, &layers.Loopback{Family: layers.ProtocolFamilyIPv4}, gopacket.Payload(ip))
	src, err := NewPcapSource(writePcap(t, layers.LinkTypeNull, lo))
	require.NoError(t, err)

	pkt, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, ip, pkt.Data)
}

func TestPcapSourceUnsupportedLinkType(t *testing.T) {
	_, err := NewPcapSource(writePcap(t, layers.LinkTypeFDDI))
	assert.ErrorIs(t, err, ErrUnsupportedLinkType)
}

func TestPcapSourceBadHeader(t *testing.T) {
	_, err := NewPcapSource(bytes.NewReader([]byte("not a pcap file at all")))
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ip := ipv4UDP(t, "file")
	path := filepath.Join(t.TempDir(), "capture.pcap")
	require.NoError(t, os.WriteFile(path, writePcap(t, layers.LinkTypeRaw, ip).Bytes(), 0o644))

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	pkt, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, ip, pkt.Data)

	_, err = Open(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)
}
