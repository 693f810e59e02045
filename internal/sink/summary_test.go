package sink

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ipingest/internal/core"
)

func testContext() *core.Context {
	return core.NewContext(core.NewFlowKey(
		netip.MustParseAddr("192.0.2.1"),
		netip.MustParseAddr("192.0.2.2"),
	))
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, ls...))
	return append([]byte(nil), buf.Bytes()...)
}

func TestSummaryTCP(t *testing.T) {
	s := NewSummary()
	seg := serialize(t, &layers.TCP{SrcPort: 443, DstPort: 50000, Seq: 7, SYN: true, Window: 1024}, gopacket.Payload("x"))

	require.NoError(t, s.ProcessTCP(testContext(), seg))
	assert.Equal(t, Counts{TCP: 1}, s.Counts())
}

func TestSummaryUDPDNS(t *testing.T) {
	s := NewSummary()

	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)
	wire, err := q.Pack()
	require.NoError(t, err)

	dnsDatagram := serialize(t, &layers.UDP{SrcPort: 53000, DstPort: 53}, gopacket.Payload(wire))
	plain := serialize(t, &layers.UDP{SrcPort: 1000, DstPort: 2000}, gopacket.Payload("data"))
	junk := serialize(t, &layers.UDP{SrcPort: 53, DstPort: 2000}, gopacket.Payload{0xff})

	ctx := testContext()
	require.NoError(t, s.ProcessUDP(ctx, dnsDatagram))
	require.NoError(t, s.ProcessUDP(ctx, plain))
	require.NoError(t, s.ProcessUDP(ctx, junk))

	assert.Equal(t, Counts{UDP: 3, DNS: 1}, s.Counts())
}

func TestSummaryICMP(t *testing.T) {
	s := NewSummary()
	echo := serialize(t, &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1})

	require.NoError(t, s.ProcessICMP(testContext(), echo))
	assert.Equal(t, uint64(1), s.Counts().ICMP)
	assert.Equal(t, uint64(1), s.Counts().Total())
}

func TestSummaryInvalid(t *testing.T) {
	s := NewSummary()
	ctx := testContext()

	assert.Error(t, s.ProcessTCP(ctx, make([]byte, 10)))
	assert.Error(t, s.ProcessUDP(ctx, make([]byte, 4)))
	assert.Error(t, s.ProcessICMP(ctx, []byte{8}))

	c := s.Counts()
	assert.Equal(t, uint64(3), c.Invalid)
	assert.Zero(t, c.Total())
}

func TestSummaryConcurrent(t *testing.T) {
	s := NewSummary()
	seg := serialize(t, &layers.TCP{SrcPort: 1, DstPort: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := core.NewContext(core.NewFlowKey(
				netip.AddrFrom4([4]byte{10, 0, 0, byte(i)}),
				netip.MustParseAddr("10.0.1.1"),
			))
			for j := 0; j < 100; j++ {
				assert.NoError(t, s.ProcessTCP(ctx, seg))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(800), s.Counts().TCP)
}
