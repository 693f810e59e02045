// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"log/slog"

	"firestige.xyz/ipingest/internal/core"
	"firestige.xyz/ipingest/internal/metrics"
)

// Reassembly constants (RFC 815 hole list).
const (
	// holeSentinel closes the initial hole. It only has to exceed any body
	// offset a 16-bit total length and 13-bit fragment offset can produce.
	holeSentinel = 4000000

	// DefaultMaxFragments bounds outstanding fragments per flow context.
	DefaultMaxFragments = 50

	layerIPv4 = "ipv4.frag"
)

// hole is an unreceived range of a datagram body, inclusive on both ends.
type hole struct {
	first int
	last  int
}

// fragment is a stored fragment body. first and last are body offsets as
// computed by fragRange.
type fragment struct {
	id      uint16
	first   int
	last    int
	payload []byte
}

// fragState is the reassembly state of one flow context. Fragments live in
// an arena of slots; the FIFO queue and the per-identifier index refer to
// them by slot handle. All methods must be called with the context lock held.
type fragState struct {
	slots []fragment
	free  []int

	queue   []int             // eviction order across identifiers
	holes   map[uint16][]hole // identifier → outstanding holes
	index   map[uint16][]int  // identifier → stored fragment handles
	headers map[uint16][]byte // identifier → header of the offset-0 fragment
}

func newFragState() any {
	return &fragState{
		holes:   make(map[uint16][]hole),
		index:   make(map[uint16][]int),
		headers: make(map[uint16][]byte),
	}
}

// reassembling reports whether identifier id has a reassembly in progress.
func (s *fragState) reassembling(id uint16) bool {
	_, ok := s.holes[id]
	return ok
}

// outstanding returns the number of stored fragments across identifiers.
func (s *fragState) outstanding() int {
	return len(s.queue)
}

// alloc places f in a free slot and returns its handle.
func (s *fragState) alloc(f fragment) int {
	if n := len(s.free); n > 0 {
		h := s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[h] = f
		return h
	}
	s.slots = append(s.slots, f)
	return len(s.slots) - 1
}

// age evicts the oldest fragments while more than limit are outstanding. Each
// eviction abandons the whole reassembly the fragment belonged to.
func (s *fragState) age(limit int) {
	for len(s.queue) > limit {
		id := s.slots[s.queue[0]].id
		n := len(s.index[id])
		s.purge(id)
		metrics.FragmentsTotal.WithLabelValues(metrics.FragmentEvicted).Add(float64(n))
		slog.Debug("evicted incomplete datagram", "id", id, "fragments", n)
	}
}

// purge drops every trace of identifier id: holes, saved header, indexed
// fragments and their queue entries.
func (s *fragState) purge(id uint16) {
	if _, ok := s.holes[id]; ok {
		metrics.ReassemblyActive.Dec()
	}
	delete(s.holes, id)
	delete(s.headers, id)

	if len(s.index[id]) > 0 {
		kept := s.queue[:0]
		for _, h := range s.queue {
			if s.slots[h].id == id {
				s.slots[h] = fragment{}
				s.free = append(s.free, h)
				continue
			}
			kept = append(kept, h)
		}
		s.queue = kept
	}
	delete(s.index, id)
}

// fill closes the holes of id that the fragment [first, last] overlaps and
// reports whether the hole list is now empty. A trailing residual is only
// kept when more fragments follow.
func (s *fragState) fill(id uint16, first, last int, more bool) bool {
	holes, ok := s.holes[id]
	if !ok {
		holes = []hole{{first: 0, last: holeSentinel}}
		metrics.ReassemblyActive.Inc()
	}

	next := make([]hole, 0, len(holes)+1)
	for _, h := range holes {
		if first > h.last || last < h.first {
			next = append(next, h)
			continue
		}
		if first > h.first {
			next = append(next, hole{first: h.first, last: first - 1})
		}
		if last < h.last && more {
			next = append(next, hole{first: last + 1, last: h.last})
		}
	}
	s.holes[id] = next
	return len(next) == 0
}

// store keeps a copy of the fragment. The header is saved only for the
// first offset-0 fragment seen for the identifier.
func (s *fragState) store(id uint16, first, last int, header, payload []byte) {
	h := s.alloc(fragment{
		id:      id,
		first:   first,
		last:    last,
		payload: append([]byte(nil), payload...),
	})
	s.queue = append(s.queue, h)
	s.index[id] = append(s.index[id], h)

	if first == 0 {
		if _, ok := s.headers[id]; !ok {
			s.headers[id] = append([]byte(nil), header...)
		}
	}
	metrics.FragmentsTotal.WithLabelValues(metrics.FragmentStored).Inc()
}

// assemble builds the complete datagram for id from the stored fragments
// plus the one that closed the last hole, then purges id. The result carries
// the saved header with MF cleared, total length rewritten and a fresh
// checksum.
func (s *fragState) assemble(id uint16, first, last int, header, payload []byte) ([]byte, error) {
	defer s.purge(id)

	saved, ok := s.headers[id]
	if !ok {
		// Only reachable when the offset-0 fragment is the trigger.
		saved = header
	}
	hlen := len(saved)

	size := hlen + last
	for _, h := range s.index[id] {
		if end := hlen + s.slots[h].last; end > size {
			size = end
		}
	}
	if size > ipv4MaxSize {
		return nil, core.ErrOversize
	}

	pdu := make([]byte, size)
	for _, h := range s.index[id] {
		f := &s.slots[h]
		copy(pdu[hlen+f.first:], f.payload)
	}
	copy(pdu[hlen+first:], payload)
	copy(pdu, saved)

	pdu[6] &^= 0x20 // clear MF
	binary.BigEndian.PutUint16(pdu[2:4], uint16(size))
	pdu[10], pdu[11] = 0, 0
	binary.BigEndian.PutUint16(pdu[10:12], Checksum(pdu[:hlen]))

	return pdu, nil
}

// Release implements core.Releaser; expiry of the owning context abandons
// every reassembly in progress.
func (s *fragState) Release() {
	metrics.ReassemblyActive.Sub(float64(len(s.holes)))
	s.holes = make(map[uint16][]hole)
	s.index = make(map[uint16][]int)
	s.headers = make(map[uint16][]byte)
	s.queue = nil
	s.slots = nil
	s.free = nil
}

// fragRange returns the body range of a fragment. last is first plus the
// body length, matching the hole arithmetic the reassembler uses.
func fragRange(h IPv4Header) (first, last int) {
	first = h.FragOffset
	last = first + h.TotalLen - h.HeaderLen
	return first, last
}

// reassemble runs one fragment through the hole-list state machine of the
// flow context fc. It returns the rebuilt datagram once all holes close, or
// consumed=true when the fragment was stored for later. Non-fragments that
// hit no reassembly in progress return (nil, false, nil).
//
// The context lock is held for the whole call and released on return, so
// callers never observe it across re-parsing or dispatch.
func (p *IPv4Processor) reassemble(fc *core.Context, hdr IPv4Header, data []byte) (whole []byte, consumed bool, err error) {
	fc.Lock()
	defer fc.Unlock()

	var st *fragState
	if v, ok := fc.PeekLayer(layerIPv4); ok {
		st = v.(*fragState)
	}
	if !hdr.IsFragment() && (st == nil || !st.reassembling(hdr.ID)) {
		return nil, false, nil
	}
	if st == nil {
		st = fc.Layer(layerIPv4, newFragState).(*fragState)
	}

	st.age(p.cfg.MaxFragments)

	first, last := fragRange(hdr)
	header := data[:hdr.HeaderLen]
	payload := data[hdr.HeaderLen:hdr.TotalLen]

	if !st.fill(hdr.ID, first, last, hdr.MoreFragments()) {
		st.store(hdr.ID, first, last, header, payload)
		return nil, true, nil
	}

	pdu, err := st.assemble(hdr.ID, first, last, header, payload)
	if err != nil {
		return nil, false, err
	}
	metrics.ReassembledTotal.Inc()
	slog.Debug("reassembled datagram", "flow", fc.Key.String(), "id", hdr.ID, "size", len(pdu))
	return pdu, false, nil
}
