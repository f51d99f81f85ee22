package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/algstream/limits"
)

// page is a single pool allocation of limits.PageSize bytes. Pages are
// reference counted because a detach boundary can fall inside a
// descriptor entry, leaving the head of a page owned by a request while
// its tail stays in the accumulator.
type page struct {
	buf  []byte
	pool *Pool
	refs int32
}

func (pg *page) retain() {
	atomic.AddInt32(&pg.refs, 1)
}

func (pg *page) release() {
	if n := atomic.AddInt32(&pg.refs, -1); n == 0 {
		pg.pool.putPage(pg)
	} else if n < 0 {
		panic("buffer: page released more times than retained")
	}
}

// Pool hands out pinned pages for descriptor sets and bounds the total
// number of pages that may be pinned at once. Pin and unpin counts are
// exposed so tests can verify that every pinned page is returned
// exactly once.
type Pool struct {
	pages    sync.Pool
	maxPages int64

	pinned atomic.Int64
	pins   atomic.Uint64
	unpins atomic.Uint64
}

// NewPool creates a pool allowing at most maxPages simultaneously
// pinned pages. maxPages <= 0 means unbounded.
func NewPool(maxPages int) *Pool {
	p := &Pool{maxPages: int64(maxPages)}
	p.pages.New = func() any {
		b := make([]byte, limits.PageSize)
		return &b
	}
	return p
}

func (p *Pool) getPage() (*page, error) {
	n := p.pinned.Add(1)
	if p.maxPages > 0 && n > p.maxPages {
		p.pinned.Add(-1)
		return nil, fmt.Errorf("%w: pool limit of %d pages reached", limits.ErrResourceExhausted, p.maxPages)
	}
	p.pins.Add(1)
	buf := p.pages.Get().(*[]byte)
	return &page{buf: *buf, pool: p, refs: 1}, nil
}

func (p *Pool) putPage(pg *page) {
	buf := pg.buf
	pg.buf = nil
	p.pages.Put(&buf)
	p.pinned.Add(-1)
	p.unpins.Add(1)
}

// Pinned returns the number of pages currently pinned.
func (p *Pool) Pinned() int { return int(p.pinned.Load()) }

// PinCount returns the total number of pages ever pinned.
func (p *Pool) PinCount() uint64 { return p.pins.Load() }

// UnpinCount returns the total number of pages ever unpinned.
func (p *Pool) UnpinCount() uint64 { return p.unpins.Load() }

// entry is one pinned range of a descriptor set: a window into a page.
type entry struct {
	pg  *page
	off int
	n   int
}

func (e *entry) bytes() []byte {
	return e.pg.buf[e.off : e.off+e.n]
}

// spare returns the unused page bytes past this entry's window.
func (e *entry) spare() int {
	return len(e.pg.buf) - e.off - e.n
}

// DescriptorSet is an ordered, capacity-bounded sequence of pinned
// ranges. A set owns the pinning of its ranges for its lifetime and is
// released exactly once; double release is prevented by ownership
// transfer, not by runtime guards.
type DescriptorSet struct {
	pool    *Pool
	entries []entry
	max     int
	nbytes  int
}

// NewSet returns an empty descriptor set holding at most maxEntries
// pinned ranges. Values outside (0, limits.MaxSetEntries] are clamped
// to limits.MaxSetEntries.
func (p *Pool) NewSet(maxEntries int) *DescriptorSet {
	if maxEntries <= 0 || maxEntries > limits.MaxSetEntries {
		maxEntries = limits.MaxSetEntries
	}
	return &DescriptorSet{pool: p, max: maxEntries}
}

// Len returns the payload bytes held by the set.
func (s *DescriptorSet) Len() int { return s.nbytes }

// Entries returns the number of pinned ranges in the set.
func (s *DescriptorSet) Entries() int { return len(s.entries) }

// HasRoom reports whether another Fill call can accept at least one
// byte: either an entry slot is free or the tail entry's page has
// spare space.
func (s *DescriptorSet) HasRoom() bool {
	if len(s.entries) < s.max {
		return true
	}
	return s.entries[len(s.entries)-1].spare() > 0
}

// Fill copies data into the set, extending the tail entry's page before
// pinning new ones, stopping at the entry cap. It returns the bytes
// accepted, which may be less than len(data); callers must loop. A pool
// pinning failure is reported alongside whatever was accepted first.
func (s *DescriptorSet) Fill(data []byte) (int, error) {
	total := 0
	if len(s.entries) > 0 {
		e := &s.entries[len(s.entries)-1]
		if e.spare() > 0 {
			n := copy(e.pg.buf[e.off+e.n:], data)
			e.n += n
			s.nbytes += n
			total += n
			data = data[n:]
		}
	}
	for len(data) > 0 && len(s.entries) < s.max {
		pg, err := s.pool.getPage()
		if err != nil {
			return total, err
		}
		n := copy(pg.buf, data)
		s.entries = append(s.entries, entry{pg: pg, n: n})
		s.nbytes += n
		total += n
		data = data[n:]
	}
	return total, nil
}

// Reserve pins up to n bytes of untouched capacity into the set for
// transform output, stopping at the entry cap. Returns bytes reserved.
func (s *DescriptorSet) Reserve(n int) (int, error) {
	total := 0
	for n > 0 && len(s.entries) < s.max {
		pg, err := s.pool.getPage()
		if err != nil {
			return total, err
		}
		take := n
		if take > len(pg.buf) {
			take = len(pg.buf)
		}
		s.entries = append(s.entries, entry{pg: pg, n: take})
		s.nbytes += take
		total += take
		n -= take
	}
	return total, nil
}

// CopyTo gathers payload bytes into dst, skipping the first skip bytes
// of the set. Returns the bytes copied.
func (s *DescriptorSet) CopyTo(dst []byte, skip int) int {
	total := 0
	for i := range s.entries {
		e := &s.entries[i]
		if skip >= e.n {
			skip -= e.n
			continue
		}
		n := copy(dst, e.bytes()[skip:])
		skip = 0
		dst = dst[n:]
		total += n
		if len(dst) == 0 {
			break
		}
	}
	return total
}

// CopyFrom scatters src across the set's pinned ranges from the start.
// Returns the bytes copied, bounded by the set's capacity.
func (s *DescriptorSet) CopyFrom(src []byte) int {
	total := 0
	for i := range s.entries {
		e := &s.entries[i]
		n := copy(e.bytes(), src)
		src = src[n:]
		total += n
		if len(src) == 0 {
			break
		}
	}
	return total
}

// Release unpins every range in the set. Ownership transfer guarantees
// each set is released exactly once.
func (s *DescriptorSet) Release() {
	for i := range s.entries {
		s.entries[i].pg.release()
	}
	s.entries = nil
	s.nbytes = 0
}

// detachHead moves up to n leading bytes of the set into dst,
// splitting the boundary entry when n falls inside it. The moved
// ranges' pin ownership transfers to dst. Returns the bytes moved.
func (s *DescriptorSet) detachHead(n int, dst *DescriptorSet) int {
	moved := 0
	for n > 0 && len(s.entries) > 0 {
		e := s.entries[0]
		if e.n <= n {
			dst.entries = append(dst.entries, e)
			dst.nbytes += e.n
			s.entries = s.entries[1:]
			s.nbytes -= e.n
			n -= e.n
			moved += e.n
			continue
		}
		// Split: head of the entry moves, the page stays shared.
		e.pg.retain()
		dst.entries = append(dst.entries, entry{pg: e.pg, off: e.off, n: n})
		dst.nbytes += n
		s.entries[0].off += n
		s.entries[0].n -= n
		s.nbytes -= n
		moved += n
		n = 0
	}
	return moved
}
