package buffer

import (
	"github.com/opd-ai/algstream/limits"
)

// RxChunk is one node of the receive-side collector: reserved output
// capacity, the bytes the transform engine actually produced into it,
// and the drain cursor for client reads.
type RxChunk struct {
	set      *DescriptorSet
	reserved int
	filled   int
	drained  int
	ready    bool
}

// Reserved returns the capacity charged against the receive quota for
// this chunk.
func (c *RxChunk) Reserved() int { return c.reserved }

// Filled returns the bytes the engine produced into the chunk.
func (c *RxChunk) Filled() int { return c.filled }

// Ready reports whether the chunk's request has completed.
func (c *RxChunk) Ready() bool { return c.ready }

// Complete records the bytes the engine produced and marks the chunk
// drainable. Called once per chunk by request completion.
func (c *RxChunk) Complete(filled int) {
	if filled > c.reserved {
		filled = c.reserved
	}
	c.filled = filled
	c.ready = true
}

// CopyFrom scatters produced output into the chunk's reserved ranges.
func (c *RxChunk) CopyFrom(src []byte) int {
	return c.set.CopyFrom(src)
}

// RxList is the receive-side collector: reserved output chunks in
// request order, drained from the head by client reads. Not safe for
// concurrent use; the owning session serializes access.
type RxList struct {
	pool   *Pool
	chunks []*RxChunk
}

// NewRxList returns an empty collector drawing pages from pool.
func NewRxList(pool *Pool) *RxList {
	return &RxList{pool: pool}
}

// Chunks returns the number of chunks pending in the collector.
func (l *RxList) Chunks() int { return len(l.chunks) }

// HeadReady reports whether the head chunk has completed and can be
// drained. Later chunks completing first do not unblock readers; output
// is delivered strictly in request order.
func (l *RxList) HeadReady() bool {
	return len(l.chunks) > 0 && l.chunks[0].ready
}

// Reserve pins n bytes of output capacity into fresh chunks, appends
// them to the collector and returns them for request ownership. The
// reservation is all-or-nothing: on a pool failure nothing is appended
// and nothing stays pinned.
func (l *RxList) Reserve(n int) ([]*RxChunk, error) {
	var got []*RxChunk
	for n > 0 {
		want := n
		if want > limits.MaxSetBytes {
			want = limits.MaxSetBytes
		}
		set := l.pool.NewSet(limits.MaxSetEntries)
		r, err := set.Reserve(want)
		if err != nil {
			set.Release()
			for _, c := range got {
				c.set.Release()
			}
			return nil, err
		}
		got = append(got, &RxChunk{set: set, reserved: r})
		n -= r
	}
	l.chunks = append(l.chunks, got...)
	return got, nil
}

// Remove drops the given chunks from the collector, unpinning them, and
// returns the reserved bytes to credit back. Used when a request fails
// and its output must not be surfaced.
func (l *RxList) Remove(chs []*RxChunk) int {
	credited := 0
	dead := make(map[*RxChunk]bool, len(chs))
	for _, c := range chs {
		dead[c] = true
	}
	kept := l.chunks[:0]
	for _, c := range l.chunks {
		if dead[c] {
			credited += c.reserved
			c.set.Release()
			continue
		}
		kept = append(kept, c)
	}
	l.chunks = kept
	return credited
}

// Drain copies produced bytes from completed head chunks into dst.
// Fully drained chunks are released and their whole reservation is
// credited, regardless of how many bytes were actually produced, since
// the reservation is retired either way. Returns bytes copied and
// reservation bytes to credit.
func (l *RxList) Drain(dst []byte) (copied, credited int) {
	for len(l.chunks) > 0 && l.chunks[0].ready {
		head := l.chunks[0]
		if head.drained < head.filled && len(dst) > 0 {
			n := head.filled - head.drained
			if n > len(dst) {
				n = len(dst)
			}
			n = head.set.CopyTo(dst[:n], head.drained)
			head.drained += n
			dst = dst[n:]
			copied += n
		}
		if head.drained < head.filled {
			break // dst exhausted, chunk partially drained
		}
		head.set.Release()
		credited += head.reserved
		l.chunks = l.chunks[1:]
	}
	return copied, credited
}

// ReleaseAll drops every remaining chunk, unpinning their pages, and
// returns the reserved bytes to credit. Used during channel teardown.
func (l *RxList) ReleaseAll() int {
	credited := 0
	for _, c := range l.chunks {
		credited += c.reserved
		c.set.Release()
	}
	l.chunks = nil
	return credited
}
