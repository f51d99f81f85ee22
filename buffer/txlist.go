package buffer

import (
	"github.com/opd-ai/algstream/limits"
)

// TxChunk is one node of the send-side accumulator: a descriptor set
// plus a cursor recording how many bytes prior requests have already
// consumed from it.
type TxChunk struct {
	set       *DescriptorSet
	processed int
}

// Set exposes the chunk's descriptor set for inspection.
func (c *TxChunk) Set() *DescriptorSet { return c.set }

// Processed returns the bytes already detached from this chunk.
func (c *TxChunk) Processed() int { return c.processed }

// TxList is the send-side accumulator: an ordered list of TX chunks,
// appended at the tail by client writes and consumed from the head by
// request detach. Not safe for concurrent use; the owning session
// serializes access.
type TxList struct {
	pool   *Pool
	chunks []*TxChunk
	used   int
}

// NewTxList returns an empty accumulator drawing pages from pool.
func NewTxList(pool *Pool) *TxList {
	return &TxList{pool: pool}
}

// Used returns the unconsumed bytes held by the accumulator.
func (l *TxList) Used() int { return l.used }

// Chunks returns the number of chunks currently in the list.
func (l *TxList) Chunks() int { return len(l.chunks) }

// TailHasRoom reports whether the tail chunk can accept more data
// without starting a new chunk, the condition under which the session
// keeps its merge flag set.
func (l *TxList) TailHasRoom() bool {
	if len(l.chunks) == 0 {
		return false
	}
	return l.chunks[len(l.chunks)-1].set.HasRoom()
}

// Append copies data into the accumulator. When merge is true and the
// tail chunk has room the data extends the tail chunk; otherwise a new
// chunk is started. Data larger than one chunk spans additional chunks.
// Returns the bytes accepted; a pool pinning failure is reported along
// with whatever was accepted before it.
func (l *TxList) Append(data []byte, merge bool) (int, error) {
	total := 0
	for len(data) > 0 {
		var tail *TxChunk
		if merge && len(l.chunks) > 0 && l.chunks[len(l.chunks)-1].set.HasRoom() {
			tail = l.chunks[len(l.chunks)-1]
		} else {
			tail = &TxChunk{set: l.pool.NewSet(limits.MaxSetEntries)}
			l.chunks = append(l.chunks, tail)
		}
		n, err := tail.set.Fill(data)
		l.used += n
		total += n
		data = data[n:]
		if err != nil {
			return total, err
		}
		merge = true
	}
	return total, nil
}

// Count computes how many descriptor entries, after skipping offset
// bytes from the head of the list, cover bytes of payload. It does not
// mutate the list; requests use it to size their detached sets.
func (l *TxList) Count(bytes, offset int) int {
	entries := 0
	for _, c := range l.chunks {
		for i := range c.set.entries {
			n := c.set.entries[i].n
			if offset >= n {
				offset -= n
				continue
			}
			entries++
			bytes -= n - offset
			offset = 0
			if bytes <= 0 {
				return entries
			}
		}
	}
	return entries
}

// Detach removes exactly bytes of leading payload from the list,
// transferring pin ownership into the returned set. The boundary chunk
// is split when bytes falls inside it. The accumulator's used count
// drops immediately so flow control reflects committed work. Callers
// must not ask for more than Used.
func (l *TxList) Detach(bytes int) *DescriptorSet {
	if bytes > l.used {
		panic("buffer: detach beyond accumulated data")
	}
	out := &DescriptorSet{pool: l.pool, max: l.Count(bytes, 0)}
	for bytes > 0 && len(l.chunks) > 0 {
		head := l.chunks[0]
		n := head.set.detachHead(bytes, out)
		head.processed += n
		bytes -= n
		l.used -= n
		if head.set.Len() == 0 {
			l.chunks = l.chunks[1:]
		}
	}
	return out
}

// ReleaseAll drops every remaining chunk, unpinning their pages, and
// returns the bytes released. Used during channel teardown.
func (l *TxList) ReleaseAll() int {
	released := l.used
	for _, c := range l.chunks {
		c.set.Release()
	}
	l.chunks = nil
	l.used = 0
	return released
}
