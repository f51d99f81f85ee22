package buffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/algstream/limits"
)

func TestTxAppendMergeProducesOneChunk(t *testing.T) {
	pool := NewPool(0)
	l := NewTxList(pool)

	_, err := l.Append([]byte("first write "), false)
	require.NoError(t, err)
	require.True(t, l.TailHasRoom())

	_, err = l.Append([]byte("second write"), true)
	require.NoError(t, err)

	assert.Equal(t, 1, l.Chunks(), "merge with spare capacity keeps one chunk")
	assert.Equal(t, 24, l.Used())
}

func TestTxAppendNoMergeProducesTwoChunks(t *testing.T) {
	pool := NewPool(0)
	l := NewTxList(pool)

	_, err := l.Append([]byte("first"), false)
	require.NoError(t, err)
	_, err = l.Append([]byte("second"), false)
	require.NoError(t, err)

	assert.Equal(t, 2, l.Chunks())
}

func TestTxAppendFullChunkStartsNewChunk(t *testing.T) {
	pool := NewPool(0)
	l := NewTxList(pool)

	_, err := l.Append(make([]byte, limits.MaxSetBytes), false)
	require.NoError(t, err)
	require.False(t, l.TailHasRoom())

	// merge requested but the tail is full
	_, err = l.Append([]byte("x"), true)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Chunks())
}

func TestTxAppendSpansChunks(t *testing.T) {
	pool := NewPool(0)
	l := NewTxList(pool)

	n, err := l.Append(make([]byte, limits.MaxSetBytes+limits.PageSize), false)
	require.NoError(t, err)
	assert.Equal(t, limits.MaxSetBytes+limits.PageSize, n)
	assert.Equal(t, 2, l.Chunks())
	assert.Equal(t, n, l.Used())
}

func TestTxCount(t *testing.T) {
	pool := NewPool(0)
	l := NewTxList(pool)

	_, err := l.Append(make([]byte, 3*limits.PageSize), false)
	require.NoError(t, err)

	assert.Equal(t, 1, l.Count(10, 0))
	assert.Equal(t, 1, l.Count(limits.PageSize, 0))
	assert.Equal(t, 2, l.Count(limits.PageSize+1, 0))
	assert.Equal(t, 3, l.Count(3*limits.PageSize, 0))
	assert.Equal(t, 1, l.Count(10, limits.PageSize), "offset skips whole entries")
	assert.Equal(t, 2, l.Count(limits.PageSize, limits.PageSize/2))
}

func TestTxDetachExactBytes(t *testing.T) {
	pool := NewPool(0)
	l := NewTxList(pool)

	data := make([]byte, 2*limits.PageSize)
	for i := range data {
		data[i] = byte(i % 251)
	}
	_, err := l.Append(data, false)
	require.NoError(t, err)

	want := limits.PageSize + 123 // boundary falls mid-chunk
	set := l.Detach(want)
	assert.Equal(t, want, set.Len())
	assert.Equal(t, len(data)-want, l.Used(), "used drops at detach, not at completion")

	got := make([]byte, want)
	set.CopyTo(got, 0)
	assert.Equal(t, data[:want], got)

	rest := l.Detach(l.Used())
	gotRest := make([]byte, rest.Len())
	rest.CopyTo(gotRest, 0)
	assert.Equal(t, data[want:], gotRest)

	set.Release()
	rest.Release()
	assert.Equal(t, 0, pool.Pinned())
}

func TestTxDetachThenMergeKeepsDataIntact(t *testing.T) {
	pool := NewPool(0)
	l := NewTxList(pool)

	_, err := l.Append(bytes.Repeat([]byte{1}, 100), false)
	require.NoError(t, err)
	set := l.Detach(60)

	// The remaining 40 bytes share a page with the detached slice;
	// merging more data must not clobber the detached head.
	_, err = l.Append(bytes.Repeat([]byte{2}, 50), true)
	require.NoError(t, err)

	head := make([]byte, 60)
	set.CopyTo(head, 0)
	assert.Equal(t, bytes.Repeat([]byte{1}, 60), head)

	rest := l.Detach(90)
	gotRest := make([]byte, 90)
	rest.CopyTo(gotRest, 0)
	assert.Equal(t, append(bytes.Repeat([]byte{1}, 40), bytes.Repeat([]byte{2}, 50)...), gotRest)

	set.Release()
	rest.Release()
	assert.Equal(t, 0, pool.Pinned())
}

func TestTxDetachBeyondUsedPanics(t *testing.T) {
	pool := NewPool(0)
	l := NewTxList(pool)
	_, err := l.Append([]byte("abc"), false)
	require.NoError(t, err)

	assert.Panics(t, func() { l.Detach(4) })
	l.ReleaseAll()
}

func TestTxReleaseAll(t *testing.T) {
	pool := NewPool(0)
	l := NewTxList(pool)

	_, err := l.Append(make([]byte, limits.MaxSetBytes+7), false)
	require.NoError(t, err)

	released := l.ReleaseAll()
	assert.Equal(t, limits.MaxSetBytes+7, released)
	assert.Equal(t, 0, l.Used())
	assert.Equal(t, 0, l.Chunks())
	assert.Equal(t, 0, pool.Pinned())
}
