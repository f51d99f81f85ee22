// Package buffer implements the pinned-memory layer for streaming transform
// channels: a page pool, capacity-bounded descriptor sets, the send-side
// accumulator and the receive-side collector.
//
// # Descriptor Sets
//
// A [DescriptorSet] is an ordered sequence of pinned page ranges holding at
// most limits.MaxSetEntries entries. Sets own the pinning of their ranges and
// are released exactly once; the code transfers ownership rather than
// guarding against double release at runtime:
//
//	set := pool.NewSet(limits.MaxSetEntries)
//	n, err := set.Fill(data) // may accept less than len(data); loop
//	defer set.Release()
//
// # Send Side
//
// Client writes append to a [TxList]. Consecutive writes merge into the tail
// chunk while it has spare capacity, mirroring the session's merge flag.
// When a request is built, [TxList.Detach] removes exactly the needed bytes
// from the head of the list and transfers their pin ownership to the
// request, splitting the boundary chunk if necessary. Pages split this way
// are reference counted, so the request and the accumulator can each hold a
// piece of the same page safely across the asynchronous completion boundary.
//
// # Receive Side
//
// Requests reserve output capacity in an [RxList] before submission; the
// reservation is charged against the receive quota at that point, not when
// the engine fills it. Completed chunks are drained in strict request order
// and credit their entire reservation back when released, regardless of how
// many bytes the engine actually produced.
//
// # Accounting
//
// The [Pool] counts every pin and unpin. Randomized concurrency tests use
// the counters to prove each pinned page is returned exactly once across
// any interleaving of writes, reads, completions and channel teardown.
//
// Neither list is internally synchronized; the owning session context
// serializes all access under its lock.
package buffer
