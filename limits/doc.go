// Package limits provides centralized buffer quota constants and validation
// functions for streaming transform channels. This package ensures consistent
// backpressure enforcement across all components of the algstream implementation.
//
// # Quota Model
//
// Each channel carries two independent byte budgets:
//
//   - Send quota: bounds the bytes a client may write ahead of the transform
//     engine consuming them. Writes that would exceed the budget block, or
//     fail with ErrWouldBlock in non-blocking mode.
//
//   - Receive quota: bounds the bytes reserved for transform output that the
//     client has not yet read back. Reservations are charged when receive
//     buffers are pinned, not when the engine fills them, so a failed request
//     still releases its full reservation.
//
// The [Quota] type implements both sides:
//
//	q := limits.NewQuota(limits.DefaultSendQuota)
//	if err := q.Charge(n); err != nil {
//	    // ErrResourceExhausted: caller must wait or fail with ErrWouldBlock
//	}
//	// ... bytes consumed ...
//	q.Credit(n)
//
// # Buffer Geometry
//
// Buffer pool allocations are page-granular (PageSize) and descriptor sets
// are bounded at MaxSetEntries entries, so one set carries at most
// MaxSetBytes of payload. Callers pinning more data than one set can hold
// must loop.
//
// # Error Types
//
// The package provides the two backpressure error kinds shared by the buffer
// and session layers:
//
//   - ErrResourceExhausted: pinning failed or a quota would be exceeded
//   - ErrWouldBlock: a non-blocking operation cannot make progress yet
//
// Both are returned wrapped with context and should be matched with
// errors.Is.
package limits
