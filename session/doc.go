// Package session implements the per-channel streaming state for crypto
// transform channels: byte quotas on both sides, the more/merge streaming
// flags, transform parameters, the request lifecycle and the completion
// protocol.
//
// # Data Flow
//
// Client writes accumulate in the TX list until a message is finalized
// (more=false) or, for fixed-shape transforms, a full block is queued. A
// read then builds a request: the needed TX bytes are detached (their send
// quota credited immediately, so backpressure reflects committed work),
// receive capacity is reserved and charged up front, and the request is
// submitted to the transform engine. Completion publishes the output into
// the reserved RX chunks, releases the consumed TX buffers, adopts the
// transform's chained IV for the next segment and wakes every suspended
// operation; reads drain completed chunks in request order.
//
// While a finalized message is still queued, further data writes fail
// with ErrInvalidParameters: two logical messages never merge into one
// transform invocation.
//
// # Completion Protocol
//
// Synchronous and asynchronous invocation share one completion path. A
// blocking read simply waits on the request's completion channel; an
// asynchronous read registers a callback instead and the same completion
// code invokes it from the engine's execution context. The callback
// acquires the session lock, so it serializes with concurrent client
// writes and reads on the same context.
//
// A blocking wait aborted by context cancellation returns ErrInterrupted,
// but the request stays in flight: the engine's completion callback
// remains the sole releaser of the request's buffers, so an interrupted
// waiter must not assume they are already free.
//
// # Teardown
//
// Close marks the context closed, wakes all waiters, waits for in-flight
// completions and only then releases the residual TX and RX chunks. A
// request in flight during close keeps ownership of its buffers until its
// completion arrives; nothing is freed while the engine may still touch
// it.
package session
