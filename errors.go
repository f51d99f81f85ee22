package algstream

import (
	"github.com/opd-ai/algstream/engine"
	"github.com/opd-ai/algstream/limits"
	"github.com/opd-ai/algstream/registry"
	"github.com/opd-ai/algstream/session"
)

// The error kinds surfaced by channel operations, re-exported from the
// packages that produce them so callers match with errors.Is against a
// single import.
var (
	// ErrWouldBlock: a non-blocking operation could not proceed
	// without waiting.
	ErrWouldBlock = limits.ErrWouldBlock

	// ErrResourceExhausted: a quota or buffer limit was exceeded.
	ErrResourceExhausted = limits.ErrResourceExhausted

	// ErrInterrupted: a blocking wait was aborted by cancellation.
	ErrInterrupted = session.ErrInterrupted

	// ErrChannelClosed: the channel has been closed.
	ErrChannelClosed = session.ErrChannelClosed

	// ErrKeyRequired: data transfer attempted before required key
	// material was installed.
	ErrKeyRequired = registry.ErrKeyRequired

	// ErrUnknownCategory: no transform category registered under the
	// requested name.
	ErrUnknownCategory = registry.ErrUnknownCategory

	// ErrUnknownAlgorithm: the category cannot instantiate the
	// requested algorithm.
	ErrUnknownAlgorithm = engine.ErrUnknownAlgorithm

	// ErrInvalidParameters: a parameter (IV size, key size, tag size,
	// associated-data length) was rejected.
	ErrInvalidParameters = engine.ErrInvalidParameters

	// ErrTransformFailed: the engine reported a processing failure,
	// such as an authentication tag mismatch.
	ErrTransformFailed = engine.ErrTransformFailed
)
