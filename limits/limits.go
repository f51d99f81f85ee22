// Package limits provides centralized buffer quotas and size limits for
// streaming transform channels. This ensures consistent backpressure and
// validation across different components of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// PageSize is the granularity of buffer pool allocations. Every
	// descriptor entry references at most one page of pinned memory.
	PageSize = 4096

	// MaxSetEntries is the maximum number of pinned ranges a single
	// descriptor set may hold. Larger payloads span multiple sets.
	MaxSetEntries = 16

	// MaxSetBytes is the number of payload bytes a fully populated
	// descriptor set can carry.
	MaxSetBytes = MaxSetEntries * PageSize

	// DefaultSendQuota is the default maximum number of unconsumed bytes
	// a client may have queued on the send side before writes block.
	DefaultSendQuota = 64 * PageSize

	// DefaultRecvQuota is the default maximum number of bytes that may be
	// reserved on the receive side for pending transform output.
	DefaultRecvQuota = 64 * PageSize

	// MinWriteSpace is the smallest amount of free send quota that makes
	// a channel writable. Below this threshold writers wait rather than
	// fragment their data into sub-page pins.
	MinWriteSpace = PageSize

	// MaxIVSize bounds initialization vectors accepted from control
	// messages. No supported transform uses a longer IV.
	MaxIVSize = 64
)

var (
	// ErrResourceExhausted indicates buffer memory could not be pinned:
	// the pool is oversubscribed or a quota would be exceeded.
	ErrResourceExhausted = errors.New("buffer resources exhausted")

	// ErrWouldBlock indicates a non-blocking operation can make no
	// progress right now and should be retried later.
	ErrWouldBlock = errors.New("operation would block")
)

// Quota tracks consumption of a byte budget on one side of a channel.
// The zero value is unusable; construct with NewQuota.
type Quota struct {
	limit int
	used  int
}

// NewQuota returns a quota with the given byte limit. A non-positive
// limit falls back to DefaultSendQuota.
func NewQuota(limit int) Quota {
	if limit <= 0 {
		limit = DefaultSendQuota
	}
	return Quota{limit: limit}
}

// Limit returns the configured byte budget.
func (q *Quota) Limit() int { return q.limit }

// Used returns the bytes currently charged against the quota.
func (q *Quota) Used() int { return q.used }

// Available returns the bytes remaining before the quota is exhausted.
func (q *Quota) Available() int {
	if q.used >= q.limit {
		return 0
	}
	return q.limit - q.used
}

// Charge consumes n bytes of the quota. It returns ErrResourceExhausted
// without charging anything if the full amount does not fit.
func (q *Quota) Charge(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: negative charge %d", ErrResourceExhausted, n)
	}
	if q.used+n > q.limit {
		return fmt.Errorf("%w: charge %d exceeds available %d", ErrResourceExhausted, n, q.Available())
	}
	q.used += n
	return nil
}

// Credit returns n previously charged bytes to the quota. Crediting more
// than was charged is a programming error and panics.
func (q *Quota) Credit(n int) {
	if n < 0 || n > q.used {
		panic(fmt.Sprintf("limits: credit %d with only %d charged", n, q.used))
	}
	q.used -= n
}

// Writable reports whether at least MinWriteSpace bytes remain, the
// threshold at which a blocked writer is worth waking.
func (q *Quota) Writable() bool {
	return q.Available() >= MinWriteSpace
}

// ValidateIV validates an initialization vector against the size the
// bound transform expects. Transforms that take no IV expect size 0.
func ValidateIV(iv []byte, want int) error {
	if len(iv) > MaxIVSize {
		return fmt.Errorf("iv length %d exceeds limit %d", len(iv), MaxIVSize)
	}
	if len(iv) != want {
		return fmt.Errorf("iv length %d, transform expects %d", len(iv), want)
	}
	return nil
}

// PagesFor returns the number of pool pages needed to hold n bytes.
func PagesFor(n int) int {
	return (n + PageSize - 1) / PageSize
}
