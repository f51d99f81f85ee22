package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/algstream/buffer"
	"github.com/opd-ai/algstream/engine"
	"github.com/opd-ai/algstream/limits"
	"github.com/opd-ai/algstream/registry"
)

var (
	// ErrInterrupted indicates a blocking wait was aborted by caller
	// cancellation. Buffers owned by an in-flight request remain owned
	// by it; the engine's completion callback releases them later.
	ErrInterrupted = errors.New("operation interrupted")

	// ErrChannelClosed indicates an operation on a closed channel.
	ErrChannelClosed = errors.New("channel closed")
)

// errNoProgress is an internal signal that a request cannot be built
// until quota or data becomes available; blocking callers wait on it,
// non-blocking callers turn it into ErrWouldBlock.
var errNoProgress = errors.New("no progress possible")

// State is the coarse lifecycle state of a session, derived from its
// buffer and request accounting. Used for logging and tests.
type State int

const (
	// StateIdle: no accumulated data and no request in flight.
	StateIdle State = iota
	// StateAccumulating: writes received, no request in flight.
	StateAccumulating
	// StateInvoking: at least one request submitted to the engine.
	StateInvoking
)

// Config carries the construction parameters for a session context.
type Config struct {
	// Pool supplies pinned pages for both buffer lists.
	Pool *buffer.Pool

	// Engine executes transform requests.
	Engine engine.Engine

	// SendQuota and RecvQuota bound unconsumed bytes on each side;
	// non-positive values use the package defaults.
	SendQuota int
	RecvQuota int

	// NonBlocking makes writes and reads fail with ErrWouldBlock
	// instead of suspending the caller.
	NonBlocking bool
}

// Context is the per-channel crypto session state: the TX accumulator,
// the RX collector, byte quotas on both sides, streaming flags and the
// parameters for the next transform request. All fields are guarded by
// mu; engine completion callbacks acquire it too, so client operations
// and completions serialize on the same lock.
type Context struct {
	mu     sync.Mutex
	waitCh chan struct{}

	tfm   engine.Transform
	shape registry.Shape
	eng   engine.Engine

	tx *buffer.TxList
	rx *buffer.RxList

	snd limits.Quota
	rcv limits.Quota

	iv       []byte
	assocLen int
	enc      bool

	more      bool
	merge     bool
	finalized bool

	inflight int
	closed   bool
	nonblock bool
}

// New creates a session context for one bound transform.
func New(cfg Config, tfm engine.Transform, shape registry.Shape) *Context {
	pool := cfg.Pool
	if pool == nil {
		pool = buffer.NewPool(0)
	}
	eng := cfg.Engine
	if eng == nil {
		eng = engine.NewInlineEngine()
	}
	recvQuota := cfg.RecvQuota
	if recvQuota <= 0 {
		recvQuota = limits.DefaultRecvQuota
	}
	return &Context{
		waitCh:   make(chan struct{}),
		tfm:      tfm,
		shape:    shape,
		eng:      eng,
		tx:       buffer.NewTxList(pool),
		rx:       buffer.NewRxList(pool),
		snd:      limits.NewQuota(cfg.SendQuota),
		rcv:      limits.NewQuota(recvQuota),
		nonblock: cfg.NonBlocking,
	}
}

// Used returns the unconsumed bytes held in the TX accumulator.
func (c *Context) Used() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx.Used()
}

// RcvUsed returns the bytes currently reserved in the RX collector.
func (c *Context) RcvUsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rcv.Used()
}

// Inflight returns the number of requests submitted but not completed.
func (c *Context) Inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}

// State derives the session's lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.inflight > 0:
		return StateInvoking
	case c.tx.Used() > 0:
		return StateAccumulating
	default:
		return StateIdle
	}
}

// Writable reports whether a write of at least limits.MinWriteSpace
// bytes could currently be accepted. Poll-style helper.
func (c *Context) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.snd.Writable()
}

// Readable reports whether a read would find drainable output without
// invoking the transform. Poll-style helper.
func (c *Context) Readable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.rx.HeadReady()
}

// controlAllowedLocked enforces the out-of-band control rule: transform
// parameters cannot change while a finalized message is still queued,
// since the pending request would pick up the wrong parameters.
func (c *Context) controlAllowedLocked() error {
	if c.closed {
		return ErrChannelClosed
	}
	if c.finalized && c.tx.Used() > 0 {
		return fmt.Errorf("%w: control change with finalized data pending", engine.ErrInvalidParameters)
	}
	return nil
}

// SetIV installs the initialization vector consumed by the next
// request. Validated against the bound transform's IV size.
func (c *Context) SetIV(iv []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.controlAllowedLocked(); err != nil {
		return err
	}
	if err := limits.ValidateIV(iv, c.tfm.IVSize()); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidParameters, err)
	}
	c.iv = append([]byte(nil), iv...)
	return nil
}

// SetDirection fixes the operation direction for subsequent requests.
func (c *Context) SetDirection(enc bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.controlAllowedLocked(); err != nil {
		return err
	}
	c.enc = enc
	return nil
}

// SetAssocLen records how many leading bytes of the next message are
// associated data rather than payload.
func (c *Context) SetAssocLen(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.controlAllowedLocked(); err != nil {
		return err
	}
	if n < 0 || n > c.snd.Limit() {
		return fmt.Errorf("%w: associated data length %d outside 0..%d", engine.ErrInvalidParameters, n, c.snd.Limit())
	}
	if c.shape != registry.ShapeAEAD && n != 0 {
		return fmt.Errorf("%w: associated data on a non-aead transform", engine.ErrInvalidParameters)
	}
	c.assocLen = n
	return nil
}

// Write accumulates p into the TX list. more signals that further data
// belongs to the same logical message; the final write of a message
// carries more=false and makes the message eligible for transform
// invocation. While a finalized message is still queued, further
// writes fail with ErrInvalidParameters. The write is all or nothing:
// if p does not fit the send quota, a non-blocking session fails with
// ErrWouldBlock and accepts zero bytes, a blocking one suspends until
// space frees.
func (c *Context) Write(ctx context.Context, p []byte, more bool) (int, error) {
	if len(p) > 0 && len(p) > c.sndLimit() {
		return 0, fmt.Errorf("%w: write of %d exceeds send quota %d", limits.ErrResourceExhausted, len(p), c.sndLimit())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.closed {
			return 0, ErrChannelClosed
		}
		if c.finalized && c.tx.Used() > 0 {
			// A finalized message must be consumed before the next one
			// starts; merging two messages into one invocation would
			// seal them under a single tag and IV.
			return 0, fmt.Errorf("%w: data write with finalized message pending", engine.ErrInvalidParameters)
		}
		if len(p) <= c.snd.Available() {
			break
		}
		if c.nonblock {
			return 0, fmt.Errorf("%w: send quota full", limits.ErrWouldBlock)
		}
		if err := c.waitLocked(ctx); err != nil {
			return 0, err
		}
	}

	if err := c.snd.Charge(len(p)); err != nil {
		return 0, err
	}
	n, err := c.tx.Append(p, c.merge)
	if err != nil {
		c.snd.Credit(len(p) - n)
		return n, err
	}

	c.more = more
	c.finalized = !more
	c.merge = c.tx.TailHasRoom()
	c.wakeLocked()

	logrus.WithFields(logrus.Fields{
		"function":  "Write",
		"package":   "session",
		"algorithm": c.tfm.Name(),
		"bytes":     n,
		"more":      more,
		"used":      c.tx.Used(),
	}).Debug("Data accumulated")
	return n, nil
}

func (c *Context) sndLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snd.Limit()
}

// Read drains transform output into p. If no output is ready it
// invokes the transform when enough input has accumulated (or the
// message is finalized), suspending for the completion; otherwise it
// waits for writers or in-flight requests to produce data. Non-blocking
// sessions fail with ErrWouldBlock instead of suspending.
func (c *Context) Read(ctx context.Context, p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.closed {
			return 0, ErrChannelClosed
		}
		if c.rx.HeadReady() {
			n, credited := c.rx.Drain(p)
			if credited > 0 {
				c.rcv.Credit(credited)
				c.wakeLocked()
			}
			if n > 0 || len(p) == 0 {
				return n, nil
			}
			continue
		}
		if c.canInvokeLocked() {
			n, err := c.invokeLocked(ctx)
			if err == nil {
				if n == 0 {
					return 0, nil
				}
				continue
			}
			if !errors.Is(err, errNoProgress) {
				return 0, err
			}
		}
		if c.nonblock {
			return 0, fmt.Errorf("%w: no transform output available", limits.ErrWouldBlock)
		}
		if err := c.waitLocked(ctx); err != nil {
			return 0, err
		}
	}
}

// canInvokeLocked reports whether a request could be built from the
// accumulated input: fixed-shape transforms process as soon as a full
// block is queued, whole-message shapes wait for the final write.
func (c *Context) canInvokeLocked() bool {
	if c.inflight > 0 {
		// Chunk ownership: the accumulator is not re-sliced while a
		// request holds a detached piece of the stream.
		return false
	}
	if c.finalized {
		return true
	}
	if c.shape == registry.ShapeFixed {
		return c.tx.Used() >= c.tfm.BlockSize()
	}
	return false
}

// invokeLocked builds a request, submits it and waits for completion,
// returning the output length the engine reported. The lock is dropped
// across submission and the completion wait; the completion callback
// reacquires it to publish results.
func (c *Context) invokeLocked(ctx context.Context) (int, error) {
	req, err := c.buildRequestLocked(nil)
	if err != nil {
		return 0, err
	}

	c.mu.Unlock()
	if _, err := c.eng.Submit(req.engineRequest()); err != nil {
		c.mu.Lock()
		c.abortSubmitLocked(req)
		return 0, err
	}

	select {
	case res := <-req.done:
		c.mu.Lock()
		return res.n, res.err
	case <-ctx.Done():
		// The request stays in flight; its completion callback remains
		// the sole releaser of the buffers it owns.
		c.mu.Lock()
		return 0, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
	}
}

// ReadAsync builds and submits a request without waiting. When the
// engine completes it, the produced bytes are copied into p and cb is
// invoked exactly once with the byte count or the failure. p must be
// large enough for the expected output and remains owned by the session
// until cb fires. Fails with ErrWouldBlock when no request can be built
// yet.
func (c *Context) ReadAsync(p []byte, cb func(n int, err error)) error {
	if cb == nil {
		return fmt.Errorf("%w: nil completion callback", engine.ErrInvalidParameters)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if !c.canInvokeLocked() {
		c.mu.Unlock()
		return fmt.Errorf("%w: message not ready for transform", limits.ErrWouldBlock)
	}
	req, err := c.buildRequestLocked(cb)
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, errNoProgress) {
			return fmt.Errorf("%w: receive quota full", limits.ErrWouldBlock)
		}
		return err
	}
	if len(p) < len(req.dst) {
		c.abortSubmitLocked(req)
		c.mu.Unlock()
		return fmt.Errorf("%w: buffer of %d for %d output bytes", engine.ErrInvalidParameters, len(p), len(req.dst))
	}
	req.sink = p
	c.mu.Unlock()

	if _, err := c.eng.Submit(req.engineRequest()); err != nil {
		c.mu.Lock()
		c.abortSubmitLocked(req)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Close marks the session closed, waits for in-flight completions and
// releases every remaining buffer. Requests in flight keep ownership of
// their buffers until their completion callback runs; teardown never
// frees memory the engine may still touch.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.wakeLocked()

	for c.inflight > 0 {
		ch := c.waitCh
		c.mu.Unlock()
		<-ch
		c.mu.Lock()
	}

	released := c.tx.ReleaseAll()
	c.snd.Credit(released)
	c.rcv.Credit(c.rx.ReleaseAll())
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "Close",
		"package":   "session",
		"algorithm": c.tfm.Name(),
		"released":  released,
	}).Debug("Session context destroyed")
	return nil
}

// waitLocked suspends the caller until the next state change or caller
// cancellation. Must be entered with mu held; returns with mu held.
func (c *Context) waitLocked(ctx context.Context) error {
	ch := c.waitCh
	c.mu.Unlock()
	select {
	case <-ch:
		c.mu.Lock()
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		return fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
	}
}

// wakeLocked broadcasts a state change to every suspended operation.
func (c *Context) wakeLocked() {
	close(c.waitCh)
	c.waitCh = make(chan struct{})
}
