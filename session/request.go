package session

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/algstream/buffer"
	"github.com/opd-ai/algstream/engine"
	"github.com/opd-ai/algstream/limits"
	"github.com/opd-ai/algstream/registry"
)

// request is one transform invocation. It exclusively owns the TX
// descriptor set detached from the accumulator and the RX chunks
// reserved for its output; both are released exactly once, by the
// completion path, regardless of outcome.
type request struct {
	c *Context

	op       engine.Op
	iv       []byte
	assocLen int

	txSet    *buffer.DescriptorSet
	rxChunks []*buffer.RxChunk

	src []byte
	dst []byte

	// done receives the completion result for synchronous waiters. It
	// is buffered so an interrupted waiter never blocks the engine's
	// completion callback.
	done chan result

	// callback and sink are set for asynchronous reads: output is
	// copied into sink and callback invoked from the engine's context.
	callback func(n int, err error)
	sink     []byte
}

type result struct {
	n   int
	err error
}

// buildRequestLocked constructs a request from the session state:
// sizes the input by shape, reserves RX capacity (charging the receive
// quota at reservation time), detaches the TX slice (crediting the
// send quota immediately, so flow control reflects committed work) and
// snapshots the IV and associated-data length. Quota pressure that will
// resolve itself is reported as errNoProgress; real parameter problems
// surface as errors without mutating any list.
func (c *Context) buildRequestLocked(cb func(int, error)) (*request, error) {
	op := engine.OpDecrypt
	switch {
	case c.shape == registry.ShapeDigest:
		op = engine.OpDigest
	case c.enc:
		op = engine.OpEncrypt
	}

	inLen := c.tx.Used()
	assocLen := c.assocLen
	if c.shape == registry.ShapeFixed && !c.finalized {
		// Mid-message processing runs on whole blocks only.
		inLen -= inLen % c.tfm.BlockSize()
	}

	outLen, err := c.tfm.OutputSize(op, inLen, assocLen)
	if err != nil {
		return nil, err
	}
	if outLen > c.rcv.Limit() {
		return nil, fmt.Errorf("%w: output of %d exceeds receive quota %d", limits.ErrResourceExhausted, outLen, c.rcv.Limit())
	}
	if outLen > c.rcv.Available() {
		if c.shape == registry.ShapeFixed && !c.finalized {
			// Shrink a partial-message request to the space we have.
			bs := c.tfm.BlockSize()
			fit := c.rcv.Available() - c.rcv.Available()%bs
			if fit > 0 {
				inLen = fit
				outLen = fit
			} else {
				return nil, errNoProgress
			}
		} else {
			return nil, errNoProgress
		}
	}

	iv := c.iv
	if iv == nil {
		// An unset IV means all zeroes of the transform's size.
		iv = make([]byte, c.tfm.IVSize())
	}
	if err := limits.ValidateIV(iv, c.tfm.IVSize()); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInvalidParameters, err)
	}

	if err := c.rcv.Charge(outLen); err != nil {
		return nil, errNoProgress
	}
	rxChunks, err := c.rx.Reserve(outLen)
	if err != nil {
		c.rcv.Credit(outLen)
		return nil, err
	}

	txSet := c.tx.Detach(inLen)
	c.snd.Credit(inLen)

	src := make([]byte, inLen)
	txSet.CopyTo(src, 0)

	req := &request{
		c:        c,
		op:       op,
		iv:       append([]byte(nil), iv...),
		assocLen: assocLen,
		txSet:    txSet,
		rxChunks: rxChunks,
		src:      src,
		dst:      make([]byte, outLen),
		done:     make(chan result, 1),
		callback: cb,
	}

	// The request consumed the message boundary and its parameters.
	if c.finalized && c.tx.Used() == 0 {
		c.finalized = false
		c.assocLen = 0
	}
	c.inflight++
	c.wakeLocked()

	logrus.WithFields(logrus.Fields{
		"function":  "buildRequest",
		"package":   "session",
		"algorithm": c.tfm.Name(),
		"operation": op.String(),
		"in_len":    inLen,
		"out_len":   outLen,
	}).Debug("Transform request built")
	return req, nil
}

// engineRequest adapts the request to the engine contract.
func (r *request) engineRequest() *engine.Request {
	return &engine.Request{
		Transform:  r.c.tfm,
		Op:         r.op,
		IV:         r.iv,
		AssocLen:   r.assocLen,
		Src:        r.src,
		Dst:        r.dst,
		OnComplete: r.complete,
	}
}

// abortSubmitLocked unwinds a request whose submission never reached
// the engine: no completion callback will fire, so the builder releases
// the buffers it took.
func (c *Context) abortSubmitLocked(r *request) {
	r.txSet.Release()
	c.rcv.Credit(c.rx.Remove(r.rxChunks))
	c.inflight--
	c.wakeLocked()
}

// complete is the single completion path, invoked exactly once per
// request, possibly from the engine's own goroutine concurrently with
// client operations on the session. It releases the TX buffers,
// publishes output into the RX chunks (or withdraws them on failure),
// and wakes every suspended operation. Synchronous waiters and
// asynchronous callbacks share this code; the only difference is how
// the result leaves.
func (r *request) complete(status error, outLen int) {
	c := r.c
	c.mu.Lock()

	r.txSet.Release()

	if status == nil {
		// The transform advanced r.iv in place to the chaining value;
		// the next segment of this message picks it up.
		c.iv = r.iv
	}

	switch {
	case status != nil:
		// Partial output from a failed transform is untrusted; the
		// reservation is withdrawn so none of it can be read.
		c.rcv.Credit(c.rx.Remove(r.rxChunks))
	case r.callback != nil:
		// Asynchronous read: output bypasses the collector and lands
		// in the caller's buffer.
		copy(r.sink, r.dst[:outLen])
		c.rcv.Credit(c.rx.Remove(r.rxChunks))
	default:
		out := r.dst[:outLen]
		for _, ch := range r.rxChunks {
			n := ch.CopyFrom(out)
			ch.Complete(n)
			out = out[n:]
		}
	}

	c.inflight--
	c.wakeLocked()
	c.mu.Unlock()

	if r.callback != nil {
		if status != nil {
			r.callback(0, status)
		} else {
			r.callback(outLen, nil)
		}
		return
	}
	r.done <- result{n: outLen, err: status}
}
