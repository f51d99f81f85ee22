// Package algstream provides streaming channels to cryptographic
// transforms: ciphers, AEADs and hashes accessed through a common
// accumulate-invoke-drain interface with byte quotas on both sides.
//
// A channel is opened against a transform category ("skcipher",
// "aead", "hash") and a concrete algorithm. Data written to the
// channel accumulates until a message is finalized, the bound
// transform engine processes it, and the output is read back.
//
// Example:
//
//	opts := algstream.NewOptions()
//
//	ch, err := algstream.Open("skcipher", "ctr(aes)", opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ch.Close()
//
//	if err := ch.SetKey(key); err != nil {
//	    log.Fatal(err)
//	}
//	if err := ch.SetIV(iv); err != nil {
//	    log.Fatal(err)
//	}
//
//	ch.SetDirection(true)
//	ch.Write(plaintext, false)
//
//	ciphertext := make([]byte, len(plaintext))
//	n, err := ch.Read(ciphertext)
package algstream

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/algstream/buffer"
	"github.com/opd-ai/algstream/control"
	"github.com/opd-ai/algstream/engine"
	"github.com/opd-ai/algstream/registry"
	"github.com/opd-ai/algstream/session"
)

// Options contains configuration options for opening a channel.
type Options struct {
	// Registry resolves transform categories; nil uses the built-in
	// registry with the skcipher, aead and hash categories.
	Registry *registry.Registry

	// Pool supplies buffer pages; nil creates an unbounded pool
	// private to the channel.
	Pool *buffer.Pool

	// Engine executes transform requests; nil runs them inline on the
	// reader's goroutine unless AsyncWorkers is set.
	Engine engine.Engine

	// AsyncWorkers, when positive and Engine is nil, gives the channel
	// a private worker-pool engine of that size, closed with the
	// channel.
	AsyncWorkers int

	// SendQuota and RecvQuota bound unconsumed bytes on each side of
	// the transform; non-positive values use the package defaults.
	SendQuota int
	RecvQuota int

	// NonBlocking makes reads and writes fail with ErrWouldBlock
	// instead of suspending.
	NonBlocking bool
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		Registry: registry.Builtin(),
	}
}

// Channel is one open streaming connection to a transform: the bound
// transform instance, its session state and the key gate that keeps
// data flowing only once required key material is installed.
type Channel struct {
	mu sync.Mutex

	entry *registry.Entry
	tfm   engine.Transform
	sess  *session.Context

	// ownedEng is closed on channel close; nil when the caller
	// supplied the engine.
	ownedEng *engine.PoolEngine

	keySet bool
	closed bool
}

// Open binds the named algorithm within a transform category and
// returns a channel ready for parameter setup. Keyed transforms reject
// data transfer until SetKey is called.
func Open(category, algorithm string, opts *Options) (*Channel, error) {
	if opts == nil {
		opts = NewOptions()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.Builtin()
	}

	entry, err := reg.Lookup(category)
	if err != nil {
		return nil, err
	}
	tfm, err := entry.Bind(algorithm)
	if err != nil {
		return nil, err
	}

	eng := opts.Engine
	var owned *engine.PoolEngine
	if eng == nil && opts.AsyncWorkers > 0 {
		owned = engine.NewPoolEngine(opts.AsyncWorkers)
		eng = owned
	}

	sess := session.New(session.Config{
		Pool:        opts.Pool,
		Engine:      eng,
		SendQuota:   opts.SendQuota,
		RecvQuota:   opts.RecvQuota,
		NonBlocking: opts.NonBlocking,
	}, tfm, entry.Shape())

	logrus.WithFields(logrus.Fields{
		"function":  "Open",
		"package":   "algstream",
		"category":  entry.Name(),
		"algorithm": algorithm,
	}).Debug("Channel opened")

	return &Channel{entry: entry, tfm: tfm, sess: sess, ownedEng: owned}, nil
}

// SetKey installs key material on the bound transform, opening the key
// gate for data transfer.
func (ch *Channel) SetKey(key []byte) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return ErrChannelClosed
	}
	if err := ch.entry.SetKey(ch.tfm, key); err != nil {
		return err
	}
	ch.keySet = true
	return nil
}

// SetAuthSize sets the authentication tag size for AEAD transforms.
func (ch *Channel) SetAuthSize(n int) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return ErrChannelClosed
	}
	return ch.entry.SetAuthSize(ch.tfm, n)
}

// SetIV installs the initialization vector for the next message.
func (ch *Channel) SetIV(iv []byte) error {
	return ch.sess.SetIV(iv)
}

// SetDirection selects encryption (true) or decryption (false) for
// subsequent messages.
func (ch *Channel) SetDirection(enc bool) error {
	return ch.sess.SetDirection(enc)
}

// SetAssocLen declares how many leading bytes of the next message are
// associated data. Valid only for AEAD transforms.
func (ch *Channel) SetAssocLen(n int) error {
	return ch.sess.SetAssocLen(n)
}

// accept verifies the channel is open and its key gate satisfied.
func (ch *Channel) accept() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return ErrChannelClosed
	}
	return ch.entry.Accept(ch.tfm, ch.keySet)
}

// Write accumulates p toward the current message. more signals that
// further writes belong to the same message; the final write carries
// more=false.
func (ch *Channel) Write(p []byte, more bool) (int, error) {
	return ch.WriteContext(context.Background(), p, more)
}

// WriteContext is Write with caller cancellation: a blocked write
// aborted by ctx returns ErrInterrupted having accepted nothing.
func (ch *Channel) WriteContext(ctx context.Context, p []byte, more bool) (int, error) {
	if err := ch.accept(); err != nil {
		return 0, err
	}
	return ch.sess.Write(ctx, p, more)
}

// WriteMsg applies an out-of-band control message and then accumulates
// p, atomically with respect to other channel operations: the control
// parameters bind to the message p belongs to.
func (ch *Channel) WriteMsg(p []byte, ctrl *control.Message, more bool) (int, error) {
	if ctrl != nil && !ctrl.Empty() {
		if err := control.Apply(ctrl, ch); err != nil {
			return 0, fmt.Errorf("failed to apply control message: %w", err)
		}
	}
	if len(p) == 0 && more {
		return 0, nil
	}
	return ch.Write(p, more)
}

// Read drains transform output into p, invoking the transform when a
// message (or, for block transforms, a block's worth of data) is
// ready.
func (ch *Channel) Read(p []byte) (int, error) {
	return ch.ReadContext(context.Background(), p)
}

// ReadContext is Read with caller cancellation. Interrupting a read
// that already submitted a request leaves the request in flight; its
// buffers are reclaimed when the engine completes it.
func (ch *Channel) ReadContext(ctx context.Context, p []byte) (int, error) {
	if err := ch.accept(); err != nil {
		return 0, err
	}
	return ch.sess.Read(ctx, p)
}

// ReadAsync submits the ready message for transformation without
// waiting. cb fires exactly once with the bytes delivered into p or
// the failure. p stays owned by the channel until then.
func (ch *Channel) ReadAsync(p []byte, cb func(n int, err error)) error {
	if err := ch.accept(); err != nil {
		return err
	}
	return ch.sess.ReadAsync(p, cb)
}

// Writable reports whether the channel would accept a write of at
// least limits.MinWriteSpace bytes without blocking.
func (ch *Channel) Writable() bool { return ch.sess.Writable() }

// Readable reports whether drained output is immediately available.
func (ch *Channel) Readable() bool { return ch.sess.Readable() }

// Close tears the channel down: pending buffers are released, quotas
// credited and the transform unbound. Requests in flight complete
// first; Close never frees memory the engine may still touch. Safe to
// call more than once.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	ch.mu.Unlock()

	err := ch.sess.Close()
	ch.entry.Release(ch.tfm)
	if ch.ownedEng != nil {
		ch.ownedEng.Close()
	}
	return err
}
