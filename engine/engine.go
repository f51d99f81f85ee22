package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Op selects the direction of a cipher operation. The zero value is
// OpDecrypt, matching the convention that an unset control message
// means decrypt.
type Op int

const (
	// OpDecrypt transforms ciphertext back to plaintext.
	OpDecrypt Op = iota
	// OpEncrypt transforms plaintext to ciphertext.
	OpEncrypt
	// OpDigest produces a message digest; direction does not apply.
	OpDigest
)

// String returns a human-readable operation name for logging.
func (op Op) String() string {
	switch op {
	case OpDecrypt:
		return "decrypt"
	case OpEncrypt:
		return "encrypt"
	case OpDigest:
		return "digest"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

var (
	// ErrTransformFailed indicates the transform itself failed, for
	// example an AEAD authentication mismatch on decrypt. Output bytes
	// from a failed transform are undefined and must not be consumed.
	ErrTransformFailed = errors.New("transform failed")

	// ErrInvalidParameters indicates an IV, key, tag size or input
	// length that does not fit the selected transform.
	ErrInvalidParameters = errors.New("invalid transform parameters")

	// ErrUnknownAlgorithm indicates a bind request for an algorithm
	// name no transform constructor is registered under.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// ErrEngineClosed indicates a submission to an engine that has
	// been shut down.
	ErrEngineClosed = errors.New("engine closed")
)

// Transform is one bound algorithm instance. Implementations are not
// required to be safe for concurrent Run calls; the session layer
// guarantees at most one in-flight request per transform.
type Transform interface {
	// Name returns the algorithm name the transform was bound under.
	Name() string

	// IVSize returns the initialization vector length Run expects,
	// zero for transforms that take none.
	IVSize() int

	// BlockSize returns the processing granularity in bytes. Requests
	// carry input in whole multiples of it; stream transforms report 1.
	BlockSize() int

	// OutputSize returns the bytes Run will produce for inLen input
	// bytes of which assocLen are associated data, or
	// ErrInvalidParameters when the input length is not acceptable.
	OutputSize(op Op, inLen, assocLen int) (int, error)

	// Run executes the transform over src, writing output to dst and
	// returning the bytes produced. dst never aliases src. Transforms
	// with chained state update iv in place to the value the next
	// segment of the same message must start from; callers that reuse
	// an IV across independent messages must pass a copy.
	Run(op Op, iv []byte, assocLen int, src, dst []byte) (int, error)
}

// KeySetter is implemented by transforms that accept a key.
type KeySetter interface {
	SetKey(key []byte) error
}

// AuthSizer is implemented by AEAD transforms whose authentication tag
// length is adjustable.
type AuthSizer interface {
	SetAuthSize(n int) error
}

// Request is the unit of work submitted to a transform engine. The
// submitter owns Src and Dst until OnComplete fires.
type Request struct {
	Transform Transform
	Op        Op
	IV        []byte
	AssocLen  int
	Src       []byte
	Dst       []byte

	// OnComplete is invoked exactly once with the transform status and
	// output length. It may run inline during Submit, or later from the
	// engine's own goroutine for asynchronous engines.
	OnComplete func(status error, outLen int)
}

// Handle identifies an in-flight request.
type Handle uint64

// Engine executes transform requests. Submit returns an error only for
// malformed submissions; transform failures are delivered through the
// request's OnComplete callback.
type Engine interface {
	Submit(req *Request) (Handle, error)
}

// InlineEngine runs every request on the submitting goroutine and
// completes it before Submit returns. It is the default engine.
type InlineEngine struct {
	next atomic.Uint64
}

// NewInlineEngine returns an engine that completes requests inline.
func NewInlineEngine() *InlineEngine {
	return &InlineEngine{}
}

// Submit executes the request and invokes its completion callback
// before returning.
func (e *InlineEngine) Submit(req *Request) (Handle, error) {
	if err := checkRequest(req); err != nil {
		return 0, err
	}
	h := Handle(e.next.Add(1))
	n, err := req.Transform.Run(req.Op, req.IV, req.AssocLen, req.Src, req.Dst)
	req.OnComplete(err, n)
	return h, nil
}

func checkRequest(req *Request) error {
	if req.Transform == nil {
		return fmt.Errorf("%w: request without transform", ErrInvalidParameters)
	}
	if req.OnComplete == nil {
		return fmt.Errorf("%w: request without completion callback", ErrInvalidParameters)
	}
	return nil
}
