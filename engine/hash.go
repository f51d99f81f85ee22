package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// NewHash binds a message-digest transform by algorithm name.
// Supported names: "sha256", "sha512", "sha3-256", "blake2b-256",
// "hmac(sha256)", "hmac(sha512)".
func NewHash(name string) (Transform, error) {
	switch name {
	case "sha256":
		return &digest{name: name, size: sha256.Size, build: func([]byte) (hash.Hash, error) {
			return sha256.New(), nil
		}}, nil
	case "sha512":
		return &digest{name: name, size: sha512.Size, build: func([]byte) (hash.Hash, error) {
			return sha512.New(), nil
		}}, nil
	case "sha3-256":
		return &digest{name: name, size: 32, build: func([]byte) (hash.Hash, error) {
			return sha3.New256(), nil
		}}, nil
	case "blake2b-256":
		return &digest{name: name, size: blake2b.Size256, keyed: true, build: func(key []byte) (hash.Hash, error) {
			h, err := blake2b.New256(key)
			if err != nil {
				return nil, fmt.Errorf("%w: blake2b key length %d", ErrInvalidParameters, len(key))
			}
			return h, nil
		}}, nil
	case "hmac(sha256)":
		return &digest{name: name, size: sha256.Size, keyed: true, needsKey: true, build: func(key []byte) (hash.Hash, error) {
			return hmac.New(sha256.New, key), nil
		}}, nil
	case "hmac(sha512)":
		return &digest{name: name, size: sha512.Size, keyed: true, needsKey: true, build: func(key []byte) (hash.Hash, error) {
			return hmac.New(sha512.New, key), nil
		}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// HashNeedsKey reports whether the named hash cannot run before a key
// is set. Plain digests accept key-less use; MACs do not.
func HashNeedsKey(name string) bool {
	switch name {
	case "hmac(sha256)", "hmac(sha512)":
		return true
	default:
		return false
	}
}

// digest is a one-shot hash transform: a request carries the whole
// message and the output is the digest.
type digest struct {
	name     string
	size     int
	keyed    bool
	needsKey bool
	key      []byte
	build    func(key []byte) (hash.Hash, error)
}

func (t *digest) Name() string   { return t.name }
func (t *digest) IVSize() int    { return 0 }
func (t *digest) BlockSize() int { return 1 }

func (t *digest) SetKey(key []byte) error {
	if !t.keyed {
		return fmt.Errorf("%w: %s does not take a key", ErrInvalidParameters, t.name)
	}
	// Probe the key now so bad sizes surface at setkey time.
	if _, err := t.build(key); err != nil {
		return err
	}
	t.key = append([]byte(nil), key...)
	return nil
}

func (t *digest) OutputSize(op Op, inLen, assocLen int) (int, error) {
	if assocLen != 0 {
		return 0, fmt.Errorf("%w: digest does not take associated data", ErrInvalidParameters)
	}
	return t.size, nil
}

func (t *digest) Run(op Op, iv []byte, assocLen int, src, dst []byte) (int, error) {
	if len(iv) != 0 {
		return 0, fmt.Errorf("%w: %s does not take an iv", ErrInvalidParameters, t.name)
	}
	if t.needsKey && t.key == nil {
		return 0, fmt.Errorf("%w: %s requires a key", ErrInvalidParameters, t.name)
	}
	h, err := t.build(t.key)
	if err != nil {
		return 0, err
	}
	h.Write(src)
	sum := h.Sum(nil)
	return copy(dst, sum), nil
}
