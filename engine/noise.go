package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/flynn/noise"
)

const noiseTagSize = 16

// noiseAEAD adapts a Noise protocol cipher function to the transform
// contract. The 8-byte IV is the big-endian Noise nonce counter.
type noiseAEAD struct {
	name string
	fn   noise.CipherFunc
	c    noise.Cipher
}

func newNoiseAEAD(name string) (Transform, error) {
	var fn noise.CipherFunc
	switch name {
	case "noise-aesgcm":
		fn = noise.CipherAESGCM
	case "noise-chachapoly":
		fn = noise.CipherChaChaPoly
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return &noiseAEAD{name: name, fn: fn}, nil
}

func (t *noiseAEAD) Name() string   { return t.name }
func (t *noiseAEAD) IVSize() int    { return 8 }
func (t *noiseAEAD) BlockSize() int { return 1 }

func (t *noiseAEAD) SetKey(key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("%w: %s key length %d, want 32", ErrInvalidParameters, t.name, len(key))
	}
	var k [32]byte
	copy(k[:], key)
	t.c = t.fn.Cipher(k)
	return nil
}

func (t *noiseAEAD) SetAuthSize(n int) error {
	if n != noiseTagSize {
		return fmt.Errorf("%w: %s tag size is fixed at %d", ErrInvalidParameters, t.name, noiseTagSize)
	}
	return nil
}

func (t *noiseAEAD) OutputSize(op Op, inLen, assocLen int) (int, error) {
	return aeadOutputSize(op, inLen, assocLen, noiseTagSize)
}

func (t *noiseAEAD) Run(op Op, iv []byte, assocLen int, src, dst []byte) (int, error) {
	if len(iv) != 8 {
		return 0, fmt.Errorf("%w: %s nonce length %d, want 8", ErrInvalidParameters, t.name, len(iv))
	}
	if assocLen > len(src) {
		return 0, fmt.Errorf("%w: associated data length %d exceeds input %d", ErrInvalidParameters, assocLen, len(src))
	}
	n := binary.BigEndian.Uint64(iv)
	assoc := src[:assocLen]
	payload := src[assocLen:]
	copy(dst, assoc)

	switch op {
	case OpEncrypt:
		out := t.c.Encrypt(dst[assocLen:assocLen], n, assoc, payload)
		return assocLen + len(out), nil
	case OpDecrypt:
		out, err := t.c.Decrypt(dst[assocLen:assocLen], n, assoc, payload)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrTransformFailed, err)
		}
		return assocLen + len(out), nil
	default:
		return 0, fmt.Errorf("%w: %s does not support %s", ErrInvalidParameters, t.name, op)
	}
}
