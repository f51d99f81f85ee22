package engine

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/secretbox"
)

// NewAEAD binds an authenticated-encryption transform by algorithm
// name. Supported names: "gcm(aes)", "chacha20poly1305",
// "xchacha20poly1305", "secretbox", "noise-aesgcm", "noise-chachapoly".
func NewAEAD(name string) (Transform, error) {
	switch name {
	case "gcm(aes)":
		return &aesGCM{name: name, tagSize: 16}, nil
	case "chacha20poly1305":
		return &chachaPoly{name: name, x: false}, nil
	case "xchacha20poly1305":
		return &chachaPoly{name: name, x: true}, nil
	case "secretbox":
		return &naclSecretbox{name: name}, nil
	case "noise-aesgcm", "noise-chachapoly":
		return newNoiseAEAD(name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// aeadOutputSize implements the shared AEAD sizing rule: output echoes
// the associated data, encryption appends the tag, decryption strips
// it. Decrypt input must cover the associated data plus the tag.
func aeadOutputSize(op Op, inLen, assocLen, tagSize int) (int, error) {
	if assocLen > inLen {
		return 0, fmt.Errorf("%w: associated data length %d exceeds input %d", ErrInvalidParameters, assocLen, inLen)
	}
	switch op {
	case OpEncrypt:
		return inLen + tagSize, nil
	case OpDecrypt:
		if inLen < assocLen+tagSize {
			return 0, fmt.Errorf("%w: ciphertext %d shorter than associated data %d plus tag %d",
				ErrInvalidParameters, inLen, assocLen, tagSize)
		}
		return inLen - tagSize, nil
	default:
		return 0, fmt.Errorf("%w: aead does not support %s", ErrInvalidParameters, op)
	}
}

// aeadRun drives a cipher.AEAD over src, echoing the associated data
// prefix into dst the way the transform's consumers expect.
func aeadRun(a cipher.AEAD, op Op, iv []byte, assocLen int, src, dst []byte) (int, error) {
	if len(iv) != a.NonceSize() {
		return 0, fmt.Errorf("%w: iv length %d, want %d", ErrInvalidParameters, len(iv), a.NonceSize())
	}
	if assocLen > len(src) {
		return 0, fmt.Errorf("%w: associated data length %d exceeds input %d", ErrInvalidParameters, assocLen, len(src))
	}
	assoc := src[:assocLen]
	payload := src[assocLen:]
	copy(dst, assoc)

	switch op {
	case OpEncrypt:
		sealed := a.Seal(dst[assocLen:assocLen], iv, payload, assoc)
		return assocLen + len(sealed), nil
	case OpDecrypt:
		opened, err := a.Open(dst[assocLen:assocLen], iv, payload, assoc)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrTransformFailed, err)
		}
		return assocLen + len(opened), nil
	default:
		return 0, fmt.Errorf("%w: aead does not support %s", ErrInvalidParameters, op)
	}
}

// aesGCM is AES in Galois/Counter mode with an adjustable tag size.
type aesGCM struct {
	name    string
	key     []byte
	tagSize int
	aead    cipher.AEAD
}

func (t *aesGCM) Name() string   { return t.name }
func (t *aesGCM) IVSize() int    { return 12 }
func (t *aesGCM) BlockSize() int { return 1 }

func (t *aesGCM) SetKey(key []byte) error {
	t.key = append([]byte(nil), key...)
	return t.rebuild()
}

// SetAuthSize adjusts the authentication tag length. GCM accepts 12
// through 16 byte tags.
func (t *aesGCM) SetAuthSize(n int) error {
	if n < 12 || n > 16 {
		return fmt.Errorf("%w: gcm(aes) tag size %d, want 12..16", ErrInvalidParameters, n)
	}
	t.tagSize = n
	if t.key == nil {
		return nil
	}
	return t.rebuild()
}

func (t *aesGCM) rebuild() error {
	block, err := aes.NewCipher(t.key)
	if err != nil {
		return fmt.Errorf("%w: aes key length %d", ErrInvalidParameters, len(t.key))
	}
	aead, err := cipher.NewGCMWithTagSize(block, t.tagSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	t.aead = aead
	return nil
}

func (t *aesGCM) OutputSize(op Op, inLen, assocLen int) (int, error) {
	return aeadOutputSize(op, inLen, assocLen, t.tagSize)
}

func (t *aesGCM) Run(op Op, iv []byte, assocLen int, src, dst []byte) (int, error) {
	return aeadRun(t.aead, op, iv, assocLen, src, dst)
}

// chachaPoly is ChaCha20-Poly1305, optionally the extended-nonce
// XChaCha20 variant. The tag size is fixed at 16 bytes.
type chachaPoly struct {
	name string
	x    bool
	aead cipher.AEAD
}

func (t *chachaPoly) Name() string   { return t.name }
func (t *chachaPoly) BlockSize() int { return 1 }

func (t *chachaPoly) IVSize() int {
	if t.x {
		return chacha20poly1305.NonceSizeX
	}
	return chacha20poly1305.NonceSize
}

func (t *chachaPoly) SetKey(key []byte) error {
	var (
		aead cipher.AEAD
		err  error
	)
	if t.x {
		aead, err = chacha20poly1305.NewX(key)
	} else {
		aead, err = chacha20poly1305.New(key)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	t.aead = aead
	return nil
}

func (t *chachaPoly) SetAuthSize(n int) error {
	if n != chacha20poly1305.Overhead {
		return fmt.Errorf("%w: %s tag size is fixed at %d", ErrInvalidParameters, t.name, chacha20poly1305.Overhead)
	}
	return nil
}

func (t *chachaPoly) OutputSize(op Op, inLen, assocLen int) (int, error) {
	return aeadOutputSize(op, inLen, assocLen, chacha20poly1305.Overhead)
}

func (t *chachaPoly) Run(op Op, iv []byte, assocLen int, src, dst []byte) (int, error) {
	return aeadRun(t.aead, op, iv, assocLen, src, dst)
}

// naclSecretbox adapts NaCl secretbox (XSalsa20-Poly1305) to the
// transform contract. Secretbox authenticates no associated data, so
// requests carrying any are rejected.
type naclSecretbox struct {
	name string
	key  [32]byte
}

func (t *naclSecretbox) Name() string   { return t.name }
func (t *naclSecretbox) IVSize() int    { return 24 }
func (t *naclSecretbox) BlockSize() int { return 1 }

func (t *naclSecretbox) SetKey(key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("%w: secretbox key length %d, want 32", ErrInvalidParameters, len(key))
	}
	copy(t.key[:], key)
	return nil
}

func (t *naclSecretbox) SetAuthSize(n int) error {
	if n != secretbox.Overhead {
		return fmt.Errorf("%w: secretbox tag size is fixed at %d", ErrInvalidParameters, secretbox.Overhead)
	}
	return nil
}

func (t *naclSecretbox) OutputSize(op Op, inLen, assocLen int) (int, error) {
	if assocLen != 0 {
		return 0, fmt.Errorf("%w: secretbox does not take associated data", ErrInvalidParameters)
	}
	return aeadOutputSize(op, inLen, 0, secretbox.Overhead)
}

func (t *naclSecretbox) Run(op Op, iv []byte, assocLen int, src, dst []byte) (int, error) {
	if len(iv) != 24 {
		return 0, fmt.Errorf("%w: secretbox nonce length %d, want 24", ErrInvalidParameters, len(iv))
	}
	if assocLen != 0 {
		return 0, fmt.Errorf("%w: secretbox does not take associated data", ErrInvalidParameters)
	}
	var nonce [24]byte
	copy(nonce[:], iv)

	switch op {
	case OpEncrypt:
		out := secretbox.Seal(dst[:0], src, &nonce, &t.key)
		return len(out), nil
	case OpDecrypt:
		out, ok := secretbox.Open(dst[:0], src, &nonce, &t.key)
		if !ok {
			return 0, fmt.Errorf("%w: secretbox authentication failed", ErrTransformFailed)
		}
		return len(out), nil
	default:
		return 0, fmt.Errorf("%w: secretbox does not support %s", ErrInvalidParameters, op)
	}
}
