package engine

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// NewCipher binds a symmetric cipher transform by algorithm name.
// Supported names: "ctr(aes)", "cbc(aes)", "chacha20".
func NewCipher(name string) (Transform, error) {
	switch name {
	case "ctr(aes)":
		return &aesCTR{name: name}, nil
	case "cbc(aes)":
		return &aesCBC{name: name}, nil
	case "chacha20":
		return &chacha20Cipher{name: name}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// ctrAdvance adds n to a big-endian counter block in place.
func ctrAdvance(counter []byte, n int) {
	for i := len(counter) - 1; i >= 0 && n > 0; i-- {
		n += int(counter[i])
		counter[i] = byte(n)
		n >>= 8
	}
}

// aesCTR is AES in counter mode. The IV is the initial counter block;
// Run advances it past the consumed keystream so segments of one
// message chain across invocations.
type aesCTR struct {
	name  string
	block cipher.Block
}

func (t *aesCTR) Name() string   { return t.name }
func (t *aesCTR) IVSize() int    { return aes.BlockSize }
func (t *aesCTR) BlockSize() int { return aes.BlockSize }

func (t *aesCTR) SetKey(key []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: aes key length %d", ErrInvalidParameters, len(key))
	}
	t.block = block
	return nil
}

func (t *aesCTR) OutputSize(op Op, inLen, assocLen int) (int, error) {
	if assocLen != 0 {
		return 0, fmt.Errorf("%w: cipher does not take associated data", ErrInvalidParameters)
	}
	return inLen, nil
}

func (t *aesCTR) Run(op Op, iv []byte, assocLen int, src, dst []byte) (int, error) {
	if len(iv) != aes.BlockSize {
		return 0, fmt.Errorf("%w: ctr(aes) iv length %d, want %d", ErrInvalidParameters, len(iv), aes.BlockSize)
	}
	// CTR is its own inverse; op only selects direction semantics.
	cipher.NewCTR(t.block, iv).XORKeyStream(dst[:len(src)], src)
	ctrAdvance(iv, (len(src)+aes.BlockSize-1)/aes.BlockSize)
	return len(src), nil
}

// aesCBC is AES in cipher block chaining mode. Input must be a whole
// number of blocks; this layer does no padding. Run leaves the last
// ciphertext block in the IV, chaining message segments.
type aesCBC struct {
	name  string
	block cipher.Block
}

func (t *aesCBC) Name() string   { return t.name }
func (t *aesCBC) IVSize() int    { return aes.BlockSize }
func (t *aesCBC) BlockSize() int { return aes.BlockSize }

func (t *aesCBC) SetKey(key []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: aes key length %d", ErrInvalidParameters, len(key))
	}
	t.block = block
	return nil
}

func (t *aesCBC) OutputSize(op Op, inLen, assocLen int) (int, error) {
	if assocLen != 0 {
		return 0, fmt.Errorf("%w: cipher does not take associated data", ErrInvalidParameters)
	}
	if inLen%aes.BlockSize != 0 {
		return 0, fmt.Errorf("%w: cbc(aes) input %d not a multiple of block size %d",
			ErrInvalidParameters, inLen, aes.BlockSize)
	}
	return inLen, nil
}

func (t *aesCBC) Run(op Op, iv []byte, assocLen int, src, dst []byte) (int, error) {
	if len(iv) != aes.BlockSize {
		return 0, fmt.Errorf("%w: cbc(aes) iv length %d, want %d", ErrInvalidParameters, len(iv), aes.BlockSize)
	}
	if len(src)%aes.BlockSize != 0 {
		return 0, fmt.Errorf("%w: cbc(aes) input %d not a multiple of block size %d",
			ErrInvalidParameters, len(src), aes.BlockSize)
	}
	switch op {
	case OpEncrypt:
		cipher.NewCBCEncrypter(t.block, iv).CryptBlocks(dst[:len(src)], src)
		if len(src) > 0 {
			copy(iv, dst[len(src)-aes.BlockSize:len(src)])
		}
	case OpDecrypt:
		// The next chaining value is the last ciphertext block, read
		// before src is gone.
		var next [aes.BlockSize]byte
		if len(src) > 0 {
			copy(next[:], src[len(src)-aes.BlockSize:])
		} else {
			copy(next[:], iv)
		}
		cipher.NewCBCDecrypter(t.block, iv).CryptBlocks(dst[:len(src)], src)
		copy(iv, next[:])
	default:
		return 0, fmt.Errorf("%w: cbc(aes) does not support %s", ErrInvalidParameters, op)
	}
	return len(src), nil
}

// chacha20IVSize is a 4-byte little-endian initial block counter
// followed by the 12-byte nonce.
const chacha20IVSize = 4 + chacha20.NonceSize

// chacha20Cipher is the unauthenticated ChaCha20 stream cipher from
// golang.org/x/crypto. Run advances the counter words of the IV past
// the consumed keystream blocks.
type chacha20Cipher struct {
	name string
	key  []byte
}

func (t *chacha20Cipher) Name() string   { return t.name }
func (t *chacha20Cipher) IVSize() int    { return chacha20IVSize }
func (t *chacha20Cipher) BlockSize() int { return 64 }

func (t *chacha20Cipher) SetKey(key []byte) error {
	if len(key) != chacha20.KeySize {
		return fmt.Errorf("%w: chacha20 key length %d, want %d", ErrInvalidParameters, len(key), chacha20.KeySize)
	}
	t.key = append([]byte(nil), key...)
	return nil
}

func (t *chacha20Cipher) OutputSize(op Op, inLen, assocLen int) (int, error) {
	if assocLen != 0 {
		return 0, fmt.Errorf("%w: cipher does not take associated data", ErrInvalidParameters)
	}
	return inLen, nil
}

func (t *chacha20Cipher) Run(op Op, iv []byte, assocLen int, src, dst []byte) (int, error) {
	if len(iv) != chacha20IVSize {
		return 0, fmt.Errorf("%w: chacha20 iv length %d, want %d", ErrInvalidParameters, len(iv), chacha20IVSize)
	}
	counter := binary.LittleEndian.Uint32(iv[:4])
	c, err := chacha20.NewUnauthenticatedCipher(t.key, iv[4:])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	c.SetCounter(counter)
	c.XORKeyStream(dst[:len(src)], src)
	binary.LittleEndian.PutUint32(iv[:4], counter+uint32((len(src)+63)/64))
	return len(src), nil
}
