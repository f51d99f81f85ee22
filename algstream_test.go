package algstream

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/algstream/control"
	"github.com/opd-ai/algstream/limits"
)

func openChannel(t *testing.T, category, algorithm string, opts *Options) *Channel {
	t.Helper()
	ch, err := Open(category, algorithm, opts)
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestOpenUnknownCategory(t *testing.T) {
	_, err := Open("rng", "ctr(aes)", nil)
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestOpenUnknownAlgorithm(t *testing.T) {
	_, err := Open("skcipher", "rot13", nil)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestKeyGate(t *testing.T) {
	ch := openChannel(t, "skcipher", "ctr(aes)", nil)

	_, err := ch.Write([]byte("no key yet"), false)
	assert.ErrorIs(t, err, ErrKeyRequired)
	_, err = ch.Read(make([]byte, 16))
	assert.ErrorIs(t, err, ErrKeyRequired)

	require.NoError(t, ch.SetKey(randBytes(t, 32)))
	_, err = ch.Write([]byte("keyed"), false)
	assert.NoError(t, err)
}

func TestPlainHashNeedsNoKey(t *testing.T) {
	ch := openChannel(t, "hash", "sha256", nil)

	msg := []byte("digest me")
	_, err := ch.Write(msg, false)
	require.NoError(t, err)

	out := make([]byte, sha256.Size)
	n, err := ch.Read(out)
	require.NoError(t, err)
	want := sha256.Sum256(msg)
	assert.Equal(t, want[:], out[:n])
}

func TestHMACRequiresKey(t *testing.T) {
	ch := openChannel(t, "hash", "hmac(sha256)", nil)

	_, err := ch.Write([]byte("x"), false)
	assert.ErrorIs(t, err, ErrKeyRequired)

	require.NoError(t, ch.SetKey([]byte("shared secret")))
	_, err = ch.Write([]byte("x"), false)
	assert.NoError(t, err)
}

func TestCipherRoundTrip(t *testing.T) {
	key := randBytes(t, 32)
	iv := randBytes(t, 16)

	for _, size := range []int{1, 255, limits.PageSize, 2*limits.PageSize + 3} {
		plaintext := randBytes(t, size)

		enc := openChannel(t, "skcipher", "ctr(aes)", nil)
		require.NoError(t, enc.SetKey(key))
		require.NoError(t, enc.SetIV(iv))
		require.NoError(t, enc.SetDirection(true))
		_, err := enc.Write(plaintext, false)
		require.NoError(t, err)
		ciphertext := make([]byte, size)
		n, err := enc.Read(ciphertext)
		require.NoError(t, err)
		require.Equal(t, size, n)
		assert.NotEqual(t, plaintext, ciphertext[:n])

		dec := openChannel(t, "skcipher", "ctr(aes)", nil)
		require.NoError(t, dec.SetKey(key))
		require.NoError(t, dec.SetIV(iv))
		require.NoError(t, dec.SetDirection(false))
		_, err = dec.Write(ciphertext[:n], false)
		require.NoError(t, err)
		recovered := make([]byte, size)
		n, err = dec.Read(recovered)
		require.NoError(t, err)
		assert.Equal(t, plaintext, recovered[:n])
	}
}

func TestCipherMultiWriteMessage(t *testing.T) {
	key := randBytes(t, 32)
	iv := randBytes(t, 16)
	parts := [][]byte{[]byte("first "), []byte("second "), []byte("third")}
	var whole []byte
	for _, p := range parts {
		whole = append(whole, p...)
	}

	enc := openChannel(t, "skcipher", "ctr(aes)", nil)
	require.NoError(t, enc.SetKey(key))
	require.NoError(t, enc.SetIV(iv))
	require.NoError(t, enc.SetDirection(true))
	for i, p := range parts {
		_, err := enc.Write(p, i < len(parts)-1)
		require.NoError(t, err)
	}
	ciphertext := make([]byte, len(whole))
	n, err := enc.Read(ciphertext)
	require.NoError(t, err)
	require.Equal(t, len(whole), n)

	oneShot := openChannel(t, "skcipher", "ctr(aes)", nil)
	require.NoError(t, oneShot.SetKey(key))
	require.NoError(t, oneShot.SetIV(iv))
	require.NoError(t, oneShot.SetDirection(true))
	_, err = oneShot.Write(whole, false)
	require.NoError(t, err)
	reference := make([]byte, len(whole))
	_, err = oneShot.Read(reference)
	require.NoError(t, err)
	assert.Equal(t, reference, ciphertext, "fragmented and one-shot messages encrypt identically")
}

func TestAEADRoundTripWithAssocData(t *testing.T) {
	key := randBytes(t, 32)
	nonce := randBytes(t, 12)
	aad := []byte("header bytes ")
	plaintext := randBytes(t, 300)

	enc := openChannel(t, "aead", "gcm(aes)", nil)
	require.NoError(t, enc.SetKey(key))
	require.NoError(t, enc.SetIV(nonce))
	require.NoError(t, enc.SetDirection(true))
	require.NoError(t, enc.SetAssocLen(len(aad)))
	_, err := enc.Write(append(append([]byte(nil), aad...), plaintext...), false)
	require.NoError(t, err)

	sealed := make([]byte, len(aad)+len(plaintext)+16)
	n, err := enc.Read(sealed)
	require.NoError(t, err)
	require.Equal(t, len(sealed), n)
	assert.Equal(t, aad, sealed[:len(aad)], "associated data passes through in the clear")

	dec := openChannel(t, "aead", "gcm(aes)", nil)
	require.NoError(t, dec.SetKey(key))
	require.NoError(t, dec.SetIV(nonce))
	require.NoError(t, dec.SetDirection(false))
	require.NoError(t, dec.SetAssocLen(len(aad)))
	_, err = dec.Write(sealed, false)
	require.NoError(t, err)

	opened := make([]byte, len(aad)+len(plaintext))
	n, err = dec.Read(opened)
	require.NoError(t, err)
	require.Equal(t, len(opened), n)
	assert.Equal(t, plaintext, opened[len(aad):n])
}

func TestSecondMessageRejectedUntilFirstDrained(t *testing.T) {
	// Two finalized messages must never merge under one tag: the
	// second write is rejected until the first message is consumed.
	ch := openChannel(t, "aead", "gcm(aes)", nil)
	require.NoError(t, ch.SetKey(randBytes(t, 32)))
	require.NoError(t, ch.SetIV(randBytes(t, 12)))
	require.NoError(t, ch.SetDirection(true))

	first := []byte("message one")
	_, err := ch.Write(first, false)
	require.NoError(t, err)

	n, err := ch.Write([]byte("message two"), false)
	assert.ErrorIs(t, err, ErrInvalidParameters)
	assert.Zero(t, n)

	sealed := make([]byte, len(first)+16)
	n, err = ch.Read(sealed)
	require.NoError(t, err)
	assert.Equal(t, len(sealed), n, "the tag covers only the first message")

	_, err = ch.Write([]byte("message two"), false)
	require.NoError(t, err)
}

func TestAEADCorruptTag(t *testing.T) {
	key := randBytes(t, 32)
	nonce := randBytes(t, 12)
	plaintext := []byte("authenticated payload")

	enc := openChannel(t, "aead", "gcm(aes)", nil)
	require.NoError(t, enc.SetKey(key))
	require.NoError(t, enc.SetIV(nonce))
	require.NoError(t, enc.SetDirection(true))
	_, err := enc.Write(plaintext, false)
	require.NoError(t, err)
	sealed := make([]byte, len(plaintext)+16)
	n, err := enc.Read(sealed)
	require.NoError(t, err)

	sealed[n-1] ^= 0x01

	dec := openChannel(t, "aead", "gcm(aes)", nil)
	require.NoError(t, dec.SetKey(key))
	require.NoError(t, dec.SetIV(nonce))
	require.NoError(t, dec.SetDirection(false))
	_, err = dec.Write(sealed[:n], false)
	require.NoError(t, err)

	got, err := dec.Read(make([]byte, len(plaintext)))
	assert.ErrorIs(t, err, ErrTransformFailed)
	assert.Zero(t, got, "no bytes surface from a failed authentication")
}

func TestAEADTruncatedTagSize(t *testing.T) {
	key := randBytes(t, 16)
	nonce := randBytes(t, 12)
	plaintext := []byte("short tag")

	enc := openChannel(t, "aead", "gcm(aes)", nil)
	require.NoError(t, enc.SetKey(key))
	require.NoError(t, enc.SetAuthSize(12))
	require.NoError(t, enc.SetIV(nonce))
	require.NoError(t, enc.SetDirection(true))
	_, err := enc.Write(plaintext, false)
	require.NoError(t, err)
	sealed := make([]byte, len(plaintext)+12)
	n, err := enc.Read(sealed)
	require.NoError(t, err)
	require.Equal(t, len(plaintext)+12, n)

	dec := openChannel(t, "aead", "gcm(aes)", nil)
	require.NoError(t, dec.SetKey(key))
	require.NoError(t, dec.SetAuthSize(12))
	require.NoError(t, dec.SetIV(nonce))
	require.NoError(t, dec.SetDirection(false))
	_, err = dec.Write(sealed[:n], false)
	require.NoError(t, err)
	opened := make([]byte, len(plaintext))
	n, err = dec.Read(opened)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened[:n])
}

func TestSetAuthSizeRejectedForCipher(t *testing.T) {
	ch := openChannel(t, "skcipher", "ctr(aes)", nil)
	assert.Error(t, ch.SetAuthSize(12))
}

func TestNoiseAEADRoundTrip(t *testing.T) {
	key := randBytes(t, 32)
	nonce := []byte{0, 0, 0, 0, 0, 0, 0, 42}
	plaintext := []byte("handshake transport payload")

	enc := openChannel(t, "aead", "noise-chachapoly", nil)
	require.NoError(t, enc.SetKey(key))
	require.NoError(t, enc.SetIV(nonce))
	require.NoError(t, enc.SetDirection(true))
	_, err := enc.Write(plaintext, false)
	require.NoError(t, err)
	sealed := make([]byte, len(plaintext)+16)
	n, err := enc.Read(sealed)
	require.NoError(t, err)

	dec := openChannel(t, "aead", "noise-chachapoly", nil)
	require.NoError(t, dec.SetKey(key))
	require.NoError(t, dec.SetIV(nonce))
	require.NoError(t, dec.SetDirection(false))
	_, err = dec.Write(sealed[:n], false)
	require.NoError(t, err)
	opened := make([]byte, len(plaintext))
	n, err = dec.Read(opened)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened[:n])
}

func TestWriteMsgCarriesControl(t *testing.T) {
	key := randBytes(t, 32)
	iv := randBytes(t, 16)
	plaintext := []byte("parameters ride along")

	ctrl := (&control.Message{}).
		WithKey(key).
		WithIV(iv).
		WithOp(control.OpEncrypt)

	enc := openChannel(t, "skcipher", "ctr(aes)", nil)
	_, err := enc.WriteMsg(plaintext, ctrl, false)
	require.NoError(t, err)
	ciphertext := make([]byte, len(plaintext))
	n, err := enc.Read(ciphertext)
	require.NoError(t, err)

	dec := openChannel(t, "skcipher", "ctr(aes)", nil)
	dctrl := (&control.Message{}).WithKey(key).WithIV(iv).WithOp(control.OpDecrypt)
	_, err = dec.WriteMsg(ciphertext[:n], dctrl, false)
	require.NoError(t, err)
	recovered := make([]byte, len(plaintext))
	n, err = dec.Read(recovered)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered[:n])
}

func TestWriteMsgControlRoundTripsWire(t *testing.T) {
	// Control messages survive serialization between peers.
	key := randBytes(t, 32)
	wire, err := (&control.Message{}).WithKey(key).WithOp(control.OpEncrypt).Encode()
	require.NoError(t, err)

	ctrl, err := control.Decode(wire)
	require.NoError(t, err)

	ch := openChannel(t, "skcipher", "chacha20", nil)
	_, err = ch.WriteMsg([]byte("decoded parameters"), ctrl, false)
	require.NoError(t, err)
}

func TestWriteMsgBadControlAcceptsNothing(t *testing.T) {
	ch := openChannel(t, "skcipher", "ctr(aes)", nil)
	require.NoError(t, ch.SetKey(randBytes(t, 32)))

	ctrl := (&control.Message{}).WithIV(make([]byte, 3))
	n, err := ch.WriteMsg([]byte("payload"), ctrl, false)
	assert.ErrorIs(t, err, ErrInvalidParameters)
	assert.Zero(t, n)
}

func TestNonBlockingChannel(t *testing.T) {
	opts := NewOptions()
	opts.NonBlocking = true
	opts.SendQuota = limits.PageSize
	ch := openChannel(t, "skcipher", "ctr(aes)", opts)
	require.NoError(t, ch.SetKey(randBytes(t, 32)))

	_, err := ch.Read(make([]byte, 16))
	assert.ErrorIs(t, err, ErrWouldBlock)

	_, err = ch.Write(make([]byte, limits.PageSize), true)
	require.NoError(t, err)
	_, err = ch.Write([]byte("x"), false)
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestAsyncWorkerChannel(t *testing.T) {
	opts := NewOptions()
	opts.AsyncWorkers = 2
	ch := openChannel(t, "hash", "blake2b-256", opts)

	msg := randBytes(t, 5000)
	_, err := ch.Write(msg, false)
	require.NoError(t, err)

	out := make([]byte, 32)
	n, err := ch.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	require.NoError(t, ch.Close())
}

func TestReadAsyncOnChannel(t *testing.T) {
	ch := openChannel(t, "hash", "sha256", nil)

	msg := []byte("fire and forget")
	_, err := ch.Write(msg, false)
	require.NoError(t, err)

	sink := make([]byte, sha256.Size)
	done := make(chan int, 1)
	require.NoError(t, ch.ReadAsync(sink, func(n int, err error) {
		assert.NoError(t, err)
		done <- n
	}))

	n := <-done
	want := sha256.Sum256(msg)
	assert.Equal(t, want[:], sink[:n])
}

func TestChannelCloseIdempotent(t *testing.T) {
	ch, err := Open("hash", "sha256", nil)
	require.NoError(t, err)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	_, err = ch.Write([]byte("x"), false)
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.Error(t, ch.SetKey([]byte("k")))
}

func TestPollHelpers(t *testing.T) {
	ch := openChannel(t, "skcipher", "chacha20", nil)
	require.NoError(t, ch.SetKey(randBytes(t, 32)))

	assert.True(t, ch.Writable())
	assert.False(t, ch.Readable())

	_, err := ch.Write([]byte("poll"), false)
	require.NoError(t, err)
	n, err := ch.Read(make([]byte, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, ch.Readable())
}
