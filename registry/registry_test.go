package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/algstream/engine"
)

func TestBuiltinCategories(t *testing.T) {
	r := Builtin()
	for _, name := range []string{"hash", "skcipher", "aead"} {
		entry, err := r.Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, entry.Name())
	}
	assert.Len(t, r.Categories(), 3)
}

func TestLookupCaseInsensitive(t *testing.T) {
	r := Builtin()
	entry, err := r.Lookup("AEAD")
	require.NoError(t, err)
	assert.Equal(t, "aead", entry.Name())
}

func TestLookupUnknownCategory(t *testing.T) {
	r := Builtin()
	_, err := r.Lookup("akcipher")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestRegisterDuplicate(t *testing.T) {
	r := Builtin()
	_, err := r.Register("hash", Capabilities{Bind: engine.NewHash})
	assert.ErrorIs(t, err, ErrDuplicateCategory)
}

func TestRegisterWithoutBind(t *testing.T) {
	r := New()
	_, err := r.Register("empty", Capabilities{})
	assert.ErrorIs(t, err, engine.ErrInvalidParameters)
}

func TestCipherRequiresKey(t *testing.T) {
	r := Builtin()
	entry, err := r.Lookup("skcipher")
	require.NoError(t, err)

	tfm, err := entry.Bind("ctr(aes)")
	require.NoError(t, err)

	err = entry.Accept(tfm, false)
	assert.ErrorIs(t, err, ErrKeyRequired)

	require.NoError(t, entry.SetKey(tfm, make([]byte, 32)))
	assert.NoError(t, entry.Accept(tfm, true))
}

func TestPlainHashAcceptsWithoutKey(t *testing.T) {
	r := Builtin()
	entry, err := r.Lookup("hash")
	require.NoError(t, err)

	tfm, err := entry.Bind("sha256")
	require.NoError(t, err)
	assert.NoError(t, entry.Accept(tfm, false))
}

func TestMACRequiresKeyWithinHashCategory(t *testing.T) {
	r := Builtin()
	entry, err := r.Lookup("hash")
	require.NoError(t, err)

	tfm, err := entry.Bind("hmac(sha256)")
	require.NoError(t, err)
	assert.ErrorIs(t, entry.Accept(tfm, false), ErrKeyRequired)

	require.NoError(t, entry.SetKey(tfm, []byte("mac key")))
	assert.NoError(t, entry.Accept(tfm, true))
}

func TestSetAuthSizeOnlyOnAEAD(t *testing.T) {
	r := Builtin()

	aead, err := r.Lookup("aead")
	require.NoError(t, err)
	tfm, err := aead.Bind("gcm(aes)")
	require.NoError(t, err)
	assert.NoError(t, aead.SetAuthSize(tfm, 16))

	sk, err := r.Lookup("skcipher")
	require.NoError(t, err)
	ctfm, err := sk.Bind("ctr(aes)")
	require.NoError(t, err)
	assert.ErrorIs(t, sk.SetAuthSize(ctfm, 16), engine.ErrInvalidParameters)
}

func TestBindUnknownAlgorithm(t *testing.T) {
	r := Builtin()
	entry, err := r.Lookup("aead")
	require.NoError(t, err)
	_, err = entry.Bind("ocb(aes)")
	assert.ErrorIs(t, err, engine.ErrUnknownAlgorithm)
}

func TestShapes(t *testing.T) {
	r := Builtin()
	shapes := map[string]Shape{"hash": ShapeDigest, "skcipher": ShapeFixed, "aead": ShapeAEAD}
	for name, want := range shapes {
		entry, err := r.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, want, entry.Shape(), name)
	}
}
