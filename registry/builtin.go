package registry

import (
	"fmt"

	"github.com/opd-ai/algstream/engine"
)

func setKeyCap(tfm engine.Transform, key []byte) error {
	ks, ok := tfm.(engine.KeySetter)
	if !ok {
		return fmt.Errorf("%w: %s does not take a key", engine.ErrInvalidParameters, tfm.Name())
	}
	return ks.SetKey(key)
}

func setAuthSizeCap(tfm engine.Transform, n int) error {
	as, ok := tfm.(engine.AuthSizer)
	if !ok {
		return fmt.Errorf("%w: %s has no adjustable tag", engine.ErrInvalidParameters, tfm.Name())
	}
	return as.SetAuthSize(n)
}

// Builtin returns a registry with the three standard categories
// registered: "hash", "skcipher" and "aead".
//
// Hashes accept key-less use; MAC algorithms within the category still
// require a key before first use. Ciphers and AEADs always require a
// key.
func Builtin() *Registry {
	r := New()

	// Registrations cannot collide in a fresh registry.
	_, _ = r.Register("hash", Capabilities{
		Bind:        engine.NewHash,
		SetKey:      setKeyCap,
		KeyRequired: func(tfm engine.Transform) bool { return engine.HashNeedsKey(tfm.Name()) },
		Shape:       ShapeDigest,
	})

	_, _ = r.Register("skcipher", Capabilities{
		Bind:        engine.NewCipher,
		SetKey:      setKeyCap,
		KeyRequired: func(engine.Transform) bool { return true },
		Shape:       ShapeFixed,
	})

	_, _ = r.Register("aead", Capabilities{
		Bind:        engine.NewAEAD,
		SetKey:      setKeyCap,
		SetAuthSize: setAuthSizeCap,
		KeyRequired: func(engine.Transform) bool { return true },
		Shape:       ShapeAEAD,
	})

	return r
}
