// Package engine defines the transform engine contract consumed by the
// session layer and provides the built-in transform implementations.
//
// # Contract
//
// An [Engine] accepts a [Request] and reports its outcome through the
// request's OnComplete callback, exactly once per request. [InlineEngine]
// completes requests on the submitting goroutine before Submit returns;
// [PoolEngine] offloads them to worker goroutines and delivers completions
// from the worker's context, concurrently with the submitter. Callers must
// not touch a request's buffers between Submit and OnComplete.
//
// A [Transform] is one bound algorithm instance. Transforms that take a key
// implement [KeySetter]; AEAD transforms with adjustable tag lengths
// implement [AuthSizer]. Key policy (whether a transform may run before a
// key is set) is enforced by the registry layer, not here.
//
// # Built-in Transforms
//
// Symmetric ciphers ([NewCipher]): ctr(aes) and cbc(aes) on the standard
// library, chacha20 on golang.org/x/crypto/chacha20 (IV: 4-byte
// little-endian block counter followed by the 12-byte nonce). Cipher Run
// calls advance the IV in place — CBC to the last ciphertext block, the
// counter modes past the consumed keystream — so segments of one message
// chain across invocations.
//
// AEAD ([NewAEAD]): gcm(aes) with adjustable tag size, chacha20poly1305 and
// xchacha20poly1305 from golang.org/x/crypto, secretbox (XSalsa20-Poly1305,
// golang.org/x/crypto/nacl/secretbox) and the Noise protocol cipher
// functions from github.com/flynn/noise as noise-aesgcm and
// noise-chachapoly. AEAD output echoes the associated data prefix;
// encryption appends the authentication tag, decryption strips it, and a
// tag mismatch reports ErrTransformFailed with no usable output.
//
// Digests ([NewHash]): sha256, sha512, sha3-256, blake2b-256 (optionally
// keyed) and hmac(sha256)/hmac(sha512), which require a key.
package engine
