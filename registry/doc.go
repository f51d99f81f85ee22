// Package registry maps algorithm category names to the capability sets
// they support: bind, release, set-key, set-auth-size and acceptance key
// policy, plus the request shape the session layer uses to size and
// schedule transform requests.
//
// Entries are immutable once registered and are looked up once at channel
// open; the selected capability set is fixed for the channel's lifetime.
// [Builtin] provides the standard "hash", "skcipher" and "aead" categories
// bound to the transforms in the engine package. Plain hashes accept
// key-less use; MACs, ciphers and AEADs fail with ErrKeyRequired until a
// key is installed.
package registry
