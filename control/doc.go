// Package control defines the out-of-band parameter messages that
// accompany data writes on a crypto channel: key, IV, operation
// direction, associated-data length and authentication tag size.
//
// Messages are encoded as deterministic CBOR maps with integer keys,
// so a given parameter set always serializes to the same bytes.
// Application is atomic in order: key material is installed first,
// then tag size, direction, IV and associated-data length, and the
// first rejected parameter aborts the remainder.
package control
