package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/algstream/engine"
)

var (
	// ErrKeyRequired indicates an operation was attempted before the
	// mandatory key for the bound category was set.
	ErrKeyRequired = errors.New("transform key required")

	// ErrUnknownCategory indicates a lookup for an unregistered
	// algorithm category.
	ErrUnknownCategory = errors.New("unknown algorithm category")

	// ErrDuplicateCategory indicates a registration under a name that
	// is already taken. Entries are immutable once registered.
	ErrDuplicateCategory = errors.New("algorithm category already registered")
)

// Shape selects how the session layer sizes and schedules requests for
// a category.
type Shape int

const (
	// ShapeFixed produces exactly as many output bytes as input bytes
	// and may process partial messages block by block.
	ShapeFixed Shape = iota
	// ShapeAEAD processes whole messages and carries an authentication
	// tag: output is input plus or minus the tag depending on
	// direction, with the associated data echoed.
	ShapeAEAD
	// ShapeDigest processes whole messages into a fixed-size digest.
	ShapeDigest
)

// Capabilities is the function set an algorithm category supports.
// Nil optional functions mean the category does not offer the
// operation.
type Capabilities struct {
	// Bind resolves an algorithm name to a transform instance.
	Bind func(name string) (engine.Transform, error)

	// Release disposes of a transform when its channel closes.
	Release func(tfm engine.Transform)

	// SetKey installs a key, or nil if the category is key-less.
	SetKey func(tfm engine.Transform, key []byte) error

	// SetAuthSize adjusts the authentication tag length, or nil for
	// categories without one.
	SetAuthSize func(tfm engine.Transform, n int) error

	// KeyRequired reports whether the transform must be keyed before
	// first use.
	KeyRequired func(tfm engine.Transform) bool

	// AcceptNoKey permits key-less acceptance even when KeyRequired
	// reports true. Left false, unkeyed use fails with ErrKeyRequired.
	AcceptNoKey bool

	// Shape is the request shape requirement for the category.
	Shape Shape
}

// Entry is an immutable registered category.
type Entry struct {
	name string
	caps Capabilities
}

// Name returns the category name the entry was registered under.
func (e *Entry) Name() string { return e.name }

// Shape returns the category's request shape.
func (e *Entry) Shape() Shape { return e.caps.Shape }

// Bind resolves an algorithm name within the category.
func (e *Entry) Bind(algorithm string) (engine.Transform, error) {
	return e.caps.Bind(algorithm)
}

// Release disposes of a transform bound through this entry.
func (e *Entry) Release(tfm engine.Transform) {
	if e.caps.Release != nil {
		e.caps.Release(tfm)
	}
}

// SetKey installs a key on the transform, failing with
// engine.ErrInvalidParameters when the category takes none.
func (e *Entry) SetKey(tfm engine.Transform, key []byte) error {
	if e.caps.SetKey == nil {
		return fmt.Errorf("%w: category %s does not take a key", engine.ErrInvalidParameters, e.name)
	}
	return e.caps.SetKey(tfm, key)
}

// SetAuthSize adjusts the authentication tag length, failing with
// engine.ErrInvalidParameters when the category has none.
func (e *Entry) SetAuthSize(tfm engine.Transform, n int) error {
	if e.caps.SetAuthSize == nil {
		return fmt.Errorf("%w: category %s has no authentication tag", engine.ErrInvalidParameters, e.name)
	}
	return e.caps.SetAuthSize(tfm, n)
}

// Accept gates first use of the transform on the category's key
// policy. keySet reports whether the caller has installed a key.
func (e *Entry) Accept(tfm engine.Transform, keySet bool) error {
	if keySet {
		return nil
	}
	if e.caps.KeyRequired != nil && e.caps.KeyRequired(tfm) && !e.caps.AcceptNoKey {
		return fmt.Errorf("%w: category %s, algorithm %s", ErrKeyRequired, e.name, tfm.Name())
	}
	return nil
}

// Registry maps algorithm category names to their capability sets.
// Lookups are case-insensitive. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds a category. The entry is immutable once registered;
// registering a taken name fails with ErrDuplicateCategory.
func (r *Registry) Register(name string, caps Capabilities) (*Entry, error) {
	if caps.Bind == nil {
		return nil, fmt.Errorf("%w: category %q without bind", engine.ErrInvalidParameters, name)
	}
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.entries[key]; taken {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateCategory, name)
	}
	entry := &Entry{name: key, caps: caps}
	r.entries[key] = entry

	logrus.WithFields(logrus.Fields{
		"function": "Register",
		"package":  "registry",
		"category": key,
	}).Debug("Algorithm category registered")
	return entry, nil
}

// Lookup resolves a category name, selecting the capability set used
// for the lifetime of a channel.
func (r *Registry) Lookup(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return entry, nil
}

// Categories returns the registered category names.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
