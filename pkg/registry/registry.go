// Package registry holds the in-memory library collection and the
// symbol-based dependency derivation passes over it.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicateLibrary is returned by Add when a library with the same
	// name is already registered.
	ErrDuplicateLibrary = errors.New("duplicate library name")

	// ErrUnknownLibrary is returned by queries naming a library that is not
	// in the registry.
	ErrUnknownLibrary = errors.New("unknown library")

	// ErrNotResolved is returned when a pass that requires resolved
	// dependencies runs before Resolve.
	ErrNotResolved = errors.New("dependencies not resolved")
)

// Registry is a flat mapping from library name to Library. It is built once
// per analysis run, then derived twice (Resolve, IndexClients) and treated
// as read-only afterwards.
type Registry struct {
	libs     map[string]*Library
	resolved bool
	indexed  bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{libs: make(map[string]*Library)}
}

// Add inserts a library. Duplicate names are rejected to preserve the
// uniqueness invariant. Adding a library invalidates previously derived
// relations.
func (r *Registry) Add(lib *Library) error {
	if _, ok := r.libs[lib.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateLibrary, lib.Name)
	}
	r.libs[lib.Name] = lib
	r.resolved = false
	r.indexed = false
	return nil
}

// Get looks up a library by name.
func (r *Registry) Get(name string) (*Library, bool) {
	lib, ok := r.libs[name]
	return lib, ok
}

// Len returns the number of registered libraries.
func (r *Registry) Len() int {
	return len(r.libs)
}

// Names returns all library names sorted ascending.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.libs))
	for n := range r.libs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Libraries returns all libraries sorted by name.
func (r *Registry) Libraries() []*Library {
	libs := make([]*Library, 0, len(r.libs))
	for _, n := range r.Names() {
		libs = append(libs, r.libs[n])
	}
	return libs
}

// Resolved reports whether the dependency pass has run for the current
// library set.
func (r *Registry) Resolved() bool {
	return r.resolved
}

// IndexClients inverts the dependencies relation: A appears in B's clients
// exactly when B appears in A's dependencies. It derives only from the
// current dependency sets, never from a symbol re-scan, and must run after
// Resolve. Clear-then-rebuild, so re-running is idempotent.
func (r *Registry) IndexClients() error {
	if !r.resolved {
		return fmt.Errorf("index clients: %w", ErrNotResolved)
	}
	for _, lib := range r.libs {
		lib.Clients = NewSet()
	}
	for _, lib := range r.libs {
		for dep := range lib.Dependencies {
			if target, ok := r.libs[dep]; ok {
				target.Clients.Add(lib.Name)
			}
		}
	}
	r.indexed = true
	return nil
}

// CommonDependencies computes the intersection of the dependency sets of
// every client of the named library, along with the client count. A library
// with no clients yields (0, empty set): the empty intersection is the empty
// set, not the universe. Read-only; safe for concurrent use on a fully
// derived registry.
func (r *Registry) CommonDependencies(name string) (int, Set, error) {
	target, ok := r.libs[name]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownLibrary, name)
	}

	count := 0
	var common Set
	for _, clientName := range target.Clients.Names() {
		client, ok := r.libs[clientName]
		if !ok {
			continue
		}
		if common == nil {
			common = client.Dependencies.Clone()
		} else {
			common = common.Intersect(client.Dependencies)
		}
		count++
	}
	if common == nil {
		common = NewSet()
	}
	return count, common, nil
}

// registryBlob is the serialized form: the whole collection under the fixed
// top-level key "libs".
type registryBlob struct {
	Libs map[string]*Library `json:"libs"`
}

// MarshalJSON encodes the registry as {"libs": {name: library}}.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(registryBlob{Libs: r.libs})
}

// UnmarshalJSON decodes a serialized registry. Loaded registries are fully
// derived (serialization happens after both passes), so they are marked
// resolved and indexed.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var blob registryBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return err
	}
	if blob.Libs == nil {
		return errors.New("missing libs key")
	}
	for name, lib := range blob.Libs {
		if lib == nil || lib.Name != name {
			return fmt.Errorf("library entry %q is inconsistent", name)
		}
	}
	r.libs = blob.Libs
	r.resolved = true
	r.indexed = true
	return nil
}
