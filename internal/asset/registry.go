package asset

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a thread-safe registry of known assets keyed by code.
type Registry struct {
	byCode map[Code]*Asset
	mu     sync.RWMutex
}

// NewRegistry creates a new empty asset registry.
func NewRegistry() *Registry {
	return &Registry{byCode: make(map[Code]*Asset)}
}

// Register adds an asset to the registry.
// Panics if an asset with the same code is already registered.
func (r *Registry) Register(a *Asset) {
	if a == nil {
		panic("asset: cannot register nil asset")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byCode[a.Code()]; exists {
		panic(fmt.Sprintf("asset: %s already registered", a.Code()))
	}
	r.byCode[a.Code()] = a
}

// Get retrieves an asset by code.
func (r *Registry) Get(code Code) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byCode[code.Normalize()]
	return a, ok
}

// MustGet retrieves an asset by code, panics if not found.
func (r *Registry) MustGet(code Code) *Asset {
	a, ok := r.Get(code)
	if !ok {
		panic(fmt.Sprintf("asset: %s not found in registry", code))
	}
	return a
}

// Lookup is Get returning ErrUnknownAsset.
func (r *Registry) Lookup(code Code) (*Asset, error) {
	a, ok := r.Get(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, code)
	}
	return a, nil
}

// ByKind returns every asset of kind k, sorted by code.
func (r *Registry) ByKind(k Kind) []*Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Asset
	for _, a := range r.byCode {
		if a.Kind() == k {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out
}

// All returns all registered assets sorted by code.
func (r *Registry) All() []*Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Asset, 0, len(r.byCode))
	for _, a := range r.byCode {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code() < result[j].Code() })
	return result
}

// Count returns the number of registered assets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCode)
}
