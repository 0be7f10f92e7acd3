package provider

import "sync"

// Registry is a concurrent set of content hashes known to produce
// malformed bundles. It is additive for the life of the process: a
// malformed artifact cannot become valid without its hash changing, so
// there is no eviction.
type Registry struct {
	m sync.Map // string → struct{}
}

// Insert records hash as poisoned.
func (r *Registry) Insert(hash []byte) {
	r.m.Store(string(hash), struct{}{})
}

// HasFailed reports whether hash is poisoned. A nil hash never is.
func (r *Registry) HasFailed(hash []byte) bool {
	if hash == nil {
		return false
	}
	_, ok := r.m.Load(string(hash))
	return ok
}

var poisoned Registry

// Poisoned returns the process-wide poisoned-bundle registry. Hashes
// are globally unique, so one registry serves every agent in the
// process.
func Poisoned() *Registry {
	return &poisoned
}
