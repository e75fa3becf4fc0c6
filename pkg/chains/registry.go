package chains

import (
	"errors"
	"sort"
	"sync"

	"meshnode/pkg/logger"
)

// ErrUnknownChain is returned when no verifier is registered for a chain
// identifier. Callers treat it as a permanent rejection, not a crash.
var ErrUnknownChain = errors.New("unknown chain")

// Registry maps chain identifiers to their verifier capability. It is
// populated at startup and read-mostly afterwards.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// Register installs v for the given chain identifier, replacing any
// previous verifier.
func (r *Registry) Register(chain string, v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[chain] = v
	logger.Info("verifier_registered", "chain", chain)
}

// Lookup returns the verifier for chain or ErrUnknownChain.
func (r *Registry) Lookup(chain string) (Verifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[chain]
	if !ok {
		return nil, ErrUnknownChain
	}
	return v, nil
}

// Chains returns the registered chain identifiers, sorted.
func (r *Registry) Chains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.verifiers))
	for c := range r.verifiers {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
