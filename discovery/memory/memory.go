// Package memory resolves endpoint aliases from a fixed table.
package memory

import (
	"context"
	"sync"
)

// Resolver maps alias endpoints to addresses. Unknown endpoints pass through.
type Resolver struct {
	mu      sync.RWMutex
	aliases map[string]string
}

func NewResolver(aliases map[string]string) *Resolver {
	r := &Resolver{aliases: make(map[string]string, len(aliases))}
	for k, v := range aliases {
		r.aliases[k] = v
	}
	return r
}

func (r *Resolver) Resolve(_ context.Context, endpoint string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if addr, ok := r.aliases[endpoint]; ok {
		return addr, nil
	}
	return endpoint, nil
}

// Update replaces the alias table.
func (r *Resolver) Update(aliases map[string]string) {
	m := make(map[string]string, len(aliases))
	for k, v := range aliases {
		m[k] = v
	}

	r.mu.Lock()
	r.aliases = m
	r.mu.Unlock()
}

// Aliases returns a copy of the alias table.
func (r *Resolver) Aliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		m[k] = v
	}
	return m
}
