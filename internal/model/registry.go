package model

import (
	"strings"
	"sync"
)

type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

func (r *Registry) Register(name string, provider Provider) {
	if r == nil || provider == nil {
		return
	}
	key := normalizeProviderName(name)
	if key == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = provider
}

func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	key := normalizeProviderName(name)
	if key == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[key]
	return provider, ok
}

func normalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
