package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderRegistry holds the configured providers keyed by normalized slug.
// It is populated at startup and read on every callback.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderConfig
}

func NewProviderRegistry(providers ...ProviderConfig) (*ProviderRegistry, error) {
	registry := &ProviderRegistry{providers: make(map[string]ProviderConfig)}
	for _, provider := range providers {
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *ProviderRegistry) Register(provider ProviderConfig) error {
	slug := NormalizeSlug(provider.Slug)
	if slug == "" {
		return fmt.Errorf("core: provider slug is required")
	}
	provider.Slug = slug
	if strings.TrimSpace(provider.Label) == "" {
		provider.Label = slug
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[slug]; exists {
		return fmt.Errorf("core: provider already registered: %s", slug)
	}
	r.providers[slug] = provider
	return nil
}

// Resolve looks up a provider by slug. Unknown or blank slugs yield a
// *ProviderNotFoundError.
func (r *ProviderRegistry) Resolve(slug string) (ProviderConfig, error) {
	normalized := NormalizeSlug(slug)
	if r == nil || normalized == "" {
		return ProviderConfig{}, &ProviderNotFoundError{ProviderSlug: normalized}
	}
	r.mu.RLock()
	provider, ok := r.providers[normalized]
	r.mu.RUnlock()
	if !ok {
		return ProviderConfig{}, &ProviderNotFoundError{ProviderSlug: normalized}
	}
	return provider, nil
}

func (r *ProviderRegistry) List() []ProviderConfig {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]ProviderConfig, 0, len(r.providers))
	for _, provider := range r.providers {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].Slug < providers[j].Slug
	})
	return providers
}
