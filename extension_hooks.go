package socialauth

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-social-auth/core"
	"github.com/goliatone/go-social-auth/identity"
)

type ProviderPack struct {
	Name      string
	Providers []ProviderDefinition
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks lets host applications contribute providers and extra
// command/query bundles before the service is built.
type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks map[string]ProviderPack
	bundles       map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks: map[string]ProviderPack{},
		bundles:       map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("socialauth: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("socialauth: provider pack name is required")
	}
	if len(pack.Providers) == 0 {
		return fmt.Errorf("socialauth: provider pack %q has no providers", name)
	}
	for _, provider := range pack.Providers {
		if core.NormalizeSlug(provider.Config.Slug) == "" {
			return fmt.Errorf("socialauth: provider pack %q contains a provider without slug", name)
		}
	}

	normalized := ProviderPack{
		Name:      name,
		Providers: append([]ProviderDefinition(nil), pack.Providers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("socialauth: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(name string, factory CommandQueryBundleFactory) error {
	if h == nil {
		return fmt.Errorf("socialauth: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("socialauth: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("socialauth: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("socialauth: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyProviderPacks appends every registered provider to cfg.Providers and
// its OAuth settings to clientCfg.Providers. A slug already present in either
// config is an error.
func (h *ExtensionHooks) ApplyProviderPacks(cfg *core.Config, clientCfg *identity.Config) error {
	if h == nil {
		return nil
	}
	if cfg == nil || clientCfg == nil {
		return fmt.Errorf("socialauth: service and client configs are required")
	}

	seen := map[string]struct{}{}
	for _, provider := range cfg.Providers {
		seen[core.NormalizeSlug(provider.Slug)] = struct{}{}
	}
	if clientCfg.Providers == nil {
		clientCfg.Providers = map[string]identity.ProviderSettings{}
	}

	for _, pack := range h.ProviderPacks() {
		for _, provider := range pack.Providers {
			slug := core.NormalizeSlug(provider.Config.Slug)
			if _, exists := seen[slug]; exists {
				return fmt.Errorf("socialauth: provider %q from pack %q is already configured", slug, pack.Name)
			}
			if _, exists := clientCfg.Providers[slug]; exists {
				return fmt.Errorf("socialauth: client settings for %q from pack %q already exist", slug, pack.Name)
			}
			seen[slug] = struct{}{}
			providerCfg := provider.Config
			providerCfg.Slug = slug
			cfg.Providers = append(cfg.Providers, providerCfg)
			clientCfg.Providers[slug] = provider.Settings
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(service CommandQueryService) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("socialauth: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		names = append(names, name)
		factories[name] = factory
	}
	h.mu.RUnlock()
	sort.Strings(names)

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:      pack.Name,
			Providers: append([]ProviderDefinition(nil), pack.Providers...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
