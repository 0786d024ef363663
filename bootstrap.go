package socialauth

import (
	"github.com/goliatone/go-social-auth/core"
	"github.com/goliatone/go-social-auth/identity"
)

// Bootstrap applies the hook provider packs, builds the identity client and
// returns a service that uses it. Options in opts run after the client is
// installed, so a WithOAuthClient there wins.
func Bootstrap(cfg Config, clientCfg ClientConfig, hooks *ExtensionHooks, opts ...Option) (*Service, *identity.Client, error) {
	cfg.Providers = append([]core.ProviderConfig(nil), cfg.Providers...)
	providers := make(map[string]identity.ProviderSettings, len(clientCfg.Providers))
	for slug, settings := range clientCfg.Providers {
		providers[slug] = settings
	}
	clientCfg.Providers = providers

	if err := hooks.ApplyProviderPacks(&cfg, &clientCfg); err != nil {
		return nil, nil, err
	}
	client, err := identity.NewClient(clientCfg)
	if err != nil {
		return nil, nil, err
	}
	allOpts := make([]Option, 0, len(opts)+1)
	allOpts = append(allOpts, core.WithOAuthClient(client))
	allOpts = append(allOpts, opts...)
	svc, err := core.NewService(cfg, allOpts...)
	if err != nil {
		return nil, nil, err
	}
	return svc, client, nil
}
