package socialauth

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-social-auth/core"
	"github.com/goliatone/go-social-auth/identity"
)

// ProviderDefinition pairs the provider the core registry knows about with the
// OAuth settings the identity client needs for it.
type ProviderDefinition struct {
	Config   core.ProviderConfig
	Settings identity.ProviderSettings
}

type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

func (c Credentials) settings() identity.ProviderSettings {
	return identity.ProviderSettings{
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: c.ClientSecret,
		RedirectURL:  strings.TrimSpace(c.RedirectURL),
		Scopes:       append([]string(nil), c.Scopes...),
	}
}

// GitHubProvider relies on the identity client's github endpoint defaults.
func GitHubProvider(creds Credentials) ProviderDefinition {
	return ProviderDefinition{
		Config:   core.ProviderConfig{Slug: "github", Label: "GitHub"},
		Settings: creds.settings(),
	}
}

// GoogleProvider requires verified emails; unverified addresses are dropped
// before email matching.
func GoogleProvider(creds Credentials) ProviderDefinition {
	settings := creds.settings()
	settings.RequireVerifiedEmail = true
	return ProviderDefinition{
		Config:   core.ProviderConfig{Slug: "google", Label: "Google"},
		Settings: settings,
	}
}

// OIDCProvider describes any OpenID Connect provider with explicit endpoints.
func OIDCProvider(slug string, label string, creds Credentials, authURL string, tokenURL string, userInfoURL string) (ProviderDefinition, error) {
	slug = core.NormalizeSlug(slug)
	if slug == "" {
		return ProviderDefinition{}, fmt.Errorf("socialauth: provider slug is required")
	}
	if strings.TrimSpace(authURL) == "" || strings.TrimSpace(tokenURL) == "" {
		return ProviderDefinition{}, fmt.Errorf("socialauth: provider %q requires auth and token urls", slug)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = slug
	}
	settings := creds.settings()
	settings.AuthURL = strings.TrimSpace(authURL)
	settings.TokenURL = strings.TrimSpace(tokenURL)
	settings.UserInfoURL = strings.TrimSpace(userInfoURL)
	if len(settings.Scopes) == 0 {
		settings.Scopes = []string{"openid", "email", "profile"}
	}
	return ProviderDefinition{
		Config:   core.ProviderConfig{Slug: slug, Label: label},
		Settings: settings,
	}, nil
}
