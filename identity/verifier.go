package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const defaultClockSkew = 30 * time.Second

// IDTokenVerifier validates a raw ID token for a provider and returns its claims.
type IDTokenVerifier interface {
	Verify(ctx context.Context, providerSlug string, rawIDToken string) (map[string]any, error)
}

type JWKSProvider struct {
	// JWKSURL is fetched and refreshed through a jwk.Cache.
	JWKSURL string
	// KeySet is used instead of JWKSURL when set.
	KeySet   jwk.Set
	Issuer   string
	Audience string
}

// JWKSVerifier checks ID token signatures against each provider's key set and
// validates exp/nbf/iat, issuer and audience.
type JWKSVerifier struct {
	cache     *jwk.Cache
	providers map[string]JWKSProvider
	skew      time.Duration
}

// NewJWKSVerifier registers every remote key set with a refreshing cache. The
// cache's background refresh stops when ctx is cancelled.
func NewJWKSVerifier(ctx context.Context, providers map[string]JWKSProvider) (*JWKSVerifier, error) {
	verifier := &JWKSVerifier{
		providers: make(map[string]JWKSProvider, len(providers)),
		skew:      defaultClockSkew,
	}
	for slug, provider := range providers {
		normalized := strings.TrimSpace(strings.ToLower(slug))
		if normalized == "" {
			continue
		}
		provider.JWKSURL = strings.TrimSpace(provider.JWKSURL)
		if provider.KeySet == nil && provider.JWKSURL == "" {
			return nil, fmt.Errorf("identity: provider %s needs a jwks url or key set", normalized)
		}
		if provider.KeySet == nil {
			if verifier.cache == nil {
				verifier.cache = jwk.NewCache(ctx, jwk.WithRefreshWindow(time.Hour))
			}
			if err := verifier.cache.Register(provider.JWKSURL); err != nil {
				return nil, fmt.Errorf("identity: register jwks url for %s: %w", normalized, err)
			}
		}
		verifier.providers[normalized] = provider
	}
	return verifier, nil
}

func (v *JWKSVerifier) Verify(ctx context.Context, providerSlug string, rawIDToken string) (map[string]any, error) {
	if v == nil {
		return nil, fmt.Errorf("identity: verifier is not configured")
	}
	slug := strings.TrimSpace(strings.ToLower(providerSlug))
	provider, ok := v.providers[slug]
	if !ok {
		return nil, fmt.Errorf("identity: no key set configured for provider %s", slug)
	}

	keySet := provider.KeySet
	if keySet == nil {
		fetched, err := v.cache.Get(ctx, provider.JWKSURL)
		if err != nil {
			return nil, fmt.Errorf("identity: fetch jwks for %s: %w", slug, err)
		}
		keySet = fetched
	}

	options := []jwt.ParseOption{
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.skew),
	}
	if issuer := strings.TrimSpace(provider.Issuer); issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(provider.Audience); audience != "" {
		options = append(options, jwt.WithAudience(audience))
	}

	token, err := jwt.Parse([]byte(strings.TrimSpace(rawIDToken)), options...)
	if err != nil {
		return nil, fmt.Errorf("identity: verify id_token for %s: %w", slug, err)
	}
	claims, err := token.AsMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: read id_token claims: %w", err)
	}
	return claims, nil
}

// Handles reports whether a key set is configured for the provider.
func (v *JWKSVerifier) Handles(providerSlug string) bool {
	if v == nil {
		return false
	}
	_, ok := v.providers[strings.TrimSpace(strings.ToLower(providerSlug))]
	return ok
}
