package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-social-auth/core"
	"golang.org/x/oauth2"
)

const (
	defaultRequestTimeout   = 10 * time.Second
	maxProfileResponseBytes = 1 << 20 // 1 MiB
	stateBytes              = 32
)

var (
	ErrStateMismatch   = errors.New("identity: oauth state mismatch")
	ErrMissingCode     = errors.New("identity: authorization code is missing")
	ErrProviderSkipped = errors.New("identity: provider is not configured")
)

// ProviderSettings holds the OAuth client registration for one provider.
type ProviderSettings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	AuthStyle    oauth2.AuthStyle
	Scopes       []string
	UserInfoURL  string
	Issuer       string
	Normalizer   ProfileNormalizer
	// DisablePKCE skips the S256 code challenge for providers that reject it.
	DisablePKCE bool
	// RequireVerifiedEmail drops emails the provider did not mark verified.
	RequireVerifiedEmail bool
}

type Config struct {
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Providers      map[string]ProviderSettings
	Verifier       IDTokenVerifier
}

// Client implements core.OAuthClient on top of golang.org/x/oauth2.
type Client struct {
	httpClient     *http.Client
	requestTimeout time.Duration
	providers      map[string]ProviderSettings
	verifier       IDTokenVerifier
}

func NewClient(cfg Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	providers := make(map[string]ProviderSettings, len(cfg.Providers))
	for slug, settings := range cfg.Providers {
		normalized := core.NormalizeSlug(slug)
		if normalized == "" {
			continue
		}
		settings = applyProviderDefaults(normalized, settings)
		if strings.TrimSpace(settings.ClientID) == "" {
			return nil, fmt.Errorf("identity: provider %s requires a client id", normalized)
		}
		if strings.TrimSpace(settings.AuthURL) == "" || strings.TrimSpace(settings.TokenURL) == "" {
			return nil, fmt.Errorf("identity: provider %s requires auth and token urls", normalized)
		}
		providers[normalized] = settings
	}

	return &Client{
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		providers:      providers,
		verifier:       cfg.Verifier,
	}, nil
}

// applyProviderDefaults fills endpoints for the well known providers.
func applyProviderDefaults(slug string, settings ProviderSettings) ProviderSettings {
	switch slug {
	case "github":
		if settings.AuthURL == "" {
			settings.AuthURL = "https://github.com/login/oauth/authorize"
		}
		if settings.TokenURL == "" {
			settings.TokenURL = "https://github.com/login/oauth/access_token"
		}
		if settings.UserInfoURL == "" {
			settings.UserInfoURL = githubUserInfoURL
		}
		if settings.Issuer == "" {
			settings.Issuer = githubIssuer
		}
		if settings.Normalizer == nil {
			settings.Normalizer = normalizeGitHubProfile
		}
		if len(settings.Scopes) == 0 {
			settings.Scopes = []string{"read:user", "user:email"}
		}
	case "google":
		if settings.AuthURL == "" {
			settings.AuthURL = "https://accounts.google.com/o/oauth2/v2/auth"
		}
		if settings.TokenURL == "" {
			settings.TokenURL = "https://oauth2.googleapis.com/token"
		}
		if settings.UserInfoURL == "" {
			settings.UserInfoURL = googleUserInfoURL
		}
		if settings.Issuer == "" {
			settings.Issuer = googleIssuer
		}
		if len(settings.Scopes) == 0 {
			settings.Scopes = []string{"openid", "email", "profile"}
		}
	}
	if settings.Normalizer == nil {
		settings.Normalizer = normalizeOIDCProfile
	}
	return settings
}

func (c *Client) oauthConfig(settings ProviderSettings) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		RedirectURL:  settings.RedirectURL,
		Scopes:       append([]string(nil), settings.Scopes...),
		Endpoint: oauth2.Endpoint{
			AuthURL:   settings.AuthURL,
			TokenURL:  settings.TokenURL,
			AuthStyle: settings.AuthStyle,
		},
	}
}

func (c *Client) settings(slug string) (ProviderSettings, error) {
	normalized := core.NormalizeSlug(slug)
	settings, ok := c.providers[normalized]
	if !ok {
		return ProviderSettings{}, fmt.Errorf("%w: %s", ErrProviderSkipped, normalized)
	}
	return settings, nil
}

// BuildAuthorizationRedirect returns the provider authorization URL with a fresh
// state and, unless disabled, a PKCE verifier the caller must keep for the
// callback.
func (c *Client) BuildAuthorizationRedirect(_ context.Context, provider core.ProviderConfig) (core.AuthorizationRedirect, error) {
	settings, err := c.settings(provider.Slug)
	if err != nil {
		return core.AuthorizationRedirect{}, err
	}
	state, err := generateState()
	if err != nil {
		return core.AuthorizationRedirect{}, err
	}

	options := []oauth2.AuthCodeOption{oauth2.AccessTypeOnline}
	redirect := core.AuthorizationRedirect{State: state}
	if !settings.DisablePKCE {
		redirect.CodeVerifier = oauth2.GenerateVerifier()
		options = append(options, oauth2.S256ChallengeOption(redirect.CodeVerifier))
	}
	redirect.URL = c.oauthConfig(settings).AuthCodeURL(state, options...)
	return redirect, nil
}

// FetchProfile validates the callback, exchanges the code and resolves the
// profile from a verified ID token or the userinfo endpoint.
func (c *Client) FetchProfile(ctx context.Context, provider core.ProviderConfig, params core.CallbackParams) (core.ExternalProfile, error) {
	settings, err := c.settings(provider.Slug)
	if err != nil {
		return core.ExternalProfile{}, err
	}
	if providerErr := strings.TrimSpace(params.Error); providerErr != "" {
		return core.ExternalProfile{}, fmt.Errorf("identity: provider returned %s: %s", providerErr, strings.TrimSpace(params.ErrorDescription))
	}
	if expected := strings.TrimSpace(params.ExpectedState); expected != "" && expected != strings.TrimSpace(params.State) {
		return core.ExternalProfile{}, ErrStateMismatch
	}
	code := strings.TrimSpace(params.Code)
	if code == "" {
		return core.ExternalProfile{}, ErrMissingCode
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	var exchangeOptions []oauth2.AuthCodeOption
	if verifier := strings.TrimSpace(params.CodeVerifier); verifier != "" {
		exchangeOptions = append(exchangeOptions, oauth2.VerifierOption(verifier))
	}
	token, err := c.oauthConfig(settings).Exchange(exchangeCtx, code, exchangeOptions...)
	if err != nil {
		return core.ExternalProfile{}, fmt.Errorf("identity: token exchange failed: %w", err)
	}

	slug := core.NormalizeSlug(provider.Slug)
	profile, tokenErr := c.profileFromIDToken(ctx, slug, settings, token)
	if tokenErr == nil && profile.Subject != "" {
		return profile.External(settings.RequireVerifiedEmail), nil
	}

	if strings.TrimSpace(settings.UserInfoURL) == "" {
		if tokenErr != nil {
			return core.ExternalProfile{}, tokenErr
		}
		return core.ExternalProfile{}, fmt.Errorf("identity: provider %s has no userinfo endpoint", slug)
	}
	payload, err := c.fetchUserInfo(ctx, settings.UserInfoURL, token.AccessToken)
	if err != nil {
		return core.ExternalProfile{}, err
	}
	issuer := readString(payload["iss"])
	if issuer == "" {
		issuer = settings.Issuer
	}
	profile = settings.Normalizer(slug, issuer, payload)
	return profile.External(settings.RequireVerifiedEmail), nil
}

// profileFromIDToken prefers a verified token. Without a verifier for the
// provider the claims are read as-is, the token having come straight from the
// token endpoint.
func (c *Client) profileFromIDToken(ctx context.Context, slug string, settings ProviderSettings, token *oauth2.Token) (UserProfile, error) {
	rawIDToken, _ := token.Extra("id_token").(string)
	rawIDToken = strings.TrimSpace(rawIDToken)
	if rawIDToken == "" {
		return UserProfile{}, fmt.Errorf("identity: id_token is not present")
	}

	var (
		claims map[string]any
		err    error
	)
	if c.verifier != nil && verifierHandles(c.verifier, slug) {
		claims, err = c.verifier.Verify(ctx, slug, rawIDToken)
	} else {
		claims, err = decodeJWTPayload(rawIDToken)
	}
	if err != nil {
		return UserProfile{}, err
	}
	issuer := readString(claims["iss"])
	if issuer == "" {
		issuer = settings.Issuer
	}
	profile := normalizeOIDCProfile(slug, issuer, claims)
	if profile.Subject == "" {
		return UserProfile{}, fmt.Errorf("identity: id_token is missing subject")
	}
	return profile, nil
}

func verifierHandles(verifier IDTokenVerifier, slug string) bool {
	if scoped, ok := verifier.(interface{ Handles(string) bool }); ok {
		return scoped.Handles(slug)
	}
	return true
}

func (c *Client) fetchUserInfo(ctx context.Context, endpoint string, accessToken string) (map[string]any, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("identity: access token is required")
	}
	requestCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxProfileResponseBytes+1))
	if readErr != nil {
		return nil, fmt.Errorf("identity: read profile response: %w", readErr)
	}
	if int64(len(body)) > maxProfileResponseBytes {
		return nil, fmt.Errorf("identity: profile response exceeds %d bytes", maxProfileResponseBytes)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("identity: profile endpoint returned status %d", res.StatusCode)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("identity: decode profile response: %w", err)
	}
	return payload, nil
}

func generateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("identity: generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var _ core.OAuthClient = (*Client)(nil)
var _ IDTokenVerifier = (*JWKSVerifier)(nil)
