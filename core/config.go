package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	defaultServiceName  = "social_auth"
	defaultRedirectTo   = "/"
	defaultFetchTimeout = 10 * time.Second
)

type Config struct {
	ServiceName    string           `koanf:"service_name" mapstructure:"service_name" validate:"required"`
	RedirectTo     string           `koanf:"redirect_to" mapstructure:"redirect_to" validate:"required"`
	FetchTimeout   time.Duration    `koanf:"fetch_timeout" mapstructure:"fetch_timeout" validate:"gte=0"`
	Providers      []ProviderConfig `koanf:"providers" mapstructure:"providers" validate:"dive"`
	NormalizeEmail bool             `koanf:"normalize_email" mapstructure:"normalize_email"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    defaultServiceName,
		RedirectTo:     defaultRedirectTo,
		FetchTimeout:   defaultFetchTimeout,
		Providers:      []ProviderConfig{},
		NormalizeEmail: true,
	}
}

var configValidate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("core: invalid config: %w", err)
	}
	seen := map[string]struct{}{}
	for _, provider := range c.Providers {
		slug := NormalizeSlug(provider.Slug)
		if _, ok := seen[slug]; ok {
			return fmt.Errorf("core: duplicate provider slug %q", slug)
		}
		seen[slug] = struct{}{}
	}
	return nil
}

func (c Config) fetchTimeout(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if c.FetchTimeout > 0 {
		return c.FetchTimeout
	}
	return defaultFetchTimeout
}

func (c Config) redirectTarget(override string) string {
	if target := strings.TrimSpace(override); target != "" {
		return target
	}
	if target := strings.TrimSpace(c.RedirectTo); target != "" {
		return target
	}
	return defaultRedirectTo
}

// ValidEmail returns the normalized email, or "" when it is blank or malformed.
func ValidEmail(value string) string {
	email := NormalizeEmail(value)
	if email == "" {
		return ""
	}
	if err := configValidate.Var(email, "email"); err != nil {
		return ""
	}
	return email
}
