package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type ErrorMapper func(err error) *goerrors.Error

// ConfigProvider returns defaults overlaid with whatever its source sets.
type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	tracer          trace.Tracer
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	registry        *ProviderRegistry
	oauthClient     OAuthClient
	stores          Stores
	accountFactory  AccountFactory
	notifiers       []Notifier
	normalizeEmail  *bool
}

type Option func(*serviceBuilder)

// WithLogger sets the service logger. It replaces a provider set earlier;
// a provider set later takes precedence again.
func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
		b.loggerProvider = nil
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(b *serviceBuilder) {
		b.tracer = tracer
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

// WithProviderRegistry replaces the registry built from Config.Providers.
func WithProviderRegistry(registry *ProviderRegistry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

func WithOAuthClient(client OAuthClient) Option {
	return func(b *serviceBuilder) {
		b.oauthClient = client
	}
}

// WithStores sets the storage backend. Defaults to a MemoryStore.
func WithStores(stores Stores) Option {
	return func(b *serviceBuilder) {
		b.stores = stores
	}
}

// WithEmailNormalization overrides Config.NormalizeEmail after every config
// layer is resolved.
func WithEmailNormalization(enabled bool) Option {
	return func(b *serviceBuilder) {
		b.normalizeEmail = &enabled
	}
}

func WithAccountFactory(factory AccountFactory) Option {
	return func(b *serviceBuilder) {
		b.accountFactory = factory
	}
}

// WithNotifier appends a notifier; every registered notifier receives each event.
func WithNotifier(notifier Notifier) Option {
	return func(b *serviceBuilder) {
		if notifier != nil {
			b.notifiers = append(b.notifiers, notifier)
		}
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	return serviceBuilder{
		runtimeConfig:   runtime,
		metricsRecorder: NopMetricsRecorder{},
		tracer:          otel.Tracer(tracerName),
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		accountFactory:  DefaultAccountFactory{},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	return copyAnyMap(l.Values), nil
}

// MapConfigLoader serves a fixed raw map, typically decoded from a config file
// by the host application.
func MapConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	// loaded is defaults overlaid by the config source, so its NormalizeEmail
	// is always meaningful. A runtime false is indistinguishable from unset and
	// only WithEmailNormalization(false) turns normalization off there.
	loadedLayer := configToLayerMap(loaded, false)
	loadedLayer["normalize_email"] = loaded.NormalizeEmail
	runtimeLayer := configToLayerMap(runtime, false)
	if runtime.NormalizeEmail {
		runtimeLayer["normalize_email"] = true
	}

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap only emits set fields for non-default layers.
// NormalizeEmail is left to the caller: its zero value cannot mean unset.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.RedirectTo) != "" {
		layer["redirect_to"] = cfg.RedirectTo
	}
	if includeZero || cfg.FetchTimeout > 0 {
		layer["fetch_timeout"] = cfg.FetchTimeout
	}
	if includeZero || len(cfg.Providers) > 0 {
		providers := make([]any, 0, len(cfg.Providers))
		for _, provider := range cfg.Providers {
			providers = append(providers, map[string]any{
				"slug":  provider.Slug,
				"label": provider.Label,
			})
		}
		layer["providers"] = providers
	}
	if includeZero {
		layer["normalize_email"] = cfg.NormalizeEmail
	}
	return layer
}
