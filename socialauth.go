package socialauth

import (
	"github.com/goliatone/go-social-auth/core"
	"github.com/goliatone/go-social-auth/identity"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type ProviderConfig = core.ProviderConfig
type ExternalProfile = core.ExternalProfile
type IdentityLink = core.IdentityLink
type LocalAccount = core.LocalAccount
type AccountSeed = core.AccountSeed
type Session = core.Session
type Notifier = core.Notifier
type Event = core.Event
type Outcome = core.Outcome

type CallbackRequest = core.CallbackRequest
type CallbackParams = core.CallbackParams
type DetachRequest = core.DetachRequest
type AuthorizationRedirect = core.AuthorizationRedirect

type ClientConfig = identity.Config
type ProviderSettings = identity.ProviderSettings

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithTracer             = core.WithTracer
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithProviderRegistry   = core.WithProviderRegistry
	WithOAuthClient        = core.WithOAuthClient
	WithStores             = core.WithStores
	WithAccountFactory     = core.WithAccountFactory
	WithEmailNormalization = core.WithEmailNormalization
	WithNotifier           = core.WithNotifier

	CallbackParamsFromQuery = core.CallbackParamsFromQuery
	NewMemoryStore          = core.NewMemoryStore
	NewMemorySession        = core.NewMemorySession
	NewOutboxNotifier       = core.NewOutboxNotifier
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
