package core

import (
	"context"
	"errors"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Service is the callback orchestrator. It resolves the provider, fetches the
// external profile and drives the resolver, linker, provisioner and gate for
// one callback or detach request.
type Service struct {
	config          Config
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
	notifier        Notifier
	resolver        *IdentityResolver
	linker          *AccountLinker
	provisioner     *AccountProvisioner
	gate            *AuthenticationGate
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Registry        *ProviderRegistry
	OAuthClient     OAuthClient
	Stores          Stores
	Notifier        Notifier
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	// Provider wins over a plain logger; with neither both resolve to nop.
	provider, logger := glog.Resolve(defaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.tracer == nil {
		builder.tracer = otel.Tracer(tracerName)
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.stores == nil {
		builder.stores = NewMemoryStore()
	}
	if builder.accountFactory == nil {
		builder.accountFactory = DefaultAccountFactory{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.normalizeEmail != nil {
		finalConfig.NormalizeEmail = *builder.normalizeEmail
	}

	registry := builder.registry
	if registry == nil {
		registry, err = NewProviderRegistry(finalConfig.Providers...)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	var notifier Notifier
	switch len(builder.notifiers) {
	case 0:
		notifier = NopNotifier{}
	case 1:
		notifier = builder.notifiers[0]
	default:
		notifier = MultiNotifier(append([]Notifier(nil), builder.notifiers...))
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		tracer:          builder.tracer,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		registry:        registry,
		oauthClient:     builder.oauthClient,
		stores:          builder.stores,
		notifier:        notifier,
		resolver:        NewIdentityResolver(builder.stores, finalConfig.NormalizeEmail),
		linker:          NewAccountLinker(builder.stores),
		provisioner:     NewAccountProvisioner(builder.stores, builder.accountFactory, finalConfig.NormalizeEmail),
		gate:            NewAuthenticationGate(notifier),
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		Registry:        s.registry,
		OAuthClient:     s.oauthClient,
		Stores:          s.stores,
		Notifier:        s.notifier,
	}
}

func (s *Service) Registry() *ProviderRegistry      { return s.registry }
func (s *Service) Resolver() *IdentityResolver      { return s.resolver }
func (s *Service) Linker() *AccountLinker           { return s.linker }
func (s *Service) Provisioner() *AccountProvisioner { return s.provisioner }
func (s *Service) Gate() *AuthenticationGate        { return s.gate }

// AuthorizationRedirect resolves the provider and asks the OAuth client for
// the URL the user agent should be sent to.
func (s *Service) AuthorizationRedirect(ctx context.Context, providerSlug string) (redirect AuthorizationRedirect, err error) {
	startedAt := time.Now().UTC()
	slug := NormalizeSlug(providerSlug)
	fields := map[string]any{"provider_slug": slug}
	ctx, span := s.startSpan(ctx, "authorize", slug)
	defer func() {
		endSpan(span, Outcome{}, err)
		s.observeOperation(ctx, startedAt, "authorize", err, fields)
	}()

	provider, err := s.registry.Resolve(slug)
	if err != nil {
		return AuthorizationRedirect{}, err
	}
	if s.oauthClient == nil {
		err = internalError("core: oauth client is required", nil)
		return AuthorizationRedirect{}, err
	}
	redirect, err = s.oauthClient.BuildAuthorizationRedirect(ctx, provider)
	if err != nil {
		err = internalError("core: build authorization redirect failed", err)
		return AuthorizationRedirect{}, err
	}
	if strings.TrimSpace(redirect.URL) == "" {
		err = internalError("core: oauth client returned an empty authorization url", nil)
		return AuthorizationRedirect{}, err
	}
	return redirect, nil
}

// HandleCallback runs the callback state machine for one provider response.
// The returned Outcome is always populated; on failure Next is
// NextStepRedirectWithError and err carries the typed cause.
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) (outcome Outcome, err error) {
	startedAt := time.Now().UTC()
	slug := NormalizeSlug(req.ProviderSlug)
	outcome = s.failureOutcome(slug, "", "")
	fields := map[string]any{"provider_slug": slug}
	ctx, span := s.startSpan(ctx, "callback", slug)
	defer func() {
		fields["action"] = string(outcome.Action)
		if outcome.AccountID != "" {
			fields["account_id"] = outcome.AccountID
		}
		if len(outcome.NotificationErrors) > 0 {
			fields["notification_errors"] = len(outcome.NotificationErrors)
		}
		endSpan(span, outcome, err)
		s.observeOperation(ctx, startedAt, "callback", err, fields)
	}()

	if req.Session == nil {
		err = badInput("core: callback requires a session")
		return outcome, err
	}
	provider, err := s.registry.Resolve(slug)
	if err != nil {
		return outcome, err
	}
	profile, err := s.fetchProfile(ctx, provider, req.Params, req.FetchTimeout)
	if err != nil {
		return outcome, err
	}

	currentID, authenticated, err := req.Session.CurrentAccount(ctx)
	if err != nil {
		err = internalError("core: read session principal failed", err)
		return outcome, err
	}
	fields["session_state"] = string(sessionState(authenticated))

	if authenticated {
		return s.attachToCurrent(ctx, provider, profile, currentID)
	}
	return s.loginGuest(ctx, req.Session, provider, profile)
}

func (s *Service) loginGuest(ctx context.Context, session Session, provider ProviderConfig, profile ExternalProfile) (Outcome, error) {
	slug := provider.Slug

	linkedID, found, err := s.resolver.FindLinkedAccount(ctx, slug, profile.ExternalID)
	if err != nil {
		return s.failureOutcome(slug, "", ""), internalError("core: resolve linked account failed", err)
	}
	if found {
		outcome := s.failureOutcome(slug, linkedID, "")
		delivery, err := s.gate.Login(ctx, session, linkedID, slug)
		if err != nil {
			return outcome, err
		}
		outcome = s.successOutcome(slug, linkedID, ActionAuthenticated, "")
		s.collectDelivery(ctx, &outcome, delivery)
		return outcome, nil
	}

	matchedID, found, err := s.resolver.FindAccountByEmail(ctx, profile.Email)
	if err != nil {
		return s.failureOutcome(slug, "", ""), internalError("core: resolve account by email failed", err)
	}
	if found {
		return s.loginAndAttach(ctx, session, provider, profile, matchedID)
	}

	account, link, err := s.provisioner.CreateAccount(ctx, profile, provider)
	if err != nil {
		return s.failureOutcome(slug, "", ""), err
	}
	outcome := s.failureOutcome(slug, account.ID, "")
	outcome.Action = ActionProvisioned
	outcome.Link = &link
	s.collectDelivery(ctx, &outcome, s.emitLinked(ctx, link, true))

	delivery, err := s.gate.Login(ctx, session, account.ID, slug)
	if err != nil {
		return outcome, err
	}
	s.collectDelivery(ctx, &outcome, delivery)
	outcome.Next = NextStepRedirectSuccess
	return outcome, nil
}

// loginAndAttach authenticates the email-matched account before linking it.
// When the attach fails the session stays authenticated and the outcome
// reports ActionAuthenticated together with the attach error.
func (s *Service) loginAndAttach(ctx context.Context, session Session, provider ProviderConfig, profile ExternalProfile, accountID AccountID) (Outcome, error) {
	slug := provider.Slug
	outcome := s.failureOutcome(slug, accountID, "")

	delivery, err := s.gate.Login(ctx, session, accountID, slug)
	if err != nil {
		return outcome, err
	}
	s.collectDelivery(ctx, &outcome, delivery)
	outcome.Action = ActionAuthenticated

	link, err := s.linker.Attach(ctx, accountID, slug, profile.ExternalID)
	if err != nil {
		return outcome, err
	}
	outcome.Next = NextStepRedirectSuccess
	outcome.Action = ActionLinkedAndAuthenticated
	outcome.Link = &link
	s.collectDelivery(ctx, &outcome, s.emitLinked(ctx, link, false))
	return outcome, nil
}

func (s *Service) attachToCurrent(ctx context.Context, provider ProviderConfig, profile ExternalProfile, accountID AccountID) (Outcome, error) {
	slug := provider.Slug
	link, err := s.linker.Attach(ctx, accountID, slug, profile.ExternalID)
	if err != nil {
		return s.failureOutcome(slug, accountID, ""), err
	}
	outcome := s.successOutcome(slug, accountID, ActionLinked, "")
	outcome.Link = &link
	s.collectDelivery(ctx, &outcome, s.emitLinked(ctx, link, false))
	return outcome, nil
}

// DetachAccount removes the account's link for the provider. A missing link
// yields *DetachFailureError.
func (s *Service) DetachAccount(ctx context.Context, req DetachRequest) (outcome Outcome, err error) {
	startedAt := time.Now().UTC()
	slug := NormalizeSlug(req.ProviderSlug)
	accountID := strings.TrimSpace(req.AccountID)
	outcome = s.failureOutcome(slug, accountID, req.ReturnTo)
	fields := map[string]any{
		"provider_slug": slug,
		"account_id":    accountID,
	}
	ctx, span := s.startSpan(ctx, "detach", slug)
	defer func() {
		fields["action"] = string(outcome.Action)
		endSpan(span, outcome, err)
		s.observeOperation(ctx, startedAt, "detach", err, fields)
	}()

	if accountID == "" {
		err = badInput("core: detach requires an account id")
		return outcome, err
	}
	if _, err = s.registry.Resolve(slug); err != nil {
		return outcome, err
	}
	removed, err := s.linker.Detach(ctx, accountID, slug)
	if err != nil {
		return outcome, err
	}
	if !removed {
		err = &DetachFailureError{AccountID: accountID, ProviderSlug: slug}
		return outcome, err
	}

	outcome = s.successOutcome(slug, accountID, ActionUnlinked, req.ReturnTo)
	event := newEvent(EventAccountUnlinked, accountID, slug, "", map[string]any{"removed": true})
	s.collectDelivery(ctx, &outcome, deliver(ctx, s.notifier, event))
	return outcome, nil
}

func (s *Service) FindLinkedAccount(ctx context.Context, providerSlug string, externalID string) (AccountID, bool, error) {
	return s.resolver.FindLinkedAccount(ctx, providerSlug, externalID)
}

func (s *Service) IsAttached(ctx context.Context, accountID AccountID, providerSlug string) (bool, error) {
	return s.resolver.IsAttached(ctx, accountID, providerSlug)
}

func (s *Service) ListLinks(ctx context.Context, accountID AccountID) ([]IdentityLink, error) {
	return s.resolver.ListLinks(ctx, accountID)
}

type fetchResult struct {
	profile ExternalProfile
	err     error
}

// fetchProfile bounds the OAuth client call by the configured or requested
// timeout even when the client ignores ctx.
func (s *Service) fetchProfile(ctx context.Context, provider ProviderConfig, params CallbackParams, override time.Duration) (ExternalProfile, error) {
	if s.oauthClient == nil {
		return ExternalProfile{}, &ProfileFetchError{
			ProviderSlug: provider.Slug,
			Cause:        errors.New("oauth client is not configured"),
		}
	}
	if providerErr := strings.TrimSpace(params.Error); providerErr != "" {
		cause := errors.New("provider returned " + providerErr)
		if description := strings.TrimSpace(params.ErrorDescription); description != "" {
			cause = errors.New("provider returned " + providerErr + ": " + description)
		}
		return ExternalProfile{}, &ProfileFetchError{ProviderSlug: provider.Slug, Cause: cause}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.fetchTimeout(override))
	defer cancel()

	results := make(chan fetchResult, 1)
	go func() {
		profile, err := s.oauthClient.FetchProfile(fetchCtx, provider, params)
		results <- fetchResult{profile: profile, err: err}
	}()

	var result fetchResult
	select {
	case result = <-results:
	case <-fetchCtx.Done():
		result.err = fetchCtx.Err()
	}
	if result.err != nil {
		return ExternalProfile{}, &ProfileFetchError{ProviderSlug: provider.Slug, Cause: result.err}
	}

	profile := result.profile
	profile.ExternalID = strings.TrimSpace(profile.ExternalID)
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)
	if s.config.NormalizeEmail {
		profile.Email = ValidEmail(profile.Email)
	} else {
		profile.Email = strings.TrimSpace(profile.Email)
	}
	if profile.IsEmpty() {
		return ExternalProfile{}, &ProfileFetchError{
			ProviderSlug: provider.Slug,
			Cause:        errors.New("provider returned no user data"),
		}
	}
	return profile, nil
}

func (s *Service) emitLinked(ctx context.Context, link IdentityLink, provisioned bool) Delivery {
	event := newEvent(EventAccountLinked, link.AccountID, link.ProviderSlug, link.ExternalID, map[string]any{
		"link_id":     link.ID,
		"provisioned": provisioned,
	})
	return deliver(ctx, s.notifier, event)
}

func (s *Service) collectDelivery(ctx context.Context, outcome *Outcome, delivery Delivery) {
	if delivery.Err == nil {
		return
	}
	outcome.NotificationErrors = append(outcome.NotificationErrors, delivery.Err)
	s.logWarn(ctx, "notification delivery failed", map[string]any{
		"event":         delivery.Event.Name,
		"event_id":      delivery.Event.ID,
		"account_id":    delivery.Event.AccountID,
		"provider_slug": delivery.Event.ProviderSlug,
		"error":         delivery.Err.Error(),
	})
}

func (s *Service) successOutcome(providerSlug string, accountID AccountID, action Action, returnTo string) Outcome {
	return Outcome{
		Next:         NextStepRedirectSuccess,
		RedirectTo:   s.config.redirectTarget(returnTo),
		Action:       action,
		AccountID:    accountID,
		ProviderSlug: providerSlug,
	}
}

func (s *Service) failureOutcome(providerSlug string, accountID AccountID, returnTo string) Outcome {
	return Outcome{
		Next:         NextStepRedirectWithError,
		RedirectTo:   s.config.redirectTarget(returnTo),
		Action:       ActionNone,
		AccountID:    accountID,
		ProviderSlug: providerSlug,
	}
}
