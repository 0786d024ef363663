package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	socialcommand "github.com/goliatone/go-social-auth/command"
	"github.com/goliatone/go-social-auth/core"
	"github.com/goliatone/go-social-auth/query"
)

// SocialAuthService is what the registered commands and queries delegate to.
// core.Service satisfies it.
type SocialAuthService interface {
	socialcommand.MutatingService
	query.LinkReader
}

// RegistryAdapter exposes the social auth commands and queries through a
// go-command registry, so resolvers added to it (cli, cron, rpc or custom)
// see every handler at Initialize.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// Subscriptions holds the dispatcher subscriptions created by RegisterSocialAuth.
type Subscriptions struct {
	items []commanddispatcher.Subscription
}

func (s *Subscriptions) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

func (s *Subscriptions) Unsubscribe() {
	if s == nil {
		return
	}
	for _, sub := range s.items {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	s.items = nil
}

type handlerBinding struct {
	handler   any
	subscribe func(runnerOpts ...runner.Option) commanddispatcher.Subscription
}

func commandBinding[T any](cmd command.Commander[T]) handlerBinding {
	return handlerBinding{
		handler: cmd,
		subscribe: func(runnerOpts ...runner.Option) commanddispatcher.Subscription {
			return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
		},
	}
}

func queryBinding[T any, R any](qry command.Querier[T, R]) handlerBinding {
	return handlerBinding{
		handler: qry,
		subscribe: func(runnerOpts ...runner.Option) commanddispatcher.Subscription {
			return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
		},
	}
}

// RegisterSocialAuth registers every social auth command and query with the
// registry, then subscribes them on the dispatcher. Registration stops at the
// first error and nothing is subscribed in that case. The registry has no way
// to drop an entry, and it only rejects handlers once initialized, which
// fails the first registration.
func RegisterSocialAuth(adapter *RegistryAdapter, service SocialAuthService, runnerOpts ...runner.Option) (*Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if service == nil {
		return nil, fmt.Errorf("gocommand: social auth service is required")
	}

	bindings := []handlerBinding{
		commandBinding[socialcommand.BeginAuthorizationMessage](socialcommand.NewBeginAuthorizationCommand(service)),
		commandBinding[socialcommand.HandleCallbackMessage](socialcommand.NewHandleCallbackCommand(service)),
		commandBinding[socialcommand.DetachAccountMessage](socialcommand.NewDetachAccountCommand(service)),
		queryBinding[query.FindLinkedAccountMessage, query.LinkedAccount](query.NewFindLinkedAccountQuery(service)),
		queryBinding[query.IsAttachedMessage, bool](query.NewIsAttachedQuery(service)),
		queryBinding[query.ListAccountLinksMessage, []core.IdentityLink](query.NewListAccountLinksQuery(service)),
	}
	for _, binding := range bindings {
		if err := adapter.registry.RegisterCommand(binding.handler); err != nil {
			return nil, fmt.Errorf("gocommand: register %T: %w", binding.handler, err)
		}
	}

	subs := &Subscriptions{items: make([]commanddispatcher.Subscription, 0, len(bindings))}
	for _, binding := range bindings {
		subs.items = append(subs.items, binding.subscribe(runnerOpts...))
	}
	return subs, nil
}

// BeginAuthorization dispatches a BeginAuthorizationMessage and returns the
// redirect stored by its handler.
func BeginAuthorization(ctx context.Context, providerSlug string) (core.AuthorizationRedirect, error) {
	return dispatchWithResult[core.AuthorizationRedirect](ctx, socialcommand.BeginAuthorizationMessage{
		ProviderSlug: providerSlug,
	})
}

// HandleCallback dispatches the callback. The outcome is returned alongside
// the error so the caller can still follow its redirect.
func HandleCallback(ctx context.Context, req core.CallbackRequest) (core.Outcome, error) {
	return dispatchWithResult[core.Outcome](ctx, socialcommand.HandleCallbackMessage{Request: req})
}

func DetachAccount(ctx context.Context, req core.DetachRequest) (core.Outcome, error) {
	return dispatchWithResult[core.Outcome](ctx, socialcommand.DetachAccountMessage{Request: req})
}

func FindLinkedAccount(ctx context.Context, providerSlug string, externalID string) (query.LinkedAccount, error) {
	return commanddispatcher.Query[query.FindLinkedAccountMessage, query.LinkedAccount](ctx, query.FindLinkedAccountMessage{
		ProviderSlug: providerSlug,
		ExternalID:   externalID,
	})
}

func IsAttached(ctx context.Context, accountID core.AccountID, providerSlug string) (bool, error) {
	return commanddispatcher.Query[query.IsAttachedMessage, bool](ctx, query.IsAttachedMessage{
		AccountID:    accountID,
		ProviderSlug: providerSlug,
	})
}

func ListAccountLinks(ctx context.Context, accountID core.AccountID) ([]core.IdentityLink, error) {
	return commanddispatcher.Query[query.ListAccountLinksMessage, []core.IdentityLink](ctx, query.ListAccountLinksMessage{
		AccountID: accountID,
	})
}

func dispatchWithResult[R any, T any](ctx context.Context, msg T) (R, error) {
	result := command.NewResult[R]()
	err := commanddispatcher.Dispatch(command.ContextWithResult(ctx, result), msg)
	out, _ := result.Load()
	return out, err
}
