package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-social-auth/core"
)

type MutatingService interface {
	AuthorizationRedirect(ctx context.Context, providerSlug string) (core.AuthorizationRedirect, error)
	HandleCallback(ctx context.Context, req core.CallbackRequest) (core.Outcome, error)
	DetachAccount(ctx context.Context, req core.DetachRequest) (core.Outcome, error)
}

type BeginAuthorizationCommand struct {
	service MutatingService
}

func NewBeginAuthorizationCommand(service MutatingService) *BeginAuthorizationCommand {
	return &BeginAuthorizationCommand{service: service}
}

func (c *BeginAuthorizationCommand) Execute(ctx context.Context, msg BeginAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.AuthorizationRedirect(ctx, msg.ProviderSlug)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// HandleCallbackCommand stores the outcome even when the callback fails, since
// a failed outcome still carries the redirect target for the HTTP layer.
type HandleCallbackCommand struct {
	service MutatingService
}

func NewHandleCallbackCommand(service MutatingService) *HandleCallbackCommand {
	return &HandleCallbackCommand{service: service}
}

func (c *HandleCallbackCommand) Execute(ctx context.Context, msg HandleCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.HandleCallback(ctx, msg.Request)
	storeResult(ctx, out)
	return err
}

type DetachAccountCommand struct {
	service MutatingService
}

func NewDetachAccountCommand(service MutatingService) *DetachAccountCommand {
	return &DetachAccountCommand{service: service}
}

func (c *DetachAccountCommand) Execute(ctx context.Context, msg DetachAccountMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: detach service is required")
	}
	out, err := c.service.DetachAccount(ctx, msg.Request)
	storeResult(ctx, out)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
