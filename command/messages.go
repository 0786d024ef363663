package command

import (
	"strings"

	"github.com/goliatone/go-social-auth/core"
)

const (
	TypeBeginAuthorization = "social_auth.command.authorization.begin"
	TypeHandleCallback     = "social_auth.command.callback.handle"
	TypeDetachAccount      = "social_auth.command.account.detach"
)

type BeginAuthorizationMessage struct {
	ProviderSlug string
}

func (BeginAuthorizationMessage) Type() string { return TypeBeginAuthorization }

func (m BeginAuthorizationMessage) Validate() error {
	if strings.TrimSpace(m.ProviderSlug) == "" {
		return commandValidationError("provider_slug", "provider slug is required")
	}
	return nil
}

type HandleCallbackMessage struct {
	Request core.CallbackRequest
}

func (HandleCallbackMessage) Type() string { return TypeHandleCallback }

func (m HandleCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderSlug) == "" {
		return commandValidationError("provider_slug", "provider slug is required")
	}
	if m.Request.Session == nil {
		return commandValidationError("session", "session is required")
	}
	if m.Request.FetchTimeout < 0 {
		return commandValidationError("fetch_timeout", "fetch timeout must be >= 0")
	}
	return nil
}

type DetachAccountMessage struct {
	Request core.DetachRequest
}

func (DetachAccountMessage) Type() string { return TypeDetachAccount }

func (m DetachAccountMessage) Validate() error {
	if strings.TrimSpace(m.Request.AccountID) == "" {
		return commandValidationError("account_id", "account id is required")
	}
	if strings.TrimSpace(m.Request.ProviderSlug) == "" {
		return commandValidationError("provider_slug", "provider slug is required")
	}
	return nil
}
