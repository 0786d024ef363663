package core

import (
	"net/url"
	"strings"
	"time"
)

type AccountID = string

// ProviderConfig is the process-wide description of an identity provider.
type ProviderConfig struct {
	Slug  string `koanf:"slug" mapstructure:"slug" validate:"required,max=64"`
	Label string `koanf:"label" mapstructure:"label" validate:"required"`
}

// ExternalProfile is the identity facts returned by a provider for a single callback.
// It is never persisted.
type ExternalProfile struct {
	ExternalID  string
	Email       string
	DisplayName string
	Raw         map[string]any
}

func (p ExternalProfile) IsEmpty() bool {
	return strings.TrimSpace(p.ExternalID) == ""
}

// IdentityLink associates a local account with one external identity at one provider.
type IdentityLink struct {
	ID           string
	AccountID    AccountID
	ProviderSlug string
	ExternalID   string
	CreatedAt    time.Time
}

type LocalAccount struct {
	ID          AccountID
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// AccountSeed is what the provisioning path hands to an AccountFactory.
type AccountSeed struct {
	Provider    ProviderConfig
	ExternalID  string
	Email       string
	DisplayName string
}

type SessionState string

const (
	SessionAnonymous     SessionState = "anonymous"
	SessionAuthenticated SessionState = "authenticated"
)

type AuthorizationRedirect struct {
	URL          string
	State        string
	CodeVerifier string
}

// CallbackParams carries the raw provider callback data. The core never
// interprets Code or State; they are forwarded to the OAuth client.
type CallbackParams struct {
	Code             string
	State            string
	ExpectedState    string
	CodeVerifier     string
	Error            string
	ErrorDescription string
}

func CallbackParamsFromQuery(values url.Values) CallbackParams {
	return CallbackParams{
		Code:             strings.TrimSpace(values.Get("code")),
		State:            strings.TrimSpace(values.Get("state")),
		Error:            strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}
}

type CallbackRequest struct {
	ProviderSlug string
	Params       CallbackParams
	Session      Session
	// FetchTimeout overrides the configured profile fetch timeout when > 0.
	FetchTimeout time.Duration
}

type DetachRequest struct {
	AccountID    AccountID
	ProviderSlug string
	ReturnTo     string
}

type NextStep string

const (
	NextStepRedirectSuccess   NextStep = "redirect_success"
	NextStepRedirectWithError NextStep = "redirect_with_error"
)

type Action string

const (
	ActionNone                   Action = ""
	ActionAuthenticated          Action = "authenticated"
	ActionLinkedAndAuthenticated Action = "linked_and_authenticated"
	ActionProvisioned            Action = "provisioned"
	ActionLinked                 Action = "linked"
	ActionUnlinked               Action = "unlinked"
)

// Outcome is the semantic result of a callback or detach. The presentation
// layer decides how to render it.
type Outcome struct {
	Next               NextStep
	RedirectTo         string
	Action             Action
	AccountID          AccountID
	ProviderSlug       string
	Link               *IdentityLink
	NotificationErrors []error
}

func (o Outcome) Succeeded() bool {
	return o.Next == NextStepRedirectSuccess
}

const (
	EventAccountAuthenticated = "social_auth.account.authenticated"
	EventAccountLinked        = "social_auth.account.linked"
	EventAccountUnlinked      = "social_auth.account.unlinked"
)

type Event struct {
	ID           string
	Name         string
	AccountID    AccountID
	ProviderSlug string
	ExternalID   string
	OccurredAt   time.Time
	Payload      map[string]any
}

func NormalizeSlug(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}

func NormalizeEmail(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}

func copyAnyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
