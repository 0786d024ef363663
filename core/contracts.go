package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

type OAuthClient interface {
	BuildAuthorizationRedirect(ctx context.Context, provider ProviderConfig) (AuthorizationRedirect, error)
	FetchProfile(ctx context.Context, provider ProviderConfig, params CallbackParams) (ExternalProfile, error)
}

// Session is the per-request principal mechanism owned by the HTTP layer.
type Session interface {
	CurrentAccount(ctx context.Context) (AccountID, bool, error)
	SetCurrentAccount(ctx context.Context, accountID AccountID) error
}

// AccountFactory builds a new, unsaved local account from a provider profile.
type AccountFactory interface {
	NewAccount(ctx context.Context, seed AccountSeed) (LocalAccount, error)
}

type AccountFactoryFunc func(ctx context.Context, seed AccountSeed) (LocalAccount, error)

func (f AccountFactoryFunc) NewAccount(ctx context.Context, seed AccountSeed) (LocalAccount, error) {
	return f(ctx, seed)
}

type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (LocalAccount, bool, error)
	Create(ctx context.Context, account LocalAccount) (LocalAccount, error)
}

// IdentityLinkStore persists identity links. Insert must be backed by the two
// composite unique keys and report violations as *LinkConstraintError.
type IdentityLinkStore interface {
	FindByExternalID(ctx context.Context, providerSlug string, externalID string) (IdentityLink, bool, error)
	FindByAccountProvider(ctx context.Context, accountID AccountID, providerSlug string) (IdentityLink, bool, error)
	ListByAccount(ctx context.Context, accountID AccountID) ([]IdentityLink, error)
	Insert(ctx context.Context, link IdentityLink) (IdentityLink, error)
	Delete(ctx context.Context, accountID AccountID, providerSlug string) (bool, error)
}

type TxStores interface {
	Links() IdentityLinkStore
	Accounts() AccountStore
}

// UnitOfWork runs fn inside a single transaction. The transaction is committed
// when fn returns nil and rolled back otherwise.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type OutboxStore interface {
	Enqueue(ctx context.Context, event Event) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
