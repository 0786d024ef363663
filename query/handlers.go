package query

import (
	"context"

	"github.com/goliatone/go-social-auth/core"
)

type LinkReader interface {
	FindLinkedAccount(ctx context.Context, providerSlug string, externalID string) (core.AccountID, bool, error)
	IsAttached(ctx context.Context, accountID core.AccountID, providerSlug string) (bool, error)
	ListLinks(ctx context.Context, accountID core.AccountID) ([]core.IdentityLink, error)
}

// LinkedAccount is the result of a FindLinkedAccount lookup. Found is false
// when no account owns the external identity.
type LinkedAccount struct {
	AccountID core.AccountID
	Found     bool
}

type FindLinkedAccountQuery struct {
	reader LinkReader
}

func NewFindLinkedAccountQuery(reader LinkReader) *FindLinkedAccountQuery {
	return &FindLinkedAccountQuery{reader: reader}
}

func (q *FindLinkedAccountQuery) Query(ctx context.Context, msg FindLinkedAccountMessage) (LinkedAccount, error) {
	if q == nil || q.reader == nil {
		return LinkedAccount{}, queryDependencyError("query: link reader is required")
	}
	if err := msg.Validate(); err != nil {
		return LinkedAccount{}, err
	}
	accountID, found, err := q.reader.FindLinkedAccount(ctx, msg.ProviderSlug, msg.ExternalID)
	if err != nil {
		return LinkedAccount{}, err
	}
	return LinkedAccount{AccountID: accountID, Found: found}, nil
}

type IsAttachedQuery struct {
	reader LinkReader
}

func NewIsAttachedQuery(reader LinkReader) *IsAttachedQuery {
	return &IsAttachedQuery{reader: reader}
}

func (q *IsAttachedQuery) Query(ctx context.Context, msg IsAttachedMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, queryDependencyError("query: link reader is required")
	}
	if err := msg.Validate(); err != nil {
		return false, err
	}
	return q.reader.IsAttached(ctx, msg.AccountID, msg.ProviderSlug)
}

type ListAccountLinksQuery struct {
	reader LinkReader
}

func NewListAccountLinksQuery(reader LinkReader) *ListAccountLinksQuery {
	return &ListAccountLinksQuery{reader: reader}
}

func (q *ListAccountLinksQuery) Query(ctx context.Context, msg ListAccountLinksMessage) ([]core.IdentityLink, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: link reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListLinks(ctx, msg.AccountID)
}
