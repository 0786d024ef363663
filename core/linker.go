package core

import (
	"context"
	"errors"
	"strings"
)

// AccountLinker attaches and detaches identity links. Every mutation runs in
// its own transaction.
type AccountLinker struct {
	uow UnitOfWork
}

func NewAccountLinker(uow UnitOfWork) *AccountLinker {
	return &AccountLinker{uow: uow}
}

// Attach links (providerSlug, externalID) to accountID. The account-provider
// check runs before the external-identity check, so a request violating both
// reports *AlreadyLinkedError. A unique violation raised by the insert itself
// is translated the same way, keyed by the violated constraint.
func (l *AccountLinker) Attach(ctx context.Context, accountID AccountID, providerSlug string, externalID string) (IdentityLink, error) {
	accountID = strings.TrimSpace(accountID)
	providerSlug = NormalizeSlug(providerSlug)
	externalID = strings.TrimSpace(externalID)
	if accountID == "" || providerSlug == "" || externalID == "" {
		return IdentityLink{}, badInput("core: attach requires account id, provider slug and external id")
	}

	var link IdentityLink
	err := l.uow.RunInTx(ctx, func(ctx context.Context, stores TxStores) error {
		created, attachErr := attachLink(ctx, stores.Links(), accountID, providerSlug, externalID)
		if attachErr != nil {
			return attachErr
		}
		link = created
		return nil
	})
	if err != nil {
		return IdentityLink{}, translateLinkError(err, accountID, providerSlug, externalID)
	}
	return link, nil
}

// Detach removes the (accountID, providerSlug) link and reports whether a row
// was removed. A missing link is not an error here.
func (l *AccountLinker) Detach(ctx context.Context, accountID AccountID, providerSlug string) (bool, error) {
	accountID = strings.TrimSpace(accountID)
	providerSlug = NormalizeSlug(providerSlug)
	if accountID == "" || providerSlug == "" {
		return false, badInput("core: detach requires account id and provider slug")
	}

	var removed bool
	err := l.uow.RunInTx(ctx, func(ctx context.Context, stores TxStores) error {
		deleted, deleteErr := stores.Links().Delete(ctx, accountID, providerSlug)
		if deleteErr != nil {
			return deleteErr
		}
		removed = deleted
		return nil
	})
	if err != nil {
		return false, internalError("core: detach identity link failed", err)
	}
	return removed, nil
}

func attachLink(
	ctx context.Context,
	links IdentityLinkStore,
	accountID AccountID,
	providerSlug string,
	externalID string,
) (IdentityLink, error) {
	if _, found, err := links.FindByAccountProvider(ctx, accountID, providerSlug); err != nil {
		return IdentityLink{}, err
	} else if found {
		return IdentityLink{}, &AlreadyLinkedError{AccountID: accountID, ProviderSlug: providerSlug}
	}

	existing, found, err := links.FindByExternalID(ctx, providerSlug, externalID)
	if err != nil {
		return IdentityLink{}, err
	}
	if found && existing.AccountID != accountID {
		return IdentityLink{}, &IdentityConflictError{
			AccountID:    accountID,
			OwnerID:      existing.AccountID,
			ProviderSlug: providerSlug,
			ExternalID:   externalID,
		}
	}

	return links.Insert(ctx, IdentityLink{
		AccountID:    accountID,
		ProviderSlug: providerSlug,
		ExternalID:   externalID,
	})
}

func translateLinkError(err error, accountID AccountID, providerSlug string, externalID string) error {
	if err == nil {
		return nil
	}
	var alreadyLinked *AlreadyLinkedError
	if errors.As(err, &alreadyLinked) {
		return alreadyLinked
	}
	var conflict *IdentityConflictError
	if errors.As(err, &conflict) {
		return conflict
	}
	var constraint *LinkConstraintError
	if errors.As(err, &constraint) {
		if constraint.Constraint == ConstraintAccountProvider {
			return &AlreadyLinkedError{AccountID: accountID, ProviderSlug: providerSlug}
		}
		return &IdentityConflictError{
			AccountID:    accountID,
			ProviderSlug: providerSlug,
			ExternalID:   externalID,
		}
	}
	return internalError("core: attach identity link failed", err)
}
