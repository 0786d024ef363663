package core

import (
	"context"
	"fmt"
	"strings"
)

// IdentityResolver answers read-only questions about links and accounts.
// Email lookups are a fallback match only; they never authenticate by themselves.
type IdentityResolver struct {
	stores         TxStores
	normalizeEmail bool
}

func NewIdentityResolver(stores TxStores, normalizeEmail bool) *IdentityResolver {
	return &IdentityResolver{stores: stores, normalizeEmail: normalizeEmail}
}

func (r *IdentityResolver) FindLinkedAccount(ctx context.Context, providerSlug string, externalID string) (AccountID, bool, error) {
	providerSlug = NormalizeSlug(providerSlug)
	externalID = strings.TrimSpace(externalID)
	if providerSlug == "" || externalID == "" {
		return "", false, nil
	}
	link, found, err := r.stores.Links().FindByExternalID(ctx, providerSlug, externalID)
	if err != nil {
		return "", false, fmt.Errorf("core: find linked account: %w", err)
	}
	if !found {
		return "", false, nil
	}
	return link.AccountID, true, nil
}

func (r *IdentityResolver) FindAccountByEmail(ctx context.Context, email string) (AccountID, bool, error) {
	email = r.matchableEmail(email)
	if email == "" {
		return "", false, nil
	}
	account, found, err := r.stores.Accounts().FindByEmail(ctx, email)
	if err != nil {
		return "", false, fmt.Errorf("core: find account by email: %w", err)
	}
	if !found {
		return "", false, nil
	}
	return account.ID, true, nil
}

func (r *IdentityResolver) IsAttached(ctx context.Context, accountID AccountID, providerSlug string) (bool, error) {
	accountID = strings.TrimSpace(accountID)
	providerSlug = NormalizeSlug(providerSlug)
	if accountID == "" || providerSlug == "" {
		return false, nil
	}
	_, found, err := r.stores.Links().FindByAccountProvider(ctx, accountID, providerSlug)
	if err != nil {
		return false, fmt.Errorf("core: check attached provider: %w", err)
	}
	return found, nil
}

func (r *IdentityResolver) ListLinks(ctx context.Context, accountID AccountID) ([]IdentityLink, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, badInput("core: account id is required")
	}
	links, err := r.stores.Links().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("core: list identity links: %w", err)
	}
	return links, nil
}

func (r *IdentityResolver) matchableEmail(email string) string {
	if !r.normalizeEmail {
		return strings.TrimSpace(email)
	}
	return ValidEmail(email)
}
