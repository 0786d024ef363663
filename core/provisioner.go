package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultAccountFactory builds accounts with a random UUID and the profile's
// email and display name.
type DefaultAccountFactory struct{}

func (DefaultAccountFactory) NewAccount(_ context.Context, seed AccountSeed) (LocalAccount, error) {
	return LocalAccount{
		ID:          uuid.NewString(),
		Email:       seed.Email,
		DisplayName: seed.DisplayName,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// AccountProvisioner creates a local account and its first identity link in
// one transaction.
type AccountProvisioner struct {
	uow            UnitOfWork
	factory        AccountFactory
	normalizeEmail bool
}

func NewAccountProvisioner(uow UnitOfWork, factory AccountFactory, normalizeEmail bool) *AccountProvisioner {
	if factory == nil {
		factory = DefaultAccountFactory{}
	}
	return &AccountProvisioner{uow: uow, factory: factory, normalizeEmail: normalizeEmail}
}

// CreateAccount provisions a new account for profile. Any failure, including a
// racing link for the same external identity, yields *ProvisioningError and
// leaves neither the account nor the link behind.
func (p *AccountProvisioner) CreateAccount(ctx context.Context, profile ExternalProfile, provider ProviderConfig) (LocalAccount, IdentityLink, error) {
	providerSlug := NormalizeSlug(provider.Slug)
	externalID := strings.TrimSpace(profile.ExternalID)
	if providerSlug == "" || externalID == "" {
		return LocalAccount{}, IdentityLink{}, badInput("core: provisioning requires provider slug and external id")
	}
	provider.Slug = providerSlug

	seed := AccountSeed{
		Provider:    provider,
		ExternalID:  externalID,
		Email:       p.seedEmail(profile.Email),
		DisplayName: strings.TrimSpace(profile.DisplayName),
	}

	var (
		account LocalAccount
		link    IdentityLink
	)
	err := p.uow.RunInTx(ctx, func(ctx context.Context, stores TxStores) error {
		if existing, found, err := stores.Links().FindByExternalID(ctx, providerSlug, externalID); err != nil {
			return err
		} else if found {
			return &IdentityConflictError{
				OwnerID:      existing.AccountID,
				ProviderSlug: providerSlug,
				ExternalID:   externalID,
			}
		}

		candidate, err := p.factory.NewAccount(ctx, seed)
		if err != nil {
			return fmt.Errorf("account factory: %w", err)
		}
		created, err := stores.Accounts().Create(ctx, candidate)
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		if strings.TrimSpace(created.ID) == "" {
			return fmt.Errorf("create account: store returned empty account id")
		}

		inserted, err := stores.Links().Insert(ctx, IdentityLink{
			AccountID:    created.ID,
			ProviderSlug: providerSlug,
			ExternalID:   externalID,
		})
		if err != nil {
			var constraint *LinkConstraintError
			if errors.As(err, &constraint) {
				return translateLinkError(err, created.ID, providerSlug, externalID)
			}
			return fmt.Errorf("insert identity link: %w", err)
		}
		account = created
		link = inserted
		return nil
	})
	if err != nil {
		return LocalAccount{}, IdentityLink{}, &ProvisioningError{
			ProviderSlug: providerSlug,
			ExternalID:   externalID,
			Cause:        err,
		}
	}
	return account, link, nil
}

func (p *AccountProvisioner) seedEmail(email string) string {
	if !p.normalizeEmail {
		return strings.TrimSpace(email)
	}
	return ValidEmail(email)
}
