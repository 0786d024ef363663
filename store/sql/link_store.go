package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-social-auth/core"
	"github.com/uptrace/bun"
)

// LinkStore is the bun-backed core.IdentityLinkStore. A LinkStore bound to a
// transaction issues every statement on that transaction.
type LinkStore struct {
	db   bun.IDB
	tx   *bun.Tx
	repo repository.Repository[*identityLinkRecord]

	// touched is called with the account id of every successful mutation.
	touched func(accountID string)
}

func NewLinkStore(db *bun.DB) (*LinkStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*identityLinkRecord](db, identityLinkHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid identity link repository wiring: %w", err)
		}
	}
	return &LinkStore{db: db, repo: repo}, nil
}

func (s *LinkStore) withTx(tx bun.Tx, touched func(string)) *LinkStore {
	return &LinkStore{db: tx, tx: &tx, repo: s.repo, touched: touched}
}

func (s *LinkStore) FindByExternalID(ctx context.Context, providerSlug string, externalID string) (core.IdentityLink, bool, error) {
	if s == nil || s.db == nil {
		return core.IdentityLink{}, false, fmt.Errorf("sqlstore: identity link store is not configured")
	}
	return s.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("?TableAlias.provider_slug = ?", core.NormalizeSlug(providerSlug)).
			Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID))
	})
}

func (s *LinkStore) FindByAccountProvider(ctx context.Context, accountID core.AccountID, providerSlug string) (core.IdentityLink, bool, error) {
	if s == nil || s.db == nil {
		return core.IdentityLink{}, false, fmt.Errorf("sqlstore: identity link store is not configured")
	}
	return s.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("?TableAlias.account_id = ?", strings.TrimSpace(accountID)).
			Where("?TableAlias.provider_slug = ?", core.NormalizeSlug(providerSlug))
	})
}

func (s *LinkStore) ListByAccount(ctx context.Context, accountID core.AccountID) ([]core.IdentityLink, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: identity link store is not configured")
	}
	accountID = strings.TrimSpace(accountID)

	var records []*identityLinkRecord
	if s.tx == nil && s.repo != nil {
		listed, _, err := s.repo.List(ctx,
			repository.SelectBy("account_id", "=", accountID),
			repository.OrderBy("created_at ASC"),
			repository.OrderBy("provider_slug ASC"),
		)
		if err != nil {
			return nil, err
		}
		records = listed
	} else {
		if err := s.db.NewSelect().
			Model(&records).
			Where("?TableAlias.account_id = ?", accountID).
			Order("created_at ASC", "provider_slug ASC").
			Scan(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]core.IdentityLink, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *LinkStore) Insert(ctx context.Context, link core.IdentityLink) (core.IdentityLink, error) {
	if s == nil || s.db == nil {
		return core.IdentityLink{}, fmt.Errorf("sqlstore: identity link store is not configured")
	}
	record := newIdentityLinkRecord(link, time.Now().UTC())
	if record.AccountID == "" || record.ProviderSlug == "" || record.ExternalID == "" {
		return core.IdentityLink{}, fmt.Errorf("sqlstore: identity link requires account id, provider slug and external id")
	}

	// Inserted through bun rather than the repository so the driver error,
	// which names the violated key, reaches classifyLinkInsertError.
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.IdentityLink{}, classifyLinkInsertError(err)
	}
	s.markTouched(record.AccountID)
	return record.toDomain(), nil
}

func (s *LinkStore) Delete(ctx context.Context, accountID core.AccountID, providerSlug string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: identity link store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	res, err := s.db.NewDelete().
		Model((*identityLinkRecord)(nil)).
		Where("account_id = ?", accountID).
		Where("provider_slug = ?", core.NormalizeSlug(providerSlug)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		s.markTouched(accountID)
	}
	return affected > 0, nil
}

func (s *LinkStore) findOne(ctx context.Context, filter func(*bun.SelectQuery) *bun.SelectQuery) (core.IdentityLink, bool, error) {
	record := new(identityLinkRecord)
	err := filter(s.db.NewSelect().Model(record)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.IdentityLink{}, false, nil
	}
	if err != nil {
		return core.IdentityLink{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *LinkStore) markTouched(accountID string) {
	if s.touched != nil && accountID != "" {
		s.touched(accountID)
	}
}
