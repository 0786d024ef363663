package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-social-auth/core"
	"github.com/uptrace/bun"
)

var ErrAccountEmailTaken = errors.New("sqlstore: account email already registered")

type AccountStore struct {
	db   bun.IDB
	repo repository.Repository[*accountRecord]
}

func NewAccountStore(db *bun.DB) (*AccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*accountRecord](db, accountHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid account repository wiring: %w", err)
		}
	}
	return &AccountStore{db: db, repo: repo}, nil
}

func (s *AccountStore) withTx(tx bun.Tx) *AccountStore {
	return &AccountStore{db: tx, repo: s.repo}
}

// FindByEmail matches case-insensitively. Blank emails never match.
func (s *AccountStore) FindByEmail(ctx context.Context, email string) (core.LocalAccount, bool, error) {
	if s == nil || s.db == nil {
		return core.LocalAccount{}, false, fmt.Errorf("sqlstore: account store is not configured")
	}
	email = core.NormalizeEmail(email)
	if email == "" {
		return core.LocalAccount{}, false, nil
	}
	record := new(accountRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = ?", email).
		OrderExpr("?TableAlias.created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.LocalAccount{}, false, nil
	}
	if err != nil {
		return core.LocalAccount{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *AccountStore) Create(ctx context.Context, account core.LocalAccount) (core.LocalAccount, error) {
	if s == nil || s.db == nil {
		return core.LocalAccount{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	record := newAccountRecord(account, time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isAccountEmailViolation(err) {
			return core.LocalAccount{}, fmt.Errorf("%w: %v", ErrAccountEmailTaken, err)
		}
		return core.LocalAccount{}, err
	}
	return record.toDomain(), nil
}

// Get loads an account by id.
func (s *AccountStore) Get(ctx context.Context, id core.AccountID) (core.LocalAccount, error) {
	if s == nil || s.repo == nil {
		return core.LocalAccount{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return core.LocalAccount{}, err
	}
	return record.toDomain(), nil
}
