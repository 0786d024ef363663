package sqlstore

import (
	"context"
	"fmt"
	"sync"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-social-auth/core"
	"github.com/uptrace/bun"
)

// Store is the SQL core.Stores backend. Mutations run through RunInTx on a bun
// transaction; the two composite unique keys on social_identity_links hold the
// one-link invariants under concurrent callbacks.
type Store struct {
	db       *bun.DB
	links    *LinkStore
	accounts *AccountStore
	cached   *CachedLinkStore
}

func NewStore(db *bun.DB) (*Store, error) {
	links, err := NewLinkStore(db)
	if err != nil {
		return nil, err
	}
	accounts, err := NewAccountStore(db)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, links: links, accounts: accounts}
	links.touched = store.invalidate
	return store, nil
}

// EnableLinkCache routes non-transactional ListByAccount reads through the
// cache. Entries are dropped after every committed link mutation.
func (s *Store) EnableLinkCache(cacheService repositorycache.CacheService) error {
	if s == nil || s.links == nil {
		return fmt.Errorf("sqlstore: store is not configured")
	}
	cached, err := NewCachedLinkStore(s.links, cacheService)
	if err != nil {
		return err
	}
	s.cached = cached
	return nil
}

func (s *Store) DB() *bun.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *Store) Links() core.IdentityLinkStore {
	if s.cached != nil {
		return s.cached
	}
	return s.links
}

func (s *Store) Accounts() core.AccountStore {
	return s.accounts
}

// AccountStore exposes the concrete account store for host lookups by id.
func (s *Store) AccountStore() *AccountStore {
	return s.accounts
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, stores core.TxStores) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: store is not configured")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: transaction callback is required")
	}

	var (
		mu      sync.Mutex
		touched = map[string]struct{}{}
	)
	mark := func(accountID string) {
		mu.Lock()
		touched[accountID] = struct{}{}
		mu.Unlock()
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, txStores{
			links:    s.links.withTx(tx, mark),
			accounts: s.accounts.withTx(tx),
		})
	})
	if err != nil {
		return err
	}
	for accountID := range touched {
		s.invalidate(accountID)
	}
	return nil
}

func (s *Store) invalidate(accountID string) {
	if s.cached != nil {
		_ = s.cached.Invalidate(context.Background(), accountID)
	}
}

type txStores struct {
	links    *LinkStore
	accounts *AccountStore
}

func (t txStores) Links() core.IdentityLinkStore {
	return t.links
}

func (t txStores) Accounts() core.AccountStore {
	return t.accounts
}
