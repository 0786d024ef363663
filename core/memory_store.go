package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stores is a storage backend: non-transactional readers plus a unit of work
// for mutations.
type Stores interface {
	TxStores
	UnitOfWork
}

// MemoryStore is an in-process Stores implementation. Transactions are
// serialized and run against a copy of the state that is swapped in on commit.
// Code running inside RunInTx must use the stores passed to fn, never the
// MemoryStore itself.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
	now   func() time.Time
}

type memoryState struct {
	accounts map[AccountID]LocalAccount
	links    map[string]IdentityLink
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memoryState{
			accounts: map[AccountID]LocalAccount{},
			links:    map[string]IdentityLink{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Links() IdentityLinkStore {
	return memoryLockedLinks{store: s}
}

func (s *MemoryStore) Accounts() AccountStore {
	return memoryLockedAccounts{store: s}
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error {
	if fn == nil {
		return fmt.Errorf("core: transaction callback is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, memoryTx{state: &working, now: s.now}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (st memoryState) clone() memoryState {
	out := memoryState{
		accounts: make(map[AccountID]LocalAccount, len(st.accounts)),
		links:    make(map[string]IdentityLink, len(st.links)),
	}
	for id, account := range st.accounts {
		out.accounts[id] = account
	}
	for id, link := range st.links {
		out.links[id] = link
	}
	return out
}

type memoryTx struct {
	state *memoryState
	now   func() time.Time
}

func (tx memoryTx) Links() IdentityLinkStore {
	return memoryLinks{state: tx.state, now: tx.now}
}

func (tx memoryTx) Accounts() AccountStore {
	return memoryAccounts{state: tx.state, now: tx.now}
}

type memoryLinks struct {
	state *memoryState
	now   func() time.Time
}

func (m memoryLinks) FindByExternalID(_ context.Context, providerSlug string, externalID string) (IdentityLink, bool, error) {
	providerSlug = NormalizeSlug(providerSlug)
	externalID = strings.TrimSpace(externalID)
	for _, link := range m.state.links {
		if link.ProviderSlug == providerSlug && link.ExternalID == externalID {
			return link, true, nil
		}
	}
	return IdentityLink{}, false, nil
}

func (m memoryLinks) FindByAccountProvider(_ context.Context, accountID AccountID, providerSlug string) (IdentityLink, bool, error) {
	providerSlug = NormalizeSlug(providerSlug)
	for _, link := range m.state.links {
		if link.AccountID == accountID && link.ProviderSlug == providerSlug {
			return link, true, nil
		}
	}
	return IdentityLink{}, false, nil
}

func (m memoryLinks) ListByAccount(_ context.Context, accountID AccountID) ([]IdentityLink, error) {
	out := make([]IdentityLink, 0)
	for _, link := range m.state.links {
		if link.AccountID == accountID {
			out = append(out, link)
		}
	}
	sortLinks(out)
	return out, nil
}

func (m memoryLinks) Insert(ctx context.Context, link IdentityLink) (IdentityLink, error) {
	link.ProviderSlug = NormalizeSlug(link.ProviderSlug)
	link.ExternalID = strings.TrimSpace(link.ExternalID)
	link.AccountID = strings.TrimSpace(link.AccountID)
	if link.AccountID == "" || link.ProviderSlug == "" || link.ExternalID == "" {
		return IdentityLink{}, fmt.Errorf("core: identity link requires account id, provider slug and external id")
	}
	if _, found, _ := m.FindByExternalID(ctx, link.ProviderSlug, link.ExternalID); found {
		return IdentityLink{}, &LinkConstraintError{Constraint: ConstraintExternalIdentity}
	}
	if _, found, _ := m.FindByAccountProvider(ctx, link.AccountID, link.ProviderSlug); found {
		return IdentityLink{}, &LinkConstraintError{Constraint: ConstraintAccountProvider}
	}
	if strings.TrimSpace(link.ID) == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = m.now()
	}
	m.state.links[link.ID] = link
	return link, nil
}

func (m memoryLinks) Delete(_ context.Context, accountID AccountID, providerSlug string) (bool, error) {
	providerSlug = NormalizeSlug(providerSlug)
	for id, link := range m.state.links {
		if link.AccountID == accountID && link.ProviderSlug == providerSlug {
			delete(m.state.links, id)
			return true, nil
		}
	}
	return false, nil
}

type memoryAccounts struct {
	state *memoryState
	now   func() time.Time
}

func (m memoryAccounts) FindByEmail(_ context.Context, email string) (LocalAccount, bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return LocalAccount{}, false, nil
	}
	for _, account := range m.state.accounts {
		if NormalizeEmail(account.Email) == email {
			return account, true, nil
		}
	}
	return LocalAccount{}, false, nil
}

func (m memoryAccounts) Create(ctx context.Context, account LocalAccount) (LocalAccount, error) {
	if strings.TrimSpace(account.ID) == "" {
		account.ID = uuid.NewString()
	}
	if _, exists := m.state.accounts[account.ID]; exists {
		return LocalAccount{}, fmt.Errorf("core: account %s already exists", account.ID)
	}
	if account.Email != "" {
		if _, found, _ := m.FindByEmail(ctx, account.Email); found {
			return LocalAccount{}, fmt.Errorf("core: account email already registered")
		}
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = m.now()
	}
	m.state.accounts[account.ID] = account
	return account, nil
}

// Get returns a stored account by id.
func (s *MemoryStore) Get(_ context.Context, id AccountID) (LocalAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.state.accounts[id]
	return account, ok
}

// Seed stores accounts directly, outside any transaction.
func (s *MemoryStore) Seed(accounts ...LocalAccount) error {
	return s.RunInTx(context.Background(), func(ctx context.Context, stores TxStores) error {
		for _, account := range accounts {
			if _, err := stores.Accounts().Create(ctx, account); err != nil {
				return err
			}
		}
		return nil
	})
}

// Counts reports the number of stored accounts and links.
func (s *MemoryStore) Counts() (accounts int, links int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.accounts), len(s.state.links)
}

type memoryLockedLinks struct {
	store *MemoryStore
}

func (m memoryLockedLinks) view() (memoryLinks, func()) {
	m.store.mu.Lock()
	return memoryLinks{state: &m.store.state, now: m.store.now}, m.store.mu.Unlock
}

func (m memoryLockedLinks) FindByExternalID(ctx context.Context, providerSlug string, externalID string) (IdentityLink, bool, error) {
	links, unlock := m.view()
	defer unlock()
	return links.FindByExternalID(ctx, providerSlug, externalID)
}

func (m memoryLockedLinks) FindByAccountProvider(ctx context.Context, accountID AccountID, providerSlug string) (IdentityLink, bool, error) {
	links, unlock := m.view()
	defer unlock()
	return links.FindByAccountProvider(ctx, accountID, providerSlug)
}

func (m memoryLockedLinks) ListByAccount(ctx context.Context, accountID AccountID) ([]IdentityLink, error) {
	links, unlock := m.view()
	defer unlock()
	return links.ListByAccount(ctx, accountID)
}

func (m memoryLockedLinks) Insert(ctx context.Context, link IdentityLink) (IdentityLink, error) {
	links, unlock := m.view()
	defer unlock()
	return links.Insert(ctx, link)
}

func (m memoryLockedLinks) Delete(ctx context.Context, accountID AccountID, providerSlug string) (bool, error) {
	links, unlock := m.view()
	defer unlock()
	return links.Delete(ctx, accountID, providerSlug)
}

type memoryLockedAccounts struct {
	store *MemoryStore
}

func (m memoryLockedAccounts) FindByEmail(ctx context.Context, email string) (LocalAccount, bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return memoryAccounts{state: &m.store.state, now: m.store.now}.FindByEmail(ctx, email)
}

func (m memoryLockedAccounts) Create(ctx context.Context, account LocalAccount) (LocalAccount, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return memoryAccounts{state: &m.store.state, now: m.store.now}.Create(ctx, account)
}

func sortLinks(links []IdentityLink) {
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].ProviderSlug < links[j].ProviderSlug
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
}
