package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-social-auth/core"
	socialmigrations "github.com/goliatone/go-social-auth/migrations"
	sqlstore "github.com/goliatone/go-social-auth/store/sql"
	_ "github.com/mattn/go-sqlite3"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-social-auth-tests"
}

type captureSQLLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *captureSQLLogger) Log(_ context.Context, _ sqldblogger.Level, msg string, _ map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, msg)
}

func (l *captureSQLLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type fixedProfileClient struct {
	mu      sync.Mutex
	profile core.ExternalProfile
}

func (c *fixedProfileClient) BuildAuthorizationRedirect(context.Context, core.ProviderConfig) (core.AuthorizationRedirect, error) {
	return core.AuthorizationRedirect{URL: "https://idp.example/authorize", State: "s"}, nil
}

func (c *fixedProfileClient) FetchProfile(context.Context, core.ProviderConfig, core.CallbackParams) (core.ExternalProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile, nil
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, _, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"social_accounts", "social_identity_links", "social_auth_outbox"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestStore_LinkLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newSQLiteStore(t)
	defer cleanup()

	account := createAccount(t, store, "ann@example.com")
	links := store.Links()

	created, err := links.Insert(ctx, core.IdentityLink{AccountID: account.ID, ProviderSlug: " GitHub ", ExternalID: "gh-1"})
	if err != nil {
		t.Fatalf("insert link: %v", err)
	}
	if created.ID == "" || created.ProviderSlug != "github" || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected created link: %+v", created)
	}

	byExternal, found, err := links.FindByExternalID(ctx, "github", "gh-1")
	if err != nil || !found || byExternal.AccountID != account.ID {
		t.Fatalf("find by external id: found=%v link=%+v err=%v", found, byExternal, err)
	}
	if _, found, err := links.FindByAccountProvider(ctx, account.ID, "GITHUB"); err != nil || !found {
		t.Fatalf("find by account provider: found=%v err=%v", found, err)
	}
	if _, found, err := links.FindByExternalID(ctx, "google", "gh-1"); err != nil || found {
		t.Fatalf("expected no google link: found=%v err=%v", found, err)
	}

	if _, err := links.Insert(ctx, core.IdentityLink{AccountID: account.ID, ProviderSlug: "google", ExternalID: "g-1"}); err != nil {
		t.Fatalf("insert google link: %v", err)
	}
	listed, err := links.ListByAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("list links: %v", err)
	}
	if len(listed) != 2 || listed[0].ProviderSlug != "github" || listed[1].ProviderSlug != "google" {
		t.Fatalf("unexpected listed links: %+v", listed)
	}

	removed, err := links.Delete(ctx, account.ID, "github")
	if err != nil || !removed {
		t.Fatalf("delete link: removed=%v err=%v", removed, err)
	}
	removed, err = links.Delete(ctx, account.ID, "github")
	if err != nil || removed {
		t.Fatalf("expected second delete to report nothing removed: removed=%v err=%v", removed, err)
	}
}

func TestStore_InsertClassifiesUniqueViolations(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newSQLiteStore(t)
	defer cleanup()

	first := createAccount(t, store, "first@example.com")
	second := createAccount(t, store, "second@example.com")
	if _, err := store.Links().Insert(ctx, core.IdentityLink{AccountID: first.ID, ProviderSlug: "github", ExternalID: "gh-1"}); err != nil {
		t.Fatalf("insert link: %v", err)
	}

	_, err := store.Links().Insert(ctx, core.IdentityLink{AccountID: second.ID, ProviderSlug: "github", ExternalID: "gh-1"})
	var constraintErr *core.LinkConstraintError
	if !errors.As(err, &constraintErr) || constraintErr.Constraint != core.ConstraintExternalIdentity {
		t.Fatalf("expected external identity constraint, got %v", err)
	}

	_, err = store.Links().Insert(ctx, core.IdentityLink{AccountID: first.ID, ProviderSlug: "github", ExternalID: "gh-2"})
	if !errors.As(err, &constraintErr) || constraintErr.Constraint != core.ConstraintAccountProvider {
		t.Fatalf("expected account provider constraint, got %v", err)
	}
}

func TestStore_AccountsFindByEmailAndUniqueness(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newSQLiteStore(t)
	defer cleanup()

	created := createAccount(t, store, "Bob@Example.com")
	found, ok, err := store.Accounts().FindByEmail(ctx, "  bob@example.COM ")
	if err != nil || !ok || found.ID != created.ID {
		t.Fatalf("expected case-insensitive match: ok=%v account=%+v err=%v", ok, found, err)
	}
	if _, ok, err := store.Accounts().FindByEmail(ctx, ""); err != nil || ok {
		t.Fatalf("expected blank email to never match: ok=%v err=%v", ok, err)
	}

	_, err = store.Accounts().Create(ctx, core.LocalAccount{Email: "bob@example.com"})
	if !errors.Is(err, sqlstore.ErrAccountEmailTaken) {
		t.Fatalf("expected email taken error, got %v", err)
	}

	withoutEmail := []core.LocalAccount{{DisplayName: "a"}, {DisplayName: "b"}}
	for _, account := range withoutEmail {
		if _, err := store.Accounts().Create(ctx, account); err != nil {
			t.Fatalf("expected accounts without email to coexist: %v", err)
		}
	}

	loaded, err := store.AccountStore().Get(ctx, created.ID)
	if err != nil || loaded.Email != "Bob@Example.com" {
		t.Fatalf("get account: %+v err=%v", loaded, err)
	}
}

func TestStore_RunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newSQLiteStore(t)
	defer cleanup()

	errAbort := errors.New("abort")
	err := store.RunInTx(ctx, func(ctx context.Context, stores core.TxStores) error {
		account, err := stores.Accounts().Create(ctx, core.LocalAccount{Email: "tx@example.com"})
		if err != nil {
			return err
		}
		if _, err := stores.Links().Insert(ctx, core.IdentityLink{AccountID: account.ID, ProviderSlug: "github", ExternalID: "gh-tx"}); err != nil {
			return err
		}
		if _, found, err := stores.Links().FindByExternalID(ctx, "github", "gh-tx"); err != nil || !found {
			return fmt.Errorf("expected link to be visible inside tx: found=%v err=%v", found, err)
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected abort error, got %v", err)
	}

	if _, found, err := store.Links().FindByExternalID(ctx, "github", "gh-tx"); err != nil || found {
		t.Fatalf("expected link rollback: found=%v err=%v", found, err)
	}
	if _, found, err := store.Accounts().FindByEmail(ctx, "tx@example.com"); err != nil || found {
		t.Fatalf("expected account rollback: found=%v err=%v", found, err)
	}
}

func TestStore_ConcurrentAttachSameIdentity(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newSQLiteStore(t)
	defer cleanup()

	const workers = 8
	accounts := make([]core.LocalAccount, workers)
	for i := range accounts {
		accounts[i] = createAccount(t, store, fmt.Sprintf("racer-%d@example.com", i))
	}
	linker := core.NewAccountLinker(store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		other     []error
	)
	for _, account := range accounts {
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()
			_, err := linker.Attach(ctx, accountID, "github", "gh-race")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, core.ErrIdentityConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}(account.ID)
	}
	wg.Wait()

	if successes != 1 || conflicts != workers-1 || len(other) != 0 {
		t.Fatalf("expected one winner: successes=%d conflicts=%d other=%v", successes, conflicts, other)
	}
}

func TestService_WithSQLStoreProvisionsThenLogsIn(t *testing.T) {
	ctx := context.Background()
	client, sqlLogger, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.Store()
	outbox := factory.OutboxStore()
	oauth := &fixedProfileClient{profile: core.ExternalProfile{ExternalID: "gh-42", Email: "new@example.com", DisplayName: "New"}}

	svc, err := core.NewService(core.Config{
		RedirectTo: "/home",
		Providers:  []core.ProviderConfig{{Slug: "github", Label: "GitHub"}},
	},
		core.WithStores(store),
		core.WithOAuthClient(oauth),
		core.WithNotifier(core.NewOutboxNotifier(outbox)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	session := core.NewMemorySession("")
	outcome, err := svc.HandleCallback(ctx, core.CallbackRequest{ProviderSlug: "github", Session: session})
	if err != nil {
		t.Fatalf("provisioning callback: %v", err)
	}
	if outcome.Action != core.ActionProvisioned || outcome.RedirectTo != "/home" {
		t.Fatalf("unexpected provisioning outcome: %+v", outcome)
	}
	accountID, _, _ := session.CurrentAccount(ctx)
	if accountID == "" || accountID != outcome.AccountID {
		t.Fatalf("expected session to hold provisioned account, got %q", accountID)
	}

	second := core.NewMemorySession("")
	outcome, err = svc.HandleCallback(ctx, core.CallbackRequest{ProviderSlug: "github", Session: second})
	if err != nil {
		t.Fatalf("returning callback: %v", err)
	}
	if outcome.Action != core.ActionAuthenticated || outcome.AccountID != accountID {
		t.Fatalf("expected returning login to reuse account, got %+v", outcome)
	}

	entries, err := outbox.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim outbox: %v", err)
	}
	counts := map[string]int{}
	for _, entry := range entries {
		counts[entry.Event.Name]++
		if entry.Event.AccountID != accountID {
			t.Fatalf("unexpected event account: %+v", entry.Event)
		}
	}
	if len(entries) != 3 || counts[core.EventAccountLinked] != 1 || counts[core.EventAccountAuthenticated] != 2 {
		t.Fatalf("expected one linked and two authenticated events, got %v", counts)
	}
	if sqlLogger.count() == 0 {
		t.Fatalf("expected sql statements to be logged")
	}
}

func TestService_WithSQLStoreProvisioningConflictRollsBack(t *testing.T) {
	ctx := context.Background()
	store, db, cleanup := newSQLiteStore(t)
	defer cleanup()

	owner := createAccount(t, store, "owner@example.com")
	if _, err := store.Links().Insert(ctx, core.IdentityLink{AccountID: owner.ID, ProviderSlug: "github", ExternalID: "gh-taken"}); err != nil {
		t.Fatalf("seed link: %v", err)
	}
	provisioner := core.NewAccountProvisioner(store, nil, true)

	_, _, err := provisioner.CreateAccount(ctx, core.ExternalProfile{ExternalID: "gh-taken", Email: "other@example.com"}, core.ProviderConfig{Slug: "github", Label: "GitHub"})
	if !errors.Is(err, core.ErrProvisioning) {
		t.Fatalf("expected provisioning error, got %v", err)
	}

	var count int
	if err := db.NewRaw("SELECT COUNT(*) FROM social_accounts").Scan(ctx, &count); err != nil {
		t.Fatalf("count accounts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected no partial account, got %d accounts", count)
	}
}

func TestOutboxStore_EnqueueClaimAckRetry(t *testing.T) {
	ctx := context.Background()
	client, _, cleanup := newSQLiteClient(t)
	defer cleanup()

	outbox, err := sqlstore.NewOutboxStore(client.DB())
	if err != nil {
		t.Fatalf("new outbox store: %v", err)
	}
	base := time.Now().UTC().Add(-time.Minute)
	events := []core.Event{
		{ID: "evt-1", Name: core.EventAccountLinked, AccountID: "a", ProviderSlug: "github", ExternalID: "gh", OccurredAt: base, Payload: map[string]any{"provisioned": true}},
		{ID: "evt-2", Name: core.EventAccountAuthenticated, AccountID: "a", ProviderSlug: "github", OccurredAt: base.Add(time.Second)},
	}
	for _, event := range events {
		if err := outbox.Enqueue(ctx, event); err != nil {
			t.Fatalf("enqueue %s: %v", event.ID, err)
		}
	}
	if err := outbox.Enqueue(ctx, events[0]); err != nil {
		t.Fatalf("expected duplicate enqueue to be ignored: %v", err)
	}
	if err := outbox.Enqueue(ctx, core.Event{Name: "x"}); err == nil {
		t.Fatalf("expected missing event id to fail")
	}

	claimed, err := outbox.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 || claimed[0].Event.ID != "evt-1" || claimed[1].Event.ID != "evt-2" {
		t.Fatalf("unexpected claimed batch: %+v", claimed)
	}
	if claimed[0].Event.Payload["provisioned"] != true {
		t.Fatalf("expected payload round trip, got %v", claimed[0].Event.Payload)
	}

	if again, err := outbox.ClaimBatch(ctx, 10); err != nil || len(again) != 0 {
		t.Fatalf("expected claimed events to be hidden: %d err=%v", len(again), err)
	}

	if err := outbox.Ack(ctx, "evt-1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := outbox.Retry(ctx, "evt-2", errors.New("relay down"), time.Now().UTC().Add(-time.Second)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	retried, err := outbox.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim retried: %v", err)
	}
	if len(retried) != 1 || retried[0].Event.ID != "evt-2" || retried[0].Attempts != 1 {
		t.Fatalf("expected retried event with one attempt, got %+v", retried)
	}
}

func TestStore_LinkCacheInvalidatedAfterCommit(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newSQLiteStore(t)
	defer cleanup()

	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	if err := store.EnableLinkCache(cacheService); err != nil {
		t.Fatalf("enable link cache: %v", err)
	}

	account := createAccount(t, store, "cache@example.com")
	listed, err := store.Links().ListByAccount(ctx, account.ID)
	if err != nil || len(listed) != 0 {
		t.Fatalf("expected empty list: %v err=%v", listed, err)
	}

	linker := core.NewAccountLinker(store)
	if _, err := linker.Attach(ctx, account.ID, "github", "gh-cache"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	listed, err = store.Links().ListByAccount(ctx, account.ID)
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected cache invalidation after attach: %v err=%v", listed, err)
	}

	if removed, err := linker.Detach(ctx, account.ID, "github"); err != nil || !removed {
		t.Fatalf("detach: removed=%v err=%v", removed, err)
	}
	listed, err = store.Links().ListByAccount(ctx, account.ID)
	if err != nil || len(listed) != 0 {
		t.Fatalf("expected cache invalidation after detach: %v err=%v", listed, err)
	}
}

func TestLinksByAccountCacheKey(t *testing.T) {
	key, err := sqlstore.LinksByAccountCacheKey(" acct/1 ")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-social-auth::links_by_account::v1::acct%2F1" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := sqlstore.LinksByAccountCacheKey(" "); err == nil {
		t.Fatalf("expected blank account id to fail")
	}
}

func createAccount(t *testing.T, store *sqlstore.Store, email string) core.LocalAccount {
	t.Helper()
	account, err := store.Accounts().Create(context.Background(), core.LocalAccount{Email: email, DisplayName: email})
	if err != nil {
		t.Fatalf("create account %s: %v", email, err)
	}
	return account
}

func newSQLiteStore(t *testing.T) (*sqlstore.Store, *bun.DB, func()) {
	t.Helper()
	client, _, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory.Store(), factory.DB(), cleanup
}

func newSQLiteClient(t *testing.T) (*persistence.Client, *captureSQLLogger, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:social-auth-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlLogger := &captureSQLLogger{}
	sqlDB, err := sqlstore.OpenSQL(sqlstore.DriverSQLite, dsn, sqlLogger)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: sqlstore.DriverSQLite,
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	if _, err := socialmigrations.Register(client, sqlstore.DriverSQLite); err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, sqlLogger, func() {
		_ = client.Close()
	}
}
