package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	persistence "github.com/goliatone/go-persistence-bun"
	socialauth "github.com/goliatone/go-social-auth"
	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"
)

func TestSchemas_ReturnsPostgresAndSQLite(t *testing.T) {
	schemas, err := Schemas()
	if err != nil {
		t.Fatalf("schemas: %v", err)
	}
	if len(schemas) != 2 {
		t.Fatalf("expected 2 schemas, got %d", len(schemas))
	}
	want := []string{"00001_social_auth_schema", "00002_social_auth_outbox"}
	for _, schema := range schemas {
		if schema.Dialect != DialectPostgres && schema.Dialect != DialectSQLite {
			t.Fatalf("unexpected dialect %q", schema.Dialect)
		}
		if diff := cmp.Diff(want, schema.Versions); diff != "" {
			t.Fatalf("unexpected %s versions (-want +got):\n%s", schema.Dialect, diff)
		}
	}
}

func TestSchemaFor_AcceptsDriverNames(t *testing.T) {
	cases := map[string]string{
		"postgres": DialectPostgres,
		"pgx":      DialectPostgres,
		"sqlite3":  DialectSQLite,
		" SQLite ": DialectSQLite,
	}
	for driver, want := range cases {
		schema, err := SchemaFor(driver)
		if err != nil {
			t.Fatalf("schema for %q: %v", driver, err)
		}
		if schema.Dialect != want {
			t.Fatalf("expected %s for %q, got %s", want, driver, schema.Dialect)
		}
	}
	if _, err := SchemaFor("mysql"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

type recordingRegistrar struct {
	registered []fs.FS
}

func (r *recordingRegistrar) RegisterSQLMigrations(migrations ...fs.FS) *persistence.Migrations {
	r.registered = append(r.registered, migrations...)
	return nil
}

func TestRegister_AddsOnlyTheDriverSchema(t *testing.T) {
	registrar := &recordingRegistrar{}
	schema, err := Register(registrar, "sqlite3")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if schema.Dialect != DialectSQLite || len(registrar.registered) != 1 {
		t.Fatalf("expected one sqlite registration, got %s with %d", schema.Dialect, len(registrar.registered))
	}
	content, err := fs.ReadFile(registrar.registered[0], "00001_social_auth_schema.up.sql")
	if err != nil || !strings.Contains(string(content), "social_identity_links") {
		t.Fatalf("expected sqlite schema file, err=%v", err)
	}

	if _, err := Register(nil, "sqlite3"); err == nil {
		t.Fatalf("expected error for nil registrar")
	}
}

func TestSchemaMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := socialauth.GetMigrationsFS()
	names := []string{
		"00001_social_auth_schema",
		"00002_social_auth_outbox",
	}
	for _, name := range names {
		paths := []string{
			"data/sql/migrations/" + name + ".up.sql",
			"data/sql/migrations/" + name + ".down.sql",
			"data/sql/migrations/sqlite/" + name + ".up.sql",
			"data/sql/migrations/sqlite/" + name + ".down.sql",
		}
		for _, migrationPath := range paths {
			content, err := fs.ReadFile(root, migrationPath)
			if err != nil {
				t.Fatalf("read migration %s: %v", migrationPath, err)
			}
			if strings.TrimSpace(string(content)) == "" {
				t.Fatalf("expected migration %s to have SQL content", migrationPath)
			}
		}
	}
}

func TestSQLiteSchemaMigration_UniqueKeysAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-social-auth-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	sqliteMigrations, err := fs.Sub(socialauth.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_social_auth_schema.up.sql"); err != nil {
		t.Fatalf("apply schema migration: %v", err)
	}

	for _, id := range []string{"acct-a", "acct-b"} {
		if _, err := db.ExecContext(ctx, `INSERT INTO social_accounts (id, email, display_name) VALUES (?, ?, ?)`, id, id+"@example.com", id); err != nil {
			t.Fatalf("insert account %s: %v", id, err)
		}
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO social_accounts (id, email, display_name) VALUES (?, ?, ?)`, "acct-c", "ACCT-A@example.com", "dup"); err == nil {
		t.Fatalf("expected case-insensitive email uniqueness")
	}

	insertLink := `INSERT INTO social_identity_links (id, account_id, provider_slug, external_id) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertLink, "l1", "acct-a", "github", "gh-1"); err != nil {
		t.Fatalf("insert first link: %v", err)
	}

	_, err = db.ExecContext(ctx, insertLink, "l2", "acct-b", "github", "gh-1")
	if err == nil || !strings.Contains(err.Error(), "social_identity_links.external_id") {
		t.Fatalf("expected provider/external id uniqueness violation, got %v", err)
	}
	_, err = db.ExecContext(ctx, insertLink, "l3", "acct-a", "github", "gh-2")
	if err == nil || !strings.Contains(err.Error(), "social_identity_links.account_id") {
		t.Fatalf("expected account/provider uniqueness violation, got %v", err)
	}
	if _, err := db.ExecContext(ctx, insertLink, "l4", "missing", "google", "g-1"); err == nil {
		t.Fatalf("expected foreign key violation for unknown account")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_social_auth_schema.down.sql"); err != nil {
		t.Fatalf("rollback schema migration: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('social_accounts', 'social_identity_links')`,
	).Scan(&count); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected schema tables to be dropped, got %d", count)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
