package migrations

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	socialauth "github.com/goliatone/go-social-auth"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	schemaRoot = "data/sql/migrations"
)

// Schema is the social auth migration set for one SQL dialect.
type Schema struct {
	Dialect string
	Path    string
	FS      fs.FS
	// Versions lists the migration names, without the .up.sql/.down.sql suffix.
	Versions []string
}

// Registrar is satisfied by *persistence.Client.
type Registrar interface {
	RegisterSQLMigrations(migrations ...fs.FS) *persistence.Migrations
}

// Schemas returns the embedded schema for every supported dialect. Each
// migration must ship both an up and a down file.
func Schemas() ([]Schema, error) {
	root := socialauth.GetMigrationsFS()
	out := make([]Schema, 0, 2)
	for _, entry := range []struct{ dialect, path string }{
		{DialectPostgres, schemaRoot},
		{DialectSQLite, schemaRoot + "/sqlite"},
	} {
		sub, err := fs.Sub(root, entry.path)
		if err != nil {
			return nil, fmt.Errorf("migrations: resolve %s schema: %w", entry.dialect, err)
		}
		versions, err := schemaVersions(sub)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s schema %q: %w", entry.dialect, entry.path, err)
		}
		out = append(out, Schema{
			Dialect:  entry.dialect,
			Path:     entry.path,
			FS:       sub,
			Versions: versions,
		})
	}
	return out, nil
}

// SchemaFor returns the schema matching a dialect or database/sql driver name.
func SchemaFor(driver string) (Schema, error) {
	dialect, err := dialectForDriver(driver)
	if err != nil {
		return Schema{}, err
	}
	schemas, err := Schemas()
	if err != nil {
		return Schema{}, err
	}
	for _, schema := range schemas {
		if schema.Dialect == dialect {
			return schema, nil
		}
	}
	return Schema{}, fmt.Errorf("migrations: no schema for dialect %q", dialect)
}

// Register adds the schema for driver to registrar, typically a
// go-persistence-bun client before Migrate.
func Register(registrar Registrar, driver string) (Schema, error) {
	if registrar == nil {
		return Schema{}, fmt.Errorf("migrations: registrar is required")
	}
	schema, err := SchemaFor(driver)
	if err != nil {
		return Schema{}, err
	}
	registrar.RegisterSQLMigrations(schema.FS)
	return schema, nil
}

func dialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DialectPostgres, "postgresql", "pgx", "pg":
		return DialectPostgres, nil
	case DialectSQLite, "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

func schemaVersions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(fsys, version+".down.sql"); err != nil {
			return nil, fmt.Errorf("missing %s.down.sql", version)
		}
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions, nil
}
