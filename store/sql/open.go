package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// OpenSQL opens a database/sql handle for driverName. When sqlLogger is set
// every statement is logged through sqldb-logger. Drivers other than postgres
// must be registered by the caller.
func OpenSQL(driverName string, dsn string, sqlLogger sqldblogger.Logger) (*sql.DB, error) {
	driverName = strings.TrimSpace(driverName)
	if driverName == "" {
		return nil, fmt.Errorf("sqlstore: driver name is required")
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	if sqlLogger == nil {
		return sql.Open(driverName, dsn)
	}
	if driverName == DriverPostgres {
		return sqldblogger.OpenDriver(dsn, &pq.Driver{}, sqlLogger), nil
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	drv := db.Driver()
	if err := db.Close(); err != nil {
		return nil, err
	}
	return sqldblogger.OpenDriver(dsn, drv, sqlLogger), nil
}

// Dialect returns the bun dialect matching driverName.
func Dialect(driverName string) (schema.Dialect, error) {
	switch strings.TrimSpace(driverName) {
	case DriverPostgres, "pgx":
		return pgdialect.New(), nil
	case DriverSQLite, "sqlite":
		return sqlitedialect.New(), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driverName)
	}
}

// Open returns a bun DB over OpenSQL.
func Open(driverName string, dsn string, sqlLogger sqldblogger.Logger) (*bun.DB, error) {
	dialect, err := Dialect(driverName)
	if err != nil {
		return nil, err
	}
	sqlDB, err := OpenSQL(driverName, dsn, sqlLogger)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqlDB, dialect), nil
}
