package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/zinrai/fabric-portal/internal/config"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// SQLSTATE codes postgres reports for constraint failures.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// sqliteForeignKeys turns on foreign key enforcement for every connection
// the modernc driver opens.
const sqliteForeignKeys = "_pragma=foreign_keys(1)"

var sqlOpen = sql.Open

type DB struct {
	*sql.DB
	Dialect string
}

// NewDB wraps an open postgres handle.
func NewDB(db *sql.DB) *DB {
	return &DB{DB: db, Dialect: DialectPostgres}
}

// NewSQLiteDB wraps an open sqlite handle.
func NewSQLiteDB(db *sql.DB) *DB {
	return &DB{DB: db, Dialect: DialectSQLite}
}

// Open connects using the configured driver and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	dialect := DialectPostgres
	if cfg.Driver == "sqlite" {
		dialect = DialectSQLite
	}

	dsn := cfg.DSN
	if dialect == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sqlOpen(cfg.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", cfg.Driver)
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if dialect == DialectSQLite {
		// a single writer avoids SQLITE_BUSY across pooled connections
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to ping %s database", cfg.Driver)
	}
	return &DB{DB: conn, Dialect: dialect}, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqliteForeignKeys
	}
	return dsn + "?" + sqliteForeignKeys
}

// Rebind rewrites $n placeholders into the form the dialect expects.
func (d *DB) Rebind(query string) string {
	if d.Dialect != DialectSQLite {
		return query
	}
	return strings.ReplaceAll(query, "$", "?")
}

// IsUniqueViolation reports whether err is a unique constraint failure from
// any of the supported drivers.
func IsUniqueViolation(err error) bool {
	return isConstraint(err, uniqueViolation, "UNIQUE constraint failed",
		sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

// IsForeignKeyViolation reports whether err is a foreign key constraint
// failure, such as deleting a user that still holds vlan reservations.
func IsForeignKeyViolation(err error) bool {
	return isConstraint(err, foreignKeyViolation, "FOREIGN KEY constraint failed",
		sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY)
}

func isConstraint(err error, sqlState, sqliteMessage string, sqliteCodes ...int) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == sqlState
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlState
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		for _, c := range sqliteCodes {
			if code == c {
				return true
			}
		}
		if code == sqlite3.SQLITE_CONSTRAINT {
			// primary result code when extended codes are off
			return strings.Contains(liteErr.Error(), sqliteMessage)
		}
	}
	return false
}
