package migcheck

import (
	"database/sql"
	"time"

	"github.com/denismitr/migcheck/database"
	"github.com/denismitr/migcheck/internal/gateway"
	"github.com/denismitr/migcheck/lock"
	"github.com/jmoiron/sqlx"
)

type (
	CommonOptions struct {
		VersionsTable string
		Charset       string
	}

	MySQLOptions struct {
		CommonOptions
		LockFor int
	}

	PostgresOptions struct {
		CommonOptions
	}

	SqliteOptions struct {
		CommonOptions
	}

	MySQLOptionFunc    func(*MySQLOptions, *gateway.ConnectOptions)
	PostgresOptionFunc func(*PostgresOptions, *gateway.ConnectOptions)
	SqliteOptionFunc   func(*SqliteOptions, *gateway.ConnectOptions)
)

func UseMySQL(db *sql.DB, options ...MySQLOptionFunc) OptionFunc {
	return func(h *Harness) error {
		mysqlOpts := &MySQLOptions{
			LockFor: lock.DefaultLockSeconds,
			CommonOptions: CommonOptions{
				VersionsTable: gateway.DefaultVersionsTable,
				Charset:       gateway.DefaultMySQLCharset,
			},
		}

		connectOpts := gateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(mysqlOpts, connectOpts)
		}

		h.useDB(sqlx.NewDb(db, "mysql"), database.MySQL, mysqlOpts.CommonOptions, connectOpts)
		h.dbLocker = lock.NewMySQL(db, mysqlOpts.LockFor)

		return nil
	}
}

func UsePostgres(db *sql.DB, options ...PostgresOptionFunc) OptionFunc {
	return func(h *Harness) error {
		pgOpts := &PostgresOptions{
			CommonOptions: CommonOptions{
				VersionsTable: gateway.DefaultVersionsTable,
			},
		}

		connectOpts := gateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(pgOpts, connectOpts)
		}

		h.useDB(sqlx.NewDb(db, "pgx"), database.Postgres, pgOpts.CommonOptions, connectOpts)
		h.dbLocker = lock.NewPostgres(db)

		return nil
	}
}

func UseSqlite(db *sql.DB, options ...SqliteOptionFunc) OptionFunc {
	return func(h *Harness) error {
		sqliteOpts := &SqliteOptions{
			CommonOptions: CommonOptions{
				VersionsTable: gateway.DefaultVersionsTable,
			},
		}

		connectOpts := gateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(sqliteOpts, connectOpts)
		}

		h.useDB(sqlx.NewDb(db, "sqlite3"), database.SQLite, sqliteOpts.CommonOptions, connectOpts)
		h.dbLocker = lock.NewMutex()

		return nil
	}
}

// useDB remembers the pool, the gateway and the engine are built
// on top of it once all options are applied
func (h *Harness) useDB(db *sqlx.DB, d database.Dialect, opts CommonOptions, connectOpts *gateway.ConnectOptions) {
	h.db = db
	h.dialect = d
	h.dbOptions = opts
	h.connectOptions = connectOpts
}

func WithMySQLVersionsTable(table string) MySQLOptionFunc {
	return func(mysqlOpts *MySQLOptions, connectOpts *gateway.ConnectOptions) {
		mysqlOpts.VersionsTable = table
	}
}

func WithMySQLCharset(charset string) MySQLOptionFunc {
	return func(mysqlOpts *MySQLOptions, connectOpts *gateway.ConnectOptions) {
		mysqlOpts.Charset = charset
	}
}

func WithMySQLLockFor(lockFor int) MySQLOptionFunc {
	return func(mysqlOpts *MySQLOptions, connectOpts *gateway.ConnectOptions) {
		mysqlOpts.LockFor = lockFor
	}
}

func WithMySQLConnectionTimeout(timeout time.Duration) MySQLOptionFunc {
	return func(mysqlOpts *MySQLOptions, connectOpts *gateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithMySQLMaxConnectionAttempts(attempts int) MySQLOptionFunc {
	return func(mysqlOpts *MySQLOptions, connectOpts *gateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}

func WithPostgresVersionsTable(table string) PostgresOptionFunc {
	return func(pgOpts *PostgresOptions, connectOpts *gateway.ConnectOptions) {
		pgOpts.VersionsTable = table
	}
}

func WithPostgresConnectionTimeout(timeout time.Duration) PostgresOptionFunc {
	return func(pgOpts *PostgresOptions, connectOpts *gateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithPostgresMaxConnectionAttempts(attempts int) PostgresOptionFunc {
	return func(pgOpts *PostgresOptions, connectOpts *gateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}

func WithSqliteVersionsTable(table string) SqliteOptionFunc {
	return func(sqliteOpts *SqliteOptions, connectOpts *gateway.ConnectOptions) {
		sqliteOpts.VersionsTable = table
	}
}

func WithSqliteMaxConnectionAttempts(attempts int) SqliteOptionFunc {
	return func(sqliteOpts *SqliteOptions, connectOpts *gateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}

func WithSqliteConnectionTimeout(timeout time.Duration) SqliteOptionFunc {
	return func(sqliteOpts *SqliteOptions, connectOpts *gateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}
