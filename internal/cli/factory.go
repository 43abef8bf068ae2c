package cli

import (
	"database/sql"
	"log"
	"os"

	"github.com/denismitr/migcheck"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/xo/dburl"
)

var ErrUnsupportedDriver = errors.New("database driver is not supported")

type (
	dbOptionFactory    func(db *sql.DB) migcheck.OptionFunc
	dbOptionFactoryMap map[string]dbOptionFactory
)

var factories = dbOptionFactoryMap{
	"mysql": func(db *sql.DB) migcheck.OptionFunc {
		return migcheck.UseMySQL(db)
	},
	"postgres": func(db *sql.DB) migcheck.OptionFunc {
		return migcheck.UsePostgres(db)
	},
	"sqlite3": func(db *sql.DB) migcheck.OptionFunc {
		return migcheck.UseSqlite(db)
	},
}

// sqlDrivers maps dburl driver names to registered database/sql drivers
var sqlDrivers = map[string]string{
	"mysql":    "mysql",
	"postgres": "pgx",
	"sqlite3":  "sqlite3",
}

// parseDatabaseURL turns a database url into the driver name and the DSN
// the driver understands
func parseDatabaseURL(databaseURL string) (driver string, dsn string, err error) {
	u, err := dburl.Parse(databaseURL)
	if err != nil {
		return "", "", errors.Wrapf(err, "could not parse database url")
	}

	if _, ok := factories[u.Driver]; !ok {
		return "", "", errors.Wrapf(ErrUnsupportedDriver, "[%s]", u.Driver)
	}

	dsn = u.DSN
	if u.Driver == "mysql" {
		// versions table timestamps and multi statement migration files
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", "", errors.Wrap(err, "could not parse mysql dsn")
		}

		mc.ParseTime = true
		mc.MultiStatements = true
		dsn = mc.FormatDSN()
	}

	return u.Driver, dsn, nil
}

func createHarness(cfg Config) (*migcheck.Harness, migcheck.CloserFunc, error) {
	driver, dsn, err := parseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(sqlDrivers[driver], dsn)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not open [%s] database", driver)
	}

	opts := []migcheck.OptionFunc{
		migcheck.UseColorLogger(log.New(os.Stdout, "", 0), cfg.Verbose, cfg.Verbose),
		factories[driver](db),
		migcheck.UseLocalFolderSource(cfg.MigrationsFolder),
		migcheck.WithLockKey(cfg.LockKey),
		migcheck.WithCloser(db.Close),
	}

	if cfg.NoLock {
		opts = append(opts, migcheck.NoLock())
	}

	h, closer, err := migcheck.New(opts...)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, nil, errors.Wrap(err, closeErr.Error())
		}
		return nil, nil, err
	}

	return h, closer, nil
}
