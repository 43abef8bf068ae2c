package gateway

import (
	"context"
	"time"

	"github.com/denismitr/migcheck/internal/retry"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	DefaultConnectionAttempts    = 30
	DefaultConnectionTimeout     = 60 * time.Second
	DefaultConnectionAttemptStep = 2 * time.Second
)

type ConnectOptions struct {
	MaxAttempts int
	MaxTimeout  time.Duration
	RetryStep   time.Duration
}

func NewDefaultConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		MaxAttempts: DefaultConnectionAttempts,
		MaxTimeout:  DefaultConnectionTimeout,
		RetryStep:   DefaultConnectionAttemptStep,
	}
}

type Connector interface {
	Connect(ctx context.Context) (*sqlx.DB, error)
	Timeout() time.Duration
	Close() error
}

// RetryingConnector opens the pool and waits until the database
// answers, useful when the database container is still starting
type RetryingConnector struct {
	options *ConnectOptions
	driver  string
	dsn     string
	db      *sqlx.DB
}

var _ Connector = (*RetryingConnector)(nil)

func MakeRetryingConnector(driver, dsn string, options *ConnectOptions) *RetryingConnector {
	if options == nil {
		options = NewDefaultConnectOptions()
	}

	return &RetryingConnector{driver: driver, dsn: dsn, options: options}
}

func (c *RetryingConnector) Timeout() time.Duration {
	return c.options.MaxTimeout
}

func (c *RetryingConnector) Connect(ctx context.Context) (*sqlx.DB, error) {
	if c.db != nil {
		return c.db, nil
	}

	db, err := sqlx.Open(c.driver, c.dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open [%s] database", c.driver)
	}

	if err := WaitFor(ctx, db, c.options); err != nil {
		_ = db.Close()
		return nil, err
	}

	c.db = db

	return db, nil
}

func (c *RetryingConnector) Close() error {
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return errors.Wrap(err, "retrying connector could not close the database")
		}
	}

	return nil
}

// WaitFor pings the database until it answers or the attempts run out
func WaitFor(ctx context.Context, db *sqlx.DB, options *ConnectOptions) error {
	if options == nil {
		options = NewDefaultConnectOptions()
	}

	ctx, cancel := context.WithTimeout(ctx, options.MaxTimeout)
	defer cancel()

	return retry.Incremental(ctx, options.RetryStep, options.MaxAttempts, func(attempt int) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.Error(errors.Wrap(err, "could not establish DB connection"), attempt)
		}

		var result int
		if err := db.QueryRowxContext(ctx, "SELECT 1").Scan(&result); err != nil {
			return errors.Wrap(err, "db ping failed")
		}

		return nil
	})
}
