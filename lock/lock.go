package lock

import (
	"context"
	"database/sql"

	"github.com/denismitr/migcheck/database"
	"github.com/pkg/errors"
)

const DefaultLockSeconds = 3

var ErrNotAcquired = errors.New("lock was not acquired")

// Locker provides mutual exclusion by key. The returned release func
// must be called exactly once the guarded work is done, calling it
// again is a no-op.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Do runs fn while holding the lock under key
func Do(ctx context.Context, l Locker, key string, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}

	defer release()

	return fn(ctx)
}

// ForDialect picks the lock implementation fit for the database,
// sqlite has no advisory locks so the in-process mutex is used
func ForDialect(db *sql.DB, dialect database.Dialect, lockFor int) Locker {
	switch dialect {
	case database.MySQL:
		return NewMySQL(db, lockFor)
	case database.Postgres:
		return NewPostgres(db)
	default:
		return NewMutex()
	}
}

type Null struct{}

func (Null) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
