package lock

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
)

// MySQL holds GET_LOCK on a dedicated connection, the lock belongs to
// the session and is gone once that connection is closed
type MySQL struct {
	db      *sql.DB
	lockFor int
}

func NewMySQL(db *sql.DB, lockFor int) *MySQL {
	if lockFor <= 0 {
		lockFor = DefaultLockSeconds
	}

	return &MySQL{db: db, lockFor: lockFor}
}

func (l *MySQL) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not obtain a connection for MySQL lock")
	}

	var acquired sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", key, l.lockFor).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "could not obtain [%s] exclusive MySQL DB lock for [%d] seconds", key, l.lockFor)
	}

	if !acquired.Valid || acquired.Int64 != 1 {
		_ = conn.Close()
		return nil, errors.Wrapf(ErrNotAcquired, "[%s] exclusive MySQL DB lock for [%d] seconds", key, l.lockFor)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", key)
			_ = conn.Close()
		})
	}, nil
}
