package lock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"

	"github.com/pkg/errors"
)

// Postgres uses session level advisory locks held on a dedicated connection
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (l *Postgres) Acquire(ctx context.Context, key string) (func(), error) {
	id := advisoryKey(key)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not obtain a connection for Postgres lock")
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", id); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "could not obtain [%s] advisory Postgres lock", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", id)
			_ = conn.Close()
		})
	}, nil
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
