package lock

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/denismitr/migcheck/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutex(t *testing.T) {
	t.Run("same key cannot be held twice", func(t *testing.T) {
		m := NewMutex()

		release, err := m.Acquire(context.Background(), "service-provisioning")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err = m.Acquire(ctx, "service-provisioning")
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))

		release()
		release()

		again, err := m.Acquire(context.Background(), "service-provisioning")
		require.NoError(t, err)
		again()
	})

	t.Run("different keys do not block each other", func(t *testing.T) {
		m := NewMutex()

		a, err := m.Acquire(context.Background(), "a")
		require.NoError(t, err)
		defer a()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		b, err := m.Acquire(ctx, "b")
		require.NoError(t, err)
		b()
	})

	t.Run("waiter gets the lock after release", func(t *testing.T) {
		m := NewMutex()

		release, err := m.Acquire(context.Background(), "k")
		require.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			r, err := m.Acquire(context.Background(), "k")
			if err == nil {
				r()
			}
			close(acquired)
		}()

		release()

		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("waiter did not get the lock")
		}
	})
}

func TestDo(t *testing.T) {
	t.Run("fn runs under the lock and its error is returned", func(t *testing.T) {
		m := NewMutex()
		boom := errors.New("boom")

		err := Do(context.Background(), m, "k", func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()

			_, err := m.Acquire(ctx, "k")
			assert.Error(t, err)

			return boom
		})
		assert.Equal(t, boom, err)

		release, err := m.Acquire(context.Background(), "k")
		require.NoError(t, err)
		release()
	})

	t.Run("fn is not called when the lock cannot be acquired", func(t *testing.T) {
		m := NewMutex()
		release, err := m.Acquire(context.Background(), "k")
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err = Do(ctx, m, "k", func(context.Context) error {
			called = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, called)
	})
}

func TestMySQL(t *testing.T) {
	t.Run("lock is taken and released on the same session", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).
			WithArgs("migcheck_migrations", 5).
			WillReturnRows(sqlmock.NewRows([]string{"acquired"}).AddRow(1))
		mock.ExpectExec(regexp.QuoteMeta("SELECT RELEASE_LOCK(?)")).
			WithArgs("migcheck_migrations").
			WillReturnResult(sqlmock.NewResult(0, 0))

		release, err := NewMySQL(db, 5).Acquire(context.Background(), "migcheck_migrations")
		require.NoError(t, err)
		release()
		release()

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("timed out GET_LOCK is reported as not acquired", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).
			WithArgs("migcheck_migrations", DefaultLockSeconds).
			WillReturnRows(sqlmock.NewRows([]string{"acquired"}).AddRow(0))

		release, err := NewMySQL(db, 0).Acquire(context.Background(), "migcheck_migrations")
		assert.Nil(t, release)
		assert.True(t, errors.Is(err, ErrNotAcquired))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := advisoryKey("migcheck_migrations")
	assert.True(t, id >= 0)
	assert.Equal(t, id, advisoryKey("migcheck_migrations"))

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = Do(context.Background(), NewPostgres(db), "migcheck_migrations", func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.IsType(t, &MySQL{}, ForDialect(db, database.MySQL, 3))
	assert.IsType(t, &Postgres{}, ForDialect(db, database.Postgres, 3))
	assert.IsType(t, &Mutex{}, ForDialect(db, database.SQLite, 3))
}
