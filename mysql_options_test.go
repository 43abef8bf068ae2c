package migcheck

import (
	"database/sql"
	"testing"
	"time"

	"github.com/denismitr/migcheck/database"
	"github.com/denismitr/migcheck/internal/gateway"
	"github.com/denismitr/migcheck/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUseMySQL(t *testing.T) {
	t.Run("default mysql options", func(t *testing.T) {
		h := Harness{}
		checkerRuns := 0
		checker := func(mysqlOpts *MySQLOptions, cOpts *gateway.ConnectOptions) {
			assert.Equal(t, "migcheck_versions", mysqlOpts.VersionsTable)
			assert.Equal(t, "utf8mb4", mysqlOpts.Charset)
			assert.Equal(t, 3, mysqlOpts.LockFor)
			assert.Equal(t, gateway.DefaultConnectionAttempts, cOpts.MaxAttempts)
			checkerRuns++
		}

		err := UseMySQL(&sql.DB{}, checker)(&h)
		require.NoError(t, err)
		require.Equal(t, 1, checkerRuns)
		assert.Equal(t, database.MySQL, h.dialect)
		assert.IsType(t, &lock.MySQL{}, h.dbLocker)
	})

	t.Run("custom mysql options", func(t *testing.T) {
		h := Harness{}
		checkerRuns := 0
		checker := func(mysqlOpts *MySQLOptions, cOpts *gateway.ConnectOptions) {
			assert.Equal(t, "versions", mysqlOpts.VersionsTable)
			assert.Equal(t, "utf8", mysqlOpts.Charset)
			assert.Equal(t, 5, mysqlOpts.LockFor)
			assert.Equal(t, 10, cOpts.MaxAttempts)
			assert.Equal(t, 5*time.Second, cOpts.MaxTimeout)
			checkerRuns++
		}

		err := UseMySQL(
			&sql.DB{},
			WithMySQLVersionsTable("versions"),
			WithMySQLCharset("utf8"),
			WithMySQLLockFor(5),
			WithMySQLMaxConnectionAttempts(10),
			WithMySQLConnectionTimeout(5*time.Second),
			checker,
		)(&h)
		require.NoError(t, err)
		require.Equal(t, 1, checkerRuns)
		assert.Equal(t, "versions", h.dbOptions.VersionsTable)
	})
}

func TestUsePostgres(t *testing.T) {
	h := Harness{}
	err := UsePostgres(&sql.DB{}, WithPostgresVersionsTable("checks"), WithPostgresMaxConnectionAttempts(2))(&h)
	require.NoError(t, err)

	assert.Equal(t, database.Postgres, h.dialect)
	assert.Equal(t, "checks", h.dbOptions.VersionsTable)
	assert.Equal(t, 2, h.connectOptions.MaxAttempts)
	assert.IsType(t, &lock.Postgres{}, h.dbLocker)
}

func TestHarnessLocker(t *testing.T) {
	custom := lock.NewMutex()

	tt := []struct {
		name string
		h    Harness
		want lock.Locker
	}{
		{name: "no lock wins over everything", h: Harness{noLock: true, locker: custom, dbLocker: lock.NewMutex()}, want: lock.Null{}},
		{name: "custom locker wins over database locker", h: Harness{locker: custom, dbLocker: lock.NewMutex()}, want: custom},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.h.resolveLocker())
		})
	}

	h := Harness{}
	assert.IsType(t, &lock.Mutex{}, h.resolveLocker())
}

func TestNew_RequiresDatabase(t *testing.T) {
	h, closer, err := New(UseInMemorySource())
	assert.Nil(t, h)
	assert.Nil(t, closer)
	assert.Equal(t, ErrGatewayNotInitialized, err)
}
