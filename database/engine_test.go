package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryLoggerMock struct {
	queries []string
}

func (l *queryLoggerMock) SQL(query string, _ ...interface{}) {
	l.queries = append(l.queries, query)
}

func sqliteEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE services (
		id INTEGER PRIMARY KEY,
		host VARCHAR(255) NOT NULL,
		availability_zone VARCHAR(255)
	)`)
	require.NoError(t, err)

	return NewEngine(db, SQLite, opts...)
}

func TestEngine_Sqlite(t *testing.T) {
	ctx := context.Background()

	t.Run("it can load a table and describe its columns", func(t *testing.T) {
		eng := sqliteEngine(t)

		table, err := eng.LoadTable(ctx, "services")
		require.NoError(t, err)
		assert.Equal(t, "services", table.Name)
		assert.Equal(t, []string{"id", "host", "availability_zone"}, table.ColumnNames())
		assert.True(t, table.Has("availability_zone"))
		assert.True(t, table.Has("HOST"))
		assert.False(t, table.Has("availability_zone_id"))

		host, ok := table.Column("host")
		require.True(t, ok)
		assert.Equal(t, "varchar(255)", host.Type)
		assert.Equal(t, 255, host.Length)
		assert.False(t, host.Nullable)

		az, ok := table.Column("availability_zone")
		require.True(t, ok)
		assert.True(t, az.Nullable)
	})

	t.Run("loading a missing table fails with no such table", func(t *testing.T) {
		eng := sqliteEngine(t)

		table, err := eng.LoadTable(ctx, "availability_zones")
		assert.Nil(t, table)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoSuchTable))
		assert.True(t, IsMissingTable(err))
	})

	t.Run("invalid table names are rejected before reaching the database", func(t *testing.T) {
		eng := sqliteEngine(t)

		_, err := eng.LoadTable(ctx, `services"); DROP TABLE services; --`)
		assert.True(t, errors.Is(err, ErrInvalidIdentifier))

		_, err = eng.Select(ctx, "1services", nil)
		assert.True(t, errors.Is(err, ErrInvalidIdentifier))
	})

	t.Run("inserted rows can be selected back in insertion order", func(t *testing.T) {
		lg := &queryLoggerMock{}
		eng := sqliteEngine(t, WithQueryLogger(lg))

		err := eng.Insert(ctx, "services",
			Row{"id": 1, "host": "fake1", "availability_zone": "az1"},
			Row{"id": 2, "host": "fake2", "availability_zone": "az1"},
			Row{"id": 3, "host": "fake3", "availability_zone": "az2"},
		)
		require.NoError(t, err)
		require.Len(t, lg.queries, 3)
		assert.Equal(t, "INSERT INTO services (availability_zone,host,id) VALUES (?,?,?)", lg.queries[0])

		rows, err := eng.Select(ctx, "services", nil)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "fake1", rows[0].String("host"))
		assert.Equal(t, "az2", rows[2].String("availability_zone"))

		id, ok := rows[1].Int64("id")
		require.True(t, ok)
		assert.Equal(t, int64(2), id)

		filtered, err := eng.Select(ctx, "services", squirrel.Eq{"availability_zone": "az1"})
		require.NoError(t, err)
		assert.Len(t, filtered, 2)

		n, err := eng.Count(ctx, "services", squirrel.Eq{"availability_zone": "az2"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("null values are reported as null", func(t *testing.T) {
		eng := sqliteEngine(t)

		require.NoError(t, eng.Insert(ctx, "services", Row{"id": 1, "host": "fake1", "availability_zone": nil}))

		rows, err := eng.Select(ctx, "services", squirrel.Eq{"id": 1})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].IsNull("availability_zone"))
		assert.False(t, rows[0].IsNull("host"))
		assert.Equal(t, "", rows[0].String("availability_zone"))
	})

	t.Run("an empty row cannot be inserted", func(t *testing.T) {
		eng := sqliteEngine(t)

		err := eng.Insert(ctx, "services", Row{})
		assert.True(t, errors.Is(err, ErrEmptyRow))
	})

	t.Run("a failing insert stops and keeps rows inserted before it", func(t *testing.T) {
		eng := sqliteEngine(t)

		err := eng.Insert(ctx, "services",
			Row{"id": 1, "host": "fake1"},
			Row{"id": 1, "host": "duplicate"},
			Row{"id": 3, "host": "fake3"},
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "could not insert row 1 into [services]")

		n, err := eng.Count(ctx, "services", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("selecting from a missing table fails with no such table", func(t *testing.T) {
		eng := sqliteEngine(t)

		_, err := eng.Select(ctx, "availability_zones", nil)
		assert.True(t, errors.Is(err, ErrNoSuchTable))

		_, err = eng.Count(ctx, "availability_zones", nil)
		assert.True(t, errors.Is(err, ErrNoSuchTable))
	})

	t.Run("raw and built statements are executed", func(t *testing.T) {
		eng := sqliteEngine(t)

		_, err := eng.ExecRaw(ctx, "INSERT INTO services (id, host) VALUES (?, ?)", 10, "fake10")
		require.NoError(t, err)

		res, err := eng.Exec(ctx, eng.Builder().Update("services").Set("availability_zone", "az3").Where(squirrel.Eq{"id": 10}))
		require.NoError(t, err)
		affected, err := res.RowsAffected()
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)

		rows, err := eng.Select(ctx, "services", squirrel.Eq{"host": "fake10"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "az3", rows[0].String("availability_zone"))
	})
}

func TestEngine_MySQL(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	eng := NewEngine(sqlx.NewDb(db, "mysql"), MySQL)

	t.Run("columns are read from information schema", func(t *testing.T) {
		mock.ExpectQuery("FROM information_schema.columns").
			WithArgs("availability_zones").
			WillReturnRows(sqlmock.NewRows([]string{"name", "type", "length", "nullable"}).
				AddRow("id", "varchar(36)", 36, "NO").
				AddRow("name", "varchar(255)", 255, "YES").
				AddRow("deleted", "tinyint(1)", nil, "YES"))

		table, err := eng.LoadTable(ctx, "availability_zones")
		require.NoError(t, err)
		require.Len(t, table.Columns, 3)
		assert.Equal(t, Column{Name: "id", Type: "varchar(36)", Length: 36, Nullable: false}, table.Columns[0])
		assert.Equal(t, 1, table.Columns[2].Length)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty information schema means the table does not exist", func(t *testing.T) {
		mock.ExpectQuery("FROM information_schema.columns").
			WithArgs("availability_zones").
			WillReturnRows(sqlmock.NewRows([]string{"name", "type", "length", "nullable"}))

		_, err := eng.LoadTable(ctx, "availability_zones")
		assert.True(t, errors.Is(err, ErrNoSuchTable))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mysql error 1146 is reported as no such table", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM availability_zones")).
			WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'cinder.availability_zones' doesn't exist"})

		_, err := eng.Select(ctx, "availability_zones", nil)
		assert.True(t, errors.Is(err, ErrNoSuchTable))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEngine_Postgres(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	eng := NewEngine(sqlx.NewDb(db, "pgx"), Postgres)

	t.Run("select uses dollar placeholders", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM services WHERE host = $1")).
			WithArgs("fake1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "host"}).AddRow(1, []byte("fake1")))

		rows, err := eng.Select(ctx, "services", squirrel.Eq{"host": "fake1"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "fake1", rows[0]["host"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("raw statements are rebound to dollar placeholders", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE services SET availability_zone = $1 WHERE id = $2")).
			WithArgs("az1", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		_, err := eng.ExecRaw(ctx, "UPDATE services SET availability_zone = ? WHERE id = ?", "az1", 1)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("undefined table sqlstate is reported as no such table", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM availability_zones")).
			WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "availability_zones" does not exist`})

		_, err := eng.Count(ctx, "availability_zones", nil)
		assert.True(t, errors.Is(err, ErrNoSuchTable))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsMissingTable(t *testing.T) {
	tt := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "wrapped sentinel", err: pkgerrors.Wrap(ErrNoSuchTable, "[services]"), want: true},
		{name: "mysql 1146", err: &mysql.MySQLError{Number: 1146}, want: true},
		{name: "other mysql error", err: &mysql.MySQLError{Number: 1062}, want: false},
		{name: "postgres undefined table", err: pkgerrors.Wrap(&pgconn.PgError{Code: "42P01"}, "select"), want: true},
		{name: "other postgres error", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "sqlite message", err: errors.New("no such table: availability_zones"), want: true},
		{name: "unrelated error", err: errors.New("connection refused"), want: false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsMissingTable(tc.err))
		})
	}
}

func TestParseDialect(t *testing.T) {
	tt := []struct {
		driver string
		want   Dialect
	}{
		{driver: "sqlite3", want: SQLite},
		{driver: "mysql", want: MySQL},
		{driver: "pgx", want: Postgres},
		{driver: "PostgreSQL", want: Postgres},
	}

	for _, tc := range tt {
		t.Run(tc.driver, func(t *testing.T) {
			d, err := ParseDialect(tc.driver)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d)
		})
	}

	_, err := ParseDialect("oracle")
	assert.True(t, errors.Is(err, ErrUnsupportedDialect))
}
