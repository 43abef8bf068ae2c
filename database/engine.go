package database

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// QueryLogger receives every statement the engine runs
type QueryLogger interface {
	SQL(query string, args ...interface{})
}

// Engine is the database handle shared by all checks of one run.
// Statements are not wrapped in a transaction, every one of them commits on its own.
type Engine struct {
	db      *sqlx.DB
	dialect Dialect
	lg      QueryLogger
}

type EngineOption func(*Engine)

func WithQueryLogger(lg QueryLogger) EngineOption {
	return func(e *Engine) {
		e.lg = lg
	}
}

func NewEngine(db *sqlx.DB, dialect Dialect, opts ...EngineOption) *Engine {
	e := &Engine{db: db, dialect: dialect}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) DB() *sqlx.DB {
	return e.db
}

func (e *Engine) Dialect() Dialect {
	return e.dialect
}

// Builder returns a squirrel statement builder with the dialect placeholders
func (e *Engine) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(e.dialect.Placeholder())
}

// Insert writes rows one statement per row in the given order,
// so parents must come before children referencing them
func (e *Engine) Insert(ctx context.Context, table string, rows ...Row) error {
	if err := validateIdentifier(table); err != nil {
		return err
	}

	for i := range rows {
		if len(rows[i]) == 0 {
			return errors.Wrapf(ErrEmptyRow, "insert into [%s]", table)
		}

		q := e.Builder().Insert(table).Columns(rows[i].Keys()...).Values(rows[i].Values()...)
		if _, err := e.Exec(ctx, q); err != nil {
			return errors.Wrapf(err, "could not insert row %d into [%s]", i, table)
		}
	}

	return nil
}

// Select fetches all rows of the table matching where,
// which may be nil, a squirrel.Eq or any squirrel.Sqlizer
func (e *Engine) Select(ctx context.Context, table string, where interface{}) ([]Row, error) {
	if err := validateIdentifier(table); err != nil {
		return nil, err
	}

	q := e.Builder().Select("*").From(table)
	if where != nil {
		q = q.Where(where)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrapf(err, "could not build select from [%s]", table)
	}

	e.logSQL(query, args...)

	rows, err := e.db.QueryxContext(ctx, query, args...)
	if err != nil {
		if IsMissingTable(err) {
			return nil, errors.Wrapf(ErrNoSuchTable, "[%s]: %s", table, err.Error())
		}
		return nil, errors.Wrapf(err, "could not select from [%s]", table)
	}

	defer rows.Close()

	var result []Row
	for rows.Next() {
		r := make(Row)
		if err := rows.MapScan(r); err != nil {
			return nil, errors.Wrapf(err, "could not scan row of [%s]", table)
		}
		result = append(result, normalize(r))
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "rows iteration of [%s] failed", table)
	}

	return result, nil
}

func (e *Engine) Count(ctx context.Context, table string, where interface{}) (int, error) {
	if err := validateIdentifier(table); err != nil {
		return 0, err
	}

	q := e.Builder().Select("COUNT(*)").From(table)
	if where != nil {
		q = q.Where(where)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return 0, errors.Wrapf(err, "could not build count of [%s]", table)
	}

	e.logSQL(query, args...)

	var n int
	if err := e.db.QueryRowxContext(ctx, query, args...).Scan(&n); err != nil {
		if IsMissingTable(err) {
			return 0, errors.Wrapf(ErrNoSuchTable, "[%s]: %s", table, err.Error())
		}
		return 0, errors.Wrapf(err, "could not count rows of [%s]", table)
	}

	return n, nil
}

// Exec runs a statement built with Builder
func (e *Engine) Exec(ctx context.Context, s squirrel.Sqlizer) (sql.Result, error) {
	query, args, err := s.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "could not build statement")
	}

	e.logSQL(query, args...)

	return e.db.ExecContext(ctx, query, args...)
}

// ExecRaw runs a hand written statement, ? placeholders are
// rewritten for the dialect
func (e *Engine) ExecRaw(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	q, err := e.dialect.Placeholder().ReplacePlaceholders(query)
	if err != nil {
		return nil, errors.Wrapf(err, "could not prepare [%s]", query)
	}

	e.logSQL(q, args...)

	return e.db.ExecContext(ctx, q, args...)
}

func (e *Engine) logSQL(query string, args ...interface{}) {
	if e.lg != nil {
		e.lg.SQL(query, args...)
	}
}
