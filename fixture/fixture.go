// Package fixture has small helpers for writing migration checks:
// identifiers, row builders and schema assertions.
package fixture

import (
	"context"
	"strings"

	"github.com/denismitr/migcheck/database"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func NewID() string {
	return uuid.New().String()
}

// IsUUIDLike accepts canonical, braced, urn and bare hex uuids
func IsUUIDLike(s string) bool {
	if s == "" {
		return false
	}

	_, err := uuid.Parse(s)
	return err == nil
}

// Rows zips columns with every values tuple, a tuple shorter or
// longer than columns is a programming error and panics
func Rows(columns []string, values ...[]interface{}) []database.Row {
	rows := make([]database.Row, 0, len(values))
	for i := range values {
		if len(values[i]) != len(columns) {
			panic(errors.Errorf("fixture row %d has %d values for %d columns", i, len(values[i]), len(columns)))
		}

		r := make(database.Row, len(columns))
		for j, c := range columns {
			r[c] = values[i][j]
		}
		rows = append(rows, r)
	}
	return rows
}

func HasColumns(t assert.TestingT, table *database.Table, columns ...string) bool {
	ok := true
	for _, c := range columns {
		if !table.Has(c) {
			ok = assert.Fail(t, "column is missing", "table [%s] has no column [%s], got %v", table.Name, c, table.ColumnNames())
		}
	}
	return ok
}

func HasNoColumns(t assert.TestingT, table *database.Table, columns ...string) bool {
	ok := true
	for _, c := range columns {
		if table.Has(c) {
			ok = assert.Fail(t, "column is present", "table [%s] still has column [%s]", table.Name, c)
		}
	}
	return ok
}

// ColumnTypeIs compares the declared type prefix, so "varchar" matches varchar(36)
func ColumnTypeIs(t assert.TestingT, table *database.Table, column, typ string) bool {
	c, ok := table.Column(column)
	if !ok {
		return assert.Fail(t, "column is missing", "table [%s] has no column [%s]", table.Name, column)
	}

	if !strings.HasPrefix(c.Type, strings.ToLower(typ)) {
		return assert.Fail(t, "unexpected column type", "[%s.%s] is [%s], expected [%s]", table.Name, column, c.Type, typ)
	}

	return true
}

func TableExists(ctx context.Context, t assert.TestingT, eng *database.Engine, name string) (*database.Table, bool) {
	table, err := eng.LoadTable(ctx, name)
	if err != nil {
		return nil, assert.NoError(t, err, "table [%s] should exist", name)
	}

	return table, true
}

func TableMissing(ctx context.Context, t assert.TestingT, eng *database.Engine, name string) bool {
	_, err := eng.LoadTable(ctx, name)
	if err == nil {
		return assert.Fail(t, "table exists", "table [%s] should not exist", name)
	}

	return assert.True(t, errors.Is(err, database.ErrNoSuchTable), "loading [%s]: %v", name, err)
}
