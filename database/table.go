package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

type Column struct {
	Name     string
	Type     string
	Length   int
	Nullable bool
}

// Table is the introspected shape of one table
type Table struct {
	Name    string
	Columns []Column
}

func (t *Table) Has(column string) bool {
	_, ok := t.Column(column)
	return ok
}

func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}

	return Column{}, false
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i := range t.Columns {
		names[i] = t.Columns[i].Name
	}
	return names
}

type sqliteColumn struct {
	CID     int            `db:"cid"`
	Name    string         `db:"name"`
	Type    string         `db:"type"`
	NotNull int            `db:"notnull"`
	Default sql.NullString `db:"dflt_value"`
	PK      int            `db:"pk"`
}

type schemaColumn struct {
	Name     string        `db:"name"`
	Type     string        `db:"type"`
	Length   sql.NullInt64 `db:"length"`
	Nullable string        `db:"nullable"`
}

// LoadTable introspects the table by name, ErrNoSuchTable is returned
// when the table does not exist
func (e *Engine) LoadTable(ctx context.Context, name string) (*Table, error) {
	if err := validateIdentifier(name); err != nil {
		return nil, err
	}

	query, args := e.dialect.columnsQuery(name)
	e.logSQL(query, args...)

	t := &Table{Name: name}

	if e.dialect == SQLite {
		var cols []sqliteColumn
		if err := e.db.SelectContext(ctx, &cols, query, args...); err != nil {
			return nil, errors.Wrapf(err, "could not introspect table [%s]", name)
		}

		for _, c := range cols {
			t.Columns = append(t.Columns, Column{
				Name:     c.Name,
				Type:     strings.ToLower(c.Type),
				Length:   parseLength(c.Type),
				Nullable: c.NotNull == 0 && c.PK == 0,
			})
		}
	} else {
		var cols []schemaColumn
		if err := e.db.SelectContext(ctx, &cols, query, args...); err != nil {
			return nil, errors.Wrapf(err, "could not introspect table [%s]", name)
		}

		for _, c := range cols {
			col := Column{
				Name:     c.Name,
				Type:     strings.ToLower(c.Type),
				Nullable: strings.EqualFold(c.Nullable, "YES"),
			}

			if c.Length.Valid {
				col.Length = int(c.Length.Int64)
			} else {
				col.Length = parseLength(c.Type)
			}

			t.Columns = append(t.Columns, col)
		}
	}

	if len(t.Columns) == 0 {
		return nil, errors.Wrapf(ErrNoSuchTable, "[%s]", name)
	}

	return t, nil
}
