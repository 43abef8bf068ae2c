package gateway

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/denismitr/migcheck/database"
	"github.com/denismitr/migcheck/internal/logger"
	"github.com/denismitr/migcheck/migration"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var (
	ErrAlreadyApplied = errors.New("migration is already applied")
	ErrNotApplied     = errors.New("migration is not applied")
	ErrIrreversible   = errors.New("migration has no rollback scripts")
)

// Version is a row of the versions table
type Version struct {
	Revision   string    `db:"revision"`
	Name       string    `db:"name"`
	Order      int64     `db:"ordinal"`
	MigratedAt time.Time `db:"migrated_at"`
}

type Versions []Version

func (vs Versions) Has(revision string) bool {
	for i := range vs {
		if vs[i].Revision == revision {
			return true
		}
	}
	return false
}

// SQLGateway applies single migrations and keeps track of them
// in the versions table
type SQLGateway struct {
	db            *sqlx.DB
	txm           TxManager
	schema        Schema
	dialect       database.Dialect
	versionsTable string
	lg            logger.Logger
	now           func() time.Time
}

type Option func(*SQLGateway)

func WithVersionsTable(table, charset string) Option {
	return func(g *SQLGateway) {
		if table != "" {
			g.versionsTable = table
		}
		g.schema = NewSchema(g.dialect, g.versionsTable, charset)
	}
}

func WithLogger(lg logger.Logger) Option {
	return func(g *SQLGateway) {
		g.lg = lg
	}
}

func WithTxManager(txm TxManager) Option {
	return func(g *SQLGateway) {
		g.txm = txm
	}
}

func New(db *sqlx.DB, dialect database.Dialect, opts ...Option) *SQLGateway {
	g := &SQLGateway{
		db:            db,
		dialect:       dialect,
		versionsTable: DefaultVersionsTable,
		lg:            &logger.NullLogger{},
		now:           func() time.Time { return time.Now().UTC() },
	}

	g.schema = NewSchema(dialect, g.versionsTable, "")
	g.txm = NewTxManager(db)

	for _, o := range opts {
		o(g)
	}

	return g
}

func (g *SQLGateway) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(g.dialect.Placeholder())
}

func (g *SQLGateway) Init(ctx context.Context) error {
	q := g.schema.InitQuery()
	g.lg.SQL(q)

	if _, err := g.db.ExecContext(ctx, q); err != nil {
		return errors.Wrapf(err, "could not create versions table [%s]", g.versionsTable)
	}

	return nil
}

func (g *SQLGateway) DropVersionsTable(ctx context.Context) error {
	q := g.schema.DropQuery()
	g.lg.SQL(q)

	if _, err := g.db.ExecContext(ctx, q); err != nil {
		return errors.Wrapf(err, "could not drop versions table [%s]", g.versionsTable)
	}

	return nil
}

// Upgrade runs migrate scripts of m and records its revision in one transaction
func (g *SQLGateway) Upgrade(ctx context.Context, m *migration.Migration) error {
	return g.txm.ReadWrite(ctx, func(ctx context.Context, tx Tx) error {
		applied, err := g.isApplied(ctx, tx, m.Revision)
		if err != nil {
			return err
		}

		if applied {
			return errors.Wrapf(ErrAlreadyApplied, "[%s]", m.Key())
		}

		for _, script := range m.Migrate {
			g.lg.SQL(script)
			if _, err := tx.ExecContext(ctx, script); err != nil {
				return errors.Wrapf(err, "could not migrate script [%s], migration [%s]", script, m.Key())
			}
		}

		q, args, err := g.builder().
			Insert(g.versionsTable).
			Columns("revision", "name", "ordinal", "migrated_at").
			Values(m.Revision, m.Name, m.Order, g.now()).
			ToSql()
		if err != nil {
			return err
		}

		g.lg.SQL(q, args...)

		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrapf(err, "could not insert version of migration [%s]", m.Key())
		}

		return nil
	}, Isolation(DriverDefault))
}

// Downgrade runs rollback scripts of m and forgets its revision in one transaction
func (g *SQLGateway) Downgrade(ctx context.Context, m *migration.Migration) error {
	if !m.Reversible() {
		return errors.Wrapf(ErrIrreversible, "[%s]", m.Key())
	}

	return g.txm.ReadWrite(ctx, func(ctx context.Context, tx Tx) error {
		applied, err := g.isApplied(ctx, tx, m.Revision)
		if err != nil {
			return err
		}

		if !applied {
			return errors.Wrapf(ErrNotApplied, "[%s]", m.Key())
		}

		for _, script := range m.Rollback {
			g.lg.SQL(script)
			if _, err := tx.ExecContext(ctx, script); err != nil {
				return errors.Wrapf(err, "could not rollback script [%s], migration [%s]", script, m.Key())
			}
		}

		q, args, err := g.builder().
			Delete(g.versionsTable).
			Where(squirrel.Eq{"revision": m.Revision}).
			ToSql()
		if err != nil {
			return err
		}

		g.lg.SQL(q, args...)

		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrapf(err, "could not remove version of migration [%s]", m.Key())
		}

		return nil
	}, Isolation(DriverDefault))
}

// ReadVersions lists applied migrations in the order they were applied
func (g *SQLGateway) ReadVersions(ctx context.Context) (Versions, error) {
	q, args, err := g.builder().
		Select("revision", "name", "ordinal", "migrated_at").
		From(g.versionsTable).
		OrderBy("ordinal ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	g.lg.SQL(q, args...)

	var result Versions
	err = g.txm.ReadOnly(ctx, func(ctx context.Context, tx Tx) error {
		return sqlscan.Select(ctx, tx, &result, q, args...)
	}, Isolation(DriverDefault))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read versions from [%s]", g.versionsTable)
	}

	return result, nil
}

func (g *SQLGateway) IsApplied(ctx context.Context, revision string) (bool, error) {
	var applied bool
	err := g.txm.ReadOnly(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		applied, err = g.isApplied(ctx, tx, revision)
		return err
	}, Isolation(DriverDefault))

	return applied, err
}

func (g *SQLGateway) ShowTables(ctx context.Context) ([]string, error) {
	q := g.schema.ShowTablesQuery()
	g.lg.SQL(q)

	var result []string
	if err := sqlscan.Select(ctx, g.db, &result, q); err != nil {
		return nil, errors.Wrap(err, "could not list all tables")
	}

	return result, nil
}

func (g *SQLGateway) isApplied(ctx context.Context, q sqlx.QueryerContext, revision string) (bool, error) {
	query, args, err := g.builder().
		Select("COUNT(*)").
		From(g.versionsTable).
		Where(squirrel.Eq{"revision": revision}).
		ToSql()
	if err != nil {
		return false, err
	}

	g.lg.SQL(query, args...)

	var n int
	if err := q.QueryRowxContext(ctx, query, args...).Scan(&n); err != nil {
		return false, errors.Wrapf(err, "could not check if [%s] is applied", revision)
	}

	return n > 0, nil
}
