// Package migcheck verifies that schema migrations keep the data intact.
//
// Every migration revision may have a Check registered in a Registry.
// The Driver seeds fixture rows before a migration is applied, verifies
// them after the upgrade, downgrades the migration, verifies again and
// upgrades it once more before moving on to the next one.
package migcheck

import (
	"context"
	"time"

	"github.com/denismitr/migcheck/database"
	"github.com/denismitr/migcheck/internal/gateway"
	"github.com/denismitr/migcheck/internal/logger"
	"github.com/denismitr/migcheck/internal/source"
	"github.com/denismitr/migcheck/lock"
	"github.com/denismitr/migcheck/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var (
	ErrUnknownMigration      = errors.New("no check registered for migration")
	ErrAlreadyRegistered     = errors.New("check is already registered for migration")
	ErrInvalidCheck          = errors.New("invalid check")
	ErrUnknownPhase          = errors.New("unknown check phase")
	ErrOutOfOrder            = errors.New("check phase called out of order")
	ErrAssertionFailed       = errors.New("check assertion failed")
	ErrGatewayNotInitialized = errors.New("database gateway has not been initialized")
	ErrNothingToMigrate      = errors.New("nothing to migrate")
	ErrNotInSource           = errors.New("applied migration is missing in the source")
)

type CloserFunc func() error

// Harness ties a database, a migration source and a check registry together
type Harness struct {
	lg        logger.Logger
	gateway   *gateway.SQLGateway
	engine    *database.Engine
	selector  source.Selector
	registry  *Registry
	closerFns []CloserFunc

	db             *sqlx.DB
	dialect        database.Dialect
	dbOptions      CommonOptions
	connectOptions *gateway.ConnectOptions

	locker   lock.Locker
	dbLocker lock.Locker
	lockKey  string
	noLock   bool

	driver *Driver
}

// MigrationStatus is one line of Status
type MigrationStatus struct {
	Revision  string
	Key       string
	Applied   bool
	AppliedAt time.Time
	HasCheck  bool
}

// New creates a harness out of option callbacks, a database option
// is required, when no source is given ./migrations folder is used
func New(opts ...OptionFunc) (*Harness, CloserFunc, error) {
	h := new(Harness)
	h.lg = &logger.NullLogger{}
	h.lockKey = DefaultLockKey

	for _, oFunc := range opts {
		if err := oFunc(h); err != nil {
			return nil, nil, err
		}
	}

	if h.db == nil {
		return nil, nil, ErrGatewayNotInitialized
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.connectOptions.MaxTimeout)
	defer cancel()

	if err := gateway.WaitFor(ctx, h.db, h.connectOptions); err != nil {
		return nil, nil, err
	}

	h.gateway = gateway.New(
		h.db,
		h.dialect,
		gateway.WithVersionsTable(h.dbOptions.VersionsTable, h.dbOptions.Charset),
		gateway.WithLogger(h.lg),
	)
	h.engine = database.NewEngine(h.db, h.dialect, database.WithQueryLogger(h.lg))

	// Default selector implementation
	if h.selector == nil {
		h.selector = source.NewLocalFSSource(source.DefaultMigrationsFolder, h.lg)
	}

	if h.registry == nil {
		h.registry = NewRegistry()
	}

	h.driver = NewDriver(h.gateway, h.selector, h.registry, h.engine, h.lg)
	h.driver.SetLocker(h.resolveLocker(), h.lockKey)

	return h, h.close, nil
}

func (h *Harness) resolveLocker() lock.Locker {
	switch {
	case h.noLock:
		return lock.Null{}
	case h.locker != nil:
		return h.locker
	case h.dbLocker != nil:
		return h.dbLocker
	default:
		return lock.NewMutex()
	}
}

func (h *Harness) Driver() *Driver {
	return h.driver
}

func (h *Harness) Registry() *Registry {
	return h.registry
}

func (h *Harness) Engine() *database.Engine {
	return h.engine
}

// Source returns the selector if it implements the full source.Source interface
func (h *Harness) Source() source.Source {
	if s, ok := h.selector.(source.Source); ok {
		return s
	}

	return nil
}

// Walk checks all pending migrations, see Driver.Walk
func (h *Harness) Walk(ctx context.Context, tc TestContext, cfs ...ActionConfigurator) (*Report, error) {
	return h.driver.Walk(ctx, tc, cfs...)
}

// Upgrade applies pending migrations without running any checks
func (h *Harness) Upgrade(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := newAction(cfs...)
	var migrated []string

	err := lock.Do(ctx, h.driver.locker, h.driver.lockKey, func(ctx context.Context) error {
		pending, err := h.driver.pending(ctx, act)
		if err != nil {
			return err
		}

		if len(pending) == 0 {
			return ErrNothingToMigrate
		}

		for _, m := range pending {
			if err := h.gateway.Upgrade(ctx, m); err != nil {
				return err
			}

			h.lg.Successf("migrated: [%s]", m.Key())
			migrated = append(migrated, m.Key())
		}

		return nil
	})

	if err != nil {
		if !errors.Is(err, ErrNothingToMigrate) {
			h.lg.Error(err)
		}
		return migrated, err
	}

	return migrated, nil
}

// Downgrade rolls back applied migrations newest first
func (h *Harness) Downgrade(ctx context.Context, cfs ...ActionConfigurator) ([]string, error) {
	act := newAction(cfs...)
	var rolledBack []string

	err := lock.Do(ctx, h.driver.locker, h.driver.lockKey, func(ctx context.Context) error {
		if err := h.gateway.Init(ctx); err != nil {
			return err
		}

		migrations, err := h.selector.Select(ctx, source.Filter{})
		if err != nil {
			return err
		}

		versions, err := h.gateway.ReadVersions(ctx)
		if err != nil {
			return err
		}

		var scheduled migration.Migrations
		for i := len(versions) - 1; i >= 0; i-- {
			if len(act.revisions) > 0 && !migration.InRevisions(versions[i].Revision, act.revisions) {
				continue
			}

			m, ok := migrations.Find(versions[i].Revision)
			if !ok {
				return errors.Wrapf(ErrNotInSource, "[%s]", versions[i].Revision)
			}

			scheduled = append(scheduled, m)

			if act.steps > 0 && len(scheduled) >= act.steps {
				break
			}
		}

		if len(scheduled) == 0 {
			return ErrNothingToMigrate
		}

		for _, m := range scheduled {
			h.lg.Debugf("rolling back [%s]", m.Key())

			if err := h.gateway.Downgrade(ctx, m); err != nil {
				return err
			}

			h.lg.Successf("rolled back: [%s]", m.Key())
			rolledBack = append(rolledBack, m.Key())
		}

		return nil
	})

	if err != nil {
		if !errors.Is(err, ErrNothingToMigrate) {
			h.lg.Error(err)
		}
		return rolledBack, err
	}

	return rolledBack, nil
}

// Status lists migrations of the source in native order
func (h *Harness) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := h.gateway.Init(ctx); err != nil {
		return nil, err
	}

	migrations, err := h.selector.Select(ctx, source.Filter{})
	if err != nil {
		return nil, err
	}

	versions, err := h.gateway.ReadVersions(ctx)
	if err != nil {
		return nil, err
	}

	applied := make(map[string]time.Time, len(versions))
	for _, v := range versions {
		applied[v.Revision] = v.MigratedAt
	}

	result := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		at, ok := applied[m.Revision]
		result = append(result, MigrationStatus{
			Revision:  m.Revision,
			Key:       m.Key(),
			Applied:   ok,
			AppliedAt: at,
			HasCheck:  h.registry.Has(m.Revision),
		})
	}

	return result, nil
}

func (h *Harness) close() error {
	if h.gateway == nil {
		return ErrGatewayNotInitialized
	}

	var result error
	for i := len(h.closerFns) - 1; i >= 0; i-- {
		if err := h.closerFns[i](); err != nil {
			h.lg.Error(err)
			if result == nil {
				result = err
			}
		}
	}

	return result
}
