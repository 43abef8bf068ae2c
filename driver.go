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
	"github.com/pkg/errors"
)

const DefaultLockKey = "migcheck_migrations"

// Gateway applies single migrations to the database under test
type Gateway interface {
	Init(ctx context.Context) error
	Upgrade(ctx context.Context, m *migration.Migration) error
	Downgrade(ctx context.Context, m *migration.Migration) error
	ReadVersions(ctx context.Context) (gateway.Versions, error)
}

// Driver walks migrations one by one and runs their checks around
// the upgrade and the downgrade. It is not safe for concurrent use.
type Driver struct {
	gateway  Gateway
	selector source.Selector
	registry *Registry
	engine   *database.Engine
	locker   lock.Locker
	lockKey  string
	lg       logger.Logger

	seeds map[string]interface{}
}

func NewDriver(gw Gateway, sel source.Selector, reg *Registry, eng *database.Engine, lg logger.Logger) *Driver {
	if lg == nil {
		lg = &logger.NullLogger{}
	}

	return &Driver{
		gateway:  gw,
		selector: sel,
		registry: reg,
		engine:   eng,
		locker:   lock.NewMutex(),
		lockKey:  DefaultLockKey,
		lg:       lg,
		seeds:    make(map[string]interface{}),
	}
}

func (d *Driver) SetLocker(l lock.Locker, key string) {
	if l != nil {
		d.locker = l
	}

	if key != "" {
		d.lockKey = key
	}
}

func (d *Driver) Registry() *Registry {
	return d.registry
}

// Walk runs Step for every migration that is not applied yet.
// When tc is nil every migration gets its own Recorder.
// Assertion failures are reported and the walk goes on,
// failures to apply a migration stop it.
func (d *Driver) Walk(ctx context.Context, tc TestContext, cfs ...ActionConfigurator) (*Report, error) {
	act := newAction(cfs...)
	report := &Report{}

	err := lock.Do(ctx, d.locker, d.lockKey, func(ctx context.Context) error {
		migrations, err := d.pending(ctx, act)
		if err != nil {
			return err
		}

		for _, m := range migrations {
			stc := tc
			if stc == nil {
				stc = NewRecorder()
			}

			res, err := d.Step(ctx, stc, m)
			report.add(res)
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		d.lg.Error(err)
		return report, err
	}

	d.lg.Successf(
		"walked %d migrations: %d passed, %d failed, %d without checks",
		len(report.Results), len(report.Passed()), len(report.Failed()), len(report.Skipped()),
	)

	return report, nil
}

// Step takes one not yet applied migration through
// seed, upgrade, verify upgrade, downgrade, verify downgrade
// and upgrades it once more so the next migration finds the schema it expects.
// Whatever happens to the check, the migration is left applied unless
// the gateway itself failed, that error is returned.
func (d *Driver) Step(ctx context.Context, tc TestContext, m *migration.Migration) (res StepResult, err error) {
	start := time.Now()
	res = StepResult{Revision: m.Revision, Key: m.Key(), Status: StatusPassed, Irreversible: !m.Reversible()}
	sc := scoped(tc)

	applied := false
	broken := false

	defer func() {
		delete(d.seeds, m.Revision)

		if !applied && !broken {
			if uErr := d.gateway.Upgrade(ctx, m); uErr != nil {
				uErr = errors.Wrapf(uErr, "could not restore [%s] after failed check", m.Key())
				d.lg.Error(uErr)
				if err == nil {
					err = uErr
				}
			}
		}

		if rec, ok := tc.(*Recorder); ok {
			res.Failures = rec.Failures()
		}

		if res.Status == StatusPassed && sc.failMarks() > 0 {
			res.Status = StatusFailed
		}

		res.Duration = time.Since(start)
	}()

	hasCheck := d.registry != nil && d.registry.Has(m.Revision)
	if !hasCheck {
		res.Status = StatusSkipped
		d.lg.Debugf("no check registered for [%s], upgrade and downgrade only", m.Key())
	}

	fail := func(phase Phase, checkErr error) (StepResult, error) {
		res.Status = StatusFailed
		res.Phase = phase
		res.Err = checkErr
		d.lg.Warnf("check of [%s] failed on %s: %s", m.Key(), phase, checkErr.Error())
		return res, nil
	}

	if hasCheck {
		if cErr := d.Seed(ctx, sc, m.Revision); cErr != nil {
			return fail(PhaseSeed, cErr)
		}
	}

	if uErr := d.gateway.Upgrade(ctx, m); uErr != nil {
		broken = true
		return res, errors.Wrapf(uErr, "could not upgrade [%s]", m.Key())
	}
	applied = true

	if hasCheck {
		if cErr := d.VerifyUpgrade(ctx, sc, m.Revision); cErr != nil {
			return fail(PhaseVerifyUpgrade, cErr)
		}
	}

	if !m.Reversible() {
		d.lg.Warnf("[%s] has no rollback scripts, downgrade is not checked", m.Key())
		return res, nil
	}

	if dErr := d.gateway.Downgrade(ctx, m); dErr != nil {
		broken = true
		return res, errors.Wrapf(dErr, "could not downgrade [%s]", m.Key())
	}
	applied = false

	if hasCheck {
		if cErr := d.VerifyDowngrade(ctx, sc, m.Revision); cErr != nil {
			return fail(PhaseVerifyDowngrade, cErr)
		}
	}

	if uErr := d.gateway.Upgrade(ctx, m); uErr != nil {
		broken = true
		return res, errors.Wrapf(uErr, "could not upgrade [%s] after downgrade", m.Key())
	}
	applied = true

	d.lg.Successf("checked [%s] in %s", m.Key(), time.Since(start))

	return res, nil
}

// Seed inserts the fixture data of revision and keeps it for VerifyUpgrade
func (d *Driver) Seed(ctx context.Context, tc TestContext, revision string) error {
	d.lg.Debugf("seeding data for [%s]", revision)

	data, err := d.invoke(ctx, tc, revision, PhaseSeed, nil)
	if err != nil {
		return err
	}

	d.seeds[revision] = data

	return nil
}

// VerifyUpgrade refuses to run unless Seed of the same revision succeeded before
func (d *Driver) VerifyUpgrade(ctx context.Context, tc TestContext, revision string) error {
	data, ok := d.seeds[revision]
	if !ok {
		return errors.Wrapf(ErrOutOfOrder, "verify upgrade of [%s] before seed", revision)
	}

	delete(d.seeds, revision)

	d.lg.Debugf("verifying upgrade of [%s]", revision)

	_, err := d.invoke(ctx, tc, revision, PhaseVerifyUpgrade, data)
	return err
}

func (d *Driver) VerifyDowngrade(ctx context.Context, tc TestContext, revision string) error {
	d.lg.Debugf("verifying downgrade of [%s]", revision)

	_, err := d.invoke(ctx, tc, revision, PhaseVerifyDowngrade, nil)
	return err
}

// invoke dispatches the phase and turns assertion failures reported
// during the call into ErrAssertionFailed
func (d *Driver) invoke(
	ctx context.Context,
	tc TestContext,
	revision string,
	phase Phase,
	data interface{},
) (out interface{}, err error) {
	sc := scoped(tc)
	marks := sc.failMarks()

	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(failNowSignal); !ok {
				panic(r)
			}

			out = nil
			err = errors.Wrapf(ErrAssertionFailed, "[%s] %s", revision, phase)
		}
	}()

	out, err = d.registry.Dispatch(ctx, revision, phase, sc, d.engine, data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s of [%s]", phase, revision)
	}

	if sc.failMarks() > marks {
		return nil, errors.Wrapf(ErrAssertionFailed, "[%s] %s", revision, phase)
	}

	return out, nil
}

// pending selects migrations that are not applied yet in native order
func (d *Driver) pending(ctx context.Context, act *Action) (migration.Migrations, error) {
	if err := d.gateway.Init(ctx); err != nil {
		return nil, err
	}

	migrations, err := d.selector.Select(ctx, source.Filter{Revisions: act.revisions})
	if err != nil {
		return nil, err
	}

	versions, err := d.gateway.ReadVersions(ctx)
	if err != nil {
		return nil, err
	}

	var result migration.Migrations
	for _, m := range migrations {
		if versions.Has(m.Revision) {
			d.lg.Debugf("[%s] is already applied", m.Key())
			continue
		}

		result = append(result, m)

		if act.steps > 0 && len(result) >= act.steps {
			break
		}
	}

	return result, nil
}
