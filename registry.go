package migcheck

import (
	"context"
	"sort"
	"sync"

	"github.com/denismitr/migcheck/database"
	"github.com/pkg/errors"
)

// Registry maps migration revisions onto their checks
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
}

func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Register binds c to revision. A revision can be registered only once,
// later attempts fail with ErrAlreadyRegistered and keep the first check.
func (r *Registry) Register(revision string, c Check) error {
	if revision == "" || c == nil {
		return errors.Wrapf(ErrInvalidCheck, "revision [%s]", revision)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.checks[revision]; ok {
		return errors.Wrapf(ErrAlreadyRegistered, "[%s]", revision)
	}

	r.checks[revision] = c

	return nil
}

func (r *Registry) MustRegister(revision string, c Check) {
	if err := r.Register(revision, c); err != nil {
		panic(err)
	}
}

func (r *Registry) Resolve(revision string) (Check, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.checks[revision]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMigration, "[%s]", revision)
	}

	return c, nil
}

func (r *Registry) Has(revision string) bool {
	_, err := r.Resolve(revision)
	return err == nil
}

// Dispatch binds tc to the check of revision and runs the operation of phase.
// Only PhaseSeed produces data, data is used only by PhaseVerifyUpgrade.
func (r *Registry) Dispatch(
	ctx context.Context,
	revision string,
	phase Phase,
	tc TestContext,
	eng *database.Engine,
	data interface{},
) (interface{}, error) {
	if phase < PhaseSeed || phase > PhaseVerifyDowngrade {
		return nil, errors.Wrapf(ErrUnknownPhase, "[%d] for [%s]", int(phase), revision)
	}

	c, err := r.Resolve(revision)
	if err != nil {
		return nil, err
	}

	c.Bind(tc)

	switch phase {
	case PhaseSeed:
		return c.SetupUpgradeData(ctx, eng)
	case PhaseVerifyUpgrade:
		return nil, c.CheckUpgrade(ctx, eng, data)
	default:
		return nil, c.CheckDowngrade(ctx, eng)
	}
}

func (r *Registry) Revisions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.checks))
	for rev := range r.checks {
		result = append(result, rev)
	}
	sort.Strings(result)

	return result
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.checks)
}
