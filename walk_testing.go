package migcheck

import (
	"context"
	"testing"

	"github.com/denismitr/migcheck/lock"
)

// WalkT is Walk for go test, every migration runs as a subtest named
// after its revision, so t.FailNow inside a check stops only that migration
func WalkT(t *testing.T, d *Driver, cfs ...ActionConfigurator) *Report {
	t.Helper()

	ctx := context.Background()
	act := newAction(cfs...)
	report := &Report{}

	err := lock.Do(ctx, d.locker, d.lockKey, func(ctx context.Context) error {
		migrations, err := d.pending(ctx, act)
		if err != nil {
			return err
		}

		for _, m := range migrations {
			m := m
			res := StepResult{Revision: m.Revision, Key: m.Key(), Status: StatusFailed}
			var stepErr error

			t.Run(m.Revision, func(t *testing.T) {
				res, stepErr = d.Step(ctx, t, m)
				if stepErr != nil {
					t.Errorf("%+v", stepErr)
				}
			})

			report.add(res)

			if stepErr != nil {
				return stepErr
			}
		}

		return nil
	})

	if err != nil {
		t.Fatalf("migration walk failed: %v", err)
	}

	return report
}
