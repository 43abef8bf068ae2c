package migcheck

import "github.com/denismitr/migcheck/migration"

type ActionConfigurator func(a *Action)

// Action narrows down which migrations an operation touches
type Action struct {
	steps     int
	revisions []string
}

func newAction(cfs ...ActionConfigurator) *Action {
	act := new(Action)
	for _, f := range cfs {
		f(act)
	}
	return act
}

// WithSteps limits the number of migrations, zero means no limit
func WithSteps(steps int) ActionConfigurator {
	return func(a *Action) {
		a.steps = steps
	}
}

func WithRevisions(revisions ...string) ActionConfigurator {
	return func(a *Action) {
		a.revisions = revisions
	}
}

func CreateConfigurators(steps int, revisions []string) ([]ActionConfigurator, error) {
	var configurators []ActionConfigurator
	if steps > 0 {
		configurators = append(configurators, WithSteps(steps))
	}

	if len(revisions) > 0 {
		for _, r := range revisions {
			if err := migration.ValidateRevision(r); err != nil {
				return nil, err
			}
		}
		configurators = append(configurators, WithRevisions(revisions...))
	}

	return configurators, nil
}
