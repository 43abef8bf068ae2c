package source

import (
	"context"
	"sort"

	"github.com/denismitr/migcheck/migration"
	"github.com/pkg/errors"
)

type InMemorySource struct {
	migrations migration.Migrations
}

func (c *InMemorySource) Select(ctx context.Context, f Filter) (migration.Migrations, error) {
	if len(c.migrations) == 0 {
		return nil, ErrNoMigrations
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(migration.Migrations, len(c.migrations))
	copy(result, c.migrations)
	sort.Stable(result)

	return filterMigrations(result, f), nil
}

func (c *InMemorySource) IsValid() bool {
	return true
}

func (c *InMemorySource) AlreadyExists(revision string) bool {
	_, ok := c.migrations.Find(revision)
	return ok
}

// Create appends an empty migration at the end of the native order
func (c *InMemorySource) Create(revision, name string) (*migration.Migration, error) {
	if c.AlreadyExists(revision) {
		return nil, errors.Wrapf(ErrAlreadyExists, "[%s]", revision)
	}

	m, err := migration.New(revision, name, nil, nil)()
	if err != nil {
		return nil, err
	}

	m.Order = nextOrder(c.migrations)
	c.migrations = append(c.migrations, m)

	return m, nil
}

func NewInMemorySource(factories ...migration.Factory) (*InMemorySource, error) {
	m, err := migration.NewMigrations(factories...)
	if err != nil {
		return nil, err
	}

	return &InMemorySource{
		migrations: m,
	}, nil
}

func nextOrder(m migration.Migrations) int {
	max := 0
	for i := range m {
		if m[i].Order > max {
			max = m[i].Order
		}
	}
	return max + 1
}
