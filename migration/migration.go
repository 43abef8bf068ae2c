package migration

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrInvalidRevision = errors.New("invalid migration revision")
	ErrInvalidName     = errors.New("invalid migration name")
)

var revisionRegexp = regexp.MustCompile(`^[0-9A-Za-z]{1,64}$`)

type (
	// Migration is one reversible schema change identified by an opaque revision token.
	// Order is the position of the migration in the tool's native ordering.
	Migration struct {
		Revision  string
		Name      string
		Order     int
		Migrate   []string
		Rollback  []string
		AppliedAt time.Time
	}

	Factory func() (*Migration, error)
)

func New(revision, name string, migrate, rollback []string) Factory {
	return func() (*Migration, error) {
		if err := ValidateRevision(revision); err != nil {
			return nil, err
		}

		return &Migration{
			Revision: revision,
			Name:     name,
			Migrate:  migrate,
			Rollback: rollback,
		}, nil
	}
}

func NewFromFile(order int, revision, name, migrate, rollback string) Factory {
	return func() (*Migration, error) {
		if err := ValidateRevision(revision); err != nil {
			return nil, err
		}

		m := &Migration{
			Revision: revision,
			Name:     name,
			Order:    order,
			Migrate:  []string{migrate},
		}

		if rollback != "" {
			m.Rollback = []string{rollback}
		}

		return m, nil
	}
}

func ValidateRevision(revision string) error {
	if !revisionRegexp.MatchString(revision) {
		return errors.Wrapf(ErrInvalidRevision, "[%s]", revision)
	}

	return nil
}

// Key is the human readable identity of the migration, e.g. 1f0bd302c1a6_add_availability_zones
func (m *Migration) Key() string {
	return CreateKey(m.Revision, m.Name)
}

func (m *Migration) MigrateScripts() string {
	return joinScripts(m.Migrate)
}

func (m *Migration) RollbackScripts() string {
	return joinScripts(m.Rollback)
}

func (m *Migration) Reversible() bool {
	return len(m.Rollback) > 0
}

func joinScripts(scripts []string) string {
	var ms bytes.Buffer

	for i := range scripts {
		ms.WriteString(scripts[i])

		if !strings.HasSuffix(scripts[i], ";") {
			ms.WriteString(";")
		}

		if i < len(scripts)-1 {
			ms.WriteString("\n")
		}
	}

	return ms.String()
}

type Migrations []*Migration

// NewMigrations builds migrations in the order of the factories,
// migrations without an explicit order get their position
func NewMigrations(factories ...Factory) (Migrations, error) {
	migrations := make(Migrations, len(factories))
	seen := make(map[string]struct{}, len(factories))

	for i := range factories {
		m, err := factories[i]()
		if err != nil {
			return nil, err
		}

		if _, ok := seen[m.Revision]; ok {
			return nil, errors.Wrapf(ErrInvalidRevision, "duplicate revision [%s]", m.Revision)
		}
		seen[m.Revision] = struct{}{}

		if m.Order == 0 {
			m.Order = i + 1
		}

		migrations[i] = m
	}

	return migrations, nil
}

func (m Migrations) Revisions() (result []string) {
	for i := range m {
		result = append(result, m[i].Revision)
	}
	return result
}

func (m Migrations) Keys() (result []string) {
	for i := range m {
		result = append(result, m[i].Key())
	}
	return result
}

func (m Migrations) Find(revision string) (*Migration, bool) {
	for i := range m {
		if m[i].Revision == revision {
			return m[i], true
		}
	}

	return nil, false
}

func (m Migrations) Len() int {
	return len(m)
}

func (m Migrations) Less(i, j int) bool {
	return m[i].Order < m[j].Order
}

func (m Migrations) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

func CreateKey(revision, name string) string {
	if name == "" {
		return revision
	}

	var result bytes.Buffer
	result.WriteString(revision)
	result.WriteString("_")
	result.WriteString(strings.Replace(strings.ToLower(name), " ", "_", -1))
	return result.String()
}

func InRevisions(revision string, revisions []string) bool {
	for _, r := range revisions {
		if r == revision {
			return true
		}
	}

	return false
}
