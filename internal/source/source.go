package source

import (
	"context"
	"strings"
	"unicode"

	"github.com/denismitr/migcheck/migration"
	"github.com/pkg/errors"
)

var (
	ErrNoMigrations       = errors.New("no migrations")
	ErrNotAMigrationFile  = errors.New("not a migration file")
	ErrInvalidFilename    = errors.New("invalid migration filename")
	ErrTooManyFilesForKey = errors.New("too many files for single migration key")
	ErrMissingFile        = errors.New("migration file is missing")
	ErrAlreadyExists      = errors.New("migration already exists")
)

// Filter narrows the selection down to the given revisions, empty means all
type Filter struct {
	Revisions []string
}

type Selector interface {
	Select(ctx context.Context, f Filter) (migration.Migrations, error)
}

type Source interface {
	Selector

	IsValid() bool
	AlreadyExists(revision string) bool
	Create(revision, name string) (*migration.Migration, error)
}

func filterMigrations(m migration.Migrations, f Filter) migration.Migrations {
	if len(f.Revisions) == 0 {
		return m
	}

	var result migration.Migrations
	for i := range m {
		if migration.InRevisions(m[i].Revision, f.Revisions) {
			result = append(result, m[i])
		}
	}

	return result
}

func ucFirst(s string) string {
	r := []rune(s)

	if len(r) == 0 {
		return ""
	}

	f := string(unicode.ToUpper(r[0]))

	return f + string(r[1:])
}

func humanize(name string) string {
	return ucFirst(strings.Replace(name, "_", " ", -1))
}
