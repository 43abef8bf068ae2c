package database

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

var ErrUnsupportedDialect = errors.New("unsupported database dialect")

// Dialect is the SQL flavour of the database under test
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

var (
	identifierRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	lengthRegexp     = regexp.MustCompile(`\((\d+)\)`)
)

// ParseDialect maps a database/sql driver name onto a dialect
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "file":
		return SQLite, nil
	case "mysql", "my", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pg", "pgx":
		return Postgres, nil
	}

	return "", errors.Wrapf(ErrUnsupportedDialect, "[%s]", driver)
}

func (d Dialect) Placeholder() squirrel.PlaceholderFormat {
	if d == Postgres {
		return squirrel.Dollar
	}

	return squirrel.Question
}

func (d Dialect) columnsQuery(table string) (string, []interface{}) {
	switch d {
	case MySQL:
		return `SELECT column_name AS name, column_type AS type, character_maximum_length AS length, is_nullable AS nullable
			FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position`, []interface{}{table}
	case Postgres:
		return `SELECT column_name AS name, data_type AS type, character_maximum_length AS length, is_nullable AS nullable
			FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1
			ORDER BY ordinal_position`, []interface{}{table}
	default:
		// PRAGMA does not accept bound parameters, the name is validated by the caller
		return `PRAGMA table_info("` + table + `")`, nil
	}
}

func validateIdentifier(name string) error {
	if !identifierRegexp.MatchString(name) {
		return errors.Wrapf(ErrInvalidIdentifier, "[%s]", name)
	}

	return nil
}

// parseLength extracts the length from declarations like VARCHAR(36)
func parseLength(columnType string) int {
	matches := lengthRegexp.FindStringSubmatch(columnType)
	if len(matches) != 2 {
		return 0
	}

	l, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return l
}
