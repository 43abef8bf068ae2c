package database

import (
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var (
	ErrNoSuchTable       = errors.New("no such table")
	ErrInvalidIdentifier = errors.New("invalid sql identifier")
	ErrEmptyRow          = errors.New("row has no columns")
)

const (
	mysqlNoSuchTable       = 1146
	postgresUndefinedTable = "42P01"
)

// IsMissingTable reports whether err means that the referenced table does not exist
func IsMissingTable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNoSuchTable) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlNoSuchTable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUndefinedTable
	}

	// sqlite reports it only through the message
	return strings.Contains(strings.ToLower(err.Error()), "no such table")
}
