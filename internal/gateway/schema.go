package gateway

import (
	"fmt"

	"github.com/denismitr/migcheck/database"
)

const DefaultVersionsTable = "migcheck_versions"

// Schema knows how the versions table is created and dropped
// for one database dialect
type Schema interface {
	InitQuery() string
	DropQuery() string
	ShowTablesQuery() string
}

func NewSchema(d database.Dialect, table, charset string) Schema {
	if table == "" {
		table = DefaultVersionsTable
	}

	switch d {
	case database.MySQL:
		if charset == "" {
			charset = DefaultMySQLCharset
		}
		return &mysqlSchema{versionsTable: table, charset: charset}
	case database.Postgres:
		return &postgresSchema{versionsTable: table}
	default:
		return &sqliteSchema{versionsTable: table}
	}
}

const DefaultMySQLCharset = "utf8mb4"

type mysqlSchema struct {
	versionsTable, charset string
}

func (s mysqlSchema) InitQuery() string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			revision VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255),
			ordinal BIGINT NOT NULL,
			migrated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB CHARACTER SET=%s
	`

	return fmt.Sprintf(createSQL, s.versionsTable, s.charset)
}

func (s mysqlSchema) DropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", s.versionsTable)
}

func (s mysqlSchema) ShowTablesQuery() string {
	return "SHOW TABLES"
}

type postgresSchema struct {
	versionsTable string
}

func (s postgresSchema) InitQuery() string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			revision VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255),
			ordinal BIGINT NOT NULL,
			migrated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`

	return fmt.Sprintf(createSQL, s.versionsTable)
}

func (s postgresSchema) DropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", s.versionsTable)
}

func (s postgresSchema) ShowTablesQuery() string {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name"
}

type sqliteSchema struct {
	versionsTable string
}

func (s sqliteSchema) InitQuery() string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			revision VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255),
			ordinal BIGINT NOT NULL,
			migrated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`

	return fmt.Sprintf(createSQL, s.versionsTable)
}

func (s sqliteSchema) DropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", s.versionsTable)
}

func (s sqliteSchema) ShowTablesQuery() string {
	return "SELECT name AS table_name FROM sqlite_master WHERE type='table' ORDER BY name"
}
