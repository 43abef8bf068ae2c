package migcheck

import (
	"context"
	"database/sql"
	"testing"

	"github.com/denismitr/migcheck/database"
	"github.com/denismitr/migcheck/fixture"
	"github.com/denismitr/migcheck/migration"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

const (
	servicesRevision = "b7a6d2c10a54"
	azRevision       = "1f0bd302c1a6"
	indexRevision    = "c2f0a3b47e11"
)

var validAZNames = []string{"az1", "az2"}

func servicesMigration() migration.Factory {
	return migration.New(
		servicesRevision,
		"create services",
		[]string{`CREATE TABLE services (
			id INTEGER PRIMARY KEY,
			host VARCHAR(255),
			binary VARCHAR(255),
			topic VARCHAR(255),
			disabled INTEGER,
			report_count INTEGER,
			deleted INTEGER,
			availability_zone VARCHAR(255)
		)`},
		[]string{"DROP TABLE services"},
	)
}

func availabilityZonesMigration() migration.Factory {
	return migration.New(
		azRevision,
		"add availability zones",
		[]string{
			`CREATE TABLE availability_zones (
				id VARCHAR(36) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				deleted VARCHAR(36) NOT NULL DEFAULT 'False'
			)`,
			`INSERT INTO availability_zones (id, name)
				SELECT lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-4' ||
					substr(lower(hex(randomblob(2))), 2) || '-a' || substr(lower(hex(randomblob(2))), 2) || '-' ||
					lower(hex(randomblob(6))), az
				FROM (SELECT DISTINCT availability_zone AS az FROM services WHERE availability_zone IS NOT NULL)`,
			"ALTER TABLE services ADD COLUMN availability_zone_id VARCHAR(36)",
			`UPDATE services SET availability_zone_id =
				(SELECT id FROM availability_zones WHERE availability_zones.name = services.availability_zone)`,
			"ALTER TABLE services DROP COLUMN availability_zone",
		},
		[]string{
			"ALTER TABLE services ADD COLUMN availability_zone VARCHAR(255)",
			`UPDATE services SET availability_zone =
				(SELECT name FROM availability_zones WHERE availability_zones.id = services.availability_zone_id)`,
			"ALTER TABLE services DROP COLUMN availability_zone_id",
			"DROP TABLE availability_zones",
		},
	)
}

func indexMigration() migration.Factory {
	return migration.New(
		indexRevision,
		"add services host index",
		[]string{"CREATE INDEX services_host_idx ON services (host)"},
		[]string{"DROP INDEX services_host_idx"},
	)
}

// availabilityZoneChecks moves service zones into their own table
type availabilityZoneChecks struct {
	Base
}

func (c *availabilityZoneChecks) SetupUpgradeData(ctx context.Context, eng *database.Engine) (interface{}, error) {
	if _, err := eng.LoadTable(ctx, "services"); err != nil {
		return nil, err
	}

	rows := fixture.Rows(
		[]string{"host", "binary", "topic", "disabled", "report_count", "deleted", "availability_zone"},
		[]interface{}{"fake1", "manila-share", "share", 0, 100, 0, "az1"},
		[]interface{}{"fake2", "manila-share", "share", 0, 100, 0, "az1"},
		[]interface{}{"fake3", "manila-share", "share", 0, 100, 1, "az2"},
	)

	return len(rows), eng.Insert(ctx, "services", rows...)
}

func (c *availabilityZoneChecks) CheckUpgrade(ctx context.Context, eng *database.Engine, data interface{}) error {
	c.T().Helper()

	zones, err := eng.Select(ctx, "availability_zones", nil)
	c.Require().NoError(err)
	c.Assert().Len(zones, len(validAZNames))

	for _, az := range zones {
		c.Assert().True(fixture.IsUUIDLike(az.String("id")), "zone id [%s] is not a uuid", az.String("id"))
		c.Assert().Contains(validAZNames, az.String("name"))
		c.Assert().Equal("False", az.String("deleted"))
	}

	services, err := eng.Select(ctx, "services", nil)
	c.Require().NoError(err)
	c.Assert().Len(services, data.(int))

	for _, s := range services {
		c.Assert().True(fixture.IsUUIDLike(s.String("availability_zone_id")))
		c.Assert().False(s.Has("availability_zone"))
	}

	return nil
}

func (c *availabilityZoneChecks) CheckDowngrade(ctx context.Context, eng *database.Engine) error {
	services, err := eng.Select(ctx, "services", nil)
	if err != nil {
		return err
	}

	for _, s := range services {
		c.Assert().Contains(validAZNames, s.String("availability_zone"))
	}

	fixture.TableMissing(ctx, c.T(), eng, "availability_zones")

	return nil
}

func sqliteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func newSqliteHarness(t *testing.T, reg *Registry, factories ...migration.Factory) *Harness {
	t.Helper()

	h, closer, err := New(
		UseSqlite(sqliteDB(t), WithSqliteMaxConnectionAttempts(2)),
		UseInMemorySource(factories...),
		WithRegistry(reg),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer() })

	return h
}
