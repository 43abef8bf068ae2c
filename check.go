package migcheck

import (
	"context"

	"github.com/denismitr/migcheck/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestContext is where checks report assertion failures.
// *testing.T satisfies it, so does Recorder.
type TestContext interface {
	Errorf(format string, args ...interface{})
	FailNow()
	Helper()
}

// Check verifies the data side of one migration.
//
// SetupUpgradeData runs before the upgrade and inserts fixture rows,
// whatever it returns is handed to CheckUpgrade. CheckUpgrade runs right
// after the upgrade and CheckDowngrade right after the downgrade.
// Returned errors mean the check could not run at all, assertion
// failures go to the bound TestContext.
type Check interface {
	Bind(tc TestContext)
	SetupUpgradeData(ctx context.Context, eng *database.Engine) (interface{}, error)
	CheckUpgrade(ctx context.Context, eng *database.Engine, data interface{}) error
	CheckDowngrade(ctx context.Context, eng *database.Engine) error
}

// Base can be embedded into checks to keep the bound context.
// The context is rebound before every call, do not hold on to it.
type Base struct {
	tc TestContext
}

func (b *Base) Bind(tc TestContext) {
	b.tc = tc
}

func (b *Base) T() TestContext {
	return b.tc
}

func (b *Base) Assert() *assert.Assertions {
	return assert.New(b.tc)
}

func (b *Base) Require() *require.Assertions {
	return require.New(b.tc)
}

// CheckFuncs builds a Check out of plain functions, nil funcs do nothing
type CheckFuncs struct {
	Base

	Seed            func(ctx context.Context, tc TestContext, eng *database.Engine) (interface{}, error)
	VerifyUpgrade   func(ctx context.Context, tc TestContext, eng *database.Engine, data interface{}) error
	VerifyDowngrade func(ctx context.Context, tc TestContext, eng *database.Engine) error
}

var _ Check = (*CheckFuncs)(nil)

func (c *CheckFuncs) SetupUpgradeData(ctx context.Context, eng *database.Engine) (interface{}, error) {
	if c.Seed == nil {
		return nil, nil
	}
	return c.Seed(ctx, c.T(), eng)
}

func (c *CheckFuncs) CheckUpgrade(ctx context.Context, eng *database.Engine, data interface{}) error {
	if c.VerifyUpgrade == nil {
		return nil
	}
	return c.VerifyUpgrade(ctx, c.T(), eng, data)
}

func (c *CheckFuncs) CheckDowngrade(ctx context.Context, eng *database.Engine) error {
	if c.VerifyDowngrade == nil {
		return nil
	}
	return c.VerifyDowngrade(ctx, c.T(), eng)
}
