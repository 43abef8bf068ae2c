package migcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/denismitr/migcheck/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callsCheck struct {
	Base
	calls []string
	bound []TestContext
}

func (c *callsCheck) Bind(tc TestContext) {
	c.Base.Bind(tc)
	c.bound = append(c.bound, tc)
}

func (c *callsCheck) SetupUpgradeData(context.Context, *database.Engine) (interface{}, error) {
	c.calls = append(c.calls, "seed")
	return "payload", nil
}

func (c *callsCheck) CheckUpgrade(_ context.Context, _ *database.Engine, data interface{}) error {
	c.calls = append(c.calls, "verify_upgrade:"+data.(string))
	return nil
}

func (c *callsCheck) CheckDowngrade(context.Context, *database.Engine) error {
	c.calls = append(c.calls, "verify_downgrade")
	return nil
}

func TestRegistry(t *testing.T) {
	t.Run("registered check can be resolved", func(t *testing.T) {
		r := NewRegistry()
		c := &callsCheck{}

		require.NoError(t, r.Register("1f0bd302c1a6", c))

		resolved, err := r.Resolve("1f0bd302c1a6")
		require.NoError(t, err)
		assert.Same(t, c, resolved)
		assert.True(t, r.Has("1f0bd302c1a6"))
		assert.Equal(t, 1, r.Len())
	})

	t.Run("second registration of a revision is rejected and the first one stays", func(t *testing.T) {
		r := NewRegistry()
		first := &callsCheck{}
		second := &callsCheck{}

		require.NoError(t, r.Register("1f0bd302c1a6", first))

		err := r.Register("1f0bd302c1a6", second)
		assert.True(t, errors.Is(err, ErrAlreadyRegistered))

		resolved, err := r.Resolve("1f0bd302c1a6")
		require.NoError(t, err)
		assert.Same(t, first, resolved)

		assert.Panics(t, func() {
			r.MustRegister("1f0bd302c1a6", second)
		})
	})

	t.Run("empty revision and nil check are invalid", func(t *testing.T) {
		r := NewRegistry()

		assert.True(t, errors.Is(r.Register("", &callsCheck{}), ErrInvalidCheck))
		assert.True(t, errors.Is(r.Register("1f0bd302c1a6", nil), ErrInvalidCheck))
		assert.Equal(t, 0, r.Len())
	})

	t.Run("unknown revision cannot be resolved", func(t *testing.T) {
		r := NewRegistry()

		c, err := r.Resolve("dda6de06349")
		assert.Nil(t, c)
		assert.True(t, errors.Is(err, ErrUnknownMigration))
	})

	t.Run("revisions are sorted", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegister("dda6de06349", &callsCheck{})
		r.MustRegister("1f0bd302c1a6", &callsCheck{})

		assert.Equal(t, []string{"1f0bd302c1a6", "dda6de06349"}, r.Revisions())
	})
}

func TestRegistry_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatch binds the context and calls the operation of the phase", func(t *testing.T) {
		r := NewRegistry()
		c := &callsCheck{}
		r.MustRegister("1f0bd302c1a6", c)

		first := NewRecorder()
		data, err := r.Dispatch(ctx, "1f0bd302c1a6", PhaseSeed, first, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "payload", data)

		second := NewRecorder()
		_, err = r.Dispatch(ctx, "1f0bd302c1a6", PhaseVerifyUpgrade, second, nil, data)
		require.NoError(t, err)

		_, err = r.Dispatch(ctx, "1f0bd302c1a6", PhaseVerifyDowngrade, second, nil, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"seed", "verify_upgrade:payload", "verify_downgrade"}, c.calls)
		require.Len(t, c.bound, 3)
		assert.Same(t, first, c.bound[0])
		assert.Same(t, second, c.bound[1])
		assert.Same(t, second, c.T())
	})

	t.Run("dispatch of an unregistered revision reports not found without panicking", func(t *testing.T) {
		r := NewRegistry()

		assert.NotPanics(t, func() {
			for _, p := range []Phase{PhaseSeed, PhaseVerifyUpgrade, PhaseVerifyDowngrade} {
				_, err := r.Dispatch(ctx, "dda6de06349", p, NewRecorder(), nil, nil)
				assert.True(t, errors.Is(err, ErrUnknownMigration))
			}
		})
	})

	t.Run("unknown phase is rejected", func(t *testing.T) {
		r := NewRegistry()
		c := &callsCheck{}
		r.MustRegister("1f0bd302c1a6", c)

		_, err := r.Dispatch(ctx, "1f0bd302c1a6", Phase(42), NewRecorder(), nil, nil)
		assert.True(t, errors.Is(err, ErrUnknownPhase))
		assert.Empty(t, c.calls)
	})
}

func TestPhase(t *testing.T) {
	tt := []struct {
		in    string
		phase Phase
	}{
		{in: "seed", phase: PhaseSeed},
		{in: "pre", phase: PhaseSeed},
		{in: "verify_upgrade", phase: PhaseVerifyUpgrade},
		{in: "check", phase: PhaseVerifyUpgrade},
		{in: "verify_downgrade", phase: PhaseVerifyDowngrade},
		{in: "post", phase: PhaseVerifyDowngrade},
	}

	for _, tc := range tt {
		t.Run(tc.in, func(t *testing.T) {
			p, err := ParsePhase(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.phase, p)
		})
	}

	assert.Equal(t, "verify_upgrade", PhaseVerifyUpgrade.String())
	assert.Equal(t, "unknown", Phase(0).String())

	_, err := ParsePhase("migrate")
	assert.True(t, errors.Is(err, ErrUnknownPhase))
}

func TestRecorder(t *testing.T) {
	t.Run("errors are collected", func(t *testing.T) {
		r := NewRecorder()
		assert.False(t, r.Failed())

		r.Helper()
		r.Errorf("expected %s, got %s", "az1", "az3")
		r.Errorf("second")

		assert.True(t, r.Failed())
		assert.Equal(t, []string{"expected az1, got az3", "second"}, r.Failures())
	})

	t.Run("fail now aborts with a signal", func(t *testing.T) {
		r := NewRecorder()

		assert.PanicsWithValue(t, failNowSignal{}, func() {
			require.Equal(r, "az1", "az3")
		})
		assert.True(t, r.Failed())
		assert.Len(t, r.Failures(), 1)
	})
}
