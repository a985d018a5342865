package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgersim/internal/shared"
)

func TestGuardHaltsOnInvariantViolation(t *testing.T) {
	g := NewGuard(loadTwoBanks(t), nil)

	var step int64
	require.NoError(t, g.Do(func(e *Engine) error {
		var err error
		step, err = e.Step()
		return err
	}))
	require.Equal(t, int64(1), step)
	require.NoError(t, g.Halted())

	err := g.Do(func(*Engine) error {
		shared.Abort("test", "assets do not balance")
		return nil
	})
	require.ErrorIs(t, err, ErrHalted)
	require.Contains(t, err.Error(), "assets do not balance")

	var inv *shared.InvariantError
	require.True(t, errors.As(g.Halted(), &inv))
	require.Equal(t, "test", inv.Op)

	called := false
	err = g.Do(func(*Engine) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrHalted)
	require.False(t, called)
}

func TestGuardRepanicsOtherValues(t *testing.T) {
	g := NewGuard(loadTwoBanks(t), nil)
	require.Panics(t, func() {
		_ = g.Do(func(*Engine) error { panic("boom") })
	})
	require.NoError(t, g.Do(func(*Engine) error { return nil }))
}
