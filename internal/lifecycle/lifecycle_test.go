package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootStartsStepsInOrder(t *testing.T) {
	var order []string
	steps := []Step{
		{Name: "a", Start: func(ctx context.Context) error { order = append(order, "a"); return nil }},
		{Name: "b", Start: func(ctx context.Context) error { order = append(order, "b"); return nil }},
		{Name: "c", Start: func(ctx context.Context) error { order = append(order, "c"); return nil }},
	}

	m := New(steps, nil)
	require.NoError(t, m.Boot(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestBootRollsBackStartedStepsOnFailure(t *testing.T) {
	var stopped []string
	steps := []Step{
		{Name: "a", Start: func(ctx context.Context) error { return nil },
			Stop: func(ctx context.Context) error { stopped = append(stopped, "a"); return nil }},
		{Name: "b", Start: func(ctx context.Context) error { return nil },
			Stop: func(ctx context.Context) error { stopped = append(stopped, "b"); return nil }},
		{Name: "c", Start: func(ctx context.Context) error { return errors.New("boom") }},
	}

	m := New(steps, nil)
	err := m.Boot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c")
	assert.Equal(t, []string{"b", "a"}, stopped)
}

func TestShutdownStopsInReverseOrderAndTolerantOfFailures(t *testing.T) {
	var stopped []string
	steps := []Step{
		{Name: "a", Start: noop, Stop: func(ctx context.Context) error { stopped = append(stopped, "a"); return nil }},
		{Name: "b", Start: noop, Stop: func(ctx context.Context) error { stopped = append(stopped, "b"); return errors.New("stop failed") }},
		{Name: "c", Start: noop, Stop: func(ctx context.Context) error { stopped = append(stopped, "c"); return nil }},
	}

	m := New(steps, nil)
	require.NoError(t, m.Boot(context.Background()))

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b")
	// Every step still gets a chance to stop, even though b failed.
	assert.Equal(t, []string{"c", "b", "a"}, stopped)
}

func TestShutdownWithoutBootIsANoop(t *testing.T) {
	m := New([]Step{{Name: "a", Start: noop, Stop: func(ctx context.Context) error {
		t.Fatal("stop should not be called when boot never ran")
		return nil
	}}}, nil)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func noop(ctx context.Context) error { return nil }
