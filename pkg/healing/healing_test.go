package healing

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/sentineld/pkg/health"
	"github.com/sentineld/sentineld/pkg/types"
)

func alwaysUnhealthyProbe(ctx context.Context) types.HealthResult {
	return types.HealthResult{Component: "flaky", Status: types.HealthUnhealthy}
}

func TestRecoveryFiresAfterThirdConsecutiveUnhealthyReport(t *testing.T) {
	probes := health.NewSet()
	probes.Register("flaky", alwaysUnhealthyProbe)

	s := New(probes, nil, nil, nil, nil)

	var calls int32
	s.RegisterRecoveryHook("flaky", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx := context.Background()
	s.RunCycle(ctx)
	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
	s.RunCycle(ctx)
	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
	s.RunCycle(ctx)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestHealthyReportResetsCounter(t *testing.T) {
	probes := health.NewSet()
	calls := int32(0)
	probes.Register("flip", func(ctx context.Context) types.HealthResult {
		calls++
		status := types.HealthUnhealthy
		if calls == 2 {
			status = types.HealthHealthy
		}
		return types.HealthResult{Component: "flip", Status: status}
	})

	s := New(probes, nil, nil, nil, nil)
	var recovered int32
	s.RegisterRecoveryHook("flip", func(ctx context.Context) error {
		atomic.AddInt32(&recovered, 1)
		return nil
	})

	ctx := context.Background()
	s.RunCycle(ctx) // unhealthy, count=1
	s.RunCycle(ctx) // healthy, count reset to 0
	s.RunCycle(ctx) // unhealthy, count=1
	assert.EqualValues(t, 0, atomic.LoadInt32(&recovered))
}
