package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistryRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("sentineld-test", reg)
	require.NotNil(t, m)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBreakerStateValueMapsKnownStates(t *testing.T) {
	assert.Equal(t, float64(0), BreakerStateValue("closed"))
	assert.Equal(t, float64(1), BreakerStateValue("halfOpen"))
	assert.Equal(t, float64(2), BreakerStateValue("open"))
}

func TestHealthStatusValueMapsKnownStatuses(t *testing.T) {
	assert.Equal(t, float64(0), HealthStatusValue("unhealthy"))
	assert.Equal(t, float64(1), HealthStatusValue("degraded"))
	assert.Equal(t, float64(2), HealthStatusValue("healthy"))
}

func TestNewWithRegistryNilRegistererDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegistry("sentineld-test", nil)
	})
}
