package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentineld/sentineld/pkg/types"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestDatabaseProbeHealthyOnSuccess(t *testing.T) {
	p := DatabaseProbe(fakePinger{})
	res := p(context.Background())
	assert.Equal(t, types.HealthHealthy, res.Status)
	assert.Equal(t, "database", res.Component)
}

func TestDatabaseProbeUnhealthyOnError(t *testing.T) {
	p := DatabaseProbe(fakePinger{err: errors.New("boom")})
	res := p(context.Background())
	assert.Equal(t, types.HealthUnhealthy, res.Status)
}

func TestProcessProbeReturnsComponentLabel(t *testing.T) {
	p := ProcessProbe()
	res := p(context.Background())
	assert.Equal(t, "process", res.Component)
	assert.Contains(t, []types.HealthStatus{types.HealthHealthy, types.HealthDegraded, types.HealthUnhealthy}, res.Status)
}

func TestSetRunAllAggregatesEveryProbe(t *testing.T) {
	s := NewSet()
	s.Register("database", DatabaseProbe(fakePinger{}))
	s.Register("event_loop", EventLoopProbe())

	results := s.RunAll(context.Background())
	assert.Len(t, results, 2)
}
