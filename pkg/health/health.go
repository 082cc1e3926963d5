// Package health implements the Health Monitor Set (C5): a fixed family of
// probes, each a pure function returning a HealthResult for its own
// component label.
//
// Grounded on the teacher's system/core health-status enum idiom
// (healthy/degraded/unhealthy ModuleHealth reports); gopsutil backs the
// process/memory probes in place of hand-rolled /proc parsing, matching
// the teacher's own existing use of shirou/gopsutil/v3 for host stats.
package health

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/sentineld/sentineld/pkg/store"
	"github.com/sentineld/sentineld/pkg/types"
)

// Probe is a pure health check for one component.
type Probe func(ctx context.Context) types.HealthResult

func result(component string, status types.HealthStatus, latencyMs int64, message string) types.HealthResult {
	return types.HealthResult{
		Component: component,
		Status:    status,
		LatencyMs: latencyMs,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// ProcessProbe reports heap-used/heap-total percentage: unhealthy above
// 90%, degraded above 75%.
func ProcessProbe() Probe {
	return func(ctx context.Context) types.HealthResult {
		start := time.Now()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		pct := 0.0
		if m.HeapSys > 0 {
			pct = float64(m.HeapAlloc) / float64(m.HeapSys) * 100
		}
		status := types.HealthHealthy
		switch {
		case pct > 90:
			status = types.HealthUnhealthy
		case pct > 75:
			status = types.HealthDegraded
		}
		return result("process", status, time.Since(start).Milliseconds(), "")
	}
}

// MemoryPressureProbe reports resident set size against soft ceilings:
// unhealthy above unhealthyMB (default 512), degraded above degradedMB
// (default 384).
func MemoryPressureProbe(unhealthyMB, degradedMB float64) Probe {
	if unhealthyMB <= 0 {
		unhealthyMB = 512
	}
	if degradedMB <= 0 {
		degradedMB = 384
	}
	return func(ctx context.Context) types.HealthResult {
		start := time.Now()
		pid := int32(os.Getpid())
		proc, err := process.NewProcess(pid)
		if err != nil {
			return result("memory_pressure", types.HealthUnhealthy, time.Since(start).Milliseconds(), err.Error())
		}
		info, err := proc.MemoryInfoWithContext(ctx)
		if err != nil {
			return result("memory_pressure", types.HealthUnhealthy, time.Since(start).Milliseconds(), err.Error())
		}
		rssMB := float64(info.RSS) / (1024 * 1024)
		status := types.HealthHealthy
		switch {
		case rssMB > unhealthyMB:
			status = types.HealthUnhealthy
		case rssMB > degradedMB:
			status = types.HealthDegraded
		}
		return result("memory_pressure", status, time.Since(start).Milliseconds(), "")
	}
}

// EventLoopProbe schedules a no-op at the next tick and measures dispatch
// delay: unhealthy above 100ms, degraded above 50ms.
func EventLoopProbe() Probe {
	return func(ctx context.Context) types.HealthResult {
		start := time.Now()
		done := make(chan struct{})
		go func() { close(done) }()
		select {
		case <-done:
		case <-ctx.Done():
		}
		delay := time.Since(start)
		status := types.HealthHealthy
		switch {
		case delay > 100*time.Millisecond:
			status = types.HealthUnhealthy
		case delay > 50*time.Millisecond:
			status = types.HealthDegraded
		}
		return result("event_loop", status, delay.Milliseconds(), "")
	}
}

// DatabaseProbe runs a trivial round-trip query against the store: latency
// above 500ms is degraded, an error is unhealthy.
func DatabaseProbe(s store.Pinger) Probe {
	return func(ctx context.Context) types.HealthResult {
		start := time.Now()
		err := s.Ping(ctx)
		latency := time.Since(start)
		if err != nil {
			return result("database", types.HealthUnhealthy, latency.Milliseconds(), err.Error())
		}
		status := types.HealthHealthy
		if latency > 500*time.Millisecond {
			status = types.HealthDegraded
		}
		return result("database", status, latency.Milliseconds(), "")
	}
}

// APIProbe performs an HTTP GET against url with a 5s timeout: non-2xx or
// an error is unhealthy, 2xx taking more than 2s is degraded.
func APIProbe(client *http.Client, url string) Probe {
	component := "api:" + url
	return func(ctx context.Context) types.HealthResult {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		start := time.Now()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return result(component, types.HealthUnhealthy, time.Since(start).Milliseconds(), err.Error())
		}
		resp, err := client.Do(req)
		latency := time.Since(start)
		if err != nil {
			return result(component, types.HealthUnhealthy, latency.Milliseconds(), err.Error())
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return result(component, types.HealthUnhealthy, latency.Milliseconds(), resp.Status)
		}
		status := types.HealthHealthy
		if latency > 2*time.Second {
			status = types.HealthDegraded
		}
		return result(component, status, latency.Milliseconds(), "")
	}
}

// Set runs every registered probe and returns the aggregate report.
type Set struct {
	probes map[string]Probe
}

// NewSet constructs an empty probe Set.
func NewSet() *Set {
	return &Set{probes: make(map[string]Probe)}
}

// Register adds or replaces the probe for component.
func (s *Set) Register(component string, p Probe) {
	s.probes[component] = p
}

// RunAll executes every registered probe and returns one HealthResult per
// component.
func (s *Set) RunAll(ctx context.Context) []types.HealthResult {
	out := make([]types.HealthResult, 0, len(s.probes))
	for _, p := range s.probes {
		out = append(out, p(ctx))
	}
	return out
}
