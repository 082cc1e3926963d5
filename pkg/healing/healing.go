// Package healing implements the Self-Healing Supervisor (C6): runs health
// probes on a schedule, aggregates into a last-report snapshot, and
// triggers per-component recovery hooks after three consecutive reports
// containing at least one unhealthy probe.
//
// The "run on a schedule, best-effort, log-and-continue on failure"
// discipline is grounded on the teacher's system/core/lifecycle.go
// Stop(ctx) reverse-shutdown loop, which never aborts on a single module's
// error; the same tolerance is applied here to recovery hooks.
package healing

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentineld/sentineld/pkg/breaker"
	"github.com/sentineld/sentineld/pkg/events"
	"github.com/sentineld/sentineld/pkg/health"
	"github.com/sentineld/sentineld/pkg/notify"
	"github.com/sentineld/sentineld/pkg/types"
)

// RecoveryHook is a best-effort, per-component recovery callback. It must
// never panic the caller; errors are logged, never fatal.
type RecoveryHook func(ctx context.Context) error

// Supervisor runs probes on an interval and drives recovery.
type Supervisor struct {
	mu                 sync.Mutex
	probes             *health.Set
	hooks              map[string]RecoveryHook
	consecutiveUnhealthy int
	lastReport         []types.HealthResult
	breakers           *breaker.Registry
	notifier           *notify.Notifier
	events             *events.Bus
	logger             *zap.Logger
}

// New constructs a Supervisor. notifier and events may be nil.
func New(probes *health.Set, breakers *breaker.Registry, notifier *notify.Notifier, eventBus *events.Bus, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		probes:   probes,
		hooks:    make(map[string]RecoveryHook),
		breakers: breakers,
		notifier: notifier,
		events:   eventBus,
		logger:   logger,
	}
}

// RegisterRecoveryHook installs the recovery callback for component.
func (s *Supervisor) RegisterRecoveryHook(component string, hook RecoveryHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[component] = hook
}

// RunCycle runs every probe once, updates the consecutive-unhealthy
// counter, and invokes recovery after the third consecutive unhealthy
// report.
func (s *Supervisor) RunCycle(ctx context.Context) []types.HealthResult {
	report := s.probes.RunAll(ctx)

	s.mu.Lock()
	s.lastReport = report
	anyUnhealthy := false
	for _, r := range report {
		if r.Status == types.HealthUnhealthy {
			anyUnhealthy = true
			break
		}
	}
	if anyUnhealthy {
		s.consecutiveUnhealthy++
	} else {
		s.consecutiveUnhealthy = 0
	}
	trigger := s.consecutiveUnhealthy >= 3
	if trigger {
		s.consecutiveUnhealthy = 0
	}
	s.mu.Unlock()

	s.emit("healing:health_check", report)

	if trigger {
		s.recover(ctx, report)
	}
	return report
}

func (s *Supervisor) recover(ctx context.Context, report []types.HealthResult) {
	for _, r := range report {
		if r.Status != types.HealthUnhealthy {
			continue
		}
		s.mu.Lock()
		hook, ok := s.hooks[r.Component]
		s.mu.Unlock()
		if !ok {
			if strings.HasPrefix(r.Component, "api:") {
				// api:* probes have no hook by name (the URL varies);
				// spec.md §4.6 says "log and defer to next cycle".
				s.logger.Info("healing: deferring api probe to next cycle", zap.String("component", r.Component))
				continue
			}
			s.logger.Info("healing: no recovery hook registered", zap.String("component", r.Component))
			continue
		}
		if err := hook(ctx); err != nil {
			s.logger.Warn("healing: recovery hook failed", zap.String("component", r.Component), zap.Error(err))
		}
		if s.notifier != nil {
			_ = s.notifier.Recovery(ctx, r.Component, r.Message)
		}
		s.emit("healing:recovery", []types.HealthResult{r})
	}
}

// LastReport returns the most recent snapshot.
func (s *Supervisor) LastReport() []types.HealthResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.HealthResult, len(s.lastReport))
	copy(out, s.lastReport)
	return out
}

func (s *Supervisor) emit(kind events.Kind, report []types.HealthResult) {
	if s.events == nil {
		return
	}
	arr := make([]types.Value, len(report))
	for i, r := range report {
		arr[i] = types.Map(map[string]types.Value{
			"component": types.String(r.Component),
			"status":    types.String(string(r.Status)),
		})
	}
	s.events.Emit(kind, "healing", map[string]types.Value{"results": types.Array(arr...)})
}

// Run drives RunCycle on a ticker until ctx is cancelled, matching
// spec.md §4.6's default 30s cadence.
func (s *Supervisor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// StandardRecoveryHooks returns the four component hooks named in
// spec.md §4.6: process/memory_pressure request a GC, database requests
// reinitialization via reinit, event_loop and api:* just log and continue
// (returning nil defers to the next cycle).
func StandardRecoveryHooks(reinitDatabase func(ctx context.Context) error, gc func(), logger *zap.Logger) map[string]RecoveryHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func(component string) RecoveryHook {
		return func(ctx context.Context) error {
			logger.Info("healing: deferring to next cycle", zap.String("component", component))
			return nil
		}
	}
	gcHook := func(ctx context.Context) error {
		if gc != nil {
			gc()
		}
		return nil
	}
	return map[string]RecoveryHook{
		"process":          gcHook,
		"memory_pressure":  gcHook,
		"database":         func(ctx context.Context) error {
			if reinitDatabase == nil {
				return nil
			}
			return reinitDatabase(ctx)
		},
		"event_loop": noop("event_loop"),
	}
}
