// Package lifecycle implements the Subsystem Lifecycle Manager (C10): a
// fixed boot order across the daemon's subsystems, with reverse-order
// best-effort shutdown.
//
// Grounded on the teacher's system/core.LifecycleManager: Start walks
// modules in order, rolling back (stopping) whatever already started on
// failure; Stop walks in reverse, logging and continuing past any one
// module's failure rather than aborting the shutdown. That teacher resolves
// its order from a DependencyManager over an open module registry; this
// drops the generic resolver in favor of a fixed order supplied by the
// caller (cmd/sentineld lists the daemon's steps), since the daemon's
// subsystem graph is closed and known at compile time.
package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Step is one named subsystem in the boot sequence. Stop must be safe to
// call even if Start never ran or failed partway.
type Step struct {
	Name  string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// Manager drives an ordered slice of Steps start-to-finish, with reverse
// teardown.
type Manager struct {
	steps   []Step
	started []Step
	logger  *zap.Logger
}

// New constructs a Manager over steps, in the order they must start.
// Shutdown proceeds in the reverse of this order.
func New(steps []Step, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{steps: steps, logger: logger}
}

// Boot runs every step's Start in order. On the first failure it stops
// every step that already started, in reverse order, then returns the
// original error wrapped with the failing step's name.
func (m *Manager) Boot(ctx context.Context) error {
	for _, step := range m.steps {
		if ctx.Err() != nil {
			m.rollback(ctx)
			return ctx.Err()
		}

		m.logger.Info("lifecycle: starting subsystem", zap.String("step", step.Name))
		if step.Start != nil {
			if err := step.Start(ctx); err != nil {
				m.logger.Error("lifecycle: subsystem failed to start", zap.String("step", step.Name), zap.Error(err))
				m.rollback(ctx)
				return fmt.Errorf("lifecycle: start %s: %w", step.Name, err)
			}
		}
		m.started = append(m.started, step)
	}
	return nil
}

// rollback stops every step that successfully started, in reverse order,
// tolerating individual stop failures (best effort, matches teacher's
// stopReverse).
func (m *Manager) rollback(ctx context.Context) {
	for i := len(m.started) - 1; i >= 0; i-- {
		step := m.started[i]
		if step.Stop == nil {
			continue
		}
		if err := step.Stop(ctx); err != nil {
			m.logger.Warn("lifecycle: rollback stop failed", zap.String("step", step.Name), zap.Error(err))
		}
	}
	m.started = nil
}

// Shutdown stops every subsystem that Boot started, in reverse order. Every
// step's Stop is attempted regardless of earlier failures; the first error
// encountered (if any) is returned after all steps have been given a chance
// to stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	var first error
	for i := len(m.started) - 1; i >= 0; i-- {
		step := m.started[i]
		if step.Stop == nil {
			continue
		}
		m.logger.Info("lifecycle: stopping subsystem", zap.String("step", step.Name))
		if err := step.Stop(ctx); err != nil {
			m.logger.Error("lifecycle: subsystem failed to stop", zap.String("step", step.Name), zap.Error(err))
			if first == nil {
				first = fmt.Errorf("lifecycle: stop %s: %w", step.Name, err)
			}
		}
	}
	m.started = nil
	return first
}

// StepNames lists the configured boot order, for diagnostics.
func (m *Manager) StepNames() []string {
	names := make([]string, len(m.steps))
	for i, s := range m.steps {
		names[i] = s.Name
	}
	return names
}
