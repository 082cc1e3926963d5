// Package breaker implements the Circuit Breaker Registry (C2): a
// per-operation-name state machine (closed/open/halfOpen) guarding
// downstream calls from cascading failure.
//
// Adapted from the teacher's infrastructure/resilience.CircuitBreaker,
// which implements the same state machine for a single operation behind a
// sync.RWMutex; this registry keys an instance of that state per operation
// name and exposes the registry-shaped API (canExecute/recordSuccess/
// recordFailure/reset/evaluate/getState) instead of the teacher's
// Execute(ctx, fn)-wrapping style. Guard below is kept as a convenience
// wrapper on top for callers that prefer that functional style.
package breaker

import (
	"sync"
	"time"

	"github.com/sentineld/sentineld/pkg/types"
)

// Config controls a single breaker's thresholds.
type Config struct {
	Threshold  int           // consecutive failures before opening; default 5
	CooldownMs int64         // time in open before probing half-open; default 5 min
	OnChange   func(name string, from, to types.BreakerState)
}

// DefaultConfig returns the spec default: threshold 5, cooldown 5 minutes.
func DefaultConfig() Config {
	return Config{Threshold: 5, CooldownMs: int64(5 * time.Minute / time.Millisecond)}
}

type breakerState struct {
	mu            sync.Mutex
	name          string
	state         types.BreakerState
	failureCount  int
	lastFailureAt *time.Time
	openedAt      *time.Time
	cfg           Config
}

// Registry owns one breakerState per operation name.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*breakerState
	cfg      Config
}

// New constructs a Registry. cfg supplies the default thresholds applied to
// operations on first use; each operation shares the same configuration
// (spec.md does not call for per-operation config).
func New(cfg Config) *Registry {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.CooldownMs <= 0 {
		cfg.CooldownMs = int64(5 * time.Minute / time.Millisecond)
	}
	return &Registry{breakers: make(map[string]*breakerState), cfg: cfg}
}

func (r *Registry) getOrCreate(name string) *breakerState {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[name]; ok {
		return b
	}
	b = &breakerState{name: name, state: types.BreakerClosed, cfg: r.cfg}
	r.breakers[name] = b
	return b
}

// CanExecute reports whether name may run now. An unknown name is treated
// as implicitly closed (true). If the breaker is open and its cooldown has
// elapsed, the query itself promotes the state to halfOpen and returns
// true — canExecute is allowed to have this side effect per spec.
func (r *Registry) CanExecute(name string) bool {
	b := r.getOrCreate(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canExecuteLocked(time.Now())
}

func (b *breakerState) canExecuteLocked(now time.Time) bool {
	switch b.state {
	case types.BreakerClosed, types.BreakerHalfOpen:
		return true
	case types.BreakerOpen:
		if b.openedAt != nil && now.Sub(*b.openedAt) >= time.Duration(b.cfg.CooldownMs)*time.Millisecond {
			b.setStateLocked(types.BreakerHalfOpen, now)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure counter and, if halfOpen, transitions to
// closed.
func (r *Registry) RecordSuccess(name string) {
	b := r.getOrCreate(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	if b.state == types.BreakerHalfOpen {
		b.setStateLocked(types.BreakerClosed, time.Now())
	}
}

// RecordFailure increments the failure counter; in closed state it opens the
// breaker once the threshold is reached, and in halfOpen it immediately
// reopens.
func (r *Registry) RecordFailure(name string) {
	b := r.getOrCreate(name)
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailureAt = &now
	switch b.state {
	case types.BreakerHalfOpen:
		b.setStateLocked(types.BreakerOpen, now)
	case types.BreakerClosed:
		if b.failureCount >= b.cfg.Threshold {
			b.setStateLocked(types.BreakerOpen, now)
		}
	}
}

// Reset unconditionally returns name to closed with zeroed counters.
func (r *Registry) Reset(name string) {
	b := r.getOrCreate(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.lastFailureAt = nil
	b.setStateLocked(types.BreakerClosed, time.Now())
}

// Evaluate walks every known breaker, promoting any open breaker whose
// cooldown has elapsed to halfOpen, and returns the set of operation names
// that changed state.
func (r *Registry) Evaluate() []string {
	now := time.Now()
	r.mu.RLock()
	all := make([]*breakerState, 0, len(r.breakers))
	for _, b := range r.breakers {
		all = append(all, b)
	}
	r.mu.RUnlock()

	var changed []string
	for _, b := range all {
		b.mu.Lock()
		before := b.state
		if b.state == types.BreakerOpen {
			b.canExecuteLocked(now)
		}
		after := b.state
		b.mu.Unlock()
		if before != after {
			changed = append(changed, b.name)
		}
	}
	return changed
}

// GetState returns a snapshot of every known breaker.
func (r *Registry) GetState() []types.CircuitBreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.CircuitBreakerState, 0, len(r.breakers))
	for _, b := range r.breakers {
		b.mu.Lock()
		out = append(out, types.CircuitBreakerState{
			OperationName: b.name,
			FailureCount:  b.failureCount,
			LastFailureAt: b.lastFailureAt,
			State:         b.state,
			OpenedAt:      b.openedAt,
			CooldownMs:    b.cfg.CooldownMs,
		})
		b.mu.Unlock()
	}
	return out
}

// setStateLocked transitions state and, on open, stamps openedAt. Callers
// must hold b.mu. OnChange fires in a goroutine, matching the teacher's own
// non-blocking hook dispatch, so a slow subscriber cannot stall the breaker.
func (b *breakerState) setStateLocked(to types.BreakerState, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == types.BreakerOpen {
		b.openedAt = &now
	} else if to == types.BreakerClosed {
		b.openedAt = nil
	}
	if b.cfg.OnChange != nil {
		name, cb := b.name, b.cfg.OnChange
		go cb(name, from, to)
	}
}

// Guard runs fn only if CanExecute(name) allows it, recording the outcome
// against the breaker. It returns ErrBreakerOpen-shaped behavior through the
// bool return rather than an apperrors value, so callers in pkg/tools can
// choose their own error wrapping.
func (r *Registry) Guard(name string, fn func() error) (ran bool, err error) {
	if !r.CanExecute(name) {
		return false, nil
	}
	err = fn()
	if err != nil {
		r.RecordFailure(name)
	} else {
		r.RecordSuccess(name)
	}
	return true, err
}
