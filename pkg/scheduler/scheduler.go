// Package scheduler implements the Scheduler / Daemon Loop (C9): the
// central coordinator owning the priority task queue, the per-job timer
// wheel, the worker loop, and the heartbeat tick.
//
// Grounded on the teacher's services/automation.Service/Scheduler: a
// sync.RWMutex-guarded map of jobs driven by per-job goroutines on
// time.Ticker, with Start/Stop spawning and tearing down those goroutines.
// That teacher scheduler drives exactly two timer kinds (a fixed-interval
// sweep and a chain-trigger poll); this generalizes it to an arbitrary set
// of named ScheduledJobs plus the priority-ordered task drain loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sentineld/sentineld/pkg/events"
	"github.com/sentineld/sentineld/pkg/types"
)

// Config controls the scheduler's concurrency mode. Workers defaults to 1:
// a strict single-writer drain loop, matching spec.md §5's default
// description. Workers > 1 switches to an errgroup-bounded pool — the
// explicit, documented resolution of spec.md §9's "exact concurrency of
// the task worker is implicit" open question (see DESIGN.md): cross-task
// priority ordering then only holds at pop time, not across concurrently
// running handlers.
type Config struct {
	Workers          int
	HeartbeatInterval time.Duration // default 10s
	HeartbeatEvery    int           // emit daemon:heartbeat every Nth tick, default 6

	// DependencyResolved reports whether every id in a task's Dependencies
	// has finished, gating the "no unfinished dependency" pop condition of
	// spec.md §3. Nil means every task is immediately eligible (no
	// dependency tracking), matching the pre-existing behavior.
	DependencyResolved func(task types.Task) bool
}

// TaskRunner executes one popped task to completion.
type TaskRunner func(ctx context.Context, task types.Task) (types.TaskResult, error)

// Scheduler is the central coordinator of C9.
type Scheduler struct {
	cfg    Config
	runner TaskRunner
	events *events.Bus
	logger *zap.Logger

	mu        sync.Mutex
	queue     *taskQueue
	draining  bool
	jobs      map[string]*jobState
	jobOfTask map[string]*jobState // tracks which job a queued task belongs to, cleared on completion
	started   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	tick      int
}

type jobState struct {
	def     types.ScheduledJob
	ticker  *time.Ticker
	stop    chan struct{}
	running bool
	mu      sync.Mutex
}

// New constructs a Scheduler. runner executes popped tasks; events may be
// nil.
func New(cfg Config, runner TaskRunner, eventBus *events.Bus, logger *zap.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		runner:    runner,
		events:    eventBus,
		logger:    logger,
		queue:     newTaskQueue(),
		jobs:      make(map[string]*jobState),
		jobOfTask: make(map[string]*jobState),
	}
}

// DefaultJobs returns the default scheduled jobs of spec.md §4.9, all
// initially enabled.
func DefaultJobs() []types.ScheduledJob {
	mk := func(name string, taskType types.TaskType, interval time.Duration) types.ScheduledJob {
		return types.ScheduledJob{
			ID: uuid.NewString(), Name: name, TaskType: taskType,
			Priority: types.PriorityLow, IntervalMs: interval.Milliseconds(), Enabled: true,
		}
	}
	return []types.ScheduledJob{
		mk("self-evaluation", types.TaskSelfEvaluation, 24*time.Hour),
		mk("incremental-sync-pulse", types.TaskSyncPulse, time.Hour),
		mk("memory-consolidation", types.TaskMemoryConsolidate, 6*time.Hour),
		mk("health-check", types.TaskHealthCheck, 30*time.Second),
		mk("breaker-evaluation", types.TaskBreakerEvaluation, 60*time.Second),
		mk("dependency-audit", types.TaskDependencyAudit, 6*time.Hour),
		mk("introspection", types.TaskIntrospection, time.Hour),
	}
}

// Start initializes timers, publishes daemon:started, and is idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.cancel = cancel
	s.mu.Unlock()

	s.emit("daemon:started", nil)

	s.wg.Add(1)
	go s.heartbeatLoop(runCtx)

	s.mu.Lock()
	for _, j := range s.jobs {
		s.startJobLocked(runCtx, j)
	}
	s.mu.Unlock()
}

// Stop clears all timers, drains in-flight work best-effort, and is
// idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	jobs := make([]*jobState, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.stop)
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.emit("daemon:stopped", nil)
}

// AddJob registers a recurring job and returns its id. If the scheduler is
// already running and the job is enabled, its timer starts immediately.
func (s *Scheduler) AddJob(def types.ScheduledJob) string {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	js := &jobState{def: def, stop: make(chan struct{})}

	s.mu.Lock()
	s.jobs[def.ID] = js
	if s.started && def.Enabled {
		s.startJobLocked(s.runCtx, js)
	}
	s.mu.Unlock()
	return def.ID
}

func (s *Scheduler) startJobLocked(ctx context.Context, j *jobState) {
	if !j.def.Enabled || j.ticker != nil {
		return
	}
	j.ticker = time.NewTicker(time.Duration(j.def.IntervalMs) * time.Millisecond)
	s.wg.Add(1)
	go s.runJobLoop(ctx, j)
}

func (s *Scheduler) runJobLoop(ctx context.Context, j *jobState) {
	defer s.wg.Done()
	for {
		j.mu.Lock()
		tick := j.ticker.C
		j.mu.Unlock()
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case <-tick:
			s.fireJob(ctx, j)
		}
	}
}

// fireJob enqueues the job's task, dropping the fire with a warning if the
// previous invocation of this job is still running — scheduled jobs cannot
// overlap with themselves, per spec.md §5. running stays true until the
// task is actually popped and executed by the drain loop, not merely
// enqueued; runTask clears it on completion.
func (s *Scheduler) fireJob(ctx context.Context, j *jobState) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		s.logger.Warn("scheduler: dropping overlapping job fire", zap.String("job", j.def.Name))
		return
	}
	j.running = true
	j.mu.Unlock()

	now := time.Now()
	j.def.LastRun = &now

	task := types.Task{
		ID:        uuid.NewString(),
		Type:      j.def.TaskType,
		Priority:  j.def.Priority,
		Title:     j.def.Name,
		Payload:   j.def.Payload,
		CreatedAt: now,
	}

	s.mu.Lock()
	s.jobOfTask[task.ID] = j
	s.mu.Unlock()

	s.EnqueueTask(task)
}

// ToggleJob enables or disables a job by id.
func (s *Scheduler) ToggleJob(id string, enabled bool) bool {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	j.mu.Lock()
	wasEnabled := j.def.Enabled
	j.def.Enabled = enabled
	if j.ticker != nil && wasEnabled != enabled {
		// The job's loop keeps reading this ticker's channel, so the ticker
		// is paused and resumed in place rather than replaced.
		if enabled {
			j.ticker.Reset(time.Duration(j.def.IntervalMs) * time.Millisecond)
		} else {
			j.ticker.Stop()
		}
	}
	j.mu.Unlock()
	if enabled {
		s.mu.Lock()
		if s.started {
			s.startJobLocked(s.runCtx, j)
		}
		s.mu.Unlock()
	}
	return true
}

// RunJob fires id immediately, outside its regular interval.
func (s *Scheduler) RunJob(ctx context.Context, id string) bool {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.fireJob(ctx, j)
	return true
}

// EnqueueTask appends task to the priority queue and triggers processing.
// An external inbound event is expected to already have been wrapped as a
// messaging_inbound task by the caller, per spec.md §4.9.
func (s *Scheduler) EnqueueTask(task types.Task) {
	s.mu.Lock()
	s.queue.push(task)
	draining := s.draining
	s.mu.Unlock()

	if !draining {
		go s.processQueue(context.Background())
	}
}

// processQueue is re-entrant safe: only one worker drains at a moment when
// Workers==1; with Workers>1 an errgroup bounds concurrent pops.
func (s *Scheduler) processQueue(ctx context.Context) {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	if s.cfg.Workers <= 1 {
		for {
			task, ok := s.popTask()
			if !ok {
				return
			}
			s.runTask(ctx, task)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Workers)
		for {
			task, ok := s.popTask()
			if !ok {
				break
			}
			t := task
			g.Go(func() error {
				s.runTask(gctx, t)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// popTask pops the next eligible task: the highest-priority, oldest task
// whose Dependencies are all finished (spec.md §3's "popped by scheduler
// when no unfinished dependency"). Tasks skipped because a dependency is
// still outstanding are pushed back in the order they were skipped, so
// their relative ordering survives the round-trip.
func (s *Scheduler) popTask() (types.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := s.cfg.DependencyResolved
	if resolved == nil {
		return s.queue.pop()
	}

	var blocked []types.Task
	for {
		task, ok := s.queue.pop()
		if !ok {
			break
		}
		if resolved(task) {
			for _, b := range blocked {
				s.queue.push(b)
			}
			return task, true
		}
		blocked = append(blocked, task)
	}
	for _, b := range blocked {
		s.queue.push(b)
	}
	return types.Task{}, false
}

func (s *Scheduler) runTask(ctx context.Context, task types.Task) {
	defer s.clearJobRunning(task.ID)
	defer s.kick()

	if s.runner == nil {
		return
	}
	_, err := s.runner(ctx, task)
	if err != nil {
		s.logger.Error("scheduler: task run failed", zap.String("taskId", task.ID), zap.Error(err))
	}
}

// kick re-triggers processQueue after a task finishes, so a task that was
// held back behind an unfinished dependency is reconsidered as soon as that
// dependency's completion lands — without this, a dependency-blocked task
// enqueued before its dependency finishes would never be retried, since
// nothing else would call EnqueueTask again on its behalf.
func (s *Scheduler) kick() {
	s.mu.Lock()
	draining := s.draining
	empty := s.queue.len() == 0
	s.mu.Unlock()
	if !draining && !empty {
		go s.processQueue(context.Background())
	}
}

// clearJobRunning marks the scheduled job that produced task (if any) as no
// longer running, allowing its next timer fire to proceed instead of being
// dropped as an overlap.
func (s *Scheduler) clearJobRunning(taskID string) {
	s.mu.Lock()
	j, ok := s.jobOfTask[taskID]
	delete(s.jobOfTask, taskID)
	s.mu.Unlock()

	if !ok {
		return
	}
	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// UpdateInterval changes a job's firing interval by name, restarting its
// ticker if the scheduler is running. Used by internal/config's hot-reload
// watcher to apply new interval settings without a restart.
func (s *Scheduler) UpdateInterval(name string, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	s.mu.Lock()
	var match *jobState
	for _, j := range s.jobs {
		if j.def.Name == name {
			match = j
			break
		}
	}
	s.mu.Unlock()
	if match == nil {
		return false
	}

	match.mu.Lock()
	match.def.IntervalMs = interval.Milliseconds()
	if match.ticker != nil && match.def.Enabled {
		match.ticker.Reset(interval)
	}
	match.mu.Unlock()
	return true
}

// Jobs returns a snapshot of every registered job definition, for the
// gateway's job:list subchannel.
func (s *Scheduler) Jobs() []types.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ScheduledJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.def)
	}
	return out
}

// QueueDepth returns the number of tasks currently queued.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

func (s *Scheduler) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.tick++
			fire := s.tick%s.cfg.HeartbeatEvery == 0
			s.mu.Unlock()
			if fire {
				s.emit("daemon:heartbeat", nil)
			}
		}
	}
}

func (s *Scheduler) emit(kind events.Kind, fields map[string]types.Value) {
	if s.events == nil {
		return
	}
	s.events.Emit(kind, "scheduler", fields)
}
