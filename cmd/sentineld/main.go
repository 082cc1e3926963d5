// Command sentineld boots the autonomous operations daemon: it wires every
// subsystem named in spec.md §4 into the Subsystem Lifecycle Manager's
// fixed order (C10), serves the external gateway, and drains the task
// queue until a termination signal arrives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sentineld/sentineld/internal/config"
	"github.com/sentineld/sentineld/internal/httputil"
	"github.com/sentineld/sentineld/internal/lifecycle"
	"github.com/sentineld/sentineld/internal/logging"
	"github.com/sentineld/sentineld/pkg/audit"
	"github.com/sentineld/sentineld/pkg/breaker"
	"github.com/sentineld/sentineld/pkg/bus"
	"github.com/sentineld/sentineld/pkg/events"
	"github.com/sentineld/sentineld/pkg/gateway"
	"github.com/sentineld/sentineld/pkg/governance"
	"github.com/sentineld/sentineld/pkg/healing"
	"github.com/sentineld/sentineld/pkg/health"
	"github.com/sentineld/sentineld/pkg/llm"
	"github.com/sentineld/sentineld/pkg/memory"
	"github.com/sentineld/sentineld/pkg/metrics"
	"github.com/sentineld/sentineld/pkg/notify"
	"github.com/sentineld/sentineld/pkg/orchestrator"
	"github.com/sentineld/sentineld/pkg/scheduler"
	"github.com/sentineld/sentineld/pkg/store"
	"github.com/sentineld/sentineld/pkg/tools"
	"github.com/sentineld/sentineld/pkg/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sentineld:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	output := "stdout"
	if cfg.LogToFile {
		output = "file"
	}
	logger, logLevel, err := logging.NewAtomic(logging.Config{
		Level: cfg.LogLevel, Format: cfg.LogFormat,
		Output: output, FilePrefix: "sentineld", Dir: cfg.LogDir,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := wire(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wire subsystems: %w", err)
	}

	stopReload, err := config.WatchReload(cfg, logger, func(fields config.ReloadableFields) {
		_ = logLevel.UnmarshalText([]byte(fields.LogLevel))
		d.scheduler.UpdateInterval("self-evaluation", time.Duration(fields.SelfEvaluationIntervalMs)*time.Millisecond)
		d.scheduler.UpdateInterval("incremental-sync-pulse", time.Duration(fields.SyncPulseIntervalMs)*time.Millisecond)
		d.scheduler.UpdateInterval("memory-consolidation", time.Duration(fields.MemoryConsolidationIntervalMs)*time.Millisecond)
		d.scheduler.UpdateInterval("health-check", time.Duration(fields.HealthCheckIntervalMs)*time.Millisecond)
		d.scheduler.UpdateInterval("breaker-evaluation", time.Duration(fields.BreakerEvaluationIntervalMs)*time.Millisecond)
		d.scheduler.UpdateInterval("dependency-audit", time.Duration(fields.DependencyAuditIntervalMs)*time.Millisecond)
		d.scheduler.UpdateInterval("introspection", time.Duration(fields.IntrospectionIntervalMs)*time.Millisecond)
	})
	if err != nil {
		return fmt.Errorf("watch config reload: %w", err)
	}
	defer stopReload()

	mgr := lifecycle.New(d.steps, logger)
	if err := mgr.Boot(ctx); err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	logger.Info("sentineld: boot complete", zap.Strings("steps", mgr.StepNames()))

	if abandoned := d.orchestrator.Abandoned(); len(abandoned) > 0 {
		logger.Warn("sentineld: tasks abandoned by a previous crash", zap.Int("count", len(abandoned)))
	}

	<-ctx.Done()
	logger.Info("sentineld: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("sentineld: shutdown completed with errors", zap.Error(err))
	}
	return nil
}

// daemon bundles every constructed subsystem plus the lifecycle steps that
// start/stop their runtime loops, per C10's fixed boot order.
type daemon struct {
	orchestrator *orchestrator.Orchestrator
	scheduler    *scheduler.Scheduler
	steps        []lifecycle.Step
}

func wire(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*daemon, error) {
	st, err := store.Open(ctx, cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if err := store.Migrate(cfg.StoreDSN); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	eventBus := events.New()
	ledger := audit.New(st)

	breakerReg := breaker.New(breaker.Config{
		Threshold:  cfg.BreakerFailureThreshold,
		CooldownMs: cfg.BreakerCooldownMs,
		OnChange: func(name string, from, to types.BreakerState) {
			eventBus.Emit("healing:circuit_break", "breaker", map[string]types.Value{
				"operation": types.String(name),
				"from":      types.String(string(from)),
				"to":        types.String(string(to)),
			})
		},
	})

	govTable := governance.DefaultTable()
	if path := os.Getenv("GOVERNANCE_POLICY_FILE"); path != "" {
		loaded, err := governance.LoadPolicyTable(path)
		if err != nil {
			return nil, fmt.Errorf("load governance policy table: %w", err)
		}
		govTable = loaded
	}
	govEngine := governance.New(govTable, nil, logger)

	toolRegistry := tools.New(govEngine, breakerReg, ledger)
	registerCollaboratorTools(toolRegistry, cfg, logger)
	if err := registerMarketplaceTools(ctx, toolRegistry, st, logger); err != nil {
		return nil, fmt.Errorf("register marketplace tools: %w", err)
	}

	probes := health.NewSet()
	probes.Register("process", health.ProcessProbe())
	probes.Register("memory_pressure", health.MemoryPressureProbe(cfg.HealingMemoryUnhealthyMB, cfg.HealingMemoryDegradedMB))
	probes.Register("event_loop", health.EventLoopProbe())
	probes.Register("database", health.DatabaseProbe(st))

	notifier := notify.New(cfg.SlackBotToken, cfg.SlackChannel)
	supervisor := healing.New(probes, breakerReg, notifier, eventBus, logger)
	for component, hook := range healing.StandardRecoveryHooks(
		func(ctx context.Context) error { return st.Ping(ctx) },
		runtime.GC,
		logger,
	) {
		supervisor.RegisterRecoveryHook(component, hook)
	}

	messageBus := bus.New(eventBus)

	consolidator := memory.New(st, eventBus, logger, 1000)
	evaluator := memory.NewEvaluator(st)

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	collectors := metrics.NewWithRegistry("sentineld", metricsReg)

	var llmClient llm.Client
	if cfg.AnthropicAPIKey != "" {
		llmClient = llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	}

	roles := buildRoles(toolRegistry, consolidator, evaluator, supervisor, breakerReg, messageBus, llmClient, logger)
	orch := orchestrator.New(roles, orchestrator.DefaultRouter(), eventBus)

	sched := scheduler.New(scheduler.Config{
		Workers:           cfg.SchedulerWorkers,
		HeartbeatInterval: 10 * time.Second,
		HeartbeatEvery:    6,
		DependencyResolved: func(task types.Task) bool {
			for depID := range task.Dependencies {
				dep, ok := orch.Get(depID)
				if !ok || dep.CompletedAt == nil {
					return false
				}
			}
			return true
		},
	}, func(ctx context.Context, task types.Task) (types.TaskResult, error) {
		orch.Submit(task)
		result, err := orch.ExecuteTask(ctx, task.ID)
		collectors.TasksProcessedTotal.WithLabelValues(string(task.Type), task.Priority.String(), outcome(result.Success)).Inc()
		collectors.TaskDuration.WithLabelValues(string(task.Type)).Observe(float64(result.ExecutionTimeMs) / 1000)
		return result, err
	}, eventBus, logger)
	for _, job := range scheduledJobs(cfg) {
		sched.AddJob(job)
	}

	gw := gateway.New(gateway.Deps{
		Orchestrator: orch,
		Scheduler:    sched,
		Healing:      supervisor,
		Breakers:     breakerReg,
		Ledger:       ledger,
		Consolidator: consolidator,
		Evaluator:    evaluator,
		Store:        st,
		Events:       eventBus,
		Secret:       cfg.GatewaySecret,
		CORSOrigins:  cfg.CORSOrigins,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	mux.Handle("/", gw)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.GatewayHost, cfg.GatewayPort),
		Handler: mux,
	}

	healingInterval := time.Duration(cfg.HealthCheckIntervalMs) * time.Millisecond
	breakerEvalInterval := time.Duration(cfg.BreakerEvaluationIntervalMs) * time.Millisecond

	d := &daemon{orchestrator: orch, scheduler: sched}
	d.steps = []lifecycle.Step{
		{Name: "store", Start: func(ctx context.Context) error { return st.Ping(ctx) },
			Stop: func(ctx context.Context) error { return st.Close() }},
		{Name: "healing-loop", Start: func(ctx context.Context) error {
			go supervisor.Run(ctx, healingInterval)
			return nil
		}},
		{Name: "breaker-eval-loop", Start: func(ctx context.Context) error {
			go runBreakerEvalLoop(ctx, breakerReg, eventBus, breakerEvalInterval)
			return nil
		}},
		{Name: "bus-sweep-loop", Start: func(ctx context.Context) error {
			go runBusSweepLoop(ctx, messageBus, 60*time.Second)
			return nil
		}},
		{Name: "scheduler", Start: func(ctx context.Context) error { sched.Start(ctx); return nil },
			Stop: func(ctx context.Context) error { sched.Stop(); return nil }},
		{Name: "gateway", Start: func(ctx context.Context) error {
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("gateway: listen failed", zap.Error(err))
				}
			}()
			return nil
		}, Stop: func(ctx context.Context) error { return httpServer.Shutdown(ctx) }},
	}
	return d, nil
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// runBreakerEvalLoop periodically promotes cooled-down open breakers to
// half-open and emits a healing:circuit_break event for each breaker that
// changed, per spec.md §4.2's background sweep.
func runBreakerEvalLoop(ctx context.Context, reg *breaker.Registry, eventBus *events.Bus, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed := reg.Evaluate()
			for _, name := range changed {
				eventBus.Emit("healing:circuit_break", "breaker-evaluator", map[string]types.Value{
					"operation": types.String(name),
				})
			}
		}
	}
}

func runBusSweepLoop(ctx context.Context, b *bus.Bus, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sweep()
		}
	}
}

// scheduledJobs builds the default recurring jobs with config-driven
// intervals, overriding scheduler.DefaultJobs's hardcoded defaults.
func scheduledJobs(cfg *config.Config) []types.ScheduledJob {
	jobs := scheduler.DefaultJobs()
	overrides := map[string]int64{
		"self-evaluation":        cfg.SelfEvaluationIntervalMs,
		"incremental-sync-pulse": cfg.SyncPulseIntervalMs,
		"memory-consolidation":   cfg.MemoryConsolidationIntervalMs,
		"health-check":           cfg.HealthCheckIntervalMs,
		"breaker-evaluation":     cfg.BreakerEvaluationIntervalMs,
		"dependency-audit":       cfg.DependencyAuditIntervalMs,
		"introspection":          cfg.IntrospectionIntervalMs,
	}
	for i := range jobs {
		if ms, ok := overrides[jobs[i].Name]; ok && ms > 0 {
			jobs[i].IntervalMs = ms
		}
	}
	return jobs
}

// registerCollaboratorTools registers one governed tool per configured
// collaborator family (messaging/payments/banking/trading), each a thin
// wrapper over internal/httputil's retrying client hitting the family's
// endpoint, per spec.md §6.
func registerCollaboratorTools(reg *tools.Registry, cfg *config.Config, logger *zap.Logger) {
	families := []struct {
		name string
		risk types.RiskLevel
	}{
		{"messaging", types.RiskLow},
		{"payments", types.RiskCritical},
		{"banking", types.RiskCritical},
		{"trading", types.RiskHigh},
	}
	for _, f := range families {
		cred, ok := cfg.Collaborator(f.name)
		if !ok {
			continue
		}
		endpoint, family := cred.Endpoint, f.name
		err := reg.Register(types.Tool{
			Name:             "collaborator:" + family,
			Description:      fmt.Sprintf("invoke the %s collaborator endpoint", family),
			Category:         "collaborator",
			RequiresApproval: f.risk == types.RiskCritical,
			RiskLevel:        f.risk,
		}, nil, collaboratorExecutor(endpoint, cred.Token), 5)
		if err != nil {
			logger.Warn("sentineld: failed to register collaborator tool", zap.String("family", family), zap.Error(err))
		}
	}
}

// registerMarketplaceTools loads every externally-sourced tool definition
// persisted in the marketplace_tools table and registers it under the same
// governed pipeline as any other tool. A marketplace entry only names a
// capability pending approval, not a live binding, so its executor reports
// an unbound result until an operator supplies one — the registration
// itself is what lets governance/breaker/audit reason about the tool ahead
// of that binding existing.
func registerMarketplaceTools(ctx context.Context, reg *tools.Registry, st store.Store, logger *zap.Logger) error {
	marketTools, err := st.ListMarketplaceTools(ctx)
	if err != nil {
		return err
	}
	for _, mt := range marketTools {
		name := mt.Name
		err := reg.Register(types.Tool{
			Name: name, Description: mt.Description, Category: mt.Category,
			RequiresApproval: mt.RequiresApproval, RiskLevel: mt.RiskLevel,
		}, nil, func(ctx context.Context, input types.Value) types.ToolResult {
			return types.ToolResult{Success: false, Error: fmt.Sprintf("marketplace tool %q has no execution binding", name)}
		}, 1)
		if err != nil {
			logger.Warn("sentineld: failed to register marketplace tool", zap.String("tool", name), zap.Error(err))
		}
	}
	return nil
}

func collaboratorExecutor(endpoint, token string) tools.ExecuteFunc {
	client := httputil.NewRetryingClient(httputil.RetryConfig{})
	return func(ctx context.Context, input types.Value) types.ToolResult {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			return types.ToolResult{Success: false, Error: err.Error()}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := client.Do(req)
		if err != nil {
			return types.ToolResult{Success: false, Error: err.Error()}
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return types.ToolResult{Success: false, Error: resp.Status}
		}
		return types.ToolResult{Success: true, Data: types.String(resp.Status)}
	}
}

// summarizeSelfEvaluation asks the configured LLM backend to summarize a
// self-evaluation or introspection task's payload in one sentence, falling
// back to the task type name when no backend is configured or the call
// fails — a self-evaluation is never blocked on LLM availability.
func summarizeSelfEvaluation(ctx context.Context, client llm.Client, task types.Task, logger *zap.Logger) string {
	if client == nil {
		return string(task.Type)
	}
	resp, err := client.Complete(ctx, llm.Request{
		SystemPrompt: "Summarize this self-evaluation task's payload in one sentence for an operations audit log.",
		Messages:     []llm.Message{{Role: "user", Content: fmt.Sprintf("%s: %v", task.Title, task.Payload)}},
		MaxTokens:    256,
	})
	if err != nil {
		logger.Warn("diagnostician: llm summary failed, falling back to task type", zap.Error(err))
		return string(task.Type)
	}
	return resp.Text
}

// buildRoles wires the orchestrator's fixed AgentRole table (spec.md §4.8)
// to the subsystems each role's tasks actually drive.
func buildRoles(
	reg *tools.Registry,
	consolidator *memory.Consolidator,
	evaluator *memory.Evaluator,
	supervisor *healing.Supervisor,
	breakerReg *breaker.Registry,
	messageBus *bus.Bus,
	llmClient llm.Client,
	logger *zap.Logger,
) map[types.AgentRole]orchestrator.RoleDescriptor {
	return map[types.AgentRole]orchestrator.RoleDescriptor{
		types.RoleArchivist: {
			Role: types.RoleArchivist, Identity: "archivist",
			Handler: orchestrator.HandlerFunc(func(ctx context.Context, task types.Task, _ []string) types.TaskResult {
				n, err := consolidator.Consolidate(ctx)
				if err != nil {
					return types.TaskResult{Success: false, Errors: []string{err.Error()}}
				}
				return types.TaskResult{Success: true, Output: types.Number(float64(n))}
			}),
		},
		types.RoleDiagnostician: {
			Role: types.RoleDiagnostician, Identity: "diagnostician",
			Handler: orchestrator.HandlerFunc(func(ctx context.Context, task types.Task, _ []string) types.TaskResult {
				summary := summarizeSelfEvaluation(ctx, llmClient, task, logger)
				eval, err := evaluator.Record(ctx, summary, task.Payload)
				if err != nil {
					return types.TaskResult{Success: false, Errors: []string{err.Error()}}
				}
				return types.TaskResult{Success: true, Output: types.Number(float64(eval.ID))}
			}),
		},
		types.RoleSentinel: {
			Role: types.RoleSentinel, Identity: "sentinel",
			Handler: orchestrator.HandlerFunc(func(ctx context.Context, task types.Task, _ []string) types.TaskResult {
				switch task.Type {
				case types.TaskBreakerEvaluation:
					breakerReg.Evaluate()
				default:
					supervisor.RunCycle(ctx)
				}
				return types.TaskResult{Success: true, Output: types.Null()}
			}),
		},
		types.RoleMessenger: {
			Role: types.RoleMessenger, Identity: "messenger",
			Handler: orchestrator.HandlerFunc(func(ctx context.Context, task types.Task, _ []string) types.TaskResult {
				messageBus.Broadcast("messenger", task.Payload, 60_000)
				return types.TaskResult{Success: true, Output: types.Null()}
			}),
		},
		types.RoleOrchestrator: {
			Role: types.RoleOrchestrator, Identity: "orchestrator",
			Handler: orchestrator.HandlerFunc(func(ctx context.Context, task types.Task, allowed []string) types.TaskResult {
				toolName, _ := task.Payload["tool"].AsString()
				result := reg.Invoke(ctx, tools.InvokeRequest{
					AgentID:  string(task.AssignedRole),
					ToolName: toolName,
					Input:    types.Map(task.Payload),
					Target:   task.Title,
				})
				if !result.Success {
					return types.TaskResult{Success: false, Errors: []string{result.Error}}
				}
				return types.TaskResult{Success: true, Output: result.Data}
			}),
		},
	}
}
