// Package memory implements the daemon's durable memory consolidation and
// self-evaluation passes. Facts observed during normal operation accumulate
// in a small in-process buffer (namespaced, mutex-guarded) and are flushed
// to the persistent store on the scheduler's memory-consolidation tick
// rather than written synchronously on every observation.
//
// Grounded on the teacher's infrastructure/state.PersistentState: a
// keyPrefix-namespaced, mutex-guarded accumulator with OnChange hooks,
// generalized here from a single key/value backend to typed memory records
// flushed in namespaced batches against pkg/store.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentineld/sentineld/pkg/events"
	"github.com/sentineld/sentineld/pkg/store"
	"github.com/sentineld/sentineld/pkg/types"
)

// Fact is one unconsolidated observation waiting for the next flush.
type Fact struct {
	Namespace string
	Type      string
	Content   map[string]types.Value
}

// Consolidator buffers facts in memory and periodically flushes them to a
// MemoryStore, emitting a memory:stored event per flushed record.
type Consolidator struct {
	mu      sync.Mutex
	buf     []Fact
	store   store.MemoryStore
	events  *events.Bus
	logger  *zap.Logger
	maxBuf  int
}

// New constructs a Consolidator. maxBuf bounds the in-memory buffer; once
// reached, the oldest unconsolidated fact is dropped with a warning rather
// than growing unbounded — consolidation is lossy by design, the audit
// ledger remains the durable record of what actually happened.
func New(st store.MemoryStore, eventBus *events.Bus, logger *zap.Logger, maxBuf int) *Consolidator {
	if maxBuf <= 0 {
		maxBuf = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{store: st, events: eventBus, logger: logger, maxBuf: maxBuf}
}

// Observe appends a fact to the pending buffer without touching the store.
func (c *Consolidator) Observe(f Fact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) >= c.maxBuf {
		c.logger.Warn("memory: buffer full, dropping oldest unconsolidated fact",
			zap.String("namespace", c.buf[0].Namespace))
		c.buf = c.buf[1:]
	}
	c.buf = append(c.buf, f)
}

// Pending reports how many facts are waiting for the next Consolidate call.
func (c *Consolidator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Consolidate flushes every buffered fact to the store as a MemoryRecord
// and clears the buffer, regardless of individual per-record failures (a
// failed write is logged and skipped, matching spec.md's best-effort
// persistence posture for non-audit state).
func (c *Consolidator) Consolidate(ctx context.Context) (int, error) {
	c.mu.Lock()
	pending := c.buf
	c.buf = nil
	c.mu.Unlock()

	now := time.Now()
	stored := 0
	var firstErr error
	for _, f := range pending {
		rec := types.MemoryRecord{Namespace: f.Namespace, Type: f.Type, Content: f.Content, CreatedAt: now}
		if err := c.store.SaveMemory(ctx, rec); err != nil {
			c.logger.Warn("memory: consolidation write failed", zap.Error(err), zap.String("namespace", f.Namespace))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored++
		c.emit("memory:stored", map[string]types.Value{
			"namespace": types.String(f.Namespace),
			"type":      types.String(f.Type),
		})
	}
	if stored == 0 && firstErr != nil {
		return 0, fmt.Errorf("memory: consolidate: %w", firstErr)
	}
	return stored, nil
}

// Recall returns up to n most recent records in a namespace, emitting a
// memory:recalled event per call.
func (c *Consolidator) Recall(ctx context.Context, namespace string, n int) ([]types.MemoryRecord, error) {
	recs, err := c.store.RecentMemories(ctx, namespace, n)
	if err != nil {
		return nil, fmt.Errorf("memory: recall %s: %w", namespace, err)
	}
	c.emit("memory:recalled", map[string]types.Value{
		"namespace": types.String(namespace),
		"count":     types.Number(float64(len(recs))),
	})
	return recs, nil
}

func (c *Consolidator) emit(kind events.Kind, fields map[string]types.Value) {
	if c.events == nil {
		return
	}
	c.events.Emit(kind, "memory", fields)
}
