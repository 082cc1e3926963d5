// Package audit implements the Audit Ledger (C1): an append-only,
// SHA-256 hash-chained log of governed actions with integrity
// verification.
//
// Grounded on the teacher's infrastructure/secrets.Manager, which persists
// through a narrow injected Repository and writes an audit log entry for
// every secret access attempt whether it succeeds or fails — the same
// "every governed operation leaves exactly one trail row" discipline this
// ledger generalizes to the whole daemon.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentineld/sentineld/internal/apperrors"
	"github.com/sentineld/sentineld/pkg/store"
	"github.com/sentineld/sentineld/pkg/types"
)

// GenesisHash is the previousHash value for the first entry in the chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

func init() {
	// Genesis must be exactly 64 hex characters; guard against a typo above.
	if len(GenesisHash) != 64 {
		panic(fmt.Sprintf("audit: GenesisHash must be 64 chars, got %d", len(GenesisHash)))
	}
}

// Ledger serializes writes per instance (one-writer semantics) and
// delegates persistence to an injected store.AuditStore.
type Ledger struct {
	mu    sync.Mutex
	store store.AuditStore
}

// New constructs a Ledger backed by s.
func New(s store.AuditStore) *Ledger {
	return &Ledger{store: s}
}

// Record appends a new entry. The sequence number is one greater than the
// previously persisted maximum (or 1 for an empty ledger); the hash chains
// from the previous entry's hash. Record is serialized with an internal
// mutex so concurrent callers cannot duplicate a sequence number, then the
// store's own atomic append closes the remaining race with any other
// ledger instance sharing the same store.
func (l *Ledger) Record(ctx context.Context, actor, action, target string, details map[string]types.Value) (types.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	maxSeq, err := l.store.MaxSequence(ctx)
	if err != nil {
		return types.AuditEntry{}, apperrors.NewFatalError("audit.record", err)
	}

	prevHash := GenesisHash
	if maxSeq > 0 {
		recent, err := l.store.RecentAudit(ctx, 1)
		if err != nil {
			return types.AuditEntry{}, apperrors.NewFatalError("audit.record", err)
		}
		if len(recent) == 1 {
			prevHash = recent[0].Hash
		}
	}

	now := time.Now().UTC()
	entry := types.AuditEntry{
		ID:           uuid.NewString(),
		Timestamp:    now,
		Actor:        actor,
		Action:       action,
		Target:       target,
		Details:      details,
		PreviousHash: prevHash,
	}
	hash, err := computeHash(prevHash, maxSeq+1, now, actor, action, target, details)
	if err != nil {
		return types.AuditEntry{}, apperrors.NewFatalError("audit.record", err)
	}
	entry.Hash = hash

	persisted, err := l.store.AppendAudit(ctx, entry)
	if err != nil {
		// A write failure is fatal to the caller: the action must not be
		// considered recorded.
		return types.AuditEntry{}, apperrors.NewFatalError("audit.record", err)
	}
	return persisted, nil
}

// computeHash implements the canonical hash formula of spec.md §3:
// SHA-256 over previousHash | sequenceNumber | ISO-8601 timestamp | actor |
// action | target | canonical-JSON-details.
func computeHash(previousHash string, sequenceNumber int64, timestamp time.Time, actor, action, target string, details map[string]types.Value) (string, error) {
	canonicalDetails, err := types.Canonical(details)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize details: %w", err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%s|%s|%s|%s",
		previousHash, sequenceNumber, timestamp.Format(time.RFC3339Nano), actor, action, target, canonicalDetails)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyResult is the outcome of verifyChain.
type VerifyResult struct {
	Valid        bool
	BrokenAt     int64 // 0 if Valid
	TotalEntries int64
}

// VerifyChain replays every persisted row in ascending sequence order,
// checking previousHash equals the running hash and recomputing each hash,
// reporting the first mismatch.
func (l *Ledger) VerifyChain(ctx context.Context) (VerifyResult, error) {
	entries, err := l.store.AllAudit(ctx)
	if err != nil {
		return VerifyResult{}, apperrors.NewTransientError("audit.verify", err)
	}

	running := GenesisHash
	for _, e := range entries {
		if e.PreviousHash != running {
			return VerifyResult{Valid: false, BrokenAt: e.SequenceNumber, TotalEntries: int64(len(entries))}, nil
		}
		recomputed, err := computeHash(e.PreviousHash, e.SequenceNumber, e.Timestamp, e.Actor, e.Action, e.Target, e.Details)
		if err != nil {
			return VerifyResult{}, apperrors.NewFatalError("audit.verify", err)
		}
		if recomputed != e.Hash {
			return VerifyResult{Valid: false, BrokenAt: e.SequenceNumber, TotalEntries: int64(len(entries))}, nil
		}
		running = e.Hash
	}
	return VerifyResult{Valid: true, TotalEntries: int64(len(entries))}, nil
}

// GetRecent returns the n most recent entries in ascending sequence order.
func (l *Ledger) GetRecent(ctx context.Context, n int) ([]types.AuditEntry, error) {
	entries, err := l.store.RecentAudit(ctx, n)
	if err != nil {
		return nil, apperrors.NewTransientError("audit.getRecent", err)
	}
	return entries, nil
}

// GetByActor returns the n most recent entries for actor, ascending.
func (l *Ledger) GetByActor(ctx context.Context, actor string, n int) ([]types.AuditEntry, error) {
	entries, err := l.store.AuditByActor(ctx, actor, n)
	if err != nil {
		return nil, apperrors.NewTransientError("audit.getByActor", err)
	}
	return entries, nil
}

// GetByDateRange returns up to n entries between start and end, ascending.
func (l *Ledger) GetByDateRange(ctx context.Context, start, end time.Time, n int) ([]types.AuditEntry, error) {
	entries, err := l.store.AuditByDateRange(ctx, start, end, n)
	if err != nil {
		return nil, apperrors.NewTransientError("audit.getByDateRange", err)
	}
	return entries, nil
}

// Count returns the total number of persisted entries.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	n, err := l.store.CountAudit(ctx)
	if err != nil {
		return 0, apperrors.NewTransientError("audit.count", err)
	}
	return n, nil
}
