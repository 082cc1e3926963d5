package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/sentineld/pkg/store"
	"github.com/sentineld/sentineld/pkg/types"
)

func TestVerifyChainValidAfterSequentialAppends(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	l := New(mem)

	_, err := l.Record(ctx, "system", "boot", "app", map[string]types.Value{})
	require.NoError(t, err)
	_, err = l.Record(ctx, "a1", "task_start", "t1", map[string]types.Value{})
	require.NoError(t, err)
	_, err = l.Record(ctx, "a2", "tool_invoke", "search", map[string]types.Value{"query": types.String("test")})
	require.NoError(t, err)

	res, err := l.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.EqualValues(t, 3, res.TotalEntries)
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	l := New(mem)

	_, err := l.Record(ctx, "system", "boot", "app", map[string]types.Value{})
	require.NoError(t, err)
	_, err = l.Record(ctx, "a1", "task_start", "t1", map[string]types.Value{})
	require.NoError(t, err)
	_, err = l.Record(ctx, "a2", "tool_invoke", "search", map[string]types.Value{"query": types.String("test")})
	require.NoError(t, err)

	mem.TamperRow(2, func(e *types.AuditEntry) { e.Action = "tampered" })

	res, err := l.VerifyChain(ctx)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.EqualValues(t, 2, res.BrokenAt)
}

func TestSequenceNumbersAreGaplessAndMonotone(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	l := New(mem)

	for i := 0; i < 10; i++ {
		entry, err := l.Record(ctx, "system", "tick", "daemon", map[string]types.Value{})
		require.NoError(t, err)
		assert.EqualValues(t, i+1, entry.SequenceNumber)
	}
}

func TestGenesisPreviousHashIsSixtyFourZeros(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	l := New(mem)

	entry, err := l.Record(ctx, "system", "boot", "app", map[string]types.Value{})
	require.NoError(t, err)
	assert.Equal(t, GenesisHash, entry.PreviousHash)
}

func TestGetRecentReturnsAscendingOrder(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	l := New(mem)

	for i := 0; i < 5; i++ {
		_, err := l.Record(ctx, "system", "tick", "daemon", map[string]types.Value{})
		require.NoError(t, err)
	}

	recent, err := l.GetRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.EqualValues(t, 3, recent[0].SequenceNumber)
	assert.EqualValues(t, 5, recent[2].SequenceNumber)
}
