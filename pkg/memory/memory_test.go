package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/sentineld/pkg/store"
	"github.com/sentineld/sentineld/pkg/types"
)

func TestConsolidateFlushesBufferedFacts(t *testing.T) {
	st := store.NewMemory()
	c := New(st, nil, nil, 10)

	c.Observe(Fact{Namespace: "agent", Type: "observation", Content: map[string]types.Value{
		"note": types.String("first"),
	}})
	c.Observe(Fact{Namespace: "agent", Type: "observation", Content: map[string]types.Value{
		"note": types.String("second"),
	}})
	assert.Equal(t, 2, c.Pending())

	stored, err := c.Consolidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, 0, c.Pending())

	recs, err := c.Recall(context.Background(), "agent", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestObserveDropsOldestWhenBufferFull(t *testing.T) {
	st := store.NewMemory()
	c := New(st, nil, nil, 2)

	c.Observe(Fact{Namespace: "a", Type: "t", Content: nil})
	c.Observe(Fact{Namespace: "b", Type: "t", Content: nil})
	c.Observe(Fact{Namespace: "c", Type: "t", Content: nil})

	assert.Equal(t, 2, c.Pending())
	_, err := c.Consolidate(context.Background())
	require.NoError(t, err)

	recsA, _ := c.Recall(context.Background(), "a", 10)
	assert.Empty(t, recsA)
	recsC, _ := c.Recall(context.Background(), "c", 10)
	assert.Len(t, recsC, 1)
}

func TestRecallReturnsEmptyForUnknownNamespace(t *testing.T) {
	st := store.NewMemory()
	c := New(st, nil, nil, 10)
	recs, err := c.Recall(context.Background(), "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestEvaluatorRecordsAndRecallsEvaluations(t *testing.T) {
	st := store.NewMemory()
	ev := NewEvaluator(st)

	saved, err := ev.Record(context.Background(), "all systems nominal", map[string]types.Value{
		"breakerTrips": types.Number(0),
	})
	require.NoError(t, err)
	assert.Equal(t, "all systems nominal", saved.Summary)
	assert.NotZero(t, saved.ID)

	recent, err := ev.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "all systems nominal", recent[0].Summary)
}
