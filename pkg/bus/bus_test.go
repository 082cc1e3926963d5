package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/sentineld/pkg/events"
	"github.com/sentineld/sentineld/pkg/types"
)

func TestDirectedDelivery(t *testing.T) {
	b := New(nil)
	b.Send("hippocrates", "atlas", map[string]types.Value{"x": types.Number(1)}, 300_000)

	received := b.Receive("atlas", 20)
	require.Len(t, received, 1)
	assert.Equal(t, "hippocrates", received[0].FromActor)

	consumed := b.Consume("atlas", 20)
	require.Len(t, consumed, 1)

	assert.Empty(t, b.Receive("atlas", 20))
}

func TestExpirationRemovesMessageAndFiresExpiredEvent(t *testing.T) {
	eventBus := events.New()
	expired := 0
	eventBus.Subscribe(events.Filter{Kinds: []events.Kind{"bus:expired"}}, func(events.Event) { expired++ })
	b := New(eventBus)
	b.Send("a", "b", map[string]types.Value{}, 10)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, b.Receive("b", 10))

	b.Sweep()
	assert.Equal(t, 0, b.GetQueueDepth("b"))
	assert.Equal(t, 1, expired)

	b.Sweep()
	assert.Equal(t, 1, expired)
}

func TestBroadcastExcludesSender(t *testing.T) {
	b := New(nil)
	b.RegisterActor("a")
	b.RegisterActor("b")
	b.RegisterActor("c")

	b.Broadcast("a", map[string]types.Value{}, 60_000)

	assert.Empty(t, b.Receive("a", 10))
	assert.Len(t, b.Receive("b", 10), 1)
	assert.Len(t, b.Receive("c", 10), 1)
}

func TestRespondAcknowledgesOriginalAndRepliesToSender(t *testing.T) {
	b := New(nil)
	sent := b.Send("atlas", "hippocrates", map[string]types.Value{}, 60_000)

	reply, ok := b.Respond(sent.ID, "hippocrates", map[string]types.Value{"ok": types.Bool(true)}, 60_000)
	require.True(t, ok)
	assert.Equal(t, sent.ID, reply.InReplyTo)
	assert.Equal(t, "atlas", reply.ToActor)

	assert.Empty(t, b.Receive("hippocrates", 10))
	assert.Len(t, b.Receive("atlas", 10), 1)
}

func TestQueueDepthCountsOnlyUnacknowledged(t *testing.T) {
	b := New(nil)
	b.Send("a", "b", map[string]types.Value{}, 60_000)
	b.Send("a", "b", map[string]types.Value{}, 60_000)
	assert.Equal(t, 2, b.GetQueueDepth("b"))

	b.Consume("b", 1)
	assert.Equal(t, 1, b.GetQueueDepth("b"))
}
