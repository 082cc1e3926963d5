package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitDeliversOnlyToMatchingKindFilter(t *testing.T) {
	b := New()
	var got []Kind
	b.Subscribe(Filter{Kinds: []Kind{"task:created"}}, func(ev Event) { got = append(got, ev.Kind) })

	b.Emit("task:created", "orchestrator", nil)
	b.Emit("task:started", "orchestrator", nil)

	assert.Equal(t, []Kind{"task:created"}, got)
}

func TestEmitDeliversToPrefixFilter(t *testing.T) {
	b := New()
	var got []Kind
	b.Subscribe(Filter{Prefixes: []string{"healing:"}}, func(ev Event) { got = append(got, ev.Kind) })

	b.Emit("healing:health_check", "healing", nil)
	b.Emit("healing:circuit_break", "healing", nil)
	b.Emit("task:created", "orchestrator", nil)

	assert.Equal(t, []Kind{"healing:health_check", "healing:circuit_break"}, got)
}

func TestEmptyFilterMatchesEveryKind(t *testing.T) {
	b := New()
	count := 0
	b.Subscribe(Filter{}, func(ev Event) { count++ })

	b.Emit("task:created", "x", nil)
	b.Emit("bus:expired", "x", nil)

	assert.Equal(t, 2, count)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	id := b.Subscribe(Filter{}, func(ev Event) { count++ })

	b.Emit("task:created", "x", nil)
	b.Unsubscribe(id)
	b.Emit("task:created", "x", nil)

	assert.Equal(t, 1, count)
}

func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	b := New()
	var order []string
	b.Subscribe(Filter{}, func(ev Event) { order = append(order, "first") })
	b.Subscribe(Filter{}, func(ev Event) { order = append(order, "second") })

	b.Emit("task:created", "x", nil)

	assert.Equal(t, []string{"first", "second"}, order)
}
