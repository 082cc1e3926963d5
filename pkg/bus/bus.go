// Package bus implements the Inter-Handler Message Bus (C4): per-actor
// mailboxes with at-least-once directed/broadcast delivery, TTL expiry and
// acknowledgement.
//
// Adapted from the teacher's system/events/dispatcher.go handler-
// registration pattern: that dispatcher keys handlers by contract/event
// filters and routes accordingly; here the same "registration + filtered
// delivery" idea is turned inside-out into "mailbox keyed by actor name,"
// with broadcast and expiration events re-published onto the shared Event
// Bus (pkg/events) rather than delivered to a typed EventHandler.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentineld/sentineld/pkg/events"
	"github.com/sentineld/sentineld/pkg/types"
)

const (
	ackCap        = 5_000
	ackTruncateTo = 2_500
)

// Bus owns every actor's mailbox.
type Bus struct {
	mu        sync.Mutex
	mailboxes map[string][]*types.BusMessage
	acked     map[string]struct{}
	ackOrder  []string
	events    *events.Bus
}

// New constructs an empty Bus. events may be nil if no subscriber cares
// about bus:* events (tests commonly pass nil).
func New(eventBus *events.Bus) *Bus {
	return &Bus{
		mailboxes: make(map[string][]*types.BusMessage),
		acked:     make(map[string]struct{}),
		events:    eventBus,
	}
}

// RegisterActor ensures a mailbox exists for name, a no-op if it already
// does.
func (b *Bus) RegisterActor(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerLocked(name)
}

func (b *Bus) registerLocked(name string) {
	if _, ok := b.mailboxes[name]; !ok {
		b.mailboxes[name] = nil
	}
}

// Send enqueues payload into to's mailbox.
func (b *Bus) Send(from, to string, payload map[string]types.Value, ttlMs int64) types.BusMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendLocked(from, to, types.MessageRequest, payload, ttlMs, "")
}

func (b *Bus) sendLocked(from, to string, kind types.MessageKind, payload map[string]types.Value, ttlMs int64, inReplyTo string) types.BusMessage {
	b.registerLocked(to)
	msg := &types.BusMessage{
		ID:        uuid.NewString(),
		FromActor: from,
		ToActor:   to,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
		TTLMs:     ttlMs,
		InReplyTo: inReplyTo,
	}
	b.mailboxes[to] = append(b.mailboxes[to], msg)
	return *msg
}

// Respond finds the referenced message (scanning mailboxes), sends a reply
// to its original sender annotated with inReplyTo, and acknowledges the
// original.
func (b *Bus) Respond(originalID, from string, payload map[string]types.Value, ttlMs int64) (types.BusMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var original *types.BusMessage
	for _, msgs := range b.mailboxes {
		for _, m := range msgs {
			if m.ID == originalID {
				original = m
				break
			}
		}
		if original != nil {
			break
		}
	}
	if original == nil {
		return types.BusMessage{}, false
	}

	b.acknowledgeLocked(originalID)
	reply := b.sendLocked(from, original.FromActor, types.MessageResponse, payload, ttlMs, originalID)
	return reply, true
}

// Broadcast enqueues payload into every known mailbox except from's, and
// emits a bus:broadcast event.
func (b *Bus) Broadcast(from string, payload map[string]types.Value, ttlMs int64) {
	b.mu.Lock()
	var targets []string
	for actor := range b.mailboxes {
		if actor != from {
			targets = append(targets, actor)
		}
	}
	for _, to := range targets {
		b.sendLocked(from, to, types.MessageBroadcast, payload, ttlMs, "")
	}
	b.mu.Unlock()

	if b.events != nil {
		b.events.Emit(events.Kind("bus:broadcast"), from, payload)
	}
}

// Receive is a non-destructive peek into actor's mailbox, filtered by
// unacknowledged and unexpired, returning at most limit messages in
// arrival order.
func (b *Bus) Receive(actor string, limit int) []types.BusMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receiveLocked(actor, limit, false)
}

// Consume is Receive followed by acknowledging every returned message.
func (b *Bus) Consume(actor string, limit int) []types.BusMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receiveLocked(actor, limit, true)
}

func (b *Bus) receiveLocked(actor string, limit int, ack bool) []types.BusMessage {
	now := time.Now()
	var out []types.BusMessage
	for _, m := range b.mailboxes[actor] {
		if _, acked := b.acked[m.ID]; acked {
			continue
		}
		if now.Sub(m.Timestamp) >= time.Duration(m.TTLMs)*time.Millisecond {
			continue
		}
		out = append(out, *m)
		if ack {
			b.acknowledgeLocked(m.ID)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Acknowledge marks id as delivered so it no longer surfaces from
// Receive/Consume.
func (b *Bus) Acknowledge(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acknowledgeLocked(id)
}

func (b *Bus) acknowledgeLocked(id string) {
	if _, ok := b.acked[id]; ok {
		return
	}
	b.acked[id] = struct{}{}
	b.ackOrder = append(b.ackOrder, id)
	if len(b.ackOrder) > ackCap {
		drop := b.ackOrder[:len(b.ackOrder)-ackTruncateTo]
		for _, old := range drop {
			delete(b.acked, old)
		}
		b.ackOrder = b.ackOrder[len(b.ackOrder)-ackTruncateTo:]
	}
}

// GetQueueDepth returns the number of unacknowledged messages for actor.
func (b *Bus) GetQueueDepth(actor string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	depth := 0
	for _, m := range b.mailboxes[actor] {
		if _, acked := b.acked[m.ID]; !acked {
			depth++
		}
	}
	return depth
}

// Sweep drops expired messages from every mailbox, emitting a bus:expired
// event per drop. Intended to run on a 60s ticker (SPEC_FULL.md / spec.md
// §4.4's "background maintenance, every 60s").
func (b *Bus) Sweep() {
	now := time.Now()
	b.mu.Lock()
	type expiredMsg struct {
		actor string
		msg   types.BusMessage
	}
	var expired []expiredMsg
	for actor, msgs := range b.mailboxes {
		kept := msgs[:0]
		for _, m := range msgs {
			if now.Sub(m.Timestamp) >= time.Duration(m.TTLMs)*time.Millisecond {
				expired = append(expired, expiredMsg{actor: actor, msg: *m})
				continue
			}
			kept = append(kept, m)
		}
		b.mailboxes[actor] = kept
	}
	b.mu.Unlock()

	if b.events == nil {
		return
	}
	for _, e := range expired {
		b.events.Emit(events.Kind("bus:expired"), e.actor, map[string]types.Value{
			"messageId": types.String(e.msg.ID),
			"fromActor": types.String(e.msg.FromActor),
		})
	}
}
