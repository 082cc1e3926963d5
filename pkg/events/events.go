// Package events implements the process-local publish/subscribe bus (C11):
// typed event kinds (task:*, agent:*, tool:*, healing:*, daemon:*, bus:*,
// memory:*), delivered to subscribers in the order they are emitted within
// a single emitter. Cross-emitter ordering is not guaranteed.
//
// Adapted from the handler-registration-with-filter design of the teacher's
// contract-event dispatcher: a Filter narrows a Handler to the event kinds
// (and, here, prefixes) it cares about, instead of contract addresses.
package events

import (
	"sort"
	"strings"
	"sync"

	"github.com/sentineld/sentineld/pkg/types"
)

// Kind is a colon-namespaced event name, e.g. "task:created", "bus:expired".
type Kind string

// Event is one published occurrence.
type Event struct {
	Kind    Kind
	Emitter string
	Payload map[string]types.Value
}

// Handler receives events matching its registration's Filter.
type Handler func(Event)

// Filter restricts a Handler's registration to a set of exact kinds and/or
// kind prefixes (e.g. "task:" matches "task:created", "task:started", ...).
type Filter struct {
	Kinds    []Kind
	Prefixes []string
}

func (f Filter) match(k Kind) bool {
	if len(f.Kinds) == 0 && len(f.Prefixes) == 0 {
		return true
	}
	for _, want := range f.Kinds {
		if want == k {
			return true
		}
	}
	s := string(k)
	for _, p := range f.Prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

type registration struct {
	id      int64
	handler Handler
	filter  Filter
}

// Bus is the process-local pub/sub registry. Zero value is not usable; use
// New. Safe for concurrent use; the bus lock guards only the subscriber
// map and is released before handlers run, so each emitter's events reach
// every matching subscriber in the order that emitter called Emit
// (handlers are expected to be short and non-blocking, mirroring the "no
// cooperative yield inside pure logic" design note).
type Bus struct {
	mu      sync.Mutex
	nextID  int64
	handler map[int64]*registration
}

// New constructs an empty event Bus.
func New() *Bus {
	return &Bus{handler: make(map[int64]*registration)}
}

// Subscribe registers handler for events matching filter and returns an id
// usable with Unsubscribe.
func (b *Bus) Subscribe(filter Filter, handler Handler) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handler[id] = &registration{id: id, handler: handler, filter: filter}
	return id
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handler, id)
}

// Emit publishes an event to every subscriber whose filter matches. Handlers
// for a single Emit call run synchronously, in ascending registration-id
// order, so per-emitter FIFO holds as long as the caller serializes its own
// Emit calls (true for every Cn component, each of which is itself a single
// owner of its emission point).
func (b *Bus) Emit(kind Kind, emitter string, payload map[string]types.Value) {
	b.mu.Lock()
	regs := make([]*registration, 0, len(b.handler))
	for _, r := range b.handler {
		if r.filter.match(kind) {
			regs = append(regs, r)
		}
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].id < regs[j].id })
	b.mu.Unlock()

	ev := Event{Kind: kind, Emitter: emitter, Payload: payload}
	for _, r := range regs {
		r.handler(ev)
	}
}
