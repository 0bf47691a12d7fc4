package api

import (
	"sync"
)

// SSEEvent is one progress event of a plan run.
type SSEEvent struct {
	Type string
	Data map[string]any
}

// Plan event types.
const (
	EventPlanStarted   = "plan.started"
	EventPlanElite     = "plan.elite"
	EventPlanCompleted = "plan.completed"
	EventPlanFailed    = "plan.failed"
)

// terminal reports whether no further events follow evt for its plan.
func terminal(evt SSEEvent) bool {
	return evt.Type == EventPlanCompleted || evt.Type == EventPlanFailed
}

type EventBroker interface {
	Subscribe(planID string) chan SSEEvent
	Unsubscribe(planID string, ch chan SSEEvent)
	Publish(planID string, evt SSEEvent)
}

// Broker fans events out to subscribers of the same process.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // planId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(planID string) chan SSEEvent {
	ch := make(chan SSEEvent, 32)
	b.mu.Lock()
	if b.subs[planID] == nil {
		b.subs[planID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[planID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(planID string, ch chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[planID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, planID)
	}
	close(ch)
}

// Publish never blocks; slow subscribers miss elite updates but a terminal
// event replaces the oldest buffered one so it is always delivered.
func (b *Broker) Publish(planID string, evt SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[planID] {
		offer(ch, evt)
	}
}

// offer sends evt without blocking. When ch is full an elite update is
// dropped, while a terminal event replaces the oldest buffered one.
func offer(ch chan SSEEvent, evt SSEEvent) {
	select {
	case ch <- evt:
		return
	default:
	}
	if !terminal(evt) {
		return
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- evt:
	default:
	}
}
