package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridroad/trafficd/pkg/incident"
	"github.com/gridroad/trafficd/pkg/store"
)

// Default buffer size for subscriber channels.
const defaultSubscriberBuffer = 64

// StepEvent is published after every completed tick.
type StepEvent struct {
	SessionID string
	Step      int64
	SimTime   int64
	Metric    *store.Metric
}

// StateChange is published on every successful session state transition.
type StateChange struct {
	SessionID string
	Previous  State
	New       State
	At        time.Time
}

// notifier fans events out to subscribers. Delivery is in registration order
// and never blocks the tick: when a subscriber's buffer is full the event is
// dropped for that subscriber (drop-newest) and counted.
type notifier struct {
	mu           sync.Mutex
	stepSubs     []chan StepEvent
	incidentSubs []chan *incident.Incident
	stateSubs    []chan StateChange
	dropped      atomic.Uint64
}

// SubscribeSteps registers a step-completed channel.
func (n *notifier) SubscribeSteps() <-chan StepEvent {
	ch := make(chan StepEvent, defaultSubscriberBuffer)
	n.mu.Lock()
	n.stepSubs = append(n.stepSubs, ch)
	n.mu.Unlock()
	return ch
}

// SubscribeIncidents registers an incident-occurred channel.
func (n *notifier) SubscribeIncidents() <-chan *incident.Incident {
	ch := make(chan *incident.Incident, defaultSubscriberBuffer)
	n.mu.Lock()
	n.incidentSubs = append(n.incidentSubs, ch)
	n.mu.Unlock()
	return ch
}

// SubscribeStateChanges registers a state-changed channel.
func (n *notifier) SubscribeStateChanges() <-chan StateChange {
	ch := make(chan StateChange, defaultSubscriberBuffer)
	n.mu.Lock()
	n.stateSubs = append(n.stateSubs, ch)
	n.mu.Unlock()
	return ch
}

// Dropped reports how many events were discarded on full buffers.
func (n *notifier) Dropped() uint64 {
	return n.dropped.Load()
}

func (n *notifier) publishStep(ev StepEvent) {
	n.mu.Lock()
	subs := n.stepSubs
	n.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			n.dropped.Add(1)
		}
	}
}

func (n *notifier) publishIncident(inc *incident.Incident) {
	n.mu.Lock()
	subs := n.incidentSubs
	n.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- inc:
		default:
			n.dropped.Add(1)
		}
	}
}

func (n *notifier) publishStateChange(ev StateChange) {
	n.mu.Lock()
	subs := n.stateSubs
	n.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			n.dropped.Add(1)
		}
	}
}
