package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"crmdash-go/internal/constants"
	"crmdash-go/internal/monitoring"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Event is the envelope pushed to dashboards.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ string, data any) Event {
	return Event{Type: typ, Data: data, Timestamp: time.Now().UTC()}
}

// Subscription is one live dashboard connection. Messages arrive on C as
// pre-serialized JSON; Done is closed once the subscription is removed.
type Subscription struct {
	id   string
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string { return s.id }

// C delivers serialized events.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Done is closed when the broadcaster drops or unsubscribes s.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// Broadcaster fans events out to every current subscriber. Delivery is best
// effort and at most once; there is no replay for late subscribers.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]*Subscription)}
}

// Subscribe registers a subscriber whose queue holds up to buffer events.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = constants.DefaultSubscriberBuffer
	}
	s := &Subscription{
		id:   uuid.New().String(),
		ch:   make(chan []byte, buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.close()
		return s
	}
	b.subs[s.id] = s
	monitoring.DashboardSubscribers.Set(float64(len(b.subs)))
	log.WithField("subscriber", s.id).Debug("dashboard subscriber added")
	return s
}

// Unsubscribe removes s. It is safe to call more than once and concurrently
// with Broadcast.
func (b *Broadcaster) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[s.id]; ok {
		delete(b.subs, s.id)
		monitoring.DashboardSubscribers.Set(float64(len(b.subs)))
		log.WithField("subscriber", s.id).Debug("dashboard subscriber removed")
	}
	b.mu.Unlock()
	s.close()
}

// Broadcast serializes event once and offers it to every subscriber without
// blocking. A subscriber whose queue is full, or that is already gone, is
// removed; the others still receive the event. It returns the number of
// subscribers the event was queued for.
func (b *Broadcaster) Broadcast(event any) (int, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("serialize event: %w", err)
	}
	monitoring.BroadcastsTotal.Inc()

	delivered := 0
	var dropped []*Subscription
	for _, s := range b.snapshot() {
		select {
		case <-s.done:
			dropped = append(dropped, s)
			continue
		default:
		}
		select {
		case s.ch <- payload:
			delivered++
		default:
			dropped = append(dropped, s)
		}
	}
	for _, s := range dropped {
		log.WithField("subscriber", s.id).Warn("dashboard subscriber not keeping up; dropping it")
		b.Unsubscribe(s)
	}
	monitoring.BroadcastDeliveries.WithLabelValues("delivered").Add(float64(delivered))
	monitoring.BroadcastDeliveries.WithLabelValues("dropped").Add(float64(len(dropped)))
	return delivered, nil
}

func (b *Broadcaster) snapshot() []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		out = append(out, s)
	}
	return out
}

// Len returns the number of current subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close removes every subscriber. Later subscriptions start closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.closed = true
	monitoring.DashboardSubscribers.Set(0)
	b.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}
