// Package propagation fans committed item and session writes out to the
// subscribers of the owning session.
package propagation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/connectivity"
	"github.com/erazemk/inventura/internal/metrics"
	"github.com/erazemk/inventura/internal/model"
)

// EventType distinguishes item pushes from session pushes.
type EventType string

const (
	EventItem    EventType = "item"
	EventSession EventType = "session"
)

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 64

// Event is one pushed change. Exactly one of Item and Session is set.
type Event struct {
	ID        string                    `json:"id"`
	Type      EventType                 `json:"type"`
	SessionID string                    `json:"session_id"`
	At        time.Time                 `json:"at"`
	Item      *model.AccountabilityItem `json:"item,omitempty"`
	Session   *model.Session            `json:"session,omitempty"`
}

// Hub routes events by session id. A closed hub refuses subscriptions and
// discards publishes.
type Hub struct {
	buffer int

	mu   sync.Mutex
	open bool
	subs map[string]map[*Subscription]struct{}
}

// NewHub returns a closed hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[string]map[*Subscription]struct{})}
}

// Follow opens or closes the hub with the controller's mode, now and on every
// change.
func (h *Hub) Follow(c *connectivity.Controller) (cancel func()) {
	apply := func(m connectivity.Mode) {
		if m == connectivity.Online {
			h.Open()
		} else {
			h.Close()
		}
	}
	apply(c.CurrentMode())
	return c.Observe(apply)
}

// Open allows new subscriptions. Missed events are not replayed.
func (h *Hub) Open() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		h.open = true
		slog.Info("propagation hub opened")
	}
}

// Close tears down every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return
	}
	h.open = false
	n := 0
	for id, set := range h.subs {
		for s := range set {
			s.close()
			n++
		}
		delete(h.subs, id)
	}
	slog.Info("propagation hub closed", "subscriptions", n)
}

// IsOpen reports whether the hub accepts subscriptions.
func (h *Hub) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// Subscribe registers for events of sessionID.
func (h *Hub) Subscribe(sessionID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return nil, apperr.New(apperr.CodeNetworkUnavailable, "propagation is unavailable while offline")
	}
	s := &Subscription{hub: h, sessionID: sessionID, ch: make(chan Event, h.buffer)}
	set := h.subs[sessionID]
	if set == nil {
		set = make(map[*Subscription]struct{})
		h.subs[sessionID] = set
	}
	set[s] = struct{}{}
	return s, nil
}

// PublishItem pushes a committed item write.
func (h *Hub) PublishItem(it model.AccountabilityItem) {
	h.publish(Event{Type: EventItem, SessionID: it.SessionID, Item: &it})
}

// PublishSession pushes a committed session write.
func (h *Hub) PublishSession(s model.Session) {
	h.publish(Event{Type: EventSession, SessionID: s.ID, Session: &s})
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return
	}
	set := h.subs[ev.SessionID]
	if len(set) == 0 {
		return
	}
	ev.ID = ulid.Make().String()
	ev.At = time.Now().UTC()
	for s := range set {
		select {
		case s.ch <- ev:
			metrics.RecordPropagation(string(ev.Type), true)
		default:
			slog.Warn("dropping propagation event", "session_id", ev.SessionID, "type", ev.Type, "event_id", ev.ID)
			metrics.RecordPropagation(string(ev.Type), false)
		}
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.sessionID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.sessionID)
		}
	}
	s.close()
}

// Subscription receives the events of one session.
type Subscription struct {
	hub       *Hub
	sessionID string
	ch        chan Event
	once      sync.Once
}

// SessionID returns the subscribed session.
func (s *Subscription) SessionID() string { return s.sessionID }

// Events is closed when the subscription is cancelled or the hub closes.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Cancel unsubscribes. It is safe to call more than once.
func (s *Subscription) Cancel() { s.hub.remove(s) }

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}
