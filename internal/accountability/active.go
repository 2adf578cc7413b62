package accountability

import (
	"context"
	"log/slog"
	"sync"

	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/propagation"
	"github.com/erazemk/inventura/internal/store"
)

// Active is a live view of one session. Pushed changes from the propagation
// hub are merged by id, the higher version winning. Operations through the
// view only touch it once they have committed.
type Active struct {
	engine *Engine
	actor  model.Actor

	mu      sync.Mutex
	session model.Session
	items   map[string]model.AccountabilityItem
	order   []string
	sub     *propagation.Subscription
	done    chan struct{}
}

func (e *Engine) newActive(actor model.Actor, s model.Session, items []model.AccountabilityItem) *Active {
	a := &Active{engine: e, actor: actor}
	a.reset(s, items)
	a.subscribe()
	return a
}

func (a *Active) reset(s model.Session, items []model.AccountabilityItem) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = s
	a.items = make(map[string]model.AccountabilityItem, len(items))
	a.order = a.order[:0]
	for _, it := range items {
		a.items[it.ID] = it
		a.order = append(a.order, it.ID)
	}
}

// subscribe attaches to the hub when it is open. Offline views simply get no
// pushes.
func (a *Active) subscribe() {
	hub := a.engine.data.Hub()
	if hub == nil {
		return
	}

	a.mu.Lock()
	if a.sub != nil {
		a.mu.Unlock()
		return
	}
	sub, err := hub.Subscribe(a.session.ID)
	if err != nil {
		a.mu.Unlock()
		slog.Debug("session view not subscribed", "session_id", a.session.ID, "error", err)
		return
	}
	a.sub = sub
	done := make(chan struct{})
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		for ev := range sub.Events() {
			a.apply(ev)
		}
		a.mu.Lock()
		if a.sub == sub {
			a.sub = nil
		}
		a.mu.Unlock()
	}()
}

func (a *Active) apply(ev propagation.Event) {
	switch ev.Type {
	case propagation.EventItem:
		if ev.Item != nil {
			a.mergeItem(*ev.Item)
		}
	case propagation.EventSession:
		if ev.Session != nil {
			a.mergeSession(*ev.Session)
		}
	}
}

func (a *Active) mergeItem(it model.AccountabilityItem) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if it.SessionID != a.session.ID {
		return
	}
	cur, ok := a.items[it.ID]
	if !ok {
		a.order = append(a.order, it.ID)
	} else if cur.Version >= it.Version {
		return
	}
	a.items[it.ID] = it
}

func (a *Active) mergeSession(s model.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s.ID != a.session.ID || s.Version <= a.session.Version {
		return
	}
	a.session = s
}

// Session returns the current session state.
func (a *Active) Session() model.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Items returns the session's items in creation order.
func (a *Active) Items() []model.AccountabilityItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.AccountabilityItem, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.items[id])
	}
	return out
}

// Item returns one item of the view.
func (a *Active) Item(id string) (model.AccountabilityItem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	it, ok := a.items[id]
	return it, ok
}

// Subscribed reports whether the view currently receives pushes.
func (a *Active) Subscribed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sub != nil
}

// MarkAccountedFor marks an item of this session.
func (a *Active) MarkAccountedFor(ctx context.Context, itemID, method string) error {
	it, s, err := a.engine.MarkAccountedFor(ctx, a.actor, itemID, method)
	if err != nil {
		return err
	}
	a.mergeItem(*it)
	a.mergeSession(*s)
	return nil
}

// ConfirmClaim reviews a pending claim on an item of this session.
func (a *Active) ConfirmClaim(ctx context.Context, itemID string, accepted bool) error {
	it, s, err := a.engine.ConfirmClaim(ctx, a.actor, itemID, accepted)
	if err != nil {
		return err
	}
	a.mergeItem(*it)
	a.mergeSession(*s)
	return nil
}

// Complete completes the session and returns its summary.
func (a *Active) Complete(ctx context.Context) (*model.Summary, error) {
	summary, err := a.engine.Complete(ctx, a.actor, a.Session().ID)
	if err != nil {
		return nil, err
	}
	if s, err := a.engine.data.Sessions().Get(ctx, summary.SessionID); err == nil {
		a.mergeSession(*s)
	}
	return summary, nil
}

// Refresh reloads the session and its items and resubscribes if the view
// lost its subscription. Pushes missed while offline are not replayed, so
// callers refresh after reconnecting.
func (a *Active) Refresh(ctx context.Context) error {
	id := a.Session().ID
	s, err := a.engine.data.Sessions().Get(ctx, id)
	if err != nil {
		return err
	}
	items, err := a.engine.data.Items().Query(ctx, store.Filter{"session_id": id})
	if err != nil {
		return err
	}
	a.reset(*s, items)
	a.subscribe()
	return nil
}

// Close detaches the view from the hub.
func (a *Active) Close() {
	a.mu.Lock()
	sub, done := a.sub, a.done
	a.mu.Unlock()
	if sub == nil {
		return
	}
	sub.Cancel()
	<-done
}
