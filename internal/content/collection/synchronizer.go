// Package collection keeps a card list in step with a tab's content
// collection through child-level store events.
package collection

import (
	"context"
	"fmt"
	"sync"

	"studydeck/internal/content/model"
	"studydeck/internal/content/view"
	"studydeck/pkg/logger"
	"studydeck/store"
)

// LockState tells the synchronizer whether another session edits a card.
type LockState interface {
	IsHeldByOther(itemID string) bool
}

type Synchronizer struct {
	store store.Store
	proj  view.Projection

	mu    sync.Mutex
	locks LockState
	list  *view.List
	tabID string
	gen   uint64
	subs  []store.SubscriptionID
}

func New(s store.Store, proj view.Projection) *Synchronizer {
	return &Synchronizer{store: s, proj: proj, list: view.NewList()}
}

func (s *Synchronizer) SetLockState(l LockState) {
	s.mu.Lock()
	s.locks = l
	s.mu.Unlock()
}

func (s *Synchronizer) TabID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabID
}

// Switch tears down the listeners of the current tab, clears the view and
// subscribes to tabID. An empty tabID only tears down.
func (s *Synchronizer) Switch(ctx context.Context, tabID string) error {
	s.mu.Lock()
	old := s.subs
	s.subs = nil
	s.gen++
	gen := s.gen
	s.tabID = tabID
	s.list.Clear()
	s.proj.Clear()
	s.mu.Unlock()

	var firstErr error
	for _, id := range old {
		if err := s.store.Unsubscribe(ctx, id); err != nil {
			logger.Sugar.Warnf("Failed to unsubscribe %s: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if tabID == "" {
		return firstErr
	}

	path := model.ContentPath(tabID)
	listeners := []struct {
		kind store.EventKind
		fn   func(store.Event)
	}{
		{store.EventChildAdded, s.addedLocked},
		{store.EventChildChanged, s.changedLocked},
		{store.EventChildRemoved, s.removedLocked},
	}
	subs := make([]store.SubscriptionID, 0, len(listeners))
	for _, l := range listeners {
		id, err := s.store.Subscribe(ctx, path, l.kind, store.SubscribeOptions{OrderBy: "order"}, s.guard(gen, l.fn))
		if err != nil {
			s.release(ctx, subs)
			s.abandon(gen)
			return fmt.Errorf("subscribe %s %s: %w", path, l.kind, err)
		}
		subs = append(subs, id)
	}

	s.mu.Lock()
	if s.gen != gen {
		// another Switch won the race; these listeners belong to nobody
		s.mu.Unlock()
		s.release(ctx, subs)
		return firstErr
	}
	s.subs = subs
	s.mu.Unlock()
	return firstErr
}

// abandon undoes a failed Switch so that selecting the same tab again
// subscribes from scratch.
func (s *Synchronizer) abandon(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.gen++
	s.tabID = ""
	s.list.Clear()
	s.proj.Clear()
}

func (s *Synchronizer) release(ctx context.Context, subs []store.SubscriptionID) {
	for _, id := range subs {
		if err := s.store.Unsubscribe(ctx, id); err != nil {
			logger.Sugar.Warnf("Failed to release subscription %s: %v", id, err)
		}
	}
}

// guard drops events that belong to a previous tab.
func (s *Synchronizer) guard(gen uint64, fn func(store.Event)) store.Listener {
	return func(ev store.Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		fn(ev)
	}
}

func (s *Synchronizer) Close(ctx context.Context) error {
	return s.Switch(ctx, "")
}

func (s *Synchronizer) decode(ev store.Event) (model.Item, bool) {
	item, err := model.DecodeItem(ev.Key, ev.Value)
	if err != nil {
		logger.Sugar.Warnf("Skipping content %s: %v", ev.Key, err)
		return model.Item{}, false
	}
	return item, true
}

func (s *Synchronizer) addedLocked(ev store.Event) {
	item, ok := s.decode(ev)
	if !ok {
		return
	}
	s.insertLocked(item)
}

func (s *Synchronizer) insertLocked(item model.Item) {
	idx, added := s.list.Add(item)
	if !added {
		return
	}
	s.proj.Insert(idx, item)
	s.lockUILocked(item.ID)
}

func (s *Synchronizer) changedLocked(ev store.Event) {
	item, ok := s.decode(ev)
	if !ok {
		return
	}
	if _, known := s.list.Get(item.ID); !known {
		s.insertLocked(item)
		return
	}
	if s.proj.HasFocus(item.ID) {
		// keep the user's in-progress text; the change may only be a lock flip
		s.list.Hold(item)
		s.lockUILocked(item.ID)
		return
	}
	s.applyLocked(item)
}

func (s *Synchronizer) applyLocked(item model.Item) {
	ch := s.list.Change(item)
	if !ch.Found {
		return
	}
	if len(ch.Fields) > 0 {
		s.proj.Patch(item.ID, item, ch.Fields)
	}
	if ch.Moved() {
		s.proj.Move(item.ID, ch.To)
	}
	s.lockUILocked(item.ID)
}

func (s *Synchronizer) removedLocked(ev store.Event) {
	if s.list.Remove(ev.Key) < 0 {
		return
	}
	s.proj.Remove(ev.Key)
}

func (s *Synchronizer) lockUILocked(id string) {
	if s.locks == nil {
		return
	}
	s.proj.SetLocked(id, s.locks.IsHeldByOther(id))
}

// Flush applies remote data that was held back while the card had focus.
func (s *Synchronizer) Flush(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.list.TakePending(id); ok {
		s.applyLocked(item)
	}
}

// IDs lists the visible cards in display order.
func (s *Synchronizer) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.IDs()
}

func (s *Synchronizer) Items() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Items()
}

func (s *Synchronizer) Item(id string) (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Get(id)
}

func (s *Synchronizer) SetLocked(id string, lockedByOther bool) {
	s.proj.SetLocked(id, lockedByOther)
}
