// Package session wires the synchronizer, lock manager, commit and reorder
// pipelines of one editor onto a single store connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"studydeck/internal/content/collection"
	"studydeck/internal/content/edit"
	"studydeck/internal/content/lock"
	"studydeck/internal/content/model"
	"studydeck/internal/content/repository"
	"studydeck/internal/content/service"
	"studydeck/internal/content/view"
	"studydeck/pkg/logger"
	"studydeck/store"
)

var (
	ErrNotAdmin    = errors.New("admin mode required")
	ErrNoActiveTab = errors.New("no active tab")
	ErrLocked      = errors.New("content is being edited by another session")
)

// TabView receives the ordered tab bar whenever it changes.
type TabView interface {
	SetTabs(tabs []model.Tab, activeID string)
}

type Session struct {
	id    string
	store store.Store
	proj  view.Projection

	State   *AppState
	Content *service.ContentService
	syncer  *collection.Synchronizer
	locks   *lock.Manager
	commits *edit.Committer

	selectMu sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	tabView TabView
	tabs    map[string]model.Tab
	tabSubs []store.SubscriptionID
}

func New(s store.Store, proj view.Projection) (*Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	locks := lock.NewManager(s, id.String())
	syncer := collection.New(s, proj)
	syncer.SetLockState(locks)
	locks.SetView(syncer)

	return &Session{
		id:      id.String(),
		store:   s,
		proj:    proj,
		State:   &AppState{},
		Content: service.NewContentService(repository.NewContentRepository(s)),
		syncer:  syncer,
		locks:   locks,
		commits: edit.NewCommitter(s, locks),
		tabs:    make(map[string]model.Tab),
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Locks() *lock.Manager { return s.locks }

func (s *Session) Items() []model.Item { return s.syncer.Items() }

func (s *Session) SetTabView(v TabView) {
	s.mu.Lock()
	s.tabView = v
	s.mu.Unlock()
}

// Start begins tracking locks and tabs. ctx bounds the subscriptions made
// from event callbacks, so it should live as long as the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.proj.SetEditable(s.State.IsAdmin())
	if err := s.locks.Start(ctx); err != nil {
		return err
	}
	handlers := []struct {
		kind store.EventKind
		fn   store.Listener
	}{
		{store.EventChildAdded, s.onTab},
		{store.EventChildChanged, s.onTab},
		{store.EventChildRemoved, s.onTabRemoved},
	}
	for _, h := range handlers {
		id, err := s.store.Subscribe(ctx, model.TabsRoot, h.kind, store.SubscribeOptions{OrderBy: "order"}, h.fn)
		if err != nil {
			return fmt.Errorf("subscribe %s %s: %w", model.TabsRoot, h.kind, err)
		}
		s.mu.Lock()
		s.tabSubs = append(s.tabSubs, id)
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) onTab(ev store.Event) {
	tab, err := model.DecodeTab(ev.Key, ev.Value)
	if err != nil {
		logger.Sugar.Warnf("Skipping tab %s: %v", ev.Key, err)
		return
	}
	s.mu.Lock()
	s.tabs[tab.ID] = tab
	s.mu.Unlock()
	if s.State.CurrentTab() == "" {
		s.fallback()
		return
	}
	s.renderTabs(s.Tabs(), s.State.CurrentTab())
}

func (s *Session) onTabRemoved(ev store.Event) {
	s.mu.Lock()
	delete(s.tabs, ev.Key)
	s.mu.Unlock()
	if s.State.CurrentTab() == ev.Key {
		s.fallback()
		return
	}
	s.renderTabs(s.Tabs(), s.State.CurrentTab())
}

// Tabs lists the known tabs by order.
func (s *Session) Tabs() []model.Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	tabs := make([]model.Tab, 0, len(s.tabs))
	for _, t := range s.tabs {
		tabs = append(tabs, t)
	}
	model.SortTabs(tabs)
	return tabs
}

// fallback activates the first tab by order, or none when there are no tabs.
func (s *Session) fallback() {
	next := ""
	if tabs := s.Tabs(); len(tabs) > 0 {
		next = tabs[0].ID
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if err := s.SelectTab(ctx, next); err != nil {
		logger.Sugar.Errorf("Failed to switch to tab %q: %v", next, err)
	}
}

func (s *Session) renderTabs(tabs []model.Tab, active string) {
	s.mu.Lock()
	v := s.tabView
	s.mu.Unlock()
	if v != nil {
		v.SetTabs(tabs, active)
	}
}

// SelectTab makes tabID the active tab and resubscribes the card list.
func (s *Session) SelectTab(ctx context.Context, tabID string) error {
	s.selectMu.Lock()
	defer s.selectMu.Unlock()
	if s.State.CurrentTab() == tabID && s.syncer.TabID() == tabID {
		return nil
	}
	s.State.SelectTab(tabID)
	err := s.syncer.Switch(ctx, tabID)
	s.renderTabs(s.Tabs(), tabID)
	return err
}

// SetAdminMode toggles editing. Leaving admin mode gives back every lock.
func (s *Session) SetAdminMode(ctx context.Context, on bool) error {
	s.State.SetAdminMode(on)
	s.proj.SetEditable(on)
	if on {
		return nil
	}
	return s.locks.ReleaseAll(ctx)
}

func (s *Session) requireAdmin() error {
	if !s.State.IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}

func (s *Session) activeTab() (string, error) {
	tabID := s.State.CurrentTab()
	if tabID == "" {
		return "", ErrNoActiveTab
	}
	return tabID, nil
}

// AddTab creates a tab and makes it active.
func (s *Session) AddTab(ctx context.Context, name string) (string, error) {
	if err := s.requireAdmin(); err != nil {
		return "", err
	}
	id, err := s.Content.AddTab(ctx, name)
	if err != nil {
		return "", err
	}
	return id, s.SelectTab(ctx, id)
}

func (s *Session) RenameTab(ctx context.Context, tabID, name string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	return s.Content.RenameTab(ctx, tabID, name)
}

func (s *Session) DeleteTab(ctx context.Context, tabID string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	return s.Content.DeleteTab(ctx, tabID)
}

func (s *Session) AddContent(ctx context.Context, t model.ItemType) (string, error) {
	if err := s.requireAdmin(); err != nil {
		return "", err
	}
	tabID, err := s.activeTab()
	if err != nil {
		return "", err
	}
	return s.Content.AddContent(ctx, tabID, t)
}

func (s *Session) DeleteContent(ctx context.Context, itemID string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	if s.locks.IsHeldByOther(itemID) {
		return ErrLocked
	}
	tabID, err := s.activeTab()
	if err != nil {
		return err
	}
	return s.Content.DeleteContent(ctx, tabID, itemID)
}

func (s *Session) SetCorrectOption(ctx context.Context, itemID string, index int) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	if s.locks.IsHeldByOther(itemID) {
		return ErrLocked
	}
	tabID, err := s.activeTab()
	if err != nil {
		return err
	}
	return s.Content.SetCorrectOption(ctx, tabID, itemID, index)
}

// CheckAnswer self-checks a multiple-choice card against the local copy.
func (s *Session) CheckAnswer(itemID string, selected int) (model.CheckResponse, error) {
	item, ok := s.syncer.Item(itemID)
	if !ok {
		return model.CheckResponse{}, service.ErrItemNotFound
	}
	return item.Check(selected)
}

// FocusIn is called when an editable region of a card gains focus. Admins
// try to take the card's lock; ok is false when someone else holds it.
func (s *Session) FocusIn(ctx context.Context, itemID string) (bool, error) {
	if !s.State.IsAdmin() {
		return true, nil
	}
	ok, err := s.locks.Acquire(ctx, itemID)
	if err != nil {
		return false, err
	}
	if !ok {
		s.syncer.SetLocked(itemID, true)
	}
	return ok, nil
}

// FocusOut commits the final text of a card's regions. nextID is the card
// that now has focus, empty when focus left the list.
func (s *Session) FocusOut(ctx context.Context, itemID string, edits []edit.Edit, nextID string) (edit.CommitResult, error) {
	leftCard := nextID != itemID
	defer func() {
		if leftCard {
			s.syncer.Flush(itemID)
		}
	}()

	tabID, err := s.activeTab()
	if err != nil {
		return edit.CommitResult{}, err
	}
	if !s.State.IsAdmin() {
		for _, e := range edits {
			if e.Field != "userAnswer" {
				return edit.CommitResult{}, ErrNotAdmin
			}
		}
	} else if s.locks.IsHeldByOther(itemID) {
		return edit.CommitResult{}, ErrLocked
	}
	return s.commits.Commit(ctx, tabID, itemID, edits, leftCard)
}

// Reorder persists the order of the drag widget. The view follows once the
// change events arrive.
func (s *Session) Reorder(ctx context.Context, ids []string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	tabID, err := s.activeTab()
	if err != nil {
		return err
	}
	return s.Content.Reorder(ctx, tabID, ids)
}

func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	subs := s.tabSubs
	s.tabSubs = nil
	s.mu.Unlock()

	var errs []error
	for _, id := range subs {
		if err := s.store.Unsubscribe(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, s.syncer.Close(ctx), s.locks.ReleaseAll(ctx), s.locks.Stop(ctx))
	return errors.Join(errs...)
}
