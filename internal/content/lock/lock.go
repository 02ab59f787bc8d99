// Package lock implements advisory per-card editing locks stored under
// editingLocks/{itemId} = sessionId.
package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"studydeck/internal/content/model"
	"studydeck/pkg/logger"
	"studydeck/store"
)

var acquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "studydeck_lock_acquire_total",
	Help: "Lock acquire attempts by result",
}, []string{"result"})

// View is what lock state is projected onto: every visible card gets its
// locked flag re-applied on each change of the lock map.
type View interface {
	IDs() []string
	SetLocked(id string, lockedByOther bool)
}

type Manager struct {
	store   store.Store
	session string

	mu    sync.Mutex
	view  View
	locks map[string]string
	sub   store.SubscriptionID
}

func NewManager(s store.Store, session string) *Manager {
	return &Manager{store: s, session: session, locks: make(map[string]string)}
}

func (m *Manager) Session() string { return m.session }

func (m *Manager) SetView(v View) {
	m.mu.Lock()
	m.view = v
	m.mu.Unlock()
}

// Start subscribes to the whole lock map. It is small, so every change
// simply refreshes all visible cards.
func (m *Manager) Start(ctx context.Context) error {
	id, err := m.store.Subscribe(ctx, model.LocksRoot, store.EventValue, store.SubscribeOptions{}, m.onLocks)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", model.LocksRoot, err)
	}
	m.mu.Lock()
	m.sub = id
	m.mu.Unlock()
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	id := m.sub
	m.sub = ""
	m.mu.Unlock()
	if id == "" {
		return nil
	}
	return m.store.Unsubscribe(ctx, id)
}

func (m *Manager) onLocks(ev store.Event) {
	locks := make(map[string]string)
	if raw, ok := ev.Value.(map[string]any); ok {
		for id, holder := range raw {
			if s, ok := holder.(string); ok {
				locks[id] = s
			}
		}
	}
	m.mu.Lock()
	m.locks = locks
	m.mu.Unlock()
	m.Refresh()
}

// Refresh re-applies the lock flag of every visible card.
func (m *Manager) Refresh() {
	m.mu.Lock()
	v := m.view
	m.mu.Unlock()
	if v == nil {
		return
	}
	for _, id := range v.IDs() {
		v.SetLocked(id, m.IsHeldByOther(id))
	}
}

func (m *Manager) IsHeldByOther(itemID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	holder, ok := m.locks[itemID]
	return ok && holder != m.session
}

func (m *Manager) IsHeldByMe(itemID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[itemID] == m.session
}

// Held lists the items this session holds according to the last snapshot.
func (m *Manager) Held() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, holder := range m.locks {
		if holder == m.session {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Acquire takes the lock when nobody holds it. Holding it already counts as
// success and leaves the stored value alone.
func (m *Manager) Acquire(ctx context.Context, itemID string) (bool, error) {
	path := model.LockPath(itemID)
	res, err := m.store.Transact(ctx, path, func(current any) (any, bool) {
		if current == nil || current == m.session {
			return m.session, true
		}
		return nil, false
	})
	if err != nil {
		acquireTotal.WithLabelValues("error").Inc()
		return false, err
	}
	if !res.Committed {
		acquireTotal.WithLabelValues("contended").Inc()
		logger.Sugar.Debugf("Lock on %s held by another session", itemID)
		return false, nil
	}

	if err := m.store.OnDisconnectRemove(ctx, path); err != nil {
		// a lock without disconnect cleanup could outlive us; give it back
		acquireTotal.WithLabelValues("error").Inc()
		if relErr := m.Release(ctx, itemID); relErr != nil {
			logger.Sugar.Warnf("Failed to give back lock %s: %v", itemID, relErr)
		}
		return false, err
	}

	m.mu.Lock()
	m.locks[itemID] = m.session
	m.mu.Unlock()
	acquireTotal.WithLabelValues("acquired").Inc()
	return true, nil
}

// Release removes the lock only when this session owns it.
func (m *Manager) Release(ctx context.Context, itemID string) error {
	path := model.LockPath(itemID)
	res, err := m.store.Transact(ctx, path, func(current any) (any, bool) {
		if current == m.session {
			return nil, true
		}
		return nil, false
	})
	if err != nil {
		return err
	}
	if !res.Committed {
		return nil
	}

	m.mu.Lock()
	if m.locks[itemID] == m.session {
		delete(m.locks, itemID)
	}
	m.mu.Unlock()
	return m.store.CancelOnDisconnect(ctx, path)
}

// ReleaseAll gives back every lock this session holds.
func (m *Manager) ReleaseAll(ctx context.Context) error {
	var firstErr error
	for _, id := range m.Held() {
		if err := m.Release(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
