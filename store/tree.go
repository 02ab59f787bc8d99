package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Tree is the authoritative in-memory database. Sessions talk to it through
// the Conn values returned by Connect.
type Tree struct {
	mu        sync.Mutex
	root      any
	version   uint64
	saved     uint64
	seq       uint64
	subs      map[SubscriptionID]*subscription
	conns     map[*Conn]struct{}
	ephemeral map[string]bool
}

type subscription struct {
	id        SubscriptionID
	seq       uint64
	conn      *Conn
	parts     []string
	path      string
	kind      EventKind
	orderBy   string
	listener  Listener
	cancelled atomic.Bool
}

type write struct {
	parts []string
	value any
}

// NewTree creates an empty tree. Top-level keys named in ephemeral are kept
// out of snapshots.
func NewTree(ephemeral ...string) *Tree {
	t := &Tree{
		subs:      make(map[SubscriptionID]*subscription),
		conns:     make(map[*Conn]struct{}),
		ephemeral: make(map[string]bool),
	}
	for _, k := range ephemeral {
		t.ephemeral[k] = true
	}
	return t
}

func (t *Tree) Connect() *Conn {
	c := &Conn{
		tree:     t,
		id:       uuid.NewString(),
		dispatch: NewDispatcher(),
		cleanup:  make(map[string][]string),
	}
	t.mu.Lock()
	t.conns[c] = struct{}{}
	t.mu.Unlock()
	connectionsGauge.Inc()
	return c
}

func (t *Tree) read(parts []string) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return externalize(getAt(t.root, parts))
}

func (t *Tree) apply(writes []write) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commitLocked(writes)
}

func (t *Tree) compareAndSet(parts []string, expected, next any) (bool, any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !equalValues(getAt(t.root, parts), expected) {
		return false, externalize(getAt(t.root, parts))
	}
	t.commitLocked([]write{{parts: parts, value: next}})
	return true, externalize(getAt(t.root, parts))
}

func (t *Tree) commitLocked(writes []write) {
	affected := t.affectedLocked(writes)
	olds := make([]any, len(affected))
	for i, s := range affected {
		olds[i] = cloneInternal(getAt(t.root, s.parts))
	}

	persistent := false
	for _, w := range writes {
		if equalValues(getAt(t.root, w.parts), w.value) {
			continue
		}
		t.root = setIn(t.root, w.parts, cloneInternal(w.value))
		if len(w.parts) == 0 || !t.ephemeral[w.parts[0]] {
			persistent = true
		}
	}
	if persistent {
		t.version++
	}

	for i, s := range affected {
		t.emitLocked(s, olds[i], getAt(t.root, s.parts))
	}
}

func (t *Tree) affectedLocked(writes []write) []*subscription {
	var out []*subscription
	for _, s := range t.subs {
		for _, w := range writes {
			if isPrefix(s.parts, w.parts) || isPrefix(w.parts, s.parts) {
				out = append(out, s)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (t *Tree) emitLocked(s *subscription, old, cur any) {
	if s.kind == EventValue {
		if !equalValues(old, cur) {
			t.deliverLocked(s, Event{Kind: EventValue, Path: s.path, Value: externalize(cur)})
		}
		return
	}

	oldM, _ := old.(map[string]any)
	curM, _ := cur.(map[string]any)
	var keys []string
	source := curM
	switch s.kind {
	case EventChildRemoved:
		source = oldM
		for k := range oldM {
			if _, ok := curM[k]; !ok {
				keys = append(keys, k)
			}
		}
	case EventChildAdded:
		for k := range curM {
			if _, ok := oldM[k]; !ok {
				keys = append(keys, k)
			}
		}
	case EventChildChanged:
		for k, v := range curM {
			if prev, ok := oldM[k]; ok && !equalValues(prev, v) {
				keys = append(keys, k)
			}
		}
	}
	for _, k := range sortedKeys(source, keys, s.orderBy) {
		t.deliverLocked(s, Event{Kind: s.kind, Path: s.path, Key: k, Value: externalize(source[k])})
	}
}

func (t *Tree) deliverLocked(s *subscription, ev Event) {
	eventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	s.conn.dispatch.Enqueue(func() {
		if s.cancelled.Load() {
			return
		}
		s.listener(ev)
	})
}

func (t *Tree) subscribe(c *Conn, parts []string, kind EventKind, opts SubscribeOptions, l Listener) SubscriptionID {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	s := &subscription{
		id:       SubscriptionID(uuid.NewString()),
		seq:      t.seq,
		conn:     c,
		parts:    parts,
		path:     JoinPath(parts...),
		kind:     kind,
		orderBy:  opts.OrderBy,
		listener: l,
	}
	t.subs[s.id] = s
	subscriptionsGauge.Inc()

	cur := getAt(t.root, parts)
	switch kind {
	case EventValue:
		t.deliverLocked(s, Event{Kind: EventValue, Path: s.path, Value: externalize(cur)})
	case EventChildAdded:
		children, _ := cur.(map[string]any)
		keys := make([]string, 0, len(children))
		for k := range children {
			keys = append(keys, k)
		}
		for _, k := range sortedKeys(children, keys, s.orderBy) {
			t.deliverLocked(s, Event{Kind: EventChildAdded, Path: s.path, Key: k, Value: externalize(children[k])})
		}
	}
	return s.id
}

func (t *Tree) unsubscribe(c *Conn, id SubscriptionID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.subs[id]
	if !ok || s.conn != c {
		return ErrNoSubscription
	}
	t.dropLocked(s)
	return nil
}

func (t *Tree) dropLocked(s *subscription) {
	s.cancelled.Store(true)
	delete(t.subs, s.id)
	subscriptionsGauge.Dec()
}

// disconnect drops the connection's subscriptions and then applies its
// disconnect cleanups as one commit.
func (t *Tree) disconnect(c *Conn, cleanup []write) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.subs {
		if s.conn == c {
			t.dropLocked(s)
		}
	}
	if len(cleanup) > 0 {
		t.commitLocked(cleanup)
	}
	delete(t.conns, c)
	connectionsGauge.Dec()
}

// Snapshot serializes the persistent part of the tree and reports the
// version it corresponds to.
func (t *Tree) Snapshot() ([]byte, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := map[string]any{}
	if m, ok := t.root.(map[string]any); ok {
		for k, v := range m {
			if !t.ephemeral[k] {
				out[k] = externalize(v)
			}
		}
	}
	data, err := json.Marshal(out)
	return data, t.version, err
}

// Restore replaces the tree content with a snapshot. Subscribers see the
// difference as ordinary events.
func (t *Tree) Restore(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	v, err := internalize(decoded)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if v != nil {
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("restore snapshot: %w", ErrInvalidValue)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.commitLocked([]write{{parts: nil, value: v}})
	t.saved = t.version
	return nil
}

// Version counts committed changes to persistent data.
func (t *Tree) Version() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

func (t *Tree) Dirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version != t.saved
}

func (t *Tree) markSaved(version uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if version > t.saved {
		t.saved = version
	}
}
