package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) keys(kind EventKind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev.Key)
		}
	}
	return out
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestWriteReadArraysRoundTrip(t *testing.T) {
	ctx := testCtx(t)
	conn := NewTree().Connect()
	defer conn.Close()

	item := map[string]any{
		"type":  "mcq",
		"order": 0,
		"options": []any{
			map[string]any{"text": "a", "correct": false},
			map[string]any{"text": "b", "correct": true},
		},
	}
	require.NoError(t, conn.Write(ctx, "tabs/t1/content/i1", item))

	text, err := conn.Read(ctx, "tabs/t1/content/i1/options/1/text")
	require.NoError(t, err)
	assert.Equal(t, "b", text)

	options, err := conn.Read(ctx, "tabs/t1/content/i1/options")
	require.NoError(t, err)
	require.IsType(t, []any{}, options)
	assert.Len(t, options, 2)

	order, err := conn.Read(ctx, "tabs/t1/content/i1/order")
	require.NoError(t, err)
	assert.Equal(t, float64(0), order)

	missing, err := conn.Read(ctx, "tabs/nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRemovePrunesEmptyParents(t *testing.T) {
	ctx := testCtx(t)
	conn := NewTree().Connect()
	defer conn.Close()

	require.NoError(t, conn.Write(ctx, "a/b/c", "x"))
	require.NoError(t, conn.Remove(ctx, "a/b/c"))

	v, err := conn.Read(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestInvalidPathsAndValues(t *testing.T) {
	ctx := testCtx(t)
	conn := NewTree().Connect()
	defer conn.Close()

	assert.ErrorIs(t, conn.Write(ctx, "tabs/a.b", "x"), ErrInvalidPath)
	assert.ErrorIs(t, conn.Write(ctx, "", "leaf"), ErrInvalidPath)
	assert.ErrorIs(t, conn.Write(ctx, "x", map[string]any{"a/b": 1}), ErrInvalidValue)
	_, err := conn.Append(ctx, "list", nil)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestUpdateIsMultiPathMerge(t *testing.T) {
	ctx := testCtx(t)
	conn := NewTree().Connect()
	defer conn.Close()

	require.NoError(t, conn.Write(ctx, "item", map[string]any{"title": "t", "description": "d"}))
	require.NoError(t, conn.Update(ctx, "item", map[string]any{"title": "new", "extra/deep": true}))

	v, err := conn.Read(ctx, "item")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title":       "new",
		"description": "d",
		"extra":       map[string]any{"deep": true},
	}, v)

	err = conn.Update(ctx, "item", map[string]any{"a": 1, "a/b": 2})
	assert.ErrorIs(t, err, ErrOverlappingPaths)
}

func TestAppendKeysAreOrdered(t *testing.T) {
	ctx := testCtx(t)
	conn := NewTree().Connect()
	defer conn.Close()

	first, err := conn.Append(ctx, "list", "one")
	require.NoError(t, err)
	second, err := conn.Append(ctx, "list", "two")
	require.NoError(t, err)
	assert.Less(t, first, second)
}

func TestChildEventsOrderedByField(t *testing.T) {
	ctx := testCtx(t)
	tree := NewTree()
	writer := tree.Connect()
	defer writer.Close()
	reader := tree.Connect()
	defer reader.Close()

	require.NoError(t, writer.Write(ctx, "c", map[string]any{
		"x": map[string]any{"order": 2},
		"y": map[string]any{"order": 0},
		"z": map[string]any{"order": 1},
	}))

	rec := &recorder{}
	for _, kind := range []EventKind{EventChildAdded, EventChildChanged, EventChildRemoved} {
		_, err := reader.Subscribe(ctx, "c", kind, SubscribeOptions{OrderBy: "order"}, rec.listen)
		require.NoError(t, err)
	}
	require.NoError(t, reader.Sync(ctx))
	assert.Equal(t, []string{"y", "z", "x"}, rec.keys(EventChildAdded))

	require.NoError(t, writer.Update(ctx, "c", map[string]any{"x/order": 0, "y/order": 1, "z/order": 2}))
	require.NoError(t, writer.Remove(ctx, "c/z"))
	_, err := writer.Append(ctx, "c", map[string]any{"order": 3})
	require.NoError(t, err)
	require.NoError(t, reader.Sync(ctx))

	assert.Equal(t, []string{"x", "y", "z"}, rec.keys(EventChildChanged))
	assert.Equal(t, []string{"z"}, rec.keys(EventChildRemoved))
	assert.Len(t, rec.keys(EventChildAdded), 4)
}

func TestDeepWriteRaisesChildChanged(t *testing.T) {
	ctx := testCtx(t)
	conn := NewTree().Connect()
	defer conn.Close()

	require.NoError(t, conn.Write(ctx, "c/i1", map[string]any{"title": "a"}))
	rec := &recorder{}
	_, err := conn.Subscribe(ctx, "c", EventChildChanged, SubscribeOptions{}, rec.listen)
	require.NoError(t, err)

	require.NoError(t, conn.Write(ctx, "c/i1/title", "b"))
	// same value again: no event
	require.NoError(t, conn.Write(ctx, "c/i1/title", "b"))
	require.NoError(t, conn.Sync(ctx))

	assert.Equal(t, []string{"i1"}, rec.keys(EventChildChanged))
}

func TestValueSubscriptionAndUnsubscribe(t *testing.T) {
	ctx := testCtx(t)
	conn := NewTree().Connect()
	defer conn.Close()

	rec := &recorder{}
	id, err := conn.Subscribe(ctx, "locks", EventValue, SubscribeOptions{}, rec.listen)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, "locks/a", "s1"))
	require.NoError(t, conn.Sync(ctx))
	assert.Equal(t, 2, rec.len(), "initial value plus one change")

	require.NoError(t, conn.Unsubscribe(ctx, id))
	require.NoError(t, conn.Write(ctx, "locks/b", "s2"))
	require.NoError(t, conn.Sync(ctx))
	assert.Equal(t, 2, rec.len())

	assert.ErrorIs(t, conn.Unsubscribe(ctx, id), ErrNoSubscription)
	_, err = conn.Subscribe(ctx, "locks", EventKind("bogus"), SubscribeOptions{}, rec.listen)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func setIfAbsent(session string) TxFunc {
	return func(current any) (any, bool) {
		if current == nil || current == session {
			return session, true
		}
		return nil, false
	}
}

func TestTransactExclusivity(t *testing.T) {
	ctx := testCtx(t)
	tree := NewTree()

	const sessions = 8
	results := make([]TxResult, sessions)
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		conn := tree.Connect()
		defer conn.Close()
		wg.Add(1)
		go func(i int, conn *Conn) {
			defer wg.Done()
			res, err := conn.Transact(ctx, "editingLocks/item", setIfAbsent(conn.ID()))
			assert.NoError(t, err)
			results[i] = res
		}(i, conn)
	}
	wg.Wait()

	committed := 0
	for _, r := range results {
		if r.Committed {
			committed++
		}
	}
	assert.Equal(t, 1, committed)
}

func TestTransactIdempotentForHolder(t *testing.T) {
	ctx := testCtx(t)
	conn := NewTree().Connect()
	defer conn.Close()

	res, err := conn.Transact(ctx, "editingLocks/item", setIfAbsent("me"))
	require.NoError(t, err)
	require.True(t, res.Committed)

	res, err = conn.Transact(ctx, "editingLocks/item", setIfAbsent("me"))
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, "me", res.Value)

	res, err = conn.Transact(ctx, "editingLocks/item", setIfAbsent("other"))
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, "me", res.Value)
}

func TestDisconnectCleanup(t *testing.T) {
	ctx := testCtx(t)
	tree := NewTree()
	observer := tree.Connect()
	defer observer.Close()

	a := tree.Connect()
	require.NoError(t, a.Write(ctx, "editingLocks/x", a.ID()))
	require.NoError(t, a.OnDisconnectRemove(ctx, "editingLocks/x"))
	require.NoError(t, a.Write(ctx, "editingLocks/y", a.ID()))
	require.NoError(t, a.OnDisconnectRemove(ctx, "editingLocks/y"))
	require.NoError(t, a.CancelOnDisconnect(ctx, "editingLocks/y"))

	rec := &recorder{}
	_, err := observer.Subscribe(ctx, "editingLocks", EventChildRemoved, SubscribeOptions{}, rec.listen)
	require.NoError(t, err)

	a.Close()
	a.Close()
	require.NoError(t, observer.Sync(ctx))

	assert.Equal(t, []string{"x"}, rec.keys(EventChildRemoved))
	_, err = a.Read(ctx, "editingLocks")
	assert.ErrorIs(t, err, ErrClosed)

	y, err := observer.Read(ctx, "editingLocks/y")
	require.NoError(t, err)
	assert.Equal(t, a.ID(), y)
}

func TestSnapshotSkipsEphemeralRoots(t *testing.T) {
	ctx := testCtx(t)
	tree := NewTree("editingLocks")
	conn := tree.Connect()
	defer conn.Close()

	assert.False(t, tree.Dirty())
	require.NoError(t, conn.Write(ctx, "editingLocks/a", "s"))
	assert.False(t, tree.Dirty(), "lock writes are not persisted")
	require.NoError(t, conn.Write(ctx, "tabs/t1/name", "Bio"))
	assert.True(t, tree.Dirty())

	data, _, err := tree.Snapshot()
	require.NoError(t, err)
	assert.JSONEq(t, `{"tabs":{"t1":{"name":"Bio"}}}`, string(data))

	restored := NewTree("editingLocks")
	require.NoError(t, restored.Restore(data))
	assert.False(t, restored.Dirty())
	other := restored.Connect()
	defer other.Close()
	name, err := other.Read(ctx, "tabs/t1/name")
	require.NoError(t, err)
	assert.Equal(t, "Bio", name)
}
