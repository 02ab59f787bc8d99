package reorder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studydeck/internal/content/model"
	"studydeck/store"
)

func TestUpdatesCoverEveryID(t *testing.T) {
	updates, err := Updates([]string{"c", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"c/order": 0, "a/order": 1, "b/order": 2}, updates)
}

func TestUpdatesRejectsBadIDs(t *testing.T) {
	_, err := Updates([]string{"a", "b", "a"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = Updates([]string{"a", ""})
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestApplyTouchesOnlyListedItems(t *testing.T) {
	ctx := context.Background()
	conn := store.NewTree().Connect()
	defer conn.Close()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, conn.Write(ctx, model.ItemPath("t1", id), map[string]any{"type": "concept", "order": i, "title": id}))
	}
	require.NoError(t, conn.Write(ctx, model.ItemPath("t2", "x"), map[string]any{"type": "concept", "order": 0}))

	r := NewReorderer(conn)
	require.NoError(t, r.Apply(ctx, "t1", []string{"c", "a", "b"}))

	raw, err := conn.Read(ctx, model.ContentPath("t1"))
	require.NoError(t, err)
	items := model.DecodeItems(raw)
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Equal(t, "a", items[1].Title)

	other, err := conn.Read(ctx, model.ItemPath("t2", "x")+"/order")
	require.NoError(t, err)
	assert.Equal(t, float64(0), other)
}

func TestApplyEmptyIsNoop(t *testing.T) {
	conn := store.NewTree().Connect()
	defer conn.Close()
	require.NoError(t, NewReorderer(conn).Apply(context.Background(), "t1", nil))
}
