package view

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studydeck/internal/content/model"
)

func item(id string, order int) model.Item {
	return model.Item{ID: id, Type: model.TypeConcept, Order: order, Title: id}
}

func TestAddIsIdempotent(t *testing.T) {
	l := NewList()
	_, ok := l.Add(item("a", 0))
	require.True(t, ok)
	idx, ok := l.Add(item("a", 5))
	assert.False(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 1, l.Len())

	got, _ := l.Get("a")
	assert.Equal(t, 0, got.Order, "duplicate delivery does not overwrite")
}

func TestInsertPositions(t *testing.T) {
	l := NewList()
	l.Add(item("c", 2))
	l.Add(item("a", 0))
	idx, _ := l.Add(item("b", 1))
	assert.Equal(t, 1, idx)
	assert.Equal(t, []string{"a", "b", "c"}, l.IDs())

	// sparse and out of range orders still land in order
	l.Add(item("z", 99))
	l.Add(item("y", 7))
	assert.Equal(t, []string{"a", "b", "c", "y", "z"}, l.IDs())
}

func TestChangeMovesAndReportsFields(t *testing.T) {
	l := NewList()
	for i, id := range []string{"a", "b", "c"} {
		l.Add(item(id, i))
	}

	moved := item("a", 2)
	moved.Title = "A"
	ch := l.Change(moved)
	require.True(t, ch.Found)
	assert.Equal(t, []string{"title"}, ch.Fields)
	assert.True(t, ch.Moved())
	assert.Equal(t, []string{"b", "a", "c"}, l.IDs(), "ties on order break by id")

	ch = l.Change(item("missing", 0))
	assert.False(t, ch.Found)
}

func TestHoldAndTakePending(t *testing.T) {
	l := NewList()
	l.Add(item("a", 0))

	held := item("a", 0)
	held.Title = "remote"
	require.True(t, l.Hold(held))
	got, _ := l.Get("a")
	assert.Equal(t, "a", got.Title, "held data is not applied")

	pending, ok := l.TakePending("a")
	require.True(t, ok)
	assert.Equal(t, "remote", pending.Title)
	_, ok = l.TakePending("a")
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	l := NewList()
	for i, id := range []string{"a", "b", "c"} {
		l.Add(item(id, i))
	}
	assert.Equal(t, 1, l.Remove("b"))
	assert.Equal(t, -1, l.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, l.IDs())

	a, _ := l.Get("a")
	c, _ := l.Get("c")
	assert.Equal(t, 0, a.Order)
	assert.Equal(t, 2, c.Order, "orders are not compacted after a removal")
}

type op struct {
	kind  string
	id    string
	order int
}

// interleave merges per-item op sequences in a random order that keeps each
// item's own ops in sequence.
func interleave(r *rand.Rand, seqs [][]op) []op {
	var out []op
	pos := make([]int, len(seqs))
	for {
		var live []int
		for i, s := range seqs {
			if pos[i] < len(s) {
				live = append(live, i)
			}
		}
		if len(live) == 0 {
			return out
		}
		pick := live[r.Intn(len(live))]
		out = append(out, seqs[pick][pos[pick]])
		pos[pick]++
	}
}

func TestOrderConvergence(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		n := 1 + r.Intn(8)
		var seqs [][]op
		final := map[string]int{}
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("item-%d", i)
			seq := []op{{kind: "add", id: id, order: r.Intn(n + 3)}}
			last := seq[0].order
			for c := r.Intn(4); c > 0; c-- {
				last = r.Intn(n + 3)
				seq = append(seq, op{kind: "change", id: id, order: last})
			}
			if r.Intn(4) == 0 {
				seq = append(seq, op{kind: "remove", id: id})
			} else {
				final[id] = last
			}
			seqs = append(seqs, seq)
		}

		l := NewList()
		for _, o := range interleave(r, seqs) {
			switch o.kind {
			case "add":
				l.Add(item(o.id, o.order))
			case "change":
				l.Change(item(o.id, o.order))
			case "remove":
				l.Remove(o.id)
			}
		}

		want := make([]string, 0, len(final))
		for id := range final {
			want = append(want, id)
		}
		sort.Slice(want, func(i, j int) bool {
			if final[want[i]] != final[want[j]] {
				return final[want[i]] < final[want[j]]
			}
			return want[i] < want[j]
		})
		require.Equal(t, want, l.IDs(), "round %d", round)
	}
}

func TestMemoryProjection(t *testing.T) {
	m := NewMemory()
	notified := 0
	m.Notify = func() { notified++ }

	m.Insert(0, item("b", 1))
	m.Insert(0, item("a", 0))
	m.Insert(9, item("c", 2))
	assert.Equal(t, []string{"a", "b", "c"}, m.IDs())

	m.Move("a", 2)
	assert.Equal(t, []string{"b", "c", "a"}, m.IDs())

	m.SetLocked("b", true)
	card, ok := m.Card("b")
	require.True(t, ok)
	assert.True(t, card.Locked)

	m.Focus("c")
	assert.True(t, m.HasFocus("c"))
	m.Remove("c")
	assert.False(t, m.HasFocus("c"))

	m.Clear()
	assert.Empty(t, m.IDs())
	assert.Greater(t, notified, 0)
}
