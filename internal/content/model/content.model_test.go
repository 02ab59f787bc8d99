package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldPath(t *testing.T) {
	p, err := FieldPath("title")
	require.NoError(t, err)
	assert.Equal(t, "title", p)

	p, err = FieldPath("option-3")
	require.NoError(t, err)
	assert.Equal(t, "options/3/text", p)

	for _, bad := range []string{"order", "type", "option-", "option--1", "option-01", "option-x"} {
		_, err := FieldPath(bad)
		assert.ErrorIs(t, err, ErrUnknownField, bad)
	}
}

func TestNewItemDefaults(t *testing.T) {
	mcq, err := NewItem(TypeMCQ, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, "Question 2.", mcq.Question)
	assert.Equal(t, 4, mcq.Order)
	require.Len(t, mcq.Options, 5)
	assert.Equal(t, 1, mcq.CorrectIndex())

	concept, err := NewItem(TypeConcept, 0, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, concept.Title)
	assert.NotEmpty(t, concept.Description)

	_, err = NewItem("video", 0, 1)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestItemValueOmitsID(t *testing.T) {
	item := Item{ID: "abc", Type: TypeConcept, Order: 0, Title: "T"}
	v := item.Value()
	assert.NotContains(t, v, "id")
	assert.Equal(t, float64(0), v["order"])
	assert.Equal(t, "concept", v["type"])
}

func TestDecodeItemsSortsAndSkipsMalformed(t *testing.T) {
	raw := map[string]any{
		"b": map[string]any{"type": "concept", "order": float64(1)},
		"a": map[string]any{"type": "saq", "order": float64(1)},
		"c": map[string]any{"type": "mcq", "order": float64(0)},
		"x": "not an item",
	}
	items := DecodeItems(raw)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestDecodeRoundsFractionalOrder(t *testing.T) {
	item, err := DecodeItem("a", map[string]any{"type": "concept", "order": 1.6})
	require.NoError(t, err)
	assert.Equal(t, 2, item.Order)

	tab, err := DecodeTab("t", map[string]any{"name": "Biology", "order": 0.4})
	require.NoError(t, err)
	assert.Equal(t, 0, tab.Order)

	_, err = DecodeItem("b", map[string]any{"type": "concept", "order": "first"})
	assert.ErrorIs(t, err, ErrMalformedItem)
}

func TestChangedFields(t *testing.T) {
	old := Item{Type: TypeMCQ, Question: "Q", Options: []Option{{Text: "a", Correct: true}, {Text: "b"}}}
	cur := old
	cur.Options = []Option{{Text: "a"}, {Text: "B", Correct: true}}

	assert.ElementsMatch(t, []string{"option-1", "options"}, ChangedFields(old, cur))
	assert.Empty(t, ChangedFields(old, old))
}

func TestWithCorrectKeepsExactlyOne(t *testing.T) {
	opts := []Option{{Text: "a", Correct: true}, {Text: "b"}, {Text: "c", Correct: true}}
	out, err := WithCorrect(opts, 1)
	require.NoError(t, err)

	correct := 0
	for _, o := range out {
		if o.Correct {
			correct++
		}
	}
	assert.Equal(t, 1, correct)
	assert.True(t, out[1].Correct)
	assert.True(t, opts[0].Correct, "input is not modified")

	_, err = WithCorrect(opts, 3)
	assert.ErrorIs(t, err, ErrOptionIndex)
}

func TestCheck(t *testing.T) {
	item := Item{Type: TypeMCQ, Options: []Option{{Text: "a"}, {Text: "b", Correct: true}}}

	res, err := item.Check(1)
	require.NoError(t, err)
	assert.True(t, res.Correct)

	res, err = item.Check(0)
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Equal(t, 1, res.CorrectIndex)

	_, err = item.Check(5)
	assert.ErrorIs(t, err, ErrOptionIndex)
	_, err = Item{Type: TypeSAQ}.Check(0)
	assert.ErrorIs(t, err, ErrNotMCQ)
}
