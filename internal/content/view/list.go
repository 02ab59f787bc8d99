// Package view holds the ordered card list a session renders, kept sorted by
// the items' order field, and the Projection the list is mirrored onto.
package view

import (
	"sort"

	"studydeck/internal/content/model"
)

type entry struct {
	item    model.Item
	pending *model.Item
}

// List is the in-memory side of the projection. It has no I/O and is not
// safe for concurrent use.
type List struct {
	entries []*entry
	byID    map[string]*entry
}

// Change describes what applying new data to a card did.
type Change struct {
	Found  bool
	Fields []string
	From   int
	To     int
}

func (c Change) Moved() bool { return c.From != c.To }

func NewList() *List {
	return &List{byID: make(map[string]*entry)}
}

func (l *List) Len() int { return len(l.entries) }

func (l *List) IDs() []string {
	ids := make([]string, len(l.entries))
	for i, e := range l.entries {
		ids[i] = e.item.ID
	}
	return ids
}

func (l *List) Items() []model.Item {
	items := make([]model.Item, len(l.entries))
	for i, e := range l.entries {
		items[i] = e.item
	}
	return items
}

func (l *List) Get(id string) (model.Item, bool) {
	e, ok := l.byID[id]
	if !ok {
		return model.Item{}, false
	}
	return e.item, true
}

func (l *List) IndexOf(id string) int {
	for i, e := range l.entries {
		if e.item.ID == id {
			return i
		}
	}
	return -1
}

func less(a, b model.Item) bool {
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	return a.ID < b.ID
}

// position is the slot before the first entry that sorts after item. In a
// dense collection that is the element currently at slot item.Order; sparse
// or out of range orders end up after every smaller order.
func (l *List) position(item model.Item) int {
	return sort.Search(len(l.entries), func(i int) bool {
		return less(item, l.entries[i].item)
	})
}

func (l *List) insert(e *entry) int {
	pos := l.position(e.item)
	l.entries = append(l.entries, nil)
	copy(l.entries[pos+1:], l.entries[pos:])
	l.entries[pos] = e
	l.byID[e.item.ID] = e
	return pos
}

func (l *List) detach(id string) int {
	idx := l.IndexOf(id)
	if idx < 0 {
		return -1
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	delete(l.byID, id)
	return idx
}

// Add inserts a card and returns its index. A card that is already present
// is left alone and ok is false.
func (l *List) Add(item model.Item) (index int, ok bool) {
	if _, exists := l.byID[item.ID]; exists {
		return l.IndexOf(item.ID), false
	}
	return l.insert(&entry{item: item}), true
}

// Change replaces a card's data and re-sorts it.
func (l *List) Change(item model.Item) Change {
	e, ok := l.byID[item.ID]
	if !ok {
		return Change{}
	}
	fields := model.ChangedFields(e.item, item)
	from := l.detach(item.ID)
	e.item = item
	e.pending = nil
	to := l.insert(e)
	return Change{Found: true, Fields: fields, From: from, To: to}
}

// Hold keeps data that arrived while the card was focused; the visible card
// stays as it is until TakePending.
func (l *List) Hold(item model.Item) bool {
	e, ok := l.byID[item.ID]
	if !ok {
		return false
	}
	held := item
	e.pending = &held
	return true
}

func (l *List) TakePending(id string) (model.Item, bool) {
	e, ok := l.byID[id]
	if !ok || e.pending == nil {
		return model.Item{}, false
	}
	item := *e.pending
	e.pending = nil
	return item, true
}

// Remove deletes a card and returns the index it had, or -1.
func (l *List) Remove(id string) int {
	return l.detach(id)
}

func (l *List) Clear() {
	l.entries = nil
	l.byID = make(map[string]*entry)
}
