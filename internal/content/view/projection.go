package view

import (
	"sync"

	"studydeck/internal/content/model"
)

// Projection is the rendering side of a card list. Implementations build a
// card element per item with a delete affordance and editable regions named
// after model fields ("option-N" for option texts).
type Projection interface {
	Insert(index int, item model.Item)
	// Patch rewrites only the named fields of a card.
	Patch(id string, item model.Item, fields []string)
	Move(id string, index int)
	Remove(id string)
	Clear()
	SetLocked(id string, lockedByOther bool)
	SetEditable(editable bool)
	HasFocus(id string) bool
}

type Card struct {
	Item    model.Item
	Locked  bool
	Patches int
}

// Memory is a headless Projection. Notify, when set, is called after every
// mutation.
type Memory struct {
	mu       sync.Mutex
	cards    []*Card
	focus    map[string]bool
	editable bool
	Notify   func()
}

var _ Projection = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{focus: make(map[string]bool)}
}

func (m *Memory) changed() {
	if m.Notify != nil {
		m.Notify()
	}
}

func (m *Memory) find(id string) int {
	for i, c := range m.cards {
		if c.Item.ID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) Insert(index int, item model.Item) {
	m.mu.Lock()
	if index < 0 || index > len(m.cards) {
		index = len(m.cards)
	}
	m.cards = append(m.cards, nil)
	copy(m.cards[index+1:], m.cards[index:])
	m.cards[index] = &Card{Item: item}
	m.mu.Unlock()
	m.changed()
}

func (m *Memory) Patch(id string, item model.Item, fields []string) {
	m.mu.Lock()
	if i := m.find(id); i >= 0 {
		m.cards[i].Item = item
		m.cards[i].Patches++
	}
	m.mu.Unlock()
	m.changed()
}

func (m *Memory) Move(id string, index int) {
	m.mu.Lock()
	i := m.find(id)
	if i < 0 {
		m.mu.Unlock()
		return
	}
	c := m.cards[i]
	m.cards = append(m.cards[:i], m.cards[i+1:]...)
	if index < 0 || index > len(m.cards) {
		index = len(m.cards)
	}
	m.cards = append(m.cards, nil)
	copy(m.cards[index+1:], m.cards[index:])
	m.cards[index] = c
	m.mu.Unlock()
	m.changed()
}

func (m *Memory) Remove(id string) {
	m.mu.Lock()
	if i := m.find(id); i >= 0 {
		m.cards = append(m.cards[:i], m.cards[i+1:]...)
	}
	delete(m.focus, id)
	m.mu.Unlock()
	m.changed()
}

func (m *Memory) Clear() {
	m.mu.Lock()
	m.cards = nil
	m.focus = make(map[string]bool)
	m.mu.Unlock()
	m.changed()
}

func (m *Memory) SetLocked(id string, lockedByOther bool) {
	m.mu.Lock()
	if i := m.find(id); i >= 0 {
		m.cards[i].Locked = lockedByOther
	}
	m.mu.Unlock()
}

func (m *Memory) SetEditable(editable bool) {
	m.mu.Lock()
	m.editable = editable
	m.mu.Unlock()
	m.changed()
}

func (m *Memory) HasFocus(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focus[id]
}

// Focus and Blur simulate the user entering and leaving a card.
func (m *Memory) Focus(id string) {
	m.mu.Lock()
	m.focus[id] = true
	m.mu.Unlock()
}

func (m *Memory) Blur(id string) {
	m.mu.Lock()
	delete(m.focus, id)
	m.mu.Unlock()
}

func (m *Memory) Editable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editable
}

func (m *Memory) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.cards))
	for i, c := range m.cards {
		ids[i] = c.Item.ID
	}
	return ids
}

// Card returns a copy of the rendered card.
func (m *Memory) Card(id string) (Card, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.find(id); i >= 0 {
		return *m.cards[i], true
	}
	return Card{}, false
}

func (m *Memory) Cards() []Card {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Card, len(m.cards))
	for i, c := range m.cards {
		out[i] = *c
	}
	return out
}
