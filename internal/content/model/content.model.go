package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrUnknownType   = errors.New("unknown content type")
	ErrUnknownField  = errors.New("unknown editable field")
	ErrOptionIndex   = errors.New("option index out of range")
	ErrNotMCQ        = errors.New("content is not a multiple-choice question")
	ErrMalformedItem = errors.New("malformed content item")
)

type ItemType string

const (
	TypeConcept ItemType = "concept"
	TypeMCQ     ItemType = "mcq"
	TypeSAQ     ItemType = "saq"
	TypeImage   ItemType = "image"
)

func (t ItemType) Valid() bool {
	switch t {
	case TypeConcept, TypeMCQ, TypeSAQ, TypeImage:
		return true
	}
	return false
}

// IsQuestion reports whether cards of this type count as numbered questions.
func (t ItemType) IsQuestion() bool {
	return t == TypeMCQ || t == TypeSAQ
}

const (
	TabsRoot  = "tabs"
	LocksRoot = "editingLocks"
)

func TabPath(tabID string) string          { return TabsRoot + "/" + tabID }
func ContentPath(tabID string) string      { return TabPath(tabID) + "/content" }
func ItemPath(tabID, itemID string) string { return ContentPath(tabID) + "/" + itemID }
func LockPath(itemID string) string        { return LocksRoot + "/" + itemID }

type Tab struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Item is a content card. Which text fields are meaningful depends on Type.
type Item struct {
	ID          string   `json:"id,omitempty"`
	Type        ItemType `json:"type"`
	Order       int      `json:"order"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Question    string   `json:"question,omitempty"`
	Options     []Option `json:"options,omitempty"`
	Answer      string   `json:"answer,omitempty"`
	UserAnswer  string   `json:"userAnswer,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
}

type CreateTabRequest struct {
	Name string `json:"name"`
}

type RenameTabRequest struct {
	Name string `json:"name"`
}

type CreateContentRequest struct {
	Type ItemType `json:"type"`
}

type CreateResponse struct {
	ID string `json:"id"`
}

type SetCorrectRequest struct {
	Index int `json:"index"`
}

type CheckRequest struct {
	Selected int `json:"selected"`
}

type CheckResponse struct {
	Correct      bool `json:"correct"`
	CorrectIndex int  `json:"correct_index"`
}

type ReorderRequest struct {
	IDs []string `json:"ids"`
}

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// DecodeItem converts a raw store value into an Item.
func DecodeItem(id string, v any) (Item, error) {
	var item Item
	if err := decode(v, &item); err != nil {
		return Item{}, fmt.Errorf("%w %s: %v", ErrMalformedItem, id, err)
	}
	if !item.Type.Valid() {
		return Item{}, fmt.Errorf("%w %s: type %q", ErrMalformedItem, id, item.Type)
	}
	item.ID = id
	return item, nil
}

func DecodeTab(id string, v any) (Tab, error) {
	var tab Tab
	if err := decode(v, &tab); err != nil {
		return Tab{}, fmt.Errorf("malformed tab %s: %v", id, err)
	}
	tab.ID = id
	return tab, nil
}

func decode(v any, out any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return errors.New("not an object")
	}
	// Orders written by other clients may be fractional.
	if f, ok := m["order"].(float64); ok && f != math.Trunc(f) {
		rounded := make(map[string]any, len(m))
		for k, x := range m {
			rounded[k] = x
		}
		rounded["order"] = math.Round(f)
		m = rounded
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// DecodeItems decodes a content collection and sorts it by (order, id).
// Malformed children are skipped.
func DecodeItems(v any) []Item {
	children, _ := v.(map[string]any)
	items := make([]Item, 0, len(children))
	for id, child := range children {
		item, err := DecodeItem(id, child)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	SortItems(items)
	return items
}

func SortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].ID < items[j].ID
	})
}

// DecodeTabs decodes the tabs root and sorts it by (order, id).
func DecodeTabs(v any) []Tab {
	children, _ := v.(map[string]any)
	tabs := make([]Tab, 0, len(children))
	for id, child := range children {
		tab, err := DecodeTab(id, child)
		if err != nil {
			continue
		}
		tabs = append(tabs, tab)
	}
	SortTabs(tabs)
	return tabs
}

func SortTabs(tabs []Tab) {
	sort.Slice(tabs, func(i, j int) bool {
		if tabs[i].Order != tabs[j].Order {
			return tabs[i].Order < tabs[j].Order
		}
		return tabs[i].ID < tabs[j].ID
	})
}

// Value is the store representation of a tab; content lives beside it.
func (t Tab) Value() map[string]any {
	return map[string]any{"name": t.Name, "order": t.Order}
}

// Value is the store representation of an item. The id is the key, not a field.
func (it Item) Value() map[string]any {
	raw, _ := json.Marshal(it)
	var v map[string]any
	_ = json.Unmarshal(raw, &v)
	delete(v, "id")
	return v
}

// NewItem returns the default card of the given type. questionNumber is used
// to title question cards.
func NewItem(t ItemType, order, questionNumber int) (Item, error) {
	item := Item{Type: t, Order: order}
	switch t {
	case TypeConcept:
		item.Title = "New concept title"
		item.Description = "Write the concept description here."
	case TypeMCQ:
		item.Question = fmt.Sprintf("Question %d.", questionNumber)
		item.Options = []Option{
			{Text: "Option 1"},
			{Text: "Option 2", Correct: true},
			{Text: "Option 3"},
			{Text: "Option 4"},
			{Text: "Option 5"},
		}
	case TypeSAQ:
		item.Question = fmt.Sprintf("Question %d.", questionNumber)
		item.Answer = "Write the model answer."
	case TypeImage:
		item.Title = "New image"
	default:
		return Item{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return item, nil
}

// FieldPath maps an editable field name to its path inside the item.
// "option-2" addresses options/2/text.
func FieldPath(field string) (string, error) {
	switch field {
	case "title", "description", "question", "answer", "userAnswer", "imageUrl":
		return field, nil
	}
	if idx, ok := optionIndex(field); ok {
		return "options/" + strconv.Itoa(idx) + "/text", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, field)
}

func optionIndex(field string) (int, bool) {
	rest, ok := strings.CutPrefix(field, "option-")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 || strconv.Itoa(idx) != rest {
		return 0, false
	}
	return idx, true
}

// Field returns the current text of an editable field. ok is false for
// unknown fields and options that do not exist.
func (it Item) Field(field string) (string, bool) {
	switch field {
	case "title":
		return it.Title, true
	case "description":
		return it.Description, true
	case "question":
		return it.Question, true
	case "answer":
		return it.Answer, true
	case "userAnswer":
		return it.UserAnswer, true
	case "imageUrl":
		return it.ImageURL, true
	}
	if idx, ok := optionIndex(field); ok && idx < len(it.Options) {
		return it.Options[idx].Text, true
	}
	return "", false
}

// Fields lists the editable fields of the item, options included.
func (it Item) Fields() []string {
	var fields []string
	switch it.Type {
	case TypeConcept:
		fields = []string{"title", "description"}
	case TypeMCQ:
		fields = []string{"question"}
		for i := range it.Options {
			fields = append(fields, "option-"+strconv.Itoa(i))
		}
	case TypeSAQ:
		fields = []string{"question", "answer", "userAnswer"}
	case TypeImage:
		fields = []string{"title", "imageUrl"}
	}
	return fields
}

// ChangedFields compares two versions of a card field by field. Correctness
// flips of options are reported as "options".
func ChangedFields(old, cur Item) []string {
	var changed []string
	seen := map[string]bool{}
	for _, f := range append(old.Fields(), cur.Fields()...) {
		if seen[f] {
			continue
		}
		seen[f] = true
		a, _ := old.Field(f)
		b, _ := cur.Field(f)
		if a != b {
			changed = append(changed, f)
		}
	}
	if old.Type != cur.Type {
		changed = append(changed, "type")
	}
	if len(old.Options) != len(cur.Options) {
		changed = append(changed, "options")
	} else {
		for i := range old.Options {
			if old.Options[i].Correct != cur.Options[i].Correct {
				changed = append(changed, "options")
				break
			}
		}
	}
	return changed
}

// WithCorrect returns a copy of the options where exactly the option at idx
// is correct. The whole sequence is meant to be written back at once.
func WithCorrect(options []Option, idx int) ([]Option, error) {
	if idx < 0 || idx >= len(options) {
		return nil, fmt.Errorf("%w: %d", ErrOptionIndex, idx)
	}
	out := make([]Option, len(options))
	for i, o := range options {
		out[i] = Option{Text: o.Text, Correct: i == idx}
	}
	return out, nil
}

// CorrectIndex returns the index of the correct option, or -1.
func (it Item) CorrectIndex() int {
	for i, o := range it.Options {
		if o.Correct {
			return i
		}
	}
	return -1
}

// Check self-checks a selected option of a multiple-choice card.
func (it Item) Check(selected int) (CheckResponse, error) {
	if it.Type != TypeMCQ {
		return CheckResponse{}, ErrNotMCQ
	}
	if selected < 0 || selected >= len(it.Options) {
		return CheckResponse{}, fmt.Errorf("%w: %d", ErrOptionIndex, selected)
	}
	return CheckResponse{
		Correct:      it.Options[selected].Correct,
		CorrectIndex: it.CorrectIndex(),
	}, nil
}
