// Package reorder writes a new display order for a tab's cards.
package reorder

import (
	"context"
	"errors"
	"fmt"

	"studydeck/internal/content/model"
	"studydeck/store"
)

var (
	ErrDuplicateID = errors.New("reorder: duplicate item id")
	ErrEmptyID     = errors.New("reorder: empty item id")
)

type Reorderer struct {
	store store.Store
}

func NewReorderer(s store.Store) *Reorderer {
	return &Reorderer{store: s}
}

// Updates builds the order rewrite for ids: every id gets order = its index.
func Updates(ids []string) (map[string]any, error) {
	updates := make(map[string]any, len(ids))
	for i, id := range ids {
		if id == "" {
			return nil, ErrEmptyID
		}
		key := id + "/order"
		if _, dup := updates[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		updates[key] = i
	}
	return updates, nil
}

// Apply rewrites the order of every listed card in one batched update. The
// view moves when the resulting change events come back.
func (r *Reorderer) Apply(ctx context.Context, tabID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	updates, err := Updates(ids)
	if err != nil {
		return err
	}
	return r.store.Update(ctx, model.ContentPath(tabID), updates)
}
