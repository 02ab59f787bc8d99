// Package edit commits field edits of a card as one path-scoped update.
package edit

import (
	"context"
	"errors"
	"strings"

	"studydeck/internal/content/model"
	"studydeck/pkg/logger"
	"studydeck/store"
)

// Edit is the final text of one editable region.
type Edit struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type CommitResult struct {
	// Aborted is set when the item no longer exists.
	Aborted  bool
	Written  []string
	Released bool
}

type Locks interface {
	IsHeldByMe(itemID string) bool
	Release(ctx context.Context, itemID string) error
}

type Committer struct {
	store store.Store
	locks Locks
}

func NewCommitter(s store.Store, locks Locks) *Committer {
	return &Committer{store: s, locks: locks}
}

// Commit diffs edits against a fresh read of the item and writes only the
// fields that differ. When focus left the card the lock is given back
// whether or not anything was written.
func (c *Committer) Commit(ctx context.Context, tabID, itemID string, edits []Edit, leftCard bool) (CommitResult, error) {
	res, err := c.write(ctx, tabID, itemID, edits)
	if leftCard && c.locks != nil && c.locks.IsHeldByMe(itemID) {
		if relErr := c.locks.Release(ctx, itemID); relErr != nil {
			logger.Sugar.Warnf("Failed to release lock on %s: %v", itemID, relErr)
			err = errors.Join(err, relErr)
		} else {
			res.Released = true
		}
	}
	return res, err
}

func (c *Committer) write(ctx context.Context, tabID, itemID string, edits []Edit) (CommitResult, error) {
	var res CommitResult
	path := model.ItemPath(tabID, itemID)

	raw, err := c.store.Read(ctx, path)
	if err != nil {
		return res, err
	}
	if raw == nil {
		logger.Sugar.Debugf("Item %s was deleted, dropping edit", itemID)
		res.Aborted = true
		return res, nil
	}
	remote, err := model.DecodeItem(itemID, raw)
	if err != nil {
		logger.Sugar.Warnf("Dropping edit on malformed item: %v", err)
		res.Aborted = true
		return res, nil
	}

	updates := make(map[string]any)
	for _, e := range edits {
		sub, err := model.FieldPath(e.Field)
		if err != nil {
			return res, err
		}
		current, exists := remote.Field(e.Field)
		if !exists && strings.HasPrefix(e.Field, "option-") {
			// the option was removed meanwhile
			continue
		}
		if exists && current == e.Value {
			continue
		}
		if _, dup := updates[sub]; !dup {
			res.Written = append(res.Written, e.Field)
		}
		updates[sub] = e.Value
	}
	if len(updates) == 0 {
		return res, nil
	}
	if err := c.store.Update(ctx, path, updates); err != nil {
		return CommitResult{}, err
	}
	return res, nil
}
