package repository

import (
	"context"

	"studydeck/internal/content/model"
	"studydeck/pkg/logger"
	"studydeck/store"
)

type ContentRepository struct {
	Store store.Store
}

func NewContentRepository(s store.Store) *ContentRepository {
	return &ContentRepository{Store: s}
}

func (r *ContentRepository) GetTabs(ctx context.Context) ([]model.Tab, error) {
	raw, err := r.Store.Read(ctx, model.TabsRoot)
	if err != nil {
		logger.Sugar.Errorf("Failed to read tabs: %v", err)
		return nil, err
	}
	return model.DecodeTabs(raw), nil
}

// GetTab returns ok=false when the tab does not exist.
func (r *ContentRepository) GetTab(ctx context.Context, tabID string) (model.Tab, bool, error) {
	raw, err := r.Store.Read(ctx, model.TabPath(tabID))
	if err != nil {
		logger.Sugar.Errorf("Failed to read tab %s: %v", tabID, err)
		return model.Tab{}, false, err
	}
	if raw == nil {
		return model.Tab{}, false, nil
	}
	tab, err := model.DecodeTab(tabID, raw)
	if err != nil {
		return model.Tab{}, false, nil
	}
	return tab, true, nil
}

func (r *ContentRepository) CreateTab(ctx context.Context, tab model.Tab) (string, error) {
	id, err := r.Store.Append(ctx, model.TabsRoot, tab.Value())
	if err != nil {
		logger.Sugar.Errorf("Failed to create tab: %v", err)
	}
	return id, err
}

func (r *ContentRepository) UpdateTabName(ctx context.Context, tabID, name string) error {
	err := r.Store.Update(ctx, model.TabPath(tabID), map[string]any{"name": name})
	if err != nil {
		logger.Sugar.Errorf("Failed to rename tab %s: %v", tabID, err)
	}
	return err
}

// DeleteTab removes the tab, its content and the locks of its cards in one
// batched write.
func (r *ContentRepository) DeleteTab(ctx context.Context, tabID string, itemIDs []string) error {
	updates := map[string]any{model.TabPath(tabID): nil}
	for _, id := range itemIDs {
		updates[model.LockPath(id)] = nil
	}
	err := r.Store.Update(ctx, "", updates)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete tab %s: %v", tabID, err)
	}
	return err
}

func (r *ContentRepository) GetItems(ctx context.Context, tabID string) ([]model.Item, error) {
	raw, err := r.Store.Read(ctx, model.ContentPath(tabID))
	if err != nil {
		logger.Sugar.Errorf("Failed to read content of tab %s: %v", tabID, err)
		return nil, err
	}
	return model.DecodeItems(raw), nil
}

// GetItem returns ok=false when the item does not exist or cannot be decoded.
func (r *ContentRepository) GetItem(ctx context.Context, tabID, itemID string) (model.Item, bool, error) {
	raw, err := r.Store.Read(ctx, model.ItemPath(tabID, itemID))
	if err != nil {
		logger.Sugar.Errorf("Failed to read item %s: %v", itemID, err)
		return model.Item{}, false, err
	}
	if raw == nil {
		return model.Item{}, false, nil
	}
	item, err := model.DecodeItem(itemID, raw)
	if err != nil {
		logger.Sugar.Warnf("Malformed item %s: %v", itemID, err)
		return model.Item{}, false, nil
	}
	return item, true, nil
}

func (r *ContentRepository) CreateItem(ctx context.Context, tabID string, item model.Item) (string, error) {
	id, err := r.Store.Append(ctx, model.ContentPath(tabID), item.Value())
	if err != nil {
		logger.Sugar.Errorf("Failed to create item in tab %s: %v", tabID, err)
	}
	return id, err
}

// DeleteItem removes the card and any lock left on it.
func (r *ContentRepository) DeleteItem(ctx context.Context, tabID, itemID string) error {
	err := r.Store.Update(ctx, "", map[string]any{
		model.ItemPath(tabID, itemID): nil,
		model.LockPath(itemID):        nil,
	})
	if err != nil {
		logger.Sugar.Errorf("Failed to delete item %s: %v", itemID, err)
	}
	return err
}

// UpdateOptions writes the whole options sequence at once.
func (r *ContentRepository) UpdateOptions(ctx context.Context, tabID, itemID string, options []model.Option) error {
	err := r.Store.Write(ctx, model.ItemPath(tabID, itemID)+"/options", options)
	if err != nil {
		logger.Sugar.Errorf("Failed to update options of %s: %v", itemID, err)
	}
	return err
}
