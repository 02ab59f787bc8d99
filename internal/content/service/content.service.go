package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studydeck/internal/content/model"
	"studydeck/internal/content/reorder"
	"studydeck/internal/content/repository"
	"studydeck/pkg/logger"
)

var (
	ErrTabNotFound  = errors.New("tab not found")
	ErrItemNotFound = errors.New("content not found")
	ErrEmptyName    = errors.New("tab name cannot be empty")
	ErrInvalidID    = errors.New("invalid id")
)

type ContentService struct {
	Repo      *repository.ContentRepository
	Reorderer *reorder.Reorderer
}

func NewContentService(repo *repository.ContentRepository) *ContentService {
	return &ContentService{Repo: repo, Reorderer: reorder.NewReorderer(repo.Store)}
}

func checkID(id string) error {
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (s *ContentService) ListTabs(ctx context.Context) ([]model.Tab, error) {
	return s.Repo.GetTabs(ctx)
}

func (s *ContentService) GetTab(ctx context.Context, tabID string) (model.Tab, error) {
	if err := checkID(tabID); err != nil {
		return model.Tab{}, err
	}
	tab, ok, err := s.Repo.GetTab(ctx, tabID)
	if err != nil {
		return model.Tab{}, err
	}
	if !ok {
		return model.Tab{}, ErrTabNotFound
	}
	return tab, nil
}

// AddTab appends a tab after the last one. The order is one past the highest
// existing order so it stays unique after deletions.
func (s *ContentService) AddTab(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	tabs, err := s.Repo.GetTabs(ctx)
	if err != nil {
		return "", err
	}
	order := 0
	for _, t := range tabs {
		if t.Order >= order {
			order = t.Order + 1
		}
	}
	return s.Repo.CreateTab(ctx, model.Tab{Name: name, Order: order})
}

func (s *ContentService) RenameTab(ctx context.Context, tabID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if _, err := s.GetTab(ctx, tabID); err != nil {
		return err
	}
	return s.Repo.UpdateTabName(ctx, tabID, name)
}

// DeleteTab removes the tab with all of its content and then verifies the
// subtree is gone.
func (s *ContentService) DeleteTab(ctx context.Context, tabID string) error {
	if _, err := s.GetTab(ctx, tabID); err != nil {
		return err
	}
	items, err := s.Repo.GetItems(ctx, tabID)
	if err != nil {
		return err
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := s.Repo.DeleteTab(ctx, tabID, ids); err != nil {
		return err
	}
	raw, err := s.Repo.Store.Read(ctx, model.TabPath(tabID))
	if err != nil {
		return err
	}
	if raw != nil {
		return fmt.Errorf("tab %s still present after delete", tabID)
	}
	return nil
}

func (s *ContentService) ListContent(ctx context.Context, tabID string) ([]model.Item, error) {
	if err := checkID(tabID); err != nil {
		return nil, err
	}
	return s.Repo.GetItems(ctx, tabID)
}

func (s *ContentService) GetItem(ctx context.Context, tabID, itemID string) (model.Item, error) {
	if err := checkID(tabID); err != nil {
		return model.Item{}, err
	}
	if err := checkID(itemID); err != nil {
		return model.Item{}, err
	}
	item, ok, err := s.Repo.GetItem(ctx, tabID, itemID)
	if err != nil {
		return model.Item{}, err
	}
	if !ok {
		return model.Item{}, ErrItemNotFound
	}
	return item, nil
}

// AddContent appends a default card of type t with one append. Question
// cards are numbered after the questions already in the tab.
func (s *ContentService) AddContent(ctx context.Context, tabID string, t model.ItemType) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", model.ErrUnknownType, t)
	}
	if _, err := s.GetTab(ctx, tabID); err != nil {
		return "", err
	}
	items, err := s.Repo.GetItems(ctx, tabID)
	if err != nil {
		return "", err
	}
	order, questions := 0, 0
	for _, it := range items {
		if it.Order >= order {
			order = it.Order + 1
		}
		if it.Type.IsQuestion() {
			questions++
		}
	}
	item, err := model.NewItem(t, order, questions+1)
	if err != nil {
		return "", err
	}
	return s.Repo.CreateItem(ctx, tabID, item)
}

func (s *ContentService) DeleteContent(ctx context.Context, tabID, itemID string) error {
	if _, err := s.GetItem(ctx, tabID, itemID); err != nil {
		return err
	}
	return s.Repo.DeleteItem(ctx, tabID, itemID)
}

// SetCorrectOption marks option index as the only correct one. The options
// are read fresh and rewritten as a whole.
func (s *ContentService) SetCorrectOption(ctx context.Context, tabID, itemID string, index int) error {
	item, err := s.GetItem(ctx, tabID, itemID)
	if err != nil {
		return err
	}
	if item.Type != model.TypeMCQ {
		return model.ErrNotMCQ
	}
	options, err := model.WithCorrect(item.Options, index)
	if err != nil {
		return err
	}
	return s.Repo.UpdateOptions(ctx, tabID, itemID, options)
}

func (s *ContentService) CheckAnswer(ctx context.Context, tabID, itemID string, selected int) (model.CheckResponse, error) {
	item, err := s.GetItem(ctx, tabID, itemID)
	if err != nil {
		return model.CheckResponse{}, err
	}
	return item.Check(selected)
}

// Reorder gives the listed cards orders 0..n-1. Ids no longer in the tab,
// such as a card a peer deleted mid-drag, are left out so no bare order
// node is written for them.
func (s *ContentService) Reorder(ctx context.Context, tabID string, ids []string) error {
	if _, err := s.GetTab(ctx, tabID); err != nil {
		return err
	}
	for _, id := range ids {
		if err := checkID(id); err != nil {
			return err
		}
	}
	items, err := s.Repo.GetItems(ctx, tabID)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(items))
	for _, it := range items {
		present[it.ID] = true
	}
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if present[id] {
			kept = append(kept, id)
		}
	}
	if dropped := len(ids) - len(kept); dropped > 0 {
		logger.Sugar.Warnf("Reorder of tab %s skipped %d unknown cards", tabID, dropped)
	}
	return s.Reorderer.Apply(ctx, tabID, kept)
}
