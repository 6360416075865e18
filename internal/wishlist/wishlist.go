// Package wishlist stores the products a customer marked as favorites.
package wishlist

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"vortx/internal/apperr"
)

type Item struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	ProductID  string    `json:"product_id"`
	VariantID  string    `json:"variant_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (it Item) key() string {
	return productKey(it.ProductID, it.VariantID)
}

func productKey(productID, variantID string) string {
	return productID + "|" + variantID
}

var (
	ErrAlreadyExists = fmt.Errorf("product already in wishlist: %w", apperr.ErrConflict)
	ErrNotFound      = fmt.Errorf("wishlist item not found: %w", apperr.ErrNotFound)
)

// Store persists wishlist items. Add must be atomic per customer: two
// concurrent adds of the same product and variant store exactly one item.
type Store interface {
	List(ctx context.Context, customerID string) ([]Item, error)
	Add(ctx context.Context, item Item) error
	Remove(ctx context.Context, customerID, itemID string) error
	Exists(ctx context.Context, customerID, productID, variantID string) (bool, error)
	Clear(ctx context.Context, customerID string) error
}

type Service struct {
	store  Store
	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
		newID:  func() string { return "wish_" + uuid.NewString() },
		now:    time.Now,
	}
}

// List returns the customer's items, oldest first.
func (s *Service) List(ctx context.Context, customerID string) ([]Item, error) {
	items, err := s.store.List(ctx, customerID)
	if err != nil {
		return nil, err
	}
	sortItems(items)
	s.logger.Debug("wishlist listed", "customer_id", customerID, "count", len(items))
	return items, nil
}

func (s *Service) Add(ctx context.Context, customerID, productID, variantID string) (Item, error) {
	if strings.TrimSpace(productID) == "" {
		return Item{}, apperr.Validation("product_id", "is required")
	}
	item := Item{
		ID:         s.newID(),
		CustomerID: customerID,
		ProductID:  productID,
		VariantID:  variantID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Add(ctx, item); err != nil {
		return Item{}, err
	}
	s.logger.Info("wishlist item added", "customer_id", customerID, "product_id", productID)
	return item, nil
}

func (s *Service) Remove(ctx context.Context, customerID, itemID string) error {
	if err := s.store.Remove(ctx, customerID, itemID); err != nil {
		return err
	}
	s.logger.Info("wishlist item removed", "customer_id", customerID, "item_id", itemID)
	return nil
}

func (s *Service) Exists(ctx context.Context, customerID, productID, variantID string) (bool, error) {
	return s.store.Exists(ctx, customerID, productID, variantID)
}

func (s *Service) Clear(ctx context.Context, customerID string) error {
	if err := s.store.Clear(ctx, customerID); err != nil {
		return err
	}
	s.logger.Info("wishlist cleared", "customer_id", customerID)
	return nil
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
