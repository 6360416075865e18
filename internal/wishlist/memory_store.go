package wishlist

import (
	"context"
	"sync"
)

// MemoryStore keeps wishlists in process.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string][]Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]Item)}
}

func (s *MemoryStore) List(ctx context.Context, customerID string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items[customerID]...), nil
}

func (s *MemoryStore) Add(ctx context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items[item.CustomerID] {
		if existing.key() == item.key() {
			return ErrAlreadyExists
		}
	}
	s.items[item.CustomerID] = append(s.items[item.CustomerID], item)
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, customerID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[customerID]
	for i, it := range items {
		if it.ID == itemID {
			s.items[customerID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Exists(ctx context.Context, customerID, productID, variantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := productKey(productID, variantID)
	for _, it := range s.items[customerID] {
		if it.key() == want {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Clear(ctx context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, customerID)
	return nil
}
