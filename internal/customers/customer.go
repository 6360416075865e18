// Package customers keeps storefront customers in sync with Firebase users.
package customers

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"vortx/internal/apperr"
)

// Customer is a storefront customer.
type Customer struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Phone     string         `json:"phone,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// FirebaseUID returns the linked Firebase user id, if any.
func (c Customer) FirebaseUID() string {
	uid, _ := c.Metadata["firebase_uid"].(string)
	return uid
}

// Store persists customers. Emails are matched case-insensitively.
type Store interface {
	Get(ctx context.Context, id string) (Customer, error)
	FindByEmail(ctx context.Context, email string) (Customer, error)
	Create(ctx context.Context, c Customer) (Customer, error)
	UpdateMetadata(ctx context.Context, id string, metadata map[string]any) (Customer, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrNotFound   = fmt.Errorf("customer: %w", apperr.ErrNotFound)
	ErrEmailTaken = fmt.Errorf("customer email already registered: %w", apperr.ErrConflict)
)

// NormalizeEmail lowercases and trims an email for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryStore keeps customers in memory. Used when no database is configured.
type MemoryStore struct {
	mu        sync.Mutex
	customers map[string]Customer
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{customers: make(map[string]Customer), now: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return clone(c), nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (Customer, error) {
	email = NormalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.Email == email {
			return clone(c), nil
		}
	}
	return Customer{}, ErrNotFound
}

func (s *MemoryStore) Create(ctx context.Context, c Customer) (Customer, error) {
	c.Email = NormalizeEmail(c.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.customers {
		if existing.Email == c.Email {
			return Customer{}, ErrEmailTaken
		}
	}
	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	c = clone(c)
	s.customers[c.ID] = c
	return clone(c), nil
}

func (s *MemoryStore) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) (Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return Customer{}, ErrNotFound
	}
	c.Metadata = maps.Clone(metadata)
	c.UpdatedAt = s.now().UTC()
	s.customers[id] = c
	return clone(c), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.customers, id)
	return nil
}

func clone(c Customer) Customer {
	c.Metadata = maps.Clone(c.Metadata)
	return c
}
