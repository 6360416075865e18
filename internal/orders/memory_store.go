package orders

import (
	"context"
	"sync"
	"time"

	"vortx/internal/payment"
)

// MemoryStore tracks order payments in memory. Used when no database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]PaymentRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]PaymentRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) RecordPending(ctx context.Context, orderID, preferenceID string, amount float64) error {
	if err := validateOrderID(orderID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[orderID]; ok {
		return ErrAlreadyRecorded
	}
	s.records[orderID] = PaymentRecord{
		OrderID:      orderID,
		PreferenceID: preferenceID,
		Status:       payment.StatusPending,
		Amount:       amount,
		UpdatedAt:    s.now().UTC(),
	}
	return nil
}

func (s *MemoryStore) Apply(ctx context.Context, st payment.NormalizedPaymentStatus) (bool, error) {
	if err := validateOrderID(st.OrderID); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[st.OrderID]
	if ok && !ShouldApply(current, st) {
		return false, nil
	}
	current.OrderID = st.OrderID
	current.PaymentID = st.PaymentID
	current.Status = st.Status
	current.Amount = st.Amount
	current.UpdatedAt = s.now().UTC()
	s.records[st.OrderID] = current
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, orderID string) (PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[orderID]
	if !ok {
		return PaymentRecord{}, ErrPaymentNotFound
	}
	return rec, nil
}

func (s *MemoryStore) DeletePending(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[orderID]; ok && rec.Status == payment.StatusPending {
		delete(s.records, orderID)
	}
	return nil
}
