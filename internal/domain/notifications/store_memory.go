package notifications

import (
	"context"
	"sync"
)

// MemoryStore keeps the delivery log in process, newest last.
type MemoryStore struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) RecordDelivery(ctx context.Context, delivery Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delivery.ID = int64(len(m.deliveries) + 1)
	m.deliveries = append(m.deliveries, delivery)
	return nil
}

func (m *MemoryStore) ListDeliveries(ctx context.Context, filter DeliveryFilter, limit, offset int) ([]Delivery, error) {
	matched := m.matching(filter)
	if offset >= len(matched) {
		return []Delivery{}, nil
	}
	return matched[offset:min(offset+limit, len(matched))], nil
}

func (m *MemoryStore) CountDeliveries(ctx context.Context, filter DeliveryFilter) (int, error) {
	return len(m.matching(filter)), nil
}

func (m *MemoryStore) matching(filter DeliveryFilter) []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Delivery{}
	for i := len(m.deliveries) - 1; i >= 0; i-- {
		if filter.matches(m.deliveries[i]) {
			out = append(out, m.deliveries[i])
		}
	}
	return out
}
