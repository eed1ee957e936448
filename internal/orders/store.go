package orders

import (
	"fmt"
	"sort"
	"sync"

	"servicemarket/internal/domain"
)

// Store is the client-side order cache. Transitions go through CompareAndSwap so
// that at most one caller moves an order out of a given status.
type Store struct {
	mu     sync.RWMutex
	orders map[int64]*domain.Order
}

func NewStore() *Store {
	return &Store{orders: make(map[int64]*domain.Order)}
}

// Get returns a copy.
func (s *Store) Get(id int64) (*domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Put records a server copy unless the cached one is newer.
func (s *Store) Put(o *domain.Order) {
	if o == nil || o.ID == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.orders[o.ID]; ok && cur.UpdatedAt.After(o.UpdatedAt) {
		return
	}
	s.orders[o.ID] = o.Clone()
}

// CompareAndSwap replaces the order only if its cached status still equals expected.
func (s *Store) CompareAndSwap(id int64, expected domain.OrderStatus, next *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	if cur.Status != expected {
		return fmt.Errorf("%w: order %d is %s, expected %s", domain.ErrStaleWrite, id, cur.Status, expected)
	}
	s.orders[id] = next.Clone()
	return nil
}

// List returns copies, newest first.
func (s *Store) List() []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}
