package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/whr-sorting/simbridge/core/model"
)

// MemoryStore keeps orders in insertion order behind a RWMutex.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]model.Order
	order []string
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]model.Order{}, now: time.Now}
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (model.Order, error) {
	if err := ctx.Err(); err != nil {
		return model.Order{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.data[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) FindByStatusIn(ctx context.Context, statuses ...model.OrderStatus) ([]model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[model.OrderStatus]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Order
	for _, id := range s.order {
		o := s.data[id]
		if _, ok := want[o.Status]; ok {
			res = append(res, o.Clone())
		}
	}
	return res, nil
}

func (s *MemoryStore) Save(ctx context.Context, o model.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.ID == "" {
		return errors.New("order id is required")
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[o.ID]; !ok {
		s.order = append(s.order, o.ID)
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
	}
	o.UpdatedAt = now
	s.data[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (model.Order, error) {
	if err := ctx.Err(); err != nil {
		return model.Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return model.Order{}, err
	}
	next.ID = id
	next.UpdatedAt = s.now()
	s.data[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Order, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, s.data[id].Clone())
	}
	return res, nil
}
