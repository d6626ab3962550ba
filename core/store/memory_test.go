package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/whr-sorting/simbridge/core/model"
)

func seed(t *testing.T, s OrderStore, orders ...model.Order) {
	t.Helper()
	for _, o := range orders {
		if err := s.Save(context.Background(), o); err != nil {
			t.Fatalf("save %s: %v", o.ID, err)
		}
	}
}

func TestMemoryStore_FindByID(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, model.Order{ID: "a1", Status: model.StatusPending})
	o, err := s.FindByID(context.Background(), "a1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if o.CreatedAt.IsZero() {
		t.Fatalf("created_at not set")
	}
	if _, err := s.FindByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestMemoryStore_FindByStatusInKeepsInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s,
		model.Order{ID: "c", Status: model.StatusProcessing},
		model.Order{ID: "a", Status: model.StatusPending},
		model.Order{ID: "b", Status: model.StatusInTransit},
	)
	res, err := s.FindByStatusIn(context.Background(), model.StatusProcessing, model.StatusInTransit)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res) != 2 || res[0].ID != "c" || res[1].ID != "b" {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestMemoryStore_UpdateAbortsOnError(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, model.Order{ID: "a", Status: model.StatusPending})
	boom := errors.New("boom")
	_, err := s.Update(context.Background(), "a", func(o *model.Order) error {
		o.Status = model.StatusFailed
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom got %v", err)
	}
	o, _ := s.FindByID(context.Background(), "a")
	if o.Status != model.StatusPending {
		t.Fatalf("aborted update persisted: %s", o.Status)
	}
	if _, err := s.Update(context.Background(), "zzz", func(*model.Order) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, model.Order{ID: "a", Items: []model.Item{{Name: "x", Quantity: 0}}})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(context.Background(), "a", func(o *model.Order) error {
				o.Items[0].Quantity++
				return nil
			})
		}()
	}
	wg.Wait()
	o, _ := s.FindByID(context.Background(), "a")
	if o.Items[0].Quantity != 50 {
		t.Fatalf("lost updates: %d", o.Items[0].Quantity)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	crate := 1
	seed(t, s, model.Order{ID: "a", CrateNumber: &crate})
	o, _ := s.FindByID(context.Background(), "a")
	*o.CrateNumber = 2
	again, _ := s.FindByID(context.Background(), "a")
	if *again.CrateNumber != 1 {
		t.Fatalf("store state leaked through returned order")
	}
}
