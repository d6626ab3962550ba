// Package store defines the order record store the bridge depends on and an
// in-memory implementation.
package store

import (
	"context"
	"errors"

	"github.com/whr-sorting/simbridge/core/model"
)

// ErrNotFound is returned when no order matches the requested id.
var ErrNotFound = errors.New("order not found")

// UpdateFunc mutates an order inside an atomic update. Returning an error
// aborts the update and leaves the record untouched.
type UpdateFunc func(*model.Order) error

// OrderStore is the persistence boundary for order records.
type OrderStore interface {
	FindByID(ctx context.Context, id string) (model.Order, error)
	// FindByStatusIn returns matching orders in store iteration order.
	FindByStatusIn(ctx context.Context, statuses ...model.OrderStatus) ([]model.Order, error)
	Save(ctx context.Context, o model.Order) error
	// Update applies fn to the current record atomically and returns the
	// persisted result.
	Update(ctx context.Context, id string, fn UpdateFunc) (model.Order, error)
	List(ctx context.Context) ([]model.Order, error)
}
