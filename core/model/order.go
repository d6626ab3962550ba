package model

import (
	"strconv"
	"strings"
	"time"
)

// OrderStatus is the lifecycle state of an order record.
type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusProcessing OrderStatus = "Processing"
	StatusInTransit  OrderStatus = "in transit"
	StatusConfirmed  OrderStatus = "Confirmed"
	StatusCompleted  OrderStatus = "Completed"
	StatusFailed     OrderStatus = "Failed"
)

// AwaitingCompletion reports whether an order in this state may still receive
// a completion notification.
func (s OrderStatus) AwaitingCompletion() bool {
	return s == StatusProcessing || s == StatusInTransit
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusInTransit, StatusConfirmed, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Item is a single order line.
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is the subset of the persisted order record the bridge reads and writes.
type Order struct {
	ID          string      `json:"id"`
	Customer    string      `json:"customer"`
	Items       []Item      `json:"items"`
	Total       float64     `json:"total"`
	Status      OrderStatus `json:"status"`
	Priority    int         `json:"priority"`
	CrateNumber *int        `json:"crate_number,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TotalProducts sums item quantities.
func (o Order) TotalProducts() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// ProductNames lists item names in order.
func (o Order) ProductNames() []string {
	names := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		names = append(names, it.Name)
	}
	return names
}

// Clone returns a deep copy so callers never share Items or CrateNumber.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = append([]Item(nil), o.Items...)
	}
	if o.CrateNumber != nil {
		n := *o.CrateNumber
		c.CrateNumber = &n
	}
	return c
}

// AssignCrate records the crate and moves the order into Processing.
func (o *Order) AssignCrate(crate, priority int) {
	o.CrateNumber = &crate
	o.Priority = NormalizePriority(priority)
	o.Status = StatusProcessing
}

// ShortIDLength is the number of trailing id characters used on the wire.
const ShortIDLength = 8

// ShortID derives the wire identifier for an order: the last eight characters
// of id, uppercased. Shorter ids are uppercased whole. Characters are runes,
// so a multi-byte id never yields a split encoding.
func ShortID(id string) string {
	if r := []rune(id); len(r) > ShortIDLength {
		id = string(r[len(r)-ShortIDLength:])
	}
	return strings.ToUpper(id)
}

const (
	// PriorityHigh marks an order for the fast lane.
	PriorityHigh   = 1
	PriorityNormal = 0

	CrateHighPriority = 1
	CrateStandard     = 2
)

// CrateFor maps a priority onto a destination crate.
func CrateFor(priority int) int {
	if priority == PriorityHigh {
		return CrateHighPriority
	}
	return CrateStandard
}

// NormalizePriority folds any value into {0,1}.
func NormalizePriority(p int) int {
	if p == PriorityHigh {
		return PriorityHigh
	}
	return PriorityNormal
}

// ParsePriority reads a priority from user input. Anything that is not an
// integer counts as normal priority.
func ParsePriority(s string) int {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return PriorityNormal
	}
	return NormalizePriority(p)
}
