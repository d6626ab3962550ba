package mapsim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/whr-sorting/simbridge/core/protocol"
)

// ProcessStrategy decides how the simulated sorter works through an order.
type ProcessStrategy interface {
	Process(ctx context.Context, srv *MappingServer, e Entry)
}

// AutoProcess processes every product of an order, one per Interval.
type AutoProcess struct {
	Interval time.Duration
}

// Process implements ProcessStrategy.
func (a AutoProcess) Process(ctx context.Context, srv *MappingServer, e Entry) {
	for i := 0; i < e.Total; i++ {
		if !sleep(ctx, a.Interval) {
			return
		}
		srv.Handle(ctx, protocol.CmdProductProcessed+":"+e.ID)
	}
}

// RandomDrop loses each product with probability DropRate, so some orders
// never complete.
type RandomDrop struct {
	Interval time.Duration
	DropRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func (r *RandomDrop) drop() bool {
	if r.DropRate <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return r.rng.Float64() < r.DropRate
}

// Process implements ProcessStrategy.
func (r *RandomDrop) Process(ctx context.Context, srv *MappingServer, e Entry) {
	for i := 0; i < e.Total; i++ {
		if !sleep(ctx, r.Interval) {
			return
		}
		if r.drop() {
			srv.log.Warnf("dropped a product of order %s", e.ID)
			continue
		}
		srv.Handle(ctx, protocol.CmdProductProcessed+":"+e.ID)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
