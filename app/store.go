package app

import (
	"context"
	"fmt"

	"github.com/whr-sorting/simbridge/config"
	corestore "github.com/whr-sorting/simbridge/core/store"
	infrastore "github.com/whr-sorting/simbridge/infra/store"
)

// OpenStore opens the configured order store. The returned close function is
// never nil.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (corestore.OrderStore, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return corestore.NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		s, err := infrastore.NewSQLiteStore(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
