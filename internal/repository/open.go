package repository

import (
	"context"
	"fmt"

	"github.com/Lixing-Zhang/restaurant-backend/internal/config"
)

// Open creates the store selected by cfg. The postgres schema is migrated on open.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(), nil
	case config.BackendFile:
		return OpenFileStore(cfg.FilePath)
	case config.BackendPostgres:
		store, err := NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
