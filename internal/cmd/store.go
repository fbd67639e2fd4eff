package cmd

import (
	"context"
	"fmt"

	"github.com/hookgate/hookgate/internal/config"
	"github.com/hookgate/hookgate/internal/core/store"
)

// openStore opens the configured store and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg == nil {
		loaded, err := loadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
