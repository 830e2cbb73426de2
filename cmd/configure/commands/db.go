package commands

import (
	"context"
	"fmt"

	"github.com/benvon/product-studio/internal/config"
	"github.com/benvon/product-studio/internal/database"
)

// connect opens the configured database and makes sure the config tables exist.
func connect(ctx context.Context) (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is not set")
	}
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return cfg, db, nil
}
