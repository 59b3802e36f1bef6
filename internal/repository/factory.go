package repository

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pronto-ballbot/internal/config"
)

// Open selects and opens the inventory store named by cfg.Type.
func Open(ctx context.Context, cfg config.InventoryDBConfig, logger *zap.Logger) (InventoryRepository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "file", "json":
		return NewFileInventoryRepository(cfg.Path, logger)
	case "sqlite":
		return NewSQLiteInventoryRepository(cfg.Path, logger)
	case "postgres", "postgresql":
		return NewPostgresInventoryRepository(ctx, cfg.PostgresDSN(), logger)
	case "mysql":
		return NewMySQLInventoryRepository(ctx, cfg.MySQLDSN(), logger)
	case "mongodb", "mongo":
		return NewMongoDBInventoryRepository(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	default:
		return nil, fmt.Errorf("unknown inventory store type %q", cfg.Type)
	}
}
