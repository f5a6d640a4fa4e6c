package escalation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies carries externally-owned resources a backend may need.
// The database connection's lifecycle stays with its owner; the mongo
// backend manages its own client.
type Dependencies struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewStore creates a Store based on the configuration.
func NewStore(ctx context.Context, cfg Config, deps Dependencies) (Store, error) {
	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeDatabase:
		if deps.DB == nil {
			return nil, errors.New("database escalation store requires an open connection")
		}
		return NewGormStore(deps.DB, deps.Logger)
	case StoreTypeMongo:
		return NewMongoStore(ctx, cfg.Mongo, deps.Logger)
	default:
		return nil, fmt.Errorf("unsupported escalation store type: %s", cfg.Type)
	}
}
