package database

import (
	"context"

	"arbot/internal/model"
)

// Repository defines the standard interface for database operations.
type Repository interface {
	Migrate(ctx context.Context) error
	LogTrade(ctx context.Context, trade model.ExecutedTrade) error
	LogRebalance(ctx context.Context, record model.RebalanceRecord) error
}
