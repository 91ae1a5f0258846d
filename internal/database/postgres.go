package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbot/internal/model"
)

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository over an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

// Migrate creates the audit tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS executed_trades (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		pair VARCHAR(20) NOT NULL,
		buy_venue VARCHAR(50) NOT NULL,
		sell_venue VARCHAR(50) NOT NULL,
		buy_price NUMERIC(20, 8) NOT NULL,
		sell_price NUMERIC(20, 8) NOT NULL,
		amount NUMERIC(20, 8) NOT NULL,
		est_profit_usd NUMERIC(20, 8) NOT NULL,
		vault_accrual_usd NUMERIC(20, 8) NOT NULL,
		success BOOLEAN NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS rebalance_records (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		trade_count INT NOT NULL,
		total_bought NUMERIC(20, 8) NOT NULL,
		total_spent_usd NUMERIC(20, 8) NOT NULL
	);`
	if _, err := r.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// LogTrade inserts one executed (or failed) arbitrage trade.
func (r *PostgresRepository) LogTrade(ctx context.Context, trade model.ExecutedTrade) error {
	const sql = `
	INSERT INTO executed_trades
		(timestamp, pair, buy_venue, sell_venue, buy_price, sell_price,
		 amount, est_profit_usd, vault_accrual_usd, success, failure_reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.Pool.Exec(ctx, sql,
		trade.Timestamp, trade.Pair, trade.BuyVenue, trade.SellVenue,
		trade.BuyPrice, trade.SellPrice, trade.Amount, trade.EstProfitUSD,
		trade.VaultAccrual, trade.Success, trade.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("database: log trade: %w", err)
	}
	return nil
}

// LogRebalance inserts the audit record of one successful rebalance run.
func (r *PostgresRepository) LogRebalance(ctx context.Context, record model.RebalanceRecord) error {
	const sql = `
	INSERT INTO rebalance_records (timestamp, trade_count, total_bought, total_spent_usd)
	VALUES ($1, $2, $3, $4)`
	_, err := r.Pool.Exec(ctx, sql,
		record.Timestamp, record.TradeCount, record.TotalBought, record.TotalSpent,
	)
	if err != nil {
		return fmt.Errorf("database: log rebalance: %w", err)
	}
	return nil
}
