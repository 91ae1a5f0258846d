package database

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"arbot/internal/model"
)

var (
	pool *pgxpool.Pool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("could not start postgres container: %s", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Fatalf("could not stop postgres container: %s", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Fatalf("could not get container host: %s", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("could not get mapped port: %s", err)
	}

	connStr := "postgres://testuser:testpassword@" + host + ":" + port.Port() + "/testdb"

	pool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("could not connect to database: %s", err)
	}
	defer pool.Close()

	if err := NewPostgresRepository(pool).Migrate(ctx); err != nil {
		log.Fatalf("could not migrate: %s", err)
	}

	code := m.Run()

	os.Exit(code)
}

func TestPostgresRepository_LogTrade(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(pool)

	trade := model.ExecutedTrade{
		Timestamp:    time.Now(),
		Pair:         "BTC/USDT",
		BuyVenue:     "kraken",
		SellVenue:    "binance",
		BuyPrice:     50010.0,
		SellPrice:    50300.0,
		Amount:       0.01,
		EstProfitUSD: 2.9,
		VaultAccrual: 0.29,
		Success:      true,
	}

	err := repo.LogTrade(ctx, trade)
	assert.NoError(t, err)

	var logged model.ExecutedTrade
	err = pool.QueryRow(ctx,
		`SELECT pair, buy_venue, sell_venue, buy_price, sell_price, amount,
		        est_profit_usd, vault_accrual_usd, success, failure_reason
		 FROM executed_trades WHERE buy_venue = 'kraken'`).Scan(
		&logged.Pair, &logged.BuyVenue, &logged.SellVenue, &logged.BuyPrice,
		&logged.SellPrice, &logged.Amount, &logged.EstProfitUSD,
		&logged.VaultAccrual, &logged.Success, &logged.FailureReason,
	)
	assert.NoError(t, err)
	assert.Equal(t, trade.Pair, logged.Pair)
	assert.Equal(t, trade.BuyVenue, logged.BuyVenue)
	assert.Equal(t, trade.SellVenue, logged.SellVenue)
	assert.True(t, logged.Success)
	assert.Empty(t, logged.FailureReason)
}

func TestPostgresRepository_LogRebalance(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(pool)

	record := model.RebalanceRecord{
		Timestamp:   time.Now(),
		TradeCount:  2,
		TotalBought: 0.016,
		TotalSpent:  800.0,
	}

	err := repo.LogRebalance(ctx, record)
	assert.NoError(t, err)

	var logged model.RebalanceRecord
	err = pool.QueryRow(ctx,
		`SELECT trade_count, total_bought, total_spent_usd
		 FROM rebalance_records ORDER BY id DESC LIMIT 1`).Scan(
		&logged.TradeCount, &logged.TotalBought, &logged.TotalSpent,
	)
	assert.NoError(t, err)
	assert.Equal(t, record.TradeCount, logged.TradeCount)
	assert.InDelta(t, record.TotalBought, logged.TotalBought, 1e-9)
	assert.InDelta(t, record.TotalSpent, logged.TotalSpent, 1e-9)
}
