package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"arbot/internal/bot"
	"arbot/internal/config"
	"arbot/internal/database"
	"arbot/internal/fees"
	"arbot/internal/venue"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments inject environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.Database.User, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName,
	)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("cannot create connection pool: %w", err)
	}
	defer pool.Close()

	repo := database.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}

	venues, err := connectVenues(ctx, logger, cfg)
	if err != nil {
		return err
	}

	feeModel := fees.NewModel(logger, cfg.Fees)
	if err := feeModel.Load(cfg.Fees.StatePath); err != nil {
		logger.Warn("could not load fee state, starting fresh", "error", err)
	}

	return bot.New(logger, cfg, venues, repo, feeModel).Run(ctx)
}

// connectVenues builds a client per configured venue and drops any that fails
// a reachability probe. At least one working venue is required to start; a
// single venue still allows rebalancing, just not arbitrage.
func connectVenues(ctx context.Context, logger *slog.Logger, cfg config.Config) (map[string]venue.Client, error) {
	timeout := time.Duration(cfg.Mode.RequestTimeoutSec * float64(time.Second))

	venues := make(map[string]venue.Client, len(cfg.Venues))
	for name, vcfg := range cfg.Venues {
		client, err := venue.NewClient(name, logger, vcfg)
		if err != nil {
			return nil, err
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err = client.ServerTime(probeCtx)
		cancel()
		if err != nil {
			logger.Warn("venue unreachable, continuing without it", "venue", name, "error", err)
			continue
		}
		venues[name] = client
		logger.Info("venue connected", "venue", name)
	}
	if len(venues) == 0 {
		return nil, fmt.Errorf("no venues reachable")
	}
	return venues, nil
}
