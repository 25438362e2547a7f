package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/interestbot/core/logger"
)

const (
	driverName     = "postgres"
	connectTimeout = 5 * time.Second
	readyPoll      = 2 * time.Second
)

func (c Config) logAttrs(extra ...slog.Attr) []slog.Attr {
	return append([]slog.Attr{
		slog.String("host", c.Host),
		slog.String("port", c.Port),
		slog.String("db", c.Name),
	}, extra...)
}

// Connect opens the pool, applies the connection limit and pings the server
// within a fixed timeout. A failure is fatal for the postgres driver.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, driverName, cfg.DSN())
	if err != nil {
		logger.Error(ctx, "db", "db.connect", cfg.logAttrs(
			slog.String("status", "fail"),
			slog.Duration("duration", time.Since(start)),
			slog.String("err", err.Error()),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
		db.SetMaxIdleConns(cfg.MaxConnections)
	}

	logger.Info(ctx, "db", "db.connect", cfg.logAttrs(
		slog.String("status", "ok"),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", time.Since(start)),
	)...)
	return db, nil
}

// waitReady pings the server until it answers or ctx expires. Containers
// started together with the bot may accept connections a little later.
func waitReady(ctx context.Context, cfg Config) error {
	db, err := sqlx.Open(driverName, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		logger.Debug(ctx, "db", "db.wait", cfg.logAttrs(slog.String("err", err.Error()))...)

		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready: %w", err)
		case <-time.After(readyPoll):
		}
	}
}
