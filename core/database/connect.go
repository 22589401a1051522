package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/issuebot/core/logger"
)

const (
	defaultMaxConnections = 10
	connectTimeout        = 5 * time.Second
	readyPoll             = 2 * time.Second
)

func (c Config) attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("host", c.Host),
		slog.String("port", c.Port),
		slog.String("db", c.Name),
	}
}

// Connect opens the tracker database and sizes the pool.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		logger.Error(ctx, logger.CompDB, "db.connect", append(cfg.attrs(),
			slog.String("status", "fail"),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := cfg.MaxConnections
	if pool <= 0 {
		pool = defaultMaxConnections
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	logger.Info(ctx, logger.CompDB, "db.connect", append(cfg.attrs(),
		slog.String("status", "ok"),
		slog.Int("pool_open", pool),
		slog.Duration("duration", logger.Took(start)),
	)...)
	return db, nil
}

// waitReady pings the server until it answers or timeout passes.
func waitReady(dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	tick := time.NewTicker(readyPoll)
	defer tick.Stop()
	for {
		err = db.PingContext(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready after %s: %w", timeout, err)
		case <-tick.C:
		}
	}
}
