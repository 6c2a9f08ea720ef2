package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/sprintlog/internal/config"
	"github.com/TobiSchelling/sprintlog/internal/database"
)

const badgerGCInterval = 10 * time.Minute

// Open builds the Store selected by cfg.Store.Driver. db is required for
// the sqlite driver and ignored otherwise.
func Open(ctx context.Context, cfg *config.Config, db *database.DB, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("driver", cfg.Store.Driver))

	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; state is lost on exit")
		return NewMemory(), nil
	case config.DriverSQLite:
		if db == nil {
			return nil, errors.New("sqlite store requires an open database")
		}
		logger.Debug("store opened", zap.String("path", db.Path()))
		return NewSQLite(db), nil
	case config.DriverBadger:
		s, err := OpenBadger(BadgerOptions{
			Path:       cfg.GetBadgerDir(),
			GCInterval: badgerGCInterval,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Debug("store opened", zap.String("path", cfg.GetBadgerDir()))
		return s, nil
	case config.DriverRedis:
		s, err := OpenRedis(ctx, RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.RedisPassword(),
			DB:       cfg.Store.Redis.DB,
			Timeout:  cfg.Store.Redis.Timeout,
		})
		if err != nil {
			return nil, err
		}
		logger.Debug("store opened", zap.String("addr", cfg.Store.Redis.Addr))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
