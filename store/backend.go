// Package store selects and opens the configured persistence backend.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/worktime-engine/config"
	"github.com/warp/worktime-engine/store/postgres"
	"github.com/warp/worktime-engine/store/sqlite"
	"github.com/warp/worktime-engine/worktime"
	memstore "github.com/warp/worktime-engine/worktime/store"
)

// Backend is everything the server and CLI need from persistence.
type Backend interface {
	worktime.TxStore
	worktime.BreakRuleAdmin
	worktime.WorkRecordStore
	worktime.RunStore

	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
	// SetClock sets the clock used for store-side timestamps.
	SetClock(c worktime.Clock)
}

var (
	_ Backend = (*memstore.Memory)(nil)
	_ Backend = (*sqlite.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// Open connects to the backend named by cfg.Driver. The returned func
// releases it.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Backend, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("close sqlite store", zap.Error(err))
			}
		}, nil

	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.PostgresURL, postgres.PoolOptions{
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		s := postgres.New(pool)
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("using postgres store")
		return s, s.Close, nil

	case "memory":
		logger.Warn("using in-memory store; data is lost on exit")
		return memstore.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// SeedRules loads the rule-set file into an unconfigured backend. It does
// nothing when path is empty or a rule set already exists.
func SeedRules(ctx context.Context, rules worktime.BreakRuleAdmin, load func(path string) ([]worktime.BreakRule, error), path string, logger *zap.Logger) error {
	if path == "" {
		return nil
	}
	current, err := rules.ActiveRuleSet(ctx)
	if err != nil {
		return fmt.Errorf("read rule set: %w", err)
	}
	if current.Version > 0 {
		logger.Debug("rule set already configured, skipping seed", zap.Int64("version", current.Version))
		return nil
	}
	parsed, err := load(path)
	if err != nil {
		return err
	}
	rs, err := rules.SaveRuleSet(ctx, parsed)
	if err != nil {
		return fmt.Errorf("save seeded rule set: %w", err)
	}
	logger.Info("seeded break rules", zap.String("file", path), zap.Int64("version", rs.Version), zap.Int("rules", len(rs.Rules)))
	return nil
}
