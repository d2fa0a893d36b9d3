package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/worktime-engine/config"
	"github.com/warp/worktime-engine/store"
	"github.com/warp/worktime-engine/worktime"
	memstore "github.com/warp/worktime-engine/worktime/store"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	mem, closeMem, err := store.Open(ctx, config.DatabaseConfig{Driver: "memory"}, logger)
	require.NoError(t, err)
	defer closeMem()
	assert.IsType(t, &memstore.Memory{}, mem)

	lite, closeLite, err := store.Open(ctx, config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worktime.db"),
	}, logger)
	require.NoError(t, err)
	defer closeLite()
	assert.NoError(t, lite.Ping(ctx))

	_, _, err = store.Open(ctx, config.DatabaseConfig{Driver: "oracle"}, logger)
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestSeedRules(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	lunch := worktime.BreakRule{ID: "lunch", Start: worktime.MustTimeOfDay("12:00"), End: worktime.MustTimeOfDay("12:45"), AppliesOn: worktime.Weekdays}

	calls := 0
	load := func(path string) ([]worktime.BreakRule, error) {
		calls++
		assert.Equal(t, "rules.json", path)
		return []worktime.BreakRule{lunch}, nil
	}

	// GIVEN: An empty backend
	m := memstore.NewMemory()

	// WHEN: Seeding twice
	require.NoError(t, store.SeedRules(ctx, m, load, "rules.json", logger))
	require.NoError(t, store.SeedRules(ctx, m, load, "rules.json", logger))

	// THEN: Only the first call loads the file
	assert.Equal(t, 1, calls)
	rs, err := m.ActiveRuleSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rs.Version)

	// No path configured means nothing to do.
	require.NoError(t, store.SeedRules(ctx, memstore.NewMemory(), load, "", logger))
	assert.Equal(t, 1, calls)

	broken := func(string) ([]worktime.BreakRule, error) { return nil, errors.New("no such file") }
	assert.Error(t, store.SeedRules(ctx, memstore.NewMemory(), broken, "missing.json", logger))
}
