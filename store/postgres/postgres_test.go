//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/store/postgres"
	"github.com/warp/worktime-engine/store/storetest"
)

// Run with:
//
//	WORKTIME_TEST_DATABASE_URL=postgres://localhost:5432/worktime_test go test -tags integration ./store/postgres/
func TestPostgres_Contract(t *testing.T) {
	url := os.Getenv("WORKTIME_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("WORKTIME_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := postgres.Connect(ctx, url, postgres.PoolOptions{MaxConns: 4})
	require.NoError(t, err)
	s := postgres.New(pool)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))
	// Migrate is idempotent.
	require.NoError(t, s.Migrate(ctx))

	storetest.Run(t, func(t *testing.T) storetest.Backend {
		require.NoError(t, s.Reset(ctx))
		return s
	})
}
