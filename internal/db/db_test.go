package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"document-agent/internal/config"
	"document-agent/internal/models"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping pgvector test in short mode (requires docker)")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("database"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	if err != nil {
		t.Skipf("Skipping pgvector test, container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestConnectDB(t *testing.T) {
	_, err := ConnectDB(config.DatabaseConfig{Driver: config.DriverPgdriver})
	assert.ErrorContains(t, err, "dsn is required")

	_, err = ConnectDB(config.DatabaseConfig{Driver: "mysql", DSN: "postgres://localhost/db"})
	assert.ErrorContains(t, err, "unknown database driver")

	sqldb, err := ConnectDB(config.DatabaseConfig{Driver: config.DriverPq, DSN: "postgres://user:pw@localhost:1/db?sslmode=disable"})
	require.NoError(t, err)
	assert.NoError(t, sqldb.Close())
}

func TestIndex(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	for _, driver := range []string{config.DriverPgdriver, config.DriverPq} {
		t.Run(driver, func(t *testing.T) {
			idx, err := Open(ctx, config.DatabaseConfig{Driver: driver, DSN: dsn})
			require.NoError(t, err)
			defer idx.Close()

			entries := []models.IndexEntry{
				{Position: 0, Content: "alpha", Embedding: []float32{1, 0, 0}},
				{Position: 1, Content: "beta", Embedding: []float32{0, 1, 0}},
				{Position: 2, Content: "gamma", Embedding: []float32{0, 0, 1}},
			}
			require.NoError(t, idx.Build(ctx, entries))
			assert.Equal(t, 3, idx.Size())

			hits, err := idx.Search(ctx, []float32{0.2, 0.9, 0.1}, 2)
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, 1, hits[0].Position)
			assert.Equal(t, 0, hits[1].Position)
			assert.InDelta(t, 0.9, hits[0].Score, 1e-5)

			hits, err = idx.Search(ctx, []float32{0, 0, 1}, 10)
			require.NoError(t, err)
			assert.Len(t, hits, 3)

			_, err = idx.Search(ctx, []float32{1, 0}, 1)
			assert.ErrorContains(t, err, "dimension")
			_, err = idx.Search(ctx, []float32{1, 0, 0}, 0)
			assert.Error(t, err)

			require.NoError(t, idx.Build(ctx, entries[:1]))
			assert.Equal(t, 1, idx.Size())
			hits, err = idx.Search(ctx, []float32{0, 1, 0}, 3)
			require.NoError(t, err)
			assert.Len(t, hits, 1)
		})
	}
}

func tableExists(t *testing.T, ctx context.Context, db bun.IDB, table string) bool {
	t.Helper()
	var n int
	err := db.NewRaw("SELECT count(*) FROM information_schema.tables WHERE table_name = ?", table).Scan(ctx, &n)
	require.NoError(t, err)
	return n > 0
}

func TestIndexIsolation(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	cfg := config.DatabaseConfig{Driver: config.DriverPgdriver, DSN: dsn}

	first, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer first.Close()
	second, err := Open(ctx, cfg)
	require.NoError(t, err)

	require.NoError(t, first.Build(ctx, []models.IndexEntry{
		{Position: 0, Content: "alpha", Embedding: []float32{1, 0, 0}},
		{Position: 1, Content: "beta", Embedding: []float32{0, 1, 0}},
		{Position: 2, Content: "gamma", Embedding: []float32{0, 0, 1}},
	}))
	require.NoError(t, second.Build(ctx, []models.IndexEntry{
		{Position: 0, Content: "delta", Embedding: []float32{0, 1, 0}},
	}))
	assert.NotEqual(t, first.table, second.table)

	t.Run("A later build leaves other indexes intact", func(t *testing.T) {
		hits, err := first.Search(ctx, []float32{0, 1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, 1, hits[0].Position)
	})

	t.Run("Rebuild drops the previous table", func(t *testing.T) {
		before := second.table
		require.NoError(t, second.Build(ctx, []models.IndexEntry{
			{Position: 0, Content: "epsilon", Embedding: []float32{1, 0, 0}},
		}))
		assert.False(t, tableExists(t, ctx, first.db, before))
		assert.True(t, tableExists(t, ctx, first.db, second.table))
	})

	t.Run("Close drops the table", func(t *testing.T) {
		table := second.table
		require.NoError(t, second.Close())
		assert.False(t, tableExists(t, ctx, first.db, table))

		hits, err := first.Search(ctx, []float32{1, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, 0, hits[0].Position)
	})
}
