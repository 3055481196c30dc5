package sqlstore_test

import (
	"context"
	"testing"

	"sensei/internal/model"
	"sensei/internal/modelio/sqlstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

func TestSaveLoadRoundTripsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("root"),
		mysql.WithPassword("testpass"),
	)
	require.NoError(t, err, "failed to start MySQL container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	store, err := sqlstore.Open(ctx, dsn, "model-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.CreateTableIfNotExists(ctx))

	records := []model.FeatureRecord{
		{Features: []string{"a"}, Weight: 1.0},
		{Features: []string{"a", "b"}, Weight: -2.5},
	}
	require.NoError(t, store.Save(ctx, records))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, records, got)

	// Save again should fully replace, not append.
	require.NoError(t, store.Save(ctx, records[:1]))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOpenRejectsUnreachableDSN(t *testing.T) {
	ctx := context.Background()
	_, err := sqlstore.Open(ctx, "root:bad@tcp(127.0.0.1:1)/nope", "model-1")
	assert.Error(t, err)
}
