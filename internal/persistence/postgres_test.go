package persistence_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachpo/zebpay/internal/persistence"
)

// TestPostgresStoreContract exercises the Postgres-backed store against a
// throwaway container. It skips when Docker is unavailable.
func TestPostgresStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image: "postgres:16-alpine",
		Env: map[string]string{
			"POSTGRES_PASSWORD": "secret",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "zebpay",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/zebpay?sslmode=disable", host, port.Port())

	require.NoError(t, persistence.Migrate(ctx, dsn))
	// Re-running migrations must be a no-op.
	require.NoError(t, persistence.Migrate(ctx, dsn))

	store, err := persistence.NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	state := json.RawMessage(`{"client_order_id":"cid-1","state":"open","executed_amount":"0.5"}`)
	require.NoError(t, store.SaveTrackingState(ctx, "cid-1", state))
	require.NoError(t, store.SaveTrackingState(ctx, "cid-2", json.RawMessage(`{"state":"pending_create"}`)))

	loaded, err := store.LoadTrackingStates(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.JSONEq(t, string(state), string(loaded["cid-1"]))

	require.NoError(t, store.SaveTrackingState(ctx, "cid-1", json.RawMessage(`{"state":"filled"}`)))
	loaded, err = store.LoadTrackingStates(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"filled"}`, string(loaded["cid-1"]))

	require.NoError(t, store.RemoveTrackingState(ctx, "cid-1"))
	require.NoError(t, store.RemoveTrackingState(ctx, "missing"))
	loaded, err = store.LoadTrackingStates(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}
