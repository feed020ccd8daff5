//go:build integration
// +build integration

package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/storage"
)

// startRedisContainer runs a real Redis server for tests that need to
// exercise storage.RedisStore against actual Redis semantics (pipelines,
// sorted sets, stream consumer groups) rather than miniredis's in-memory
// approximation, grounded on the teacher's
// tests/integration/helpers/testcontainers.go SetupRedisContainer.
func startRedisContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7.4-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections"),
			wait.ForListeningPort("6379/tcp"),
		).WithDeadline(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisStore_AgainstRealRedis(t *testing.T) {
	ctx := context.Background()
	addr := startRedisContainer(ctx, t)

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	store := storage.NewRedisStoreWithClient(client)

	cse := &model.Resource{RI: "cse01", RN: "cse", TY: model.TypeCSEBase, SRN: "cse", CSI: "/cse-in"}
	require.NoError(t, store.Put(ctx, cse))

	ae := &model.Resource{RI: "ae01", RN: "ae1", PI: "cse01", TY: model.TypeAE, SRN: "cse/ae1"}
	require.NoError(t, store.Put(ctx, ae))

	children, err := store.ChildrenOf(ctx, "cse01", model.TypeUnknown)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "ae01", children[0].RI)

	byCSI, err := store.GetByCSI(ctx, "/cse-in")
	require.NoError(t, err)
	require.Equal(t, "cse01", byCSI.RI)

	require.NoError(t, store.Delete(ctx, "ae01"))
	count, err := store.CountChildren(ctx, "cse01")
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
