package storage_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/storage"
)

func newTestRedisStore(t *testing.T) *storage.RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return storage.NewRedisStoreWithClient(client)
}

func TestRedisStore_PutAndResolveSRN(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	r := &model.Resource{RI: "cse01", RN: "cse", TY: model.TypeCSEBase, SRN: "cse", CSI: "/cse-in"}
	require.NoError(t, s.Put(ctx, r))

	got, err := s.GetByRI(ctx, "cse01")
	require.NoError(t, err)
	require.Equal(t, "cse", got.RN)

	ri, err := s.ResolveSRN(ctx, "cse")
	require.NoError(t, err)
	require.Equal(t, "cse01", ri)

	byCSI, err := s.GetByCSI(ctx, "/cse-in")
	require.NoError(t, err)
	require.Equal(t, "cse01", byCSI.RI)
}

func TestRedisStore_SiblingConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	require.NoError(t, s.Put(ctx, &model.Resource{RI: "p1", RN: "ae1", TY: model.TypeAE}))
	require.NoError(t, s.Put(ctx, &model.Resource{RI: "c1", RN: "cnt1", PI: "p1", TY: model.TypeCNT}))

	err := s.Put(ctx, &model.Resource{RI: "c2", RN: "cnt1", PI: "p1", TY: model.TypeCNT})
	require.ErrorIs(t, err, storage.ErrConflict)
}

func TestRedisStore_BatchNotificationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	require.NoError(t, s.AddBatchNotification(ctx, "sub1", "http://x", map[string]any{"n": float64(1)}))
	require.NoError(t, s.AddBatchNotification(ctx, "sub1", "http://x", map[string]any{"n": float64(2)}))

	notes, err := s.GetBatchNotifications(ctx, "sub1", "http://x")
	require.NoError(t, err)
	require.Len(t, notes, 2)

	require.NoError(t, s.RemoveBatchNotifications(ctx, "sub1", "http://x"))
	n, err := s.CountBatchNotifications(ctx, "sub1", "http://x")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRedisStore_Ping(t *testing.T) {
	s := newTestRedisStore(t)
	require.NoError(t, s.Ping(context.Background()))
}
