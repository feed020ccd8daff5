package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/storage"
)

func TestMemoryStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	r := &model.Resource{RI: "cse01", RN: "cse", TY: model.TypeCSEBase, SRN: "cse"}
	require.NoError(t, s.Put(ctx, r))

	got, err := s.GetByRI(ctx, "cse01")
	require.NoError(t, err)
	assert.Equal(t, "cse", got.RN)

	ri, err := s.ResolveSRN(ctx, "cse")
	require.NoError(t, err)
	assert.Equal(t, "cse01", ri)

	require.NoError(t, s.Delete(ctx, "cse01"))
	_, err = s.GetByRI(ctx, "cse01")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_SiblingNameConflict(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	parent := &model.Resource{RI: "p1", RN: "ae1", TY: model.TypeAE}
	require.NoError(t, s.Put(ctx, parent))

	c1 := &model.Resource{RI: "c1", RN: "cnt1", PI: "p1", TY: model.TypeCNT}
	require.NoError(t, s.Put(ctx, c1))

	c2 := &model.Resource{RI: "c2", RN: "cnt1", PI: "p1", TY: model.TypeCNT}
	err := s.Put(ctx, c2)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestMemoryStore_ChildrenOfFiltersByType(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	require.NoError(t, s.Put(ctx, &model.Resource{RI: "p1", RN: "ae1", TY: model.TypeAE}))
	require.NoError(t, s.Put(ctx, &model.Resource{RI: "c1", RN: "cnt1", PI: "p1", TY: model.TypeCNT}))
	require.NoError(t, s.Put(ctx, &model.Resource{RI: "c2", RN: "acp1", PI: "p1", TY: model.TypeACP}))

	cnts, err := s.ChildrenOf(ctx, "p1", model.TypeCNT)
	require.NoError(t, err)
	assert.Len(t, cnts, 1)
	assert.Equal(t, "c1", cnts[0].RI)

	all, err := s.ChildrenOf(ctx, "p1", model.TypeUnknown)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStore_BatchNotificationOrdering(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddBatchNotification(ctx, "sub1", "http://x", map[string]any{"i": i}))
	}

	n, err := s.CountBatchNotifications(ctx, "sub1", "http://x")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	notes, err := s.GetBatchNotifications(ctx, "sub1", "http://x")
	require.NoError(t, err)
	require.Len(t, notes, 3)
	for i := 1; i < len(notes); i++ {
		assert.LessOrEqual(t, notes[i-1].Timestamp, notes[i].Timestamp)
	}

	require.NoError(t, s.RemoveBatchNotifications(ctx, "sub1", "http://x"))
	n, err = s.CountBatchNotifications(ctx, "sub1", "http://x")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryStore_SubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore()

	sub := &storage.Subscription{RI: "sub1", PI: "cnt1", NU: []string{"http://x"}}
	require.NoError(t, s.AddSubscription(ctx, sub))

	subs, err := s.SubscriptionsForParent(ctx, "cnt1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "sub1", subs[0].RI)

	sub.Exc = 1
	require.NoError(t, s.UpdateSubscription(ctx, sub))
	got, err := s.GetSubscription(ctx, "sub1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Exc)

	require.NoError(t, s.RemoveSubscription(ctx, "sub1"))
	_, err = s.GetSubscription(ctx, "sub1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
