package announce_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onem2m/acme-cse/internal/announce"
	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/policy"
	"github.com/onem2m/acme-cse/internal/storage"
)

type fakeRemoteClient struct {
	mu      sync.Mutex
	created []map[string]any
	updated []map[string]any
	deleted []string
	nextID  int
}

func (f *fakeRemoteClient) Create(_ context.Context, _, _ string, body map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.created = append(f.created, body)
	return fmt.Sprintf("remote-%d", f.nextID), nil
}

func (f *fakeRemoteClient) Update(_ context.Context, _, _ string, body map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, body)
	return nil
}

func (f *fakeRemoteClient) Delete(_ context.Context, _, ri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ri)
	return nil
}

func newTestManager(t *testing.T) (*announce.Manager, *fakeRemoteClient, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := policy.DefaultRegistry()
	client := &fakeRemoteClient{}
	return announce.New(store, reg, client, nil), client, store
}

func TestHandleEvent_CreateAnnouncesToEachTarget(t *testing.T) {
	mgr, client, store := newTestManager(t)

	ae := &model.Resource{
		RI: "ae1", RN: "myAE", PI: "cse1", TY: model.TypeAE,
		AT:    []string{"remoteCSE1", "remoteCSE2"},
		Attrs: map[string]any{"api": "N.myapp"},
	}
	require.NoError(t, store.Put(context.Background(), ae))

	mgr.HandleEvent(&model.Event{Kind: model.EventCreated, Resource: ae})

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Len(t, client.created, 2)
	assert.Equal(t, "ae1", client.created[0]["lnk"])
	assert.Equal(t, "N.myapp", client.created[0]["api"])
}

func TestHandleEvent_CreateSkipsWhenNoAT(t *testing.T) {
	mgr, client, _ := newTestManager(t)

	mgr.HandleEvent(&model.Event{Kind: model.EventCreated, Resource: &model.Resource{RI: "ae1", TY: model.TypeAE}})

	assert.Empty(t, client.created)
}

func TestHandleEvent_DeleteWithdrawsAllProjections(t *testing.T) {
	mgr, client, store := newTestManager(t)

	ae := &model.Resource{
		RI: "ae1", RN: "myAE", PI: "cse1", TY: model.TypeAE,
		AT: []string{"remoteCSE1"}, Attrs: map[string]any{"api": "N.x"},
	}
	require.NoError(t, store.Put(context.Background(), ae))
	mgr.HandleEvent(&model.Event{Kind: model.EventCreated, Resource: ae})

	updated, err := store.GetByRI(context.Background(), "ae1")
	require.NoError(t, err)

	mgr.HandleEvent(&model.Event{Kind: model.EventDeleted, Resource: updated})

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Len(t, client.deleted, 1)
	assert.Equal(t, "remote-1", client.deleted[0])
}

func TestHandleEvent_UpdateAddsAndRemovesTargets(t *testing.T) {
	mgr, client, store := newTestManager(t)

	ae := &model.Resource{
		RI: "ae1", RN: "myAE", PI: "cse1", TY: model.TypeAE,
		AT: []string{"remoteCSE1"}, Attrs: map[string]any{"api": "N.x"},
	}
	require.NoError(t, store.Put(context.Background(), ae))
	mgr.HandleEvent(&model.Event{Kind: model.EventCreated, Resource: ae})

	current, err := store.GetByRI(context.Background(), "ae1")
	require.NoError(t, err)
	current.AT = []string{"remoteCSE2"}

	mgr.HandleEvent(&model.Event{Kind: model.EventUpdated, Resource: current})

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Len(t, client.deleted, 1, "remoteCSE1 mirror should be withdrawn")
	assert.Len(t, client.created, 2, "remoteCSE1 create + remoteCSE2 create")
}
