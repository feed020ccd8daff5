package notify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/notify"
	"github.com/onem2m/acme-cse/internal/storage"
)

// fakeNotifier records every call instead of making network requests.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []map[string]any
	fail  map[string]bool
}

func newFakeNotifier() *fakeNotifier { return &fakeNotifier{fail: make(map[string]bool)} }

func (f *fakeNotifier) Notify(_ context.Context, targetURI string, payload map[string]any, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, payload)
	if f.fail[targetURI] {
		return assert.AnError
	}
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestAddSubscription_VerifiesEveryTarget(t *testing.T) {
	store := storage.NewMemoryStore()
	fn := newFakeNotifier()
	mgr := notify.New(store, fn, nil, nil)

	sub := &storage.Subscription{RI: "sub1", PI: "cnt1", NU: []string{"http://a", "http://b"}, Nct: model.NctAll}
	err := mgr.AddSubscription(context.Background(), sub)
	require.Nil(t, err)
	assert.Equal(t, 2, fn.count())

	got, storeErr := store.GetSubscription(context.Background(), "sub1")
	require.NoError(t, storeErr)
	assert.Equal(t, sub.NU, got.NU)
}

func TestAddSubscription_FailsFastOnUnreachableTarget(t *testing.T) {
	store := storage.NewMemoryStore()
	fn := newFakeNotifier()
	fn.fail["http://bad"] = true
	mgr := notify.New(store, fn, nil, nil)

	sub := &storage.Subscription{RI: "sub1", PI: "cnt1", NU: []string{"http://bad"}}
	err := mgr.AddSubscription(context.Background(), sub)
	require.NotNil(t, err)
	assert.Equal(t, model.RSCSubscriptionVerificationInitiationFailed, err.RSC)

	_, storeErr := store.GetSubscription(context.Background(), "sub1")
	assert.ErrorIs(t, storeErr, storage.ErrNotFound)
}

func TestHandleEvent_DispatchesToMatchingSubscription(t *testing.T) {
	store := storage.NewMemoryStore()
	fn := newFakeNotifier()
	mgr := notify.New(store, fn, nil, nil)

	sub := &storage.Subscription{
		RI: "sub1", PI: "cnt1", NU: []string{"http://target"},
		Net: []model.NotificationEventType{model.NetUpdated}, Nct: model.NctAll,
	}
	require.NoError(t, store.AddSubscription(context.Background(), sub))

	mgr.HandleEvent(&model.Event{
		Kind:     model.EventUpdated,
		Resource: &model.Resource{RI: "cnt1", RN: "mycnt", TY: model.TypeCNT},
	})

	assert.Eventually(t, func() bool { return fn.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHandleEvent_SkipsNonMatchingNet(t *testing.T) {
	store := storage.NewMemoryStore()
	fn := newFakeNotifier()
	mgr := notify.New(store, fn, nil, nil)

	sub := &storage.Subscription{
		RI: "sub1", PI: "cnt1", NU: []string{"http://target"},
		Net: []model.NotificationEventType{model.NetDeleted},
	}
	require.NoError(t, store.AddSubscription(context.Background(), sub))

	mgr.HandleEvent(&model.Event{Kind: model.EventUpdated, Resource: &model.Resource{RI: "cnt1"}})

	assert.Equal(t, 0, fn.count())
}

func TestHandleEvent_SuppressesNotificationOfOwnChildCreation(t *testing.T) {
	store := storage.NewMemoryStore()
	fn := newFakeNotifier()
	mgr := notify.New(store, fn, nil, nil)

	// sub1 watches its own parent cnt1; it must not be notified that it
	// was itself the child just created under cnt1.
	sub := &storage.Subscription{RI: "sub1", PI: "cnt1", NU: []string{"http://target"}}
	require.NoError(t, store.AddSubscription(context.Background(), sub))

	mgr.HandleEvent(&model.Event{
		Kind:     model.EventCreateDirectChild,
		Parent:   &model.Resource{RI: "cnt1"},
		Resource: &model.Resource{RI: "sub1", TY: model.TypeSUB},
	})

	assert.Equal(t, 0, fn.count())
}

func TestHandleEvent_NotifiesOtherSubscriptionOfChildCreation(t *testing.T) {
	store := storage.NewMemoryStore()
	fn := newFakeNotifier()
	mgr := notify.New(store, fn, nil, nil)

	sub := &storage.Subscription{RI: "sub1", PI: "cnt1", NU: []string{"http://target"}}
	require.NoError(t, store.AddSubscription(context.Background(), sub))

	mgr.HandleEvent(&model.Event{
		Kind:     model.EventCreateDirectChild,
		Parent:   &model.Resource{RI: "cnt1"},
		Resource: &model.Resource{RI: "cin1", TY: model.TypeCIN},
	})

	assert.Eventually(t, func() bool { return fn.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHandleEvent_ExpirationCounterDeletesSubscription(t *testing.T) {
	store := storage.NewMemoryStore()
	fn := newFakeNotifier()
	mgr := notify.New(store, fn, nil, nil)

	sub := &storage.Subscription{RI: "sub1", PI: "cnt1", NU: []string{"http://target"}, Exc: 1}
	require.NoError(t, store.AddSubscription(context.Background(), sub))

	mgr.HandleEvent(&model.Event{Kind: model.EventUpdated, Resource: &model.Resource{RI: "cnt1"}})

	assert.Eventually(t, func() bool {
		_, err := store.GetSubscription(context.Background(), "sub1")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestRemoveSubscription_SendsDeletionNoticeAndIgnoresErrors(t *testing.T) {
	store := storage.NewMemoryStore()
	fn := newFakeNotifier()
	fn.fail["http://gone"] = true
	mgr := notify.New(store, fn, nil, nil)

	sub := &storage.Subscription{RI: "sub1", PI: "cnt1", NU: []string{"http://gone"}}
	require.NoError(t, store.AddSubscription(context.Background(), sub))

	err := mgr.RemoveSubscription(context.Background(), "sub1")
	require.NoError(t, err)

	_, storeErr := store.GetSubscription(context.Background(), "sub1")
	assert.ErrorIs(t, storeErr, storage.ErrNotFound)
}
