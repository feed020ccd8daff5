package notify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onem2m/acme-cse/internal/notify"
	"github.com/onem2m/acme-cse/internal/storage"
)

func TestBatchScheduler_DrainsAfterDuration(t *testing.T) {
	store := storage.NewMemoryStore()

	var mu sync.Mutex
	var drained []*storage.BatchNotification
	done := make(chan struct{})

	sched := notify.NewBatchScheduler(store, func(ctx context.Context, subRI, nu string, items []*storage.BatchNotification) {
		mu.Lock()
		drained = append(drained, items...)
		mu.Unlock()
		close(done)
	}, nil)

	require.NoError(t, sched.Enqueue(context.Background(), "sub1", "http://a", map[string]any{"n": 1}, 10*time.Millisecond))
	require.NoError(t, sched.Enqueue(context.Background(), "sub1", "http://a", map[string]any{"n": 2}, 10*time.Millisecond))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("batch never drained")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, drained, 2)

	count, err := store.CountBatchNotifications(context.Background(), "sub1", "http://a")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBatchScheduler_FlushNowBypassesTimer(t *testing.T) {
	store := storage.NewMemoryStore()

	drained := make(chan struct{}, 1)
	sched := notify.NewBatchScheduler(store, func(ctx context.Context, subRI, nu string, items []*storage.BatchNotification) {
		drained <- struct{}{}
	}, nil)

	require.NoError(t, sched.Enqueue(context.Background(), "sub1", "http://a", map[string]any{"n": 1}, time.Hour))
	sched.FlushNow(context.Background(), "sub1", "http://a")

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("flush now did not drain immediately")
	}
}
