package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/storage"
)

// batchKey identifies one (subscription, notification-target) pair whose
// pending notifications accumulate until `bn`/`bnDur` fires a drain.
type batchKey struct {
	subRI string
	nu    string
}

// DrainFunc flushes every queued BatchNotification for one target,
// ordered by enqueue timestamp, into a single aggregated delivery.
type DrainFunc func(ctx context.Context, subRI, nu string, items []*storage.BatchNotification)

// BatchScheduler implements the `bn`/`bnDur` batch-notification timer,
// grounded on SPEC_FULL.md §5's aggregation refinement: one timer per
// (subRi, nu) pair, started on first enqueue, reset never — the batch
// drains exactly `bnDur` after the first item in it arrived, matching
// original_source/acme/services/NotificationManager.py's per-target
// `_waitAndNotify` scheduling.
type BatchScheduler struct {
	store  storage.Store
	drain  DrainFunc
	logger *zap.Logger

	mu      sync.Mutex
	pending map[batchKey]*time.Timer
}

// NewBatchScheduler builds a BatchScheduler backed by store for queue
// persistence and drain for flush delivery.
func NewBatchScheduler(store storage.Store, drain DrainFunc, logger *zap.Logger) *BatchScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchScheduler{
		store:   store,
		drain:   drain,
		logger:  logger,
		pending: make(map[batchKey]*time.Timer),
	}
}

// Enqueue appends payload to the (subRI, nu) queue and, if no timer is
// already running for that pair, starts one for dur.
func (s *BatchScheduler) Enqueue(ctx context.Context, subRI, nu string, payload map[string]any, dur time.Duration) error {
	if err := s.store.AddBatchNotification(ctx, subRI, nu, payload); err != nil {
		return err
	}

	key := batchKey{subRI: subRI, nu: nu}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.pending[key]; running {
		return nil
	}
	if dur <= 0 {
		dur = 10 * time.Second
	}
	s.pending[key] = time.AfterFunc(dur, func() { s.fire(key) })
	return nil
}

func (s *BatchScheduler) fire(key batchKey) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()

	ctx := context.Background()
	items, err := s.store.GetBatchNotifications(ctx, key.subRI, key.nu)
	if err != nil {
		s.logger.Error("failed to read batch queue", zap.String("subRI", key.subRI), zap.Error(err))
		return
	}
	if len(items) == 0 {
		return
	}

	s.drain(ctx, key.subRI, key.nu, items)

	if err := s.store.RemoveBatchNotifications(ctx, key.subRI, key.nu); err != nil {
		s.logger.Error("failed to clear batch queue", zap.String("subRI", key.subRI), zap.Error(err))
	}
}

// FlushNow immediately drains a pending batch for (subRI, nu), bypassing
// its timer — used when a subscription is deleted while notifications
// are still queued (spec.md §5 deletion protocol).
func (s *BatchScheduler) FlushNow(ctx context.Context, subRI, nu string) {
	key := batchKey{subRI: subRI, nu: nu}
	s.mu.Lock()
	if t, ok := s.pending[key]; ok {
		t.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()
	s.fireImmediate(ctx, key)
}

func (s *BatchScheduler) fireImmediate(ctx context.Context, key batchKey) {
	items, err := s.store.GetBatchNotifications(ctx, key.subRI, key.nu)
	if err != nil || len(items) == 0 {
		return
	}
	s.drain(ctx, key.subRI, key.nu, items)
	_ = s.store.RemoveBatchNotifications(ctx, key.subRI, key.nu)
}

// Stop cancels every outstanding timer without draining, used on shutdown.
func (s *BatchScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.pending {
		t.Stop()
		delete(s.pending, k)
	}
}
