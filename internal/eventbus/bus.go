// Package eventbus implements the typed event bus fanning resource
// lifecycle events out to NotificationManager and AnnouncementManager,
// replacing the Python original's dynamic event object with a fixed
// enumerated set of event kinds (spec.md §9). Grounded on the teacher's
// internal/events/queue.go (Redis Streams XAdd/XReadGroup/XAck pattern).
package eventbus

import (
	"context"

	"github.com/onem2m/acme-cse/internal/model"
)

// Handler consumes one event. Handlers run outside the originating
// request's goroutine — notification fan-out and announcement mirroring
// MUST NOT block the request that triggered them, per spec.md §5.
type Handler func(*model.Event)

// Bus is implemented by InProcessBus (default, asynchronous dispatch
// through a bounded queue and worker pool) and RedisBus (durable, Streams-backed, for
// multi-process deployments).
type Bus interface {
	Subscribe(h Handler)
	Publish(ctx context.Context, ev *model.Event)
	Close() error
}
