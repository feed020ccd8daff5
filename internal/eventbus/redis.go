package eventbus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/model"
)

const (
	streamKey     = "cse:events:stream"
	consumerGroup = "cse-event-consumers"
)

// wireEvent is the JSON-serializable projection of model.Event published
// onto the stream; Resource/Parent are carried by RI only, rehydrated by
// subscribers that need the full resource (matches the teacher's
// events/queue.go choice to keep stream payloads small).
type wireEvent struct {
	Kind               model.EventKind `json:"kind"`
	ResourceRI         string          `json:"ri"`
	ParentRI           string          `json:"pi,omitempty"`
	Originator         string         `json:"originator"`
	ModifiedAttributes map[string]any `json:"modifiedAttributes,omitempty"`
	MissingDataNumber  int            `json:"missingDataNumber,omitempty"`
}

// RedisBus publishes events onto a Redis Stream and fans them out to
// local Subscribe handlers via a consumer-group reader goroutine,
// grounded on the teacher's internal/events/queue.go (XAdd/
// XGroupCreateMkStream/XReadGroup/XAck, `Block: 5000ms, Count: 10`).
type RedisBus struct {
	client     redis.UniversalClient
	consumer   string
	logger     *zap.Logger
	mu         sync.RWMutex
	handlers   []Handler
	cancel     context.CancelFunc
	resolve    func(ctx context.Context, ri string) (*model.Resource, error)
}

// NewRedisBus builds a RedisBus. resolve is used to rehydrate full
// Resource objects from the RI carried on the wire (typically
// storage.Store.GetByRI).
func NewRedisBus(client redis.UniversalClient, consumer string, resolve func(ctx context.Context, ri string) (*model.Resource, error), logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{client: client, consumer: consumer, resolve: resolve, logger: logger}
}

// Start creates the consumer group (if absent) and launches the read loop.
func (b *RedisBus) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	err := b.client.XGroupCreateMkStream(ctx, streamKey, consumerGroup, "$").Err()
	if err != nil && !isGroupExistsErr(err) {
		return err
	}

	go b.readLoop(ctx)
	return nil
}

func (b *RedisBus) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: b.consumer,
			Streams:  []string{streamKey, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			b.logger.Error("event bus read failed", zap.Error(err))
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				b.dispatch(ctx, msg)
				b.client.XAck(ctx, streamKey, consumerGroup, msg.ID)
			}
		}
	}
}

func (b *RedisBus) dispatch(ctx context.Context, msg redis.XMessage) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		return
	}
	var we wireEvent
	if err := json.Unmarshal([]byte(raw), &we); err != nil {
		b.logger.Error("failed to unmarshal event", zap.Error(err))
		return
	}

	ev := &model.Event{
		Kind: we.Kind, Originator: we.Originator,
		ModifiedAttributes: we.ModifiedAttributes, MissingDataNumber: we.MissingDataNumber,
	}
	if b.resolve != nil && we.ResourceRI != "" {
		ev.Resource, _ = b.resolve(ctx, we.ResourceRI)
	}
	if b.resolve != nil && we.ParentRI != "" {
		ev.Parent, _ = b.resolve(ctx, we.ParentRI)
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (b *RedisBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *RedisBus) Publish(ctx context.Context, ev *model.Event) {
	we := wireEvent{Kind: ev.Kind, Originator: ev.Originator, ModifiedAttributes: ev.ModifiedAttributes, MissingDataNumber: ev.MissingDataNumber}
	if ev.Resource != nil {
		we.ResourceRI = ev.Resource.RI
	}
	if ev.Parent != nil {
		we.ParentRI = ev.Parent.RI
	}
	data, err := json.Marshal(we)
	if err != nil {
		b.logger.Error("failed to marshal event", zap.Error(err))
		return
	}
	if err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: streamKey, Values: map[string]any{"event": string(data)}}).Err(); err != nil {
		b.logger.Error("failed to publish event", zap.Error(err))
	}
}

func (b *RedisBus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

func isGroupExistsErr(err error) bool {
	return strings.Contains(err.Error(), "BUSYGROUP")
}

var _ Bus = (*RedisBus)(nil)
