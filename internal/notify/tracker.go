package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryStatus is the outcome recorded for one notification attempt.
type DeliveryStatus string

const (
	DeliveryStatusSucceeded DeliveryStatus = "succeeded"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Delivery records one notification attempt against one target URI,
// grounded on the teacher's NotificationDelivery (internal/events).
type Delivery struct {
	ID             string
	SubscriptionRI string
	Target         string
	Status         DeliveryStatus
	Attempts       int
	Error          string
	CompletedAt    time.Time
}

// DeliveryTracker records notification delivery outcomes for audit and
// for ListFailed-style retrospection, grounded on the teacher's
// internal/events/tracker.go DeliveryTracker interface.
type DeliveryTracker interface {
	Track(ctx context.Context, d *Delivery) error
	ListBySubscription(ctx context.Context, subRI string) ([]*Delivery, error)
	ListFailed(ctx context.Context) ([]*Delivery, error)
}

const (
	trackerKeyPrefix    = "cse:delivery:"
	trackerSubIndex     = "cse:deliveries:subscription:"
	trackerFailedSet    = "cse:deliveries:failed"
	trackerTTL          = 7 * 24 * time.Hour
)

// RedisDeliveryTracker implements DeliveryTracker on Redis, mirroring the
// teacher's RedisDeliveryTracker (per-delivery key with TTL, subscription
// index as a set, failed deliveries as a timestamp-scored sorted set).
type RedisDeliveryTracker struct {
	client redis.UniversalClient
}

// NewRedisDeliveryTracker builds a RedisDeliveryTracker.
func NewRedisDeliveryTracker(client redis.UniversalClient) *RedisDeliveryTracker {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisDeliveryTracker{client: client}
}

func (t *RedisDeliveryTracker) Track(ctx context.Context, d *Delivery) error {
	if d == nil || d.ID == "" {
		return errors.New("delivery must carry a non-empty ID")
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}

	pipe := t.client.Pipeline()
	pipe.Set(ctx, trackerKeyPrefix+d.ID, data, trackerTTL)

	if d.SubscriptionRI != "" {
		key := trackerSubIndex + d.SubscriptionRI
		pipe.SAdd(ctx, key, d.ID)
		pipe.Expire(ctx, key, trackerTTL)
	}

	if d.Status == DeliveryStatusFailed {
		pipe.ZAdd(ctx, trackerFailedSet, redis.Z{Score: float64(d.CompletedAt.Unix()), Member: d.ID})
		pipe.Expire(ctx, trackerFailedSet, trackerTTL)
	} else {
		pipe.ZRem(ctx, trackerFailedSet, d.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("track delivery: %w", err)
	}
	return nil
}

func (t *RedisDeliveryTracker) get(ctx context.Context, id string) (*Delivery, error) {
	data, err := t.client.Get(ctx, trackerKeyPrefix+id).Bytes()
	if err != nil {
		return nil, err
	}
	var d Delivery
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal delivery: %w", err)
	}
	return &d, nil
}

func (t *RedisDeliveryTracker) ListBySubscription(ctx context.Context, subRI string) ([]*Delivery, error) {
	ids, err := t.client.SMembers(ctx, trackerSubIndex+subRI).Result()
	if err != nil {
		return nil, fmt.Errorf("list deliveries by subscription: %w", err)
	}
	return t.collect(ctx, ids), nil
}

func (t *RedisDeliveryTracker) ListFailed(ctx context.Context) ([]*Delivery, error) {
	ids, err := t.client.ZRange(ctx, trackerFailedSet, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed deliveries: %w", err)
	}
	return t.collect(ctx, ids), nil
}

func (t *RedisDeliveryTracker) collect(ctx context.Context, ids []string) []*Delivery {
	out := make([]*Delivery, 0, len(ids))
	for _, id := range ids {
		d, err := t.get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

var _ DeliveryTracker = (*RedisDeliveryTracker)(nil)
