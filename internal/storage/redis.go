package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onem2m/acme-cse/internal/model"
)

// Redis key prefixes, generalized from the teacher's subscription-only
// key space (internal/storage/redis.go) to the full resource tree.
const (
	keyResource       = "cse:resource:"        // + ri -> JSON Resource
	keySRNIndex       = "cse:srn:"             // + srn -> ri
	keyCSIIndex       = "cse:csi:"             // + csi -> ri
	keyChildren       = "cse:children:"        // + pi -> set of ri
	keySubscription   = "cse:sub:"             // + ri -> JSON Subscription
	keySubByParent    = "cse:sub:byparent:"    // + pi -> set of sub ri
	keyBatchQueue     = "cse:batch:"           // + subRI + ":" + nu -> sorted set (score=ts) of JSON payload
	keyBatchQueueMeta = "cse:batch:meta:"      // + subRI + ":" + nu + ":" + ts -> JSON payload (member storage)
)

// RedisConfig configures the Redis-backed Store, mirroring the teacher's
// RedisConfig (standalone/Sentinel support, pool/timeout tuning).
type RedisConfig struct {
	Addr             string
	Password         string
	DB               int
	UseSentinel      bool
	SentinelAddrs    []string
	SentinelPassword string
	MasterName       string
	MaxRetries       int
	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PoolSize         int
}

// DefaultRedisConfig mirrors the teacher's DefaultRedisConfig defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// RedisStore implements Store over Redis, using pipelines for atomic
// multi-key writes the way the teacher's RedisStore does for
// subscription create/update/delete.
type RedisStore struct {
	client redis.UniversalClient
	config *RedisConfig
}

// NewRedisStore builds a RedisStore, configuring Sentinel when enabled.
func NewRedisStore(cfg *RedisConfig) *RedisStore {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	var client redis.UniversalClient
	if cfg.UseSentinel {
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       cfg.MasterName,
			SentinelAddrs:    cfg.SentinelAddrs,
			SentinelPassword: cfg.SentinelPassword,
			Password:         cfg.Password,
			DB:               cfg.DB,
			MaxRetries:       cfg.MaxRetries,
			DialTimeout:      cfg.DialTimeout,
			ReadTimeout:      cfg.ReadTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			PoolSize:         cfg.PoolSize,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})
	}
	return &RedisStore{client: client, config: cfg}
}

// NewRedisStoreWithClient wraps an already-constructed client — used by
// tests against miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, config: DefaultRedisConfig()}
}

func (s *RedisStore) Put(ctx context.Context, r *model.Resource) error {
	if r.RI == "" {
		return ErrInvalidKey
	}
	if r.PI != "" {
		exists, err := s.client.SIsMember(ctx, keyChildren+r.PI, r.RI).Result()
		if err == nil && !exists {
			// sibling rn collision check
			siblings, _ := s.client.SMembers(ctx, keyChildren+r.PI).Result()
			for _, sib := range siblings {
				data, err := s.client.Get(ctx, keyResource+sib).Bytes()
				if err != nil {
					continue
				}
				var other model.Resource
				if json.Unmarshal(data, &other) == nil && other.RN == r.RN {
					return ErrConflict
				}
			}
		}
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal resource: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, keyResource+r.RI, data, 0)
	if r.SRN != "" {
		pipe.Set(ctx, keySRNIndex+r.SRN, r.RI, 0)
	}
	if r.CSI != "" {
		pipe.Set(ctx, keyCSIIndex+r.CSI, r.RI, 0)
	}
	if r.PI != "" {
		pipe.SAdd(ctx, keyChildren+r.PI, r.RI)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put resource: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, r *model.Resource) error {
	if r.RI == "" {
		return ErrInvalidKey
	}
	exists, err := s.client.Exists(ctx, keyResource+r.RI).Result()
	if err != nil {
		return fmt.Errorf("check resource existence: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal resource: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, keyResource+r.RI, data, 0)
	if r.SRN != "" {
		pipe.Set(ctx, keySRNIndex+r.SRN, r.RI, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update resource: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, ri string) error {
	r, err := s.GetByRI(ctx, ri)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, keyResource+ri)
	if r.SRN != "" {
		pipe.Del(ctx, keySRNIndex+r.SRN)
	}
	if r.CSI != "" {
		pipe.Del(ctx, keyCSIIndex+r.CSI)
	}
	if r.PI != "" {
		pipe.SRem(ctx, keyChildren+r.PI, ri)
	}
	pipe.Del(ctx, keyChildren+ri)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	return nil
}

func (s *RedisStore) GetByRI(ctx context.Context, ri string) (*model.Resource, error) {
	data, err := s.client.Get(ctx, keyResource+ri).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get resource: %w", err)
	}
	var r model.Resource
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal resource: %w", err)
	}
	// Lazy expiry check per SPEC_FULL.md §9: an expired resource is
	// deleted on first access after its et has passed.
	if r.Expired(time.Now()) {
		_ = s.Delete(ctx, ri)
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *RedisStore) GetByCSI(ctx context.Context, csi string) (*model.Resource, error) {
	ri, err := s.client.Get(ctx, keyCSIIndex+csi).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get csi index: %w", err)
	}
	return s.GetByRI(ctx, ri)
}

func (s *RedisStore) ChildrenOf(ctx context.Context, ri string, ty model.ResourceType) ([]*model.Resource, error) {
	ids, err := s.client.SMembers(ctx, keyChildren+ri).Result()
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	out := make([]*model.Resource, 0, len(ids))
	for _, id := range ids {
		child, err := s.GetByRI(ctx, id)
		if err != nil {
			continue
		}
		if ty != model.TypeUnknown && child.TY != ty {
			continue
		}
		out = append(out, child)
	}
	return out, nil
}

func (s *RedisStore) ResolveSRN(ctx context.Context, srn string) (string, error) {
	ri, err := s.client.Get(ctx, keySRNIndex+srn).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("resolve srn: %w", err)
	}
	return ri, nil
}

func (s *RedisStore) CountChildren(ctx context.Context, ri string) (int, error) {
	n, err := s.client.SCard(ctx, keyChildren+ri).Result()
	if err != nil {
		return 0, fmt.Errorf("count children: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) AddSubscription(ctx context.Context, sub *Subscription) error {
	if sub.RI == "" {
		return ErrInvalidKey
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, keySubscription+sub.RI, data, 0)
	pipe.SAdd(ctx, keySubByParent+sub.PI, sub.RI)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add subscription: %w", err)
	}
	return nil
}

func (s *RedisStore) RemoveSubscription(ctx context.Context, ri string) error {
	sub, err := s.GetSubscription(ctx, ri)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, keySubscription+ri)
	pipe.SRem(ctx, keySubByParent+sub.PI, ri)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	return nil
}

func (s *RedisStore) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	exists, err := s.client.Exists(ctx, keySubscription+sub.RI).Result()
	if err != nil {
		return fmt.Errorf("check subscription existence: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	if err := s.client.Set(ctx, keySubscription+sub.RI, data, 0).Err(); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

func (s *RedisStore) GetSubscription(ctx context.Context, ri string) (*Subscription, error) {
	data, err := s.client.Get(ctx, keySubscription+ri).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	var sub Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("unmarshal subscription: %w", err)
	}
	return &sub, nil
}

func (s *RedisStore) SubscriptionsForParent(ctx context.Context, pi string) ([]*Subscription, error) {
	ids, err := s.client.SMembers(ctx, keySubByParent+pi).Result()
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for parent: %w", err)
	}
	out := make([]*Subscription, 0, len(ids))
	for _, id := range ids {
		sub, err := s.GetSubscription(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

func batchKey(subRI, nu string) string {
	return keyBatchQueue + subRI + ":" + nu
}

func (s *RedisStore) AddBatchNotification(ctx context.Context, subRI, nu string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal batch payload: %w", err)
	}
	ts := time.Now().UnixNano()
	member := fmt.Sprintf("%d:%s", ts, data)
	if err := s.client.ZAdd(ctx, batchKey(subRI, nu), redis.Z{Score: float64(ts), Member: member}).Err(); err != nil {
		return fmt.Errorf("enqueue batch notification: %w", err)
	}
	return nil
}

func (s *RedisStore) GetBatchNotifications(ctx context.Context, subRI, nu string) ([]*BatchNotification, error) {
	members, err := s.client.ZRangeWithScores(ctx, batchKey(subRI, nu), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list batch notifications: %w", err)
	}
	out := make([]*BatchNotification, 0, len(members))
	for _, m := range members {
		raw, ok := m.Member.(string)
		if !ok {
			continue
		}
		idx := indexOfColon(raw)
		if idx < 0 {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw[idx+1:]), &payload); err != nil {
			continue
		}
		out = append(out, &BatchNotification{
			SubRI: subRI, NU: nu, Payload: payload, Timestamp: int64(m.Score),
		})
	}
	return out, nil
}

func indexOfColon(s string) int {
	for i, c := range s {
		if c == ':' {
			return i
		}
	}
	return -1
}

func (s *RedisStore) RemoveBatchNotifications(ctx context.Context, subRI, nu string) error {
	if err := s.client.Del(ctx, batchKey(subRI, nu)).Err(); err != nil {
		return fmt.Errorf("remove batch notifications: %w", err)
	}
	return nil
}

func (s *RedisStore) CountBatchNotifications(ctx context.Context, subRI, nu string) (int, error) {
	n, err := s.client.ZCard(ctx, batchKey(subRI, nu)).Result()
	if err != nil {
		return 0, fmt.Errorf("count batch notifications: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Client returns the underlying Redis client, for callers that need to
// share the same connection (internal/eventbus.RedisBus, the delivery
// tracker) instead of opening a second one.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

var _ Store = (*RedisStore)(nil)
