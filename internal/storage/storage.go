// Package storage provides the indexed resource store: primary lookup by
// `ri`, secondary indices for `srn`/`csi` and parent->children, subscription
// records, and batch-notification queues. Grounded on the teacher's
// internal/storage/storage.go (Store interface shape, sentinel errors,
// pipeline-based atomic writes) generalized from subscription-only
// storage to the full resource tree per spec.md §4.1.
package storage

import (
	"context"
	"errors"

	"github.com/onem2m/acme-cse/internal/model"
)

// Sentinel errors returned by Store implementations.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrConflict    = errors.New("sibling name conflict")
	ErrUnavailable = errors.New("storage backend unavailable")
	ErrInvalidKey  = errors.New("invalid key")
)

// Subscription is the flattened internal record NotificationManager
// consults — distinct from the SUB resource itself, per SPEC_FULL.md §4:
// NotificationManager only ever touches this record, reloading/updating
// the SUB resource via Store only when `exc` reaches zero.
type Subscription struct {
	RI    string
	PI    string // parent resource this subscription watches
	NU    []string
	Net   []model.NotificationEventType
	ChTy  []model.ResourceType
	Atr   []string
	BnNum int
	BnDur string // ISO-8601 duration, e.g. "PT10S"
	Exc   int
	Ln    bool
	Nct   model.NotificationContentType
	Acrs  []string
}

// BatchNotification is one enqueued entry awaiting a batch drain.
type BatchNotification struct {
	SubRI     string
	NU        string
	Payload   map[string]any
	Timestamp int64 // unix nanos, used only for drain ordering
}

// Store is the resource-tree persistence contract (spec.md §4.1).
// Implementations must serialize all mutations to a single `ri`; secondary
// indices (srn->ri, csi->ri, parent->children, sub-by-parent) must stay
// consistent with the primary store after every mutation.
type Store interface {
	Put(ctx context.Context, r *model.Resource) error
	Update(ctx context.Context, r *model.Resource) error
	Delete(ctx context.Context, ri string) error

	GetByRI(ctx context.Context, ri string) (*model.Resource, error)
	GetByCSI(ctx context.Context, csi string) (*model.Resource, error)
	ChildrenOf(ctx context.Context, ri string, ty model.ResourceType) ([]*model.Resource, error)
	ResolveSRN(ctx context.Context, srn string) (string, error)
	CountChildren(ctx context.Context, ri string) (int, error)

	AddSubscription(ctx context.Context, sub *Subscription) error
	RemoveSubscription(ctx context.Context, ri string) error
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, ri string) (*Subscription, error)
	SubscriptionsForParent(ctx context.Context, pi string) ([]*Subscription, error)

	AddBatchNotification(ctx context.Context, subRI, nu string, payload map[string]any) error
	GetBatchNotifications(ctx context.Context, subRI, nu string) ([]*BatchNotification, error)
	RemoveBatchNotifications(ctx context.Context, subRI, nu string) error
	CountBatchNotifications(ctx context.Context, subRI, nu string) (int, error)

	Close() error
	Ping(ctx context.Context) error
}
