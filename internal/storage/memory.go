package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/onem2m/acme-cse/internal/model"
)

// MemoryStore is an in-process Store used by unit tests and the boot
// importer's dry-run mode. It honors the same consistency guarantees as
// RedisStore (serialized per-ri mutation, consistent secondary indices)
// using a single mutex, matching spec.md §4.1's "updates are serialized
// per ri" in its simplest form.
type MemoryStore struct {
	mu sync.Mutex

	resources map[string]*model.Resource
	srnIndex  map[string]string
	csiIndex  map[string]string
	children  map[string]map[string]struct{}

	subscriptions map[string]*Subscription
	subByParent   map[string]map[string]struct{}

	batch map[string][]*BatchNotification
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources:     make(map[string]*model.Resource),
		srnIndex:      make(map[string]string),
		csiIndex:      make(map[string]string),
		children:      make(map[string]map[string]struct{}),
		subscriptions: make(map[string]*Subscription),
		subByParent:   make(map[string]map[string]struct{}),
		batch:         make(map[string][]*BatchNotification),
	}
}

func (m *MemoryStore) Put(_ context.Context, r *model.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.RI == "" {
		return ErrInvalidKey
	}
	if r.PI != "" {
		for sibRI := range m.children[r.PI] {
			if sib := m.resources[sibRI]; sib != nil && sib.RN == r.RN {
				return ErrConflict
			}
		}
	}
	m.resources[r.RI] = r
	if r.SRN != "" {
		m.srnIndex[r.SRN] = r.RI
	}
	if r.CSI != "" {
		m.csiIndex[r.CSI] = r.RI
	}
	if r.PI != "" {
		if m.children[r.PI] == nil {
			m.children[r.PI] = make(map[string]struct{})
		}
		m.children[r.PI][r.RI] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) Update(_ context.Context, r *model.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[r.RI]; !ok {
		return ErrNotFound
	}
	m.resources[r.RI] = r
	if r.SRN != "" {
		m.srnIndex[r.SRN] = r.RI
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, ri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[ri]
	if !ok {
		return ErrNotFound
	}
	delete(m.resources, ri)
	if r.SRN != "" {
		delete(m.srnIndex, r.SRN)
	}
	if r.CSI != "" {
		delete(m.csiIndex, r.CSI)
	}
	if r.PI != "" && m.children[r.PI] != nil {
		delete(m.children[r.PI], ri)
	}
	delete(m.children, ri)
	return nil
}

func (m *MemoryStore) GetByRI(_ context.Context, ri string) (*model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[ri]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Expired(time.Now()) {
		delete(m.resources, ri)
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) GetByCSI(_ context.Context, csi string) (*model.Resource, error) {
	m.mu.Lock()
	ri, ok := m.csiIndex[csi]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetByRI(context.Background(), ri)
}

func (m *MemoryStore) ChildrenOf(_ context.Context, ri string, ty model.ResourceType) ([]*model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.children[ri]
	out := make([]*model.Resource, 0, len(ids))
	for id := range ids {
		r := m.resources[id]
		if r == nil {
			continue
		}
		if ty != model.TypeUnknown && r.TY != ty {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RI < out[j].RI })
	return out, nil
}

func (m *MemoryStore) ResolveSRN(_ context.Context, srn string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ri, ok := m.srnIndex[srn]
	if !ok {
		return "", ErrNotFound
	}
	return ri, nil
}

func (m *MemoryStore) CountChildren(_ context.Context, ri string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.children[ri]), nil
}

func (m *MemoryStore) AddSubscription(_ context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.RI == "" {
		return ErrInvalidKey
	}
	m.subscriptions[sub.RI] = sub
	if m.subByParent[sub.PI] == nil {
		m.subByParent[sub.PI] = make(map[string]struct{})
	}
	m.subByParent[sub.PI][sub.RI] = struct{}{}
	return nil
}

func (m *MemoryStore) RemoveSubscription(_ context.Context, ri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[ri]
	if !ok {
		return ErrNotFound
	}
	delete(m.subscriptions, ri)
	if m.subByParent[sub.PI] != nil {
		delete(m.subByParent[sub.PI], ri)
	}
	return nil
}

func (m *MemoryStore) UpdateSubscription(_ context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[sub.RI]; !ok {
		return ErrNotFound
	}
	m.subscriptions[sub.RI] = sub
	return nil
}

func (m *MemoryStore) GetSubscription(_ context.Context, ri string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[ri]
	if !ok {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (m *MemoryStore) SubscriptionsForParent(_ context.Context, pi string) ([]*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.subByParent[pi]
	out := make([]*Subscription, 0, len(ids))
	for id := range ids {
		out = append(out, m.subscriptions[id])
	}
	return out, nil
}

func (m *MemoryStore) AddBatchNotification(_ context.Context, subRI, nu string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := subRI + ":" + nu
	m.batch[key] = append(m.batch[key], &BatchNotification{
		SubRI: subRI, NU: nu, Payload: payload, Timestamp: time.Now().UnixNano(),
	})
	return nil
}

func (m *MemoryStore) GetBatchNotifications(_ context.Context, subRI, nu string) ([]*BatchNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := subRI + ":" + nu
	out := append([]*BatchNotification(nil), m.batch[key]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (m *MemoryStore) RemoveBatchNotifications(_ context.Context, subRI, nu string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.batch, subRI+":"+nu)
	return nil
}

func (m *MemoryStore) CountBatchNotifications(_ context.Context, subRI, nu string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batch[subRI+":"+nu]), nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

var _ Store = (*MemoryStore)(nil)
