package dispatcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onem2m/acme-cse/internal/dispatcher"
	"github.com/onem2m/acme-cse/internal/factory"
	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/policy"
	"github.com/onem2m/acme-cse/internal/security"
	"github.com/onem2m/acme-cse/internal/storage"
)

type recordingPublisher struct{ events []*model.Event }

func (p *recordingPublisher) Publish(_ context.Context, ev *model.Event) {
	p.events = append(p.events, ev)
}

func newTestDispatcher(t *testing.T) (*dispatcher.Dispatcher, storage.Store, *recordingPublisher) {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := policy.DefaultRegistry()
	val := policy.NewValidator(reg)
	f := factory.New(nil)
	factory.RegisterDefaults(f, val)
	f.Seal()
	sec := security.New(store, nil, false) // ACP checks disabled for dispatcher-focused tests
	pub := &recordingPublisher{}
	return dispatcher.New(store, f, val, sec, pub, nil), store, pub
}

func TestDispatcher_CreateCSEBaseThenRetrieve(t *testing.T) {
	ctx := context.Background()
	d, store, _ := newTestDispatcher(t)

	res := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	require.True(t, res.Succeeded())
	require.NotNil(t, res.Resource)
	assert.NotEmpty(t, res.Resource.RI)

	got := d.Retrieve(ctx, res.Resource.RI, "C")
	require.True(t, got.Succeeded())
	assert.Equal(t, "cse", got.Resource.RN)

	_, err := store.GetByRI(ctx, res.Resource.RI)
	require.NoError(t, err)
}

func TestDispatcher_CreateChildIncrementsChildCount(t *testing.T) {
	ctx := context.Background()
	d, store, _ := newTestDispatcher(t)

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	require.True(t, cse.Succeeded())

	before, _ := store.CountChildren(ctx, cse.Resource.RI)
	ae := d.Create(ctx, cse.Resource.RI, "m2m:ae", map[string]any{"rn": "ae1", "api": "Napp"}, "C", model.TypeAE)
	require.True(t, ae.Succeeded())
	after, _ := store.CountChildren(ctx, cse.Resource.RI)

	assert.Equal(t, before+1, after)
	assert.Equal(t, cse.Resource.RI, ae.Resource.PI)
}

func TestDispatcher_CreateSiblingNameCollisionConflicts(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	require.True(t, cse.Succeeded())

	first := d.Create(ctx, cse.Resource.RI, "m2m:ae", map[string]any{"rn": "ae1", "api": "Napp"}, "C", model.TypeAE)
	require.True(t, first.Succeeded())

	second := d.Create(ctx, cse.Resource.RI, "m2m:ae", map[string]any{"rn": "ae1", "api": "Napp"}, "C", model.TypeAE)
	assert.Equal(t, model.RSCConflict, second.RSC)
}

func TestDispatcher_UpdateCINForbidden(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	ae := d.Create(ctx, cse.Resource.RI, "m2m:ae", map[string]any{"rn": "ae1", "api": "Napp"}, "C", model.TypeAE)
	cnt := d.Create(ctx, ae.Resource.RI, "m2m:cnt", map[string]any{"rn": "cnt1"}, "C", model.TypeCNT)
	cin := d.Create(ctx, cnt.Resource.RI, "m2m:cin", map[string]any{"rn": "cin1", "con": "hello"}, "C", model.TypeCIN)
	require.True(t, cin.Succeeded())

	upd := d.Update(ctx, cin.Resource.RI, map[string]any{"con": "world"}, "C")
	assert.Equal(t, model.RSCOperationNotAllowed, upd.RSC)
}

func TestDispatcher_DeleteCascadesToChildren(t *testing.T) {
	ctx := context.Background()
	d, store, _ := newTestDispatcher(t)

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	ae := d.Create(ctx, cse.Resource.RI, "m2m:ae", map[string]any{"rn": "ae1", "api": "Napp"}, "C", model.TypeAE)
	cnt := d.Create(ctx, ae.Resource.RI, "m2m:cnt", map[string]any{"rn": "cnt1"}, "C", model.TypeCNT)

	del := d.Delete(ctx, ae.Resource.RI, "C")
	require.True(t, del.Succeeded())

	_, err := store.GetByRI(ctx, ae.Resource.RI)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetByRI(ctx, cnt.Resource.RI)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDispatcher_EventsFiredOnCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	d, _, pub := newTestDispatcher(t)

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	require.True(t, cse.Succeeded())
	require.NotEmpty(t, pub.events)
	assert.Equal(t, model.EventCreated, pub.events[0].Kind)

	d.Delete(ctx, cse.Resource.RI, "C")
	var sawDeleted bool
	for _, ev := range pub.events {
		if ev.Kind == model.EventDeleted {
			sawDeleted = true
		}
	}
	assert.True(t, sawDeleted)
}
