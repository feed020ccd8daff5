package boot_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onem2m/acme-cse/internal/boot"
	"github.com/onem2m/acme-cse/internal/dispatcher"
	"github.com/onem2m/acme-cse/internal/factory"
	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/policy"
	"github.com/onem2m/acme-cse/internal/security"
	"github.com/onem2m/acme-cse/internal/storage"
)

type noPublisher struct{}

func (noPublisher) Publish(context.Context, *model.Event) {}

func newTestDispatcher(t *testing.T) (*dispatcher.Dispatcher, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := policy.DefaultRegistry()
	val := policy.NewValidator(reg)
	f := factory.New(nil)
	factory.RegisterDefaults(f, val)
	f.Seal()
	sec := security.New(store, nil, true)
	return dispatcher.New(store, f, val, sec, noPublisher{}, nil), store
}

func testFixture() *boot.Fixture {
	return &boot.Fixture{
		Resources: []boot.ResourceEntry{
			{RN: "cse", Tpe: "m2m:cb", Body: map[string]any{"csi": "/in-cse", "cst": 1}},
			{RN: "default", Tpe: "m2m:acp", ParentRN: "cse", Body: map[string]any{
				"pv":  map[string]any{"acr": []any{map[string]any{"acor": []any{"all"}, "acop": 63}}},
				"pvs": map[string]any{"acr": []any{map[string]any{"acor": []any{"CAdmin"}, "acop": 63}}},
			}},
		},
		Updates: []boot.UpdateEntry{
			{RN: "cse", Body: map[string]any{"acpi": []any{"$ref:default"}}},
		},
	}
}

func TestImporter_ImportSeedsCSEBaseAndDefaultACP(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDispatcher(t)
	im := boot.New(store, d, "CAdmin", nil)

	require.NoError(t, im.Import(ctx, testFixture(), "/in-cse"))

	cse, err := store.GetByCSI(ctx, "/in-cse")
	require.NoError(t, err)
	assert.Equal(t, "cse", cse.RN)
	require.Len(t, cse.ACPI, 1)

	acp, err := store.GetByRI(ctx, cse.ACPI[0])
	require.NoError(t, err)
	assert.Equal(t, "default", acp.RN)
	assert.Equal(t, cse.RI, acp.PI)
}

func TestImporter_ImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDispatcher(t)
	im := boot.New(store, d, "CAdmin", nil)

	require.NoError(t, im.Import(ctx, testFixture(), "/in-cse"))
	before, err := store.GetByCSI(ctx, "/in-cse")
	require.NoError(t, err)

	require.NoError(t, im.Import(ctx, testFixture(), "/in-cse"))
	after, err := store.GetByCSI(ctx, "/in-cse")
	require.NoError(t, err)

	assert.Equal(t, before.RI, after.RI, "second import must not recreate the CSEBase")
}

func TestImporter_UnknownParentRNFails(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDispatcher(t)
	im := boot.New(store, d, "CAdmin", nil)

	f := &boot.Fixture{
		Resources: []boot.ResourceEntry{
			{RN: "cse", Tpe: "m2m:cb", Body: map[string]any{"csi": "/in-cse", "cst": 1}},
			{RN: "orphan", Tpe: "m2m:acp", ParentRN: "missing", Body: map[string]any{}},
		},
	}
	err := im.Import(ctx, f, "/in-cse")
	assert.Error(t, err)
}

func TestImporter_LoadFixtureParsesConfiguredFile(t *testing.T) {
	f, err := boot.LoadFixture("../../config/importer.yaml")
	require.NoError(t, err)
	require.Len(t, f.Resources, 2)
	assert.Equal(t, "cse", f.Resources[0].RN)
	assert.Equal(t, "m2m:cb", f.Resources[0].Tpe)
	assert.Equal(t, "default", f.Resources[1].RN)
	assert.Equal(t, "cse", f.Resources[1].ParentRN)
	require.Len(t, f.Updates, 1)
	assert.Equal(t, "cse", f.Updates[0].RN)
}
