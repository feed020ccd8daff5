package dispatcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onem2m/acme-cse/internal/model"
)

func TestResolveAddress_CSERelativeStructuredPath(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)
	d.LocalCSERN = "cse"

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	require.True(t, cse.Succeeded())
	ae := d.Create(ctx, cse.Resource.RI, "m2m:ae", map[string]any{"rn": "ae1", "api": "Napp"}, "C", model.TypeAE)
	require.True(t, ae.Succeeded())

	ri, virtual, cerr := d.ResolveAddress(ctx, "cse/ae1")
	require.Nil(t, cerr)
	assert.Equal(t, "", virtual)
	assert.Equal(t, ae.Resource.RI, ri)
}

func TestResolveAddress_CSERelativeUnstructuredRI(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)
	d.LocalCSERN = "cse"

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	ae := d.Create(ctx, cse.Resource.RI, "m2m:ae", map[string]any{"rn": "ae1", "api": "Napp"}, "C", model.TypeAE)

	ri, virtual, cerr := d.ResolveAddress(ctx, ae.Resource.RI)
	require.Nil(t, cerr)
	assert.Equal(t, "", virtual)
	assert.Equal(t, ae.Resource.RI, ri)
}

func TestResolveAddress_DashRewritesToLocalCSERN(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)
	d.LocalCSERN = "cse"

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	ae := d.Create(ctx, cse.Resource.RI, "m2m:ae", map[string]any{"rn": "ae1", "api": "Napp"}, "C", model.TypeAE)

	ri, _, cerr := d.ResolveAddress(ctx, "-/ae1")
	require.Nil(t, cerr)
	assert.Equal(t, ae.Resource.RI, ri)
}

func TestResolveAddress_EmptyPathResolvesToLocalCSEBase(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)
	d.LocalCSERN = "cse"

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)

	ri, _, cerr := d.ResolveAddress(ctx, "")
	require.Nil(t, cerr)
	assert.Equal(t, cse.Resource.RI, ri)
}

func TestResolveAddress_SPRelative(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)
	d.LocalCSERN = "cse"

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	ae := d.Create(ctx, cse.Resource.RI, "m2m:ae", map[string]any{"rn": "ae1", "api": "Napp"}, "C", model.TypeAE)

	ri, virtual, cerr := d.ResolveAddress(ctx, "~/cse-in/ae1")
	require.Nil(t, cerr)
	assert.Equal(t, "", virtual)
	assert.Equal(t, ae.Resource.RI, ri)
}

func TestResolveAddress_Absolute(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)
	d.LocalCSERN = "cse"

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	ae := d.Create(ctx, cse.Resource.RI, "m2m:ae", map[string]any{"rn": "ae1", "api": "Napp"}, "C", model.TypeAE)

	ri, _, cerr := d.ResolveAddress(ctx, "_/onem2m.org/cse-in/ae1")
	require.Nil(t, cerr)
	assert.Equal(t, ae.Resource.RI, ri)
}

func TestResolveAddress_StripsTrailingVirtualSuffix(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)
	d.LocalCSERN = "cse"

	cse := d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	ae := d.Create(ctx, cse.Resource.RI, "m2m:ae", map[string]any{"rn": "ae1", "api": "Napp"}, "C", model.TypeAE)
	cnt := d.Create(ctx, ae.Resource.RI, "m2m:cnt", map[string]any{"rn": "cnt1", "mni": 5}, "C", model.TypeCNT)

	ri, virtual, cerr := d.ResolveAddress(ctx, "cse/ae1/cnt1/la")
	require.Nil(t, cerr)
	assert.Equal(t, "la", virtual)
	assert.Equal(t, cnt.Resource.RI, ri)
}

func TestResolveAddress_UnknownPathNotFound(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)
	d.LocalCSERN = "cse"

	d.Create(ctx, "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)

	_, _, cerr := d.ResolveAddress(ctx, "cse/does-not-exist")
	require.NotNil(t, cerr)
	assert.Equal(t, model.RSCNotFound, cerr.RSC)
}
