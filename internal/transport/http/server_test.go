package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onem2m/acme-cse/internal/config"
	"github.com/onem2m/acme-cse/internal/dispatcher"
	"github.com/onem2m/acme-cse/internal/eventbus"
	"github.com/onem2m/acme-cse/internal/factory"
	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/policy"
	"github.com/onem2m/acme-cse/internal/requestmanager"
	"github.com/onem2m/acme-cse/internal/security"
	"github.com/onem2m/acme-cse/internal/storage"
	transporthttp "github.com/onem2m/acme-cse/internal/transport/http"
)

func newTestServer(t *testing.T) (*transporthttp.Server, storage.Store, *model.Resource) {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := policy.DefaultRegistry()
	val := policy.NewValidator(reg)
	f := factory.New(nil)
	factory.RegisterDefaults(f, val)
	f.Seal()
	sec := security.New(store, nil, false)
	bus := eventbus.NewInProcessBus(2, nil)
	d := dispatcher.New(store, f, val, sec, bus, nil)
	d.LocalCSERN = "cse"

	cse := d.Create(context.Background(), "", "m2m:cb", map[string]any{"rn": "cse", "csi": "/cse-in", "cst": 1}, "C", model.TypeCSEBase)
	require.True(t, cse.Succeeded())

	cfg := &config.Config{Server: config.ServerConfig{GinMode: "test", Port: 8080}}
	rm := requestmanager.New(store, nil, nil, nil)
	srv := transporthttp.New(cfg, d, rm, nil)
	return srv, store, cse.Resource
}

func TestHandleRetrieve_ResolvesPathAndReturnsResource(t *testing.T) {
	srv, _, cse := newTestServer(t)

	req := httptest.NewRequest("GET", "/"+cse.RN, nil)
	req.Header.Set("X-M2M-Origin", "C")
	req.Header.Set("X-M2M-RI", "req1")
	req.Header.Set("X-M2M-RVI", "3")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "2000", rec.Header().Get("X-M2M-RSC"))

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cse", body["m2m:cb"]["rn"])
}

func TestHandleRetrieve_MissingHeadersRejected(t *testing.T) {
	srv, _, cse := newTestServer(t)

	req := httptest.NewRequest("GET", "/"+cse.RN, nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestHandleCreate_CreatesChildUnderParentPath(t *testing.T) {
	srv, store, cse := newTestServer(t)

	payload, err := json.Marshal(map[string]any{
		"m2m:ae": map[string]any{"rn": "myAE", "api": "N.myapp"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/"+cse.RN, bytes.NewReader(payload))
	req.Header.Set("X-M2M-Origin", "CAdmin")
	req.Header.Set("X-M2M-RI", "req2")
	req.Header.Set("X-M2M-RVI", "3")
	req.Header.Set("Content-Type", "application/json;ty=2")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, 201, rec.Code)
	assert.Equal(t, "2001", rec.Header().Get("X-M2M-RSC"))

	ri, err := store.ResolveSRN(context.Background(), cse.RN+"/myAE")
	require.NoError(t, err)
	assert.NotEmpty(t, ri)
}

func TestHandleCreate_MalformedBodyRejected(t *testing.T) {
	srv, _, cse := newTestServer(t)

	req := httptest.NewRequest("POST", "/"+cse.RN, bytes.NewReader([]byte("{not json")))
	req.Header.Set("X-M2M-Origin", "CAdmin")
	req.Header.Set("X-M2M-RI", "req3")
	req.Header.Set("X-M2M-RVI", "3")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestHandleDelete_RemovesResource(t *testing.T) {
	srv, store, cse := newTestServer(t)

	payload, _ := json.Marshal(map[string]any{"m2m:ae": map[string]any{"rn": "delMe", "api": "N.x"}})
	createReq := httptest.NewRequest("POST", "/"+cse.RN, bytes.NewReader(payload))
	createReq.Header.Set("X-M2M-Origin", "CAdmin")
	createReq.Header.Set("X-M2M-RI", "req4")
	createReq.Header.Set("X-M2M-RVI", "3")
	createRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(createRec, createReq)
	require.Equal(t, 201, createRec.Code)

	delReq := httptest.NewRequest("DELETE", "/"+cse.RN+"/delMe", nil)
	delReq.Header.Set("X-M2M-Origin", "CAdmin")
	delReq.Header.Set("X-M2M-RI", "req5")
	delReq.Header.Set("X-M2M-RVI", "3")
	delRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(delRec, delReq)

	assert.Equal(t, 200, delRec.Code)
	_, err := store.ResolveSRN(context.Background(), cse.RN+"/delMe")
	assert.Error(t, err)
}
