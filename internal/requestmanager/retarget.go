package requestmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/model"
)

// Retargeter forwards a dissected request to a remote CSE's point of
// access, preserving originator/request-id/release-version, per
// spec.md §4.6.
type Retargeter interface {
	Forward(ctx context.Context, remote *model.Resource, req *model.CSERequest) (model.Result, error)
}

// HTTPRetargeter forwards requests over HTTP to a remote CSE's `poa`,
// grounded on the teacher's WebhookNotifier HTTP client construction
// (internal/notify/webhook.go) — retargeting is outbound delivery in the
// same shape as notification delivery, just a different payload/path.
type HTTPRetargeter struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPRetargeter builds an HTTPRetargeter with the given request timeout.
func NewHTTPRetargeter(timeout time.Duration, logger *zap.Logger) *HTTPRetargeter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRetargeter{httpClient: &http.Client{Timeout: timeout}, logger: logger}
}

// Forward POSTs the primitive content to the remote CSE's first `poa`
// entry, preserving the originating request's identifying headers.
func (r *HTTPRetargeter) Forward(ctx context.Context, remote *model.Resource, req *model.CSERequest) (model.Result, error) {
	poa := firstPOA(remote)
	if poa == "" {
		return model.Result{}, fmt.Errorf("remote CSE %q has no point of access", remote.CSI)
	}

	body, err := json.Marshal(map[string]any{"to": req.To, "content": req.PrimitiveContent})
	if err != nil {
		return model.Result{}, fmt.Errorf("marshal retargeted request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, poa, bytes.NewReader(body))
	if err != nil {
		return model.Result{}, fmt.Errorf("build retargeted request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-M2M-Origin", req.From)
	httpReq.Header.Set("X-M2M-RI", req.RequestID)
	httpReq.Header.Set("X-M2M-RVI", req.ReleaseVersion)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return model.Result{}, fmt.Errorf("deliver retargeted request to %s: %w", poa, err)
	}
	defer resp.Body.Close()

	rsc := model.RSCOK
	if v := resp.Header.Get("X-M2M-RSC"); v != "" {
		if n, perr := parseRSC(v); perr == nil {
			rsc = n
		}
	}
	if resp.StatusCode >= 300 {
		return model.Result{}, fmt.Errorf("remote CSE %s responded with status %d", poa, resp.StatusCode)
	}

	var content map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&content)
	return model.OKContent(rsc, content), nil
}

func parseRSC(s string) (model.ResponseStatusCode, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return model.ResponseStatusCode(n), err
}

func firstPOA(remote *model.Resource) string {
	switch v := remote.Attrs["poa"].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
