// Package requestmanager implements the RequestManager collaborator:
// it turns a binding's raw headers/query parameters into the canonical
// model.CSERequest the Dispatcher consumes, per spec.md §4.6. Grounded
// on original_source/acme/services/RequestManager.py for the dissect
// rules and on the teacher's internal/server middleware for the
// request-validation-then-route shape.
package requestmanager

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/storage"
)

// RawRequest is the binding-agnostic set of fields a transport binding
// lifts off the wire before handing the request to Dissect. Multi-valued
// query parameters (ty, cty, lbl) are already collected into slices by
// the binding, since only it knows how repeated keys are encoded.
type RawRequest struct {
	Operation      model.Operation
	Originator     string
	RequestID      string
	ReleaseVersion string
	To             string
	VendorInfo     string
	Serialization  string // content-type, e.g. "application/json"

	RequestExpiry string // X-M2M-RET: absolute ISO8601 or relative milliseconds
	ResultExpiry  string // X-M2M-RST
	EventCategory string // X-M2M-EC

	ResultContent       string // rcn query parameter
	ResponseType        string // rp
	DiscoveryResultType string // drt

	ResourceType      string   // ty on CREATE (from Content-Type or query)
	ResourceTypes     []string // ty repeated, for DISCOVER/RETRIEVE filtering
	ContentTypes      []string // cty repeated
	Labels            []string // lbl repeated
	NotificationURI   []string // X-M2M-RTU

	PrimitiveContent map[string]any
}

// Manager dissects raw requests into model.CSERequest and, when the
// resolved target belongs to another CSE, retargets them.
type Manager struct {
	store                    storage.Store
	supportedReleaseVersions map[string]bool
	retargeter               Retargeter
	logger                   *zap.Logger
}

// New builds a Manager. supportedReleaseVersions is the configured set of
// `rvi` values this CSE accepts (spec.md §6's "release version" option).
func New(store storage.Store, supportedReleaseVersions []string, retargeter Retargeter, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(map[string]bool, len(supportedReleaseVersions))
	for _, v := range supportedReleaseVersions {
		set[v] = true
	}
	return &Manager{store: store, supportedReleaseVersions: set, retargeter: retargeter, logger: logger}
}

// isoLayout mirrors model.ISOTime's format for parsing X-M2M-RET/RST
// absolute timestamps.
const isoLayout = "20060102T150405,000000"

// Dissect validates and normalizes raw into a CSERequest, per spec.md
// §4.6's dissect rules. now is injected so expiry checks are testable.
func (m *Manager) Dissect(raw RawRequest, now time.Time) (*model.CSERequest, *model.CSEError) {
	if raw.Originator == "" && !isBootstrapAECreate(raw) {
		return nil, model.NewError(model.RSCBadRequest, "missing originator")
	}

	if raw.ReleaseVersion != "" && len(m.supportedReleaseVersions) > 0 && !m.supportedReleaseVersions[raw.ReleaseVersion] {
		return nil, model.NewError(model.RSCReleaseVersionNotSupported, "unsupported release version %q", raw.ReleaseVersion)
	}

	if raw.Serialization != "" && !strings.Contains(strings.ToLower(raw.Serialization), "json") {
		return nil, model.NewError(model.RSCBadRequest, "unsupported content serialization %q", raw.Serialization)
	}

	if cerr := checkExpiry(raw.RequestExpiry, now); cerr != nil {
		return nil, cerr
	}

	req := &model.CSERequest{
		Operation:        raw.Operation,
		To:               raw.To,
		From:             raw.Originator,
		RequestID:        raw.RequestID,
		ReleaseVersion:   raw.ReleaseVersion,
		Serialization:    raw.Serialization,
		RequestExpiry:    raw.RequestExpiry,
		ResultExpiry:     raw.ResultExpiry,
		VendorInfo:       raw.VendorInfo,
		PrimitiveContent: raw.PrimitiveContent,
		NotificationURI:  raw.NotificationURI,
		ResultContent:    parseResultContent(raw.ResultContent, raw.Operation),
	}

	if raw.ResponseType != "" {
		if n, err := strconv.Atoi(raw.ResponseType); err == nil {
			req.ResponseType = n
		}
	}
	if raw.EventCategory != "" {
		if n, err := strconv.Atoi(raw.EventCategory); err == nil {
			req.EventCategory = n
		}
	}
	if raw.ResourceType != "" {
		if n, err := strconv.Atoi(raw.ResourceType); err == nil {
			req.ResourceType = model.ResourceType(n)
		}
	}

	req.Filter = FilterCriteria(raw)

	return req, nil
}

// FilterCriteria collects the multi-valued ty/cty/lbl query parameters
// (already split by the binding) into a model.FilterCriteria, per
// spec.md §4.6.
func FilterCriteria(raw RawRequest) model.FilterCriteria {
	fc := model.FilterCriteria{
		ContentType: raw.ContentTypes,
		Labels:      raw.Labels,
	}
	for _, s := range raw.ResourceTypes {
		if n, err := strconv.Atoi(s); err == nil {
			fc.ResourceType = append(fc.ResourceType, model.ResourceType(n))
		}
	}
	return fc
}

func isBootstrapAECreate(raw RawRequest) bool {
	return raw.Operation == model.OpCreate && raw.ResourceType == strconv.Itoa(int(model.TypeAE))
}

// checkExpiry enforces spec.md §4.6: an absolute X-M2M-RET in the past,
// or a negative relative one, fails the request with requestTimeout.
func checkExpiry(ret string, now time.Time) *model.CSEError {
	if ret == "" {
		return nil
	}
	if t, err := time.Parse(isoLayout, ret); err == nil {
		if now.After(t) {
			return model.NewError(model.RSCRequestTimeout, "request expiration %q has elapsed", ret)
		}
		return nil
	}
	if ms, err := strconv.ParseInt(ret, 10, 64); err == nil {
		if ms < 0 {
			return model.NewError(model.RSCRequestTimeout, "negative relative request expiration %q", ret)
		}
		return nil
	}
	return model.NewError(model.RSCBadRequest, "malformed request expiration %q", ret)
}

func parseResultContent(rcn string, op model.Operation) model.ResultContent {
	if rcn != "" {
		if n, err := strconv.Atoi(rcn); err == nil {
			return model.ResultContent(n)
		}
	}
	if op == model.OpDiscover {
		return model.RcnChildResourceReferences
	}
	return model.RcnAttributes
}

// Retarget forwards req to the CSE identified by csi when it is not this
// CSE's own, per spec.md §4.6. It returns (nil, nil) when no retargeting
// is necessary — the caller should continue routing locally.
func (m *Manager) Retarget(ctx context.Context, selfCSI string, csi string, req *model.CSERequest) (*model.Result, *model.CSEError) {
	if csi == "" || csi == selfCSI {
		return nil, nil
	}
	if m.retargeter == nil {
		return nil, model.NewError(model.RSCNotImplemented, "cross-CSE retargeting to %q is not configured", csi)
	}
	remote, err := m.store.GetByCSI(ctx, csi)
	if err != nil {
		return nil, model.NewError(model.RSCNotFound, "no CSE registered with csi %q", csi)
	}
	result, ferr := m.retargeter.Forward(ctx, remote, req)
	if ferr != nil {
		return nil, model.NewError(model.RSCTargetNotReachable, "forwarding to %q failed: %s", csi, ferr)
	}
	return &result, nil
}
