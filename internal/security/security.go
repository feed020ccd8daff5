// Package security implements ACP resolution and evaluation: hasAccess,
// GRP macp fan-out, ACP self-privileges, SUB's parent-retrieve
// precondition, and inheritACP recursion through Storage. Grounded on
// original_source/acme/SecurityManager.py and acme/resources/ACP.py.
package security

import (
	"context"

	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/storage"
)

// Bootstrap originators bypass AE-create permission checks, per
// SecurityManager.py's handling of empty/"C"/"S" originators.
const (
	OriginatorEmpty     = ""
	OriginatorBootstrap = "C"
	OriginatorSystem    = "S"
)

// Manager evaluates access control for resource operations.
type Manager struct {
	store   storage.Store
	logger  *zap.Logger
	enabled bool // ACP checks globally enabled; false allows everything
}

// New builds a Manager. enabled mirrors the "ACP check enable"
// configuration option from spec.md §6.
func New(store storage.Store, logger *zap.Logger, enabled bool) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger, enabled: enabled}
}

// HasAccess implements spec.md §4.5's hasAccess contract.
func (m *Manager) HasAccess(ctx context.Context, originator string, resource *model.Resource, permission model.Permission, checkSelf bool, ty model.ResourceType, isCreateRequest bool, parent *model.Resource) bool {
	// Rule 1: disabled checks bypass.
	if !m.enabled {
		return true
	}

	// Rule 2: bootstrap AE create.
	if isCreateRequest && ty == model.TypeAE && isBootstrapOriginator(originator) {
		return true
	}

	if resource == nil {
		return false
	}
	if permission <= model.PermNone || permission > model.PermAll {
		return false
	}

	// Rule 3: GRP with non-empty macp.
	if resource.TY == model.TypeGRP {
		if macp, ok := resource.Attrs["macp"].([]string); ok && len(macp) > 0 {
			for _, acpRI := range macp {
				acp, err := m.store.GetByRI(ctx, acpRI)
				if err != nil {
					continue
				}
				if m.checkPermission(acp, originator, permission) {
					return true
				}
			}
			return false
		}
	}

	// Rule 4: target is ACP — evaluate self-privileges.
	if resource.TY == model.TypeACP {
		return m.checkSelfPermission(resource, originator, permission)
	}

	// Rule 5: target is SUB — require RETRIEVE on the subscribed-to parent first.
	if resource.TY == model.TypeSUB {
		if parent == nil {
			var err error
			parent, err = m.store.GetByRI(ctx, resource.PI)
			if err != nil {
				return false
			}
		}
		if !m.HasAccess(ctx, originator, parent, model.PermRetrieve, false, model.TypeUnknown, false, nil) {
			return false
		}
	}

	// Rule 6: iterate acpi, recursing to parent via inheritACP when empty.
	acpis := resource.ACPI
	cur := resource
	for len(acpis) == 0 && cur.InheritsACP() && cur.PI != "" {
		p, err := m.store.GetByRI(ctx, cur.PI)
		if err != nil {
			return false
		}
		acpis = p.ACPI
		cur = p
	}

	for _, acpRI := range acpis {
		acp, err := m.store.GetByRI(ctx, acpRI)
		if err != nil {
			continue
		}
		var granted bool
		if checkSelf {
			granted = m.checkSelfPermission(acp, originator, permission)
		} else {
			granted = m.checkPermission(acp, originator, permission)
		}
		if granted {
			return true
		}
	}
	return false
}

// checkPermission mirrors ACP.py's checkPermission: requestedPermission
// must be in pv.acop, and either 'all' or originator is in pv.acor, or
// the request is exactly NOTIFY.
func (m *Manager) checkPermission(acp *model.Resource, originator string, permission model.Permission) bool {
	acor, acop := pvEntries(acp)
	if int(permission)&acop == 0 {
		return false
	}
	if permission == model.PermNotify {
		return true
	}
	for _, o := range acor {
		if o == "all" || o == originator {
			return true
		}
	}
	return false
}

func (m *Manager) checkSelfPermission(acp *model.Resource, originator string, permission model.Permission) bool {
	acor, acop := pvsEntries(acp)
	if int(permission)&acop == 0 {
		return false
	}
	for _, o := range acor {
		if o == "all" || o == originator {
			return true
		}
	}
	return false
}

// pvEntries reads pv/acr/{acor,acop} off an ACP resource's Attrs map,
// mirroring ACP.py's _storePermissions.
func pvEntries(acp *model.Resource) ([]string, int) {
	return extractPrivileges(acp, "pv")
}

func pvsEntries(acp *model.Resource) ([]string, int) {
	return extractPrivileges(acp, "pvs")
}

func extractPrivileges(acp *model.Resource, key string) ([]string, int) {
	raw, ok := acp.Attrs[key]
	if !ok {
		return nil, 0
	}
	block, ok := raw.(map[string]any)
	if !ok {
		return nil, 0
	}
	acrsRaw, ok := block["acr"]
	if !ok {
		return nil, 0
	}
	var acors []string
	var acop int
	switch acrs := acrsRaw.(type) {
	case []map[string]any:
		for _, acr := range acrs {
			acors = append(acors, toStrings(acr["acor"])...)
			acop |= toInt(acr["acop"])
		}
	case []any:
		for _, e := range acrs {
			acr, ok := e.(map[string]any)
			if !ok {
				continue
			}
			acors = append(acors, toStrings(acr["acor"])...)
			acop |= toInt(acr["acop"])
		}
	}
	return acors, acop
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func isBootstrapOriginator(originator string) bool {
	switch originator {
	case OriginatorEmpty, OriginatorBootstrap, OriginatorSystem:
		return true
	default:
		return false
	}
}
