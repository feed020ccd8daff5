// Package factory builds typed resource instances from raw payloads and
// owns the per-type vtable (allowedChildren/validate/activate/deactivate/
// willBeRetrieved/update), generalized from the teacher's
// internal/registry.Registry (a category+name keyed plugin table) into a
// single type-code keyed behavior table, per spec.md §9's vtable design
// note and §4.2's "Factory is the single entry point for type dispatch".
package factory

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/model"
)

// ActivateFunc runs after a resource passes validation and permission
// checks on CREATE, before it is persisted (e.g. AE assigns `aei`, CNT
// initializes `cni`/`cbs`) — the Go rendering of Registration's
// checkResourceCreation hook from spec.md §4.4.
type ActivateFunc func(r *model.Resource, parent *model.Resource) *model.CSEError

// DeactivateFunc runs immediately before a resource is unindexed on DELETE.
type DeactivateFunc func(r *model.Resource) *model.CSEError

// UpdateFunc applies a per-type UPDATE hook before the generic attribute
// diff/merge; returning a non-nil error rejects the update outright (CIN
// returns operationNotAllowed unconditionally, per CIN.py).
type UpdateFunc func(r *model.Resource, patch map[string]any) *model.CSEError

// WillBeRetrievedFunc runs just before a RETRIEVE response is returned,
// letting a type enforce view-time rules (CNT's disr/CIN.py willBeRetrieved).
type WillBeRetrievedFunc func(r *model.Resource, parent *model.Resource) *model.CSEError

// VTable is the set of per-type behavior hooks. Nil fields mean "use the
// Dispatcher's generic default" for that hook.
type VTable struct {
	Type             model.ResourceType
	AllowedChildren  []model.ResourceType
	Activate         ActivateFunc
	Deactivate       DeactivateFunc
	Update           UpdateFunc
	WillBeRetrieved  WillBeRetrievedFunc
}

// Factory dispatches on `ty`/`tpe` to construct resources and look up
// their vtable. Populated once at startup and read-only thereafter,
// matching spec.md §5's "per-type class table is read-only after
// startup" guarantee — safe for unsynchronized concurrent reads once
// built; the mutex only guards the registration phase.
type Factory struct {
	mu      sync.RWMutex
	tables  map[model.ResourceType]*VTable
	logger  *zap.Logger
	sealed  bool
}

// New creates an empty Factory.
func New(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{tables: make(map[model.ResourceType]*VTable), logger: logger}
}

// Register installs a VTable for a resource type. Panics if called after
// Seal — registration is a startup-only concern.
func (f *Factory) Register(vt *VTable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sealed {
		panic("factory: Register called after Seal")
	}
	f.tables[vt.Type] = vt
	f.logger.Debug("registered resource vtable", zap.Int("ty", int(vt.Type)))
}

// Seal freezes the factory; called once by cmd/cse after all vtables for
// the supported resource types are registered.
func (f *Factory) Seal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sealed = true
}

// VTableFor returns the behavior table for a type, or false if unknown.
func (f *Factory) VTableFor(ty model.ResourceType) (*VTable, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	vt, ok := f.tables[ty]
	return vt, ok
}

// AllowedChildren returns the set of child types parent may hold.
func (f *Factory) AllowedChildren(ty model.ResourceType) []model.ResourceType {
	vt, ok := f.VTableFor(ty)
	if !ok {
		return nil
	}
	return vt.AllowedChildren
}

// CanHaveChild reports whether parentTy may hold a childTy child.
func (f *Factory) CanHaveChild(parentTy, childTy model.ResourceType) bool {
	for _, t := range f.AllowedChildren(parentTy) {
		if t == childTy {
			return true
		}
	}
	return false
}

// Build constructs a *model.Resource from a raw payload, resolving `ty`
// from the outer `tpe` key when ty is unset, and rejecting payloads whose
// outer key does not match the declared ty or is unknown — per spec.md
// §4.2 ("single entry point for type dispatch").
func (f *Factory) Build(outerKey string, body map[string]any, declaredTy model.ResourceType) (*model.Resource, *model.CSEError) {
	ty := declaredTy
	if ty == model.TypeUnknown {
		ty = typeForPrefix(outerKey)
		if ty == model.TypeUnknown {
			return nil, model.NewError(model.RSCBadRequest, "unknown resource type prefix %q", outerKey)
		}
	} else if outerKey != "" && outerKey != ty.TypePrefix() {
		return nil, model.NewError(model.RSCBadRequest, "outer key %q does not match declared type %d", outerKey, ty)
	}

	if _, ok := f.VTableFor(ty); !ok {
		return nil, model.NewError(model.RSCBadRequest, "no resource type registered for ty=%d", ty)
	}

	r := &model.Resource{TY: ty, Attrs: make(map[string]any, len(body))}
	for k, v := range body {
		switch k {
		case "rn":
			r.RN, _ = v.(string)
		case "pi":
			r.PI, _ = v.(string)
		case "csi":
			r.CSI, _ = v.(string)
		case "acpi":
			r.ACPI = toStringSlice(v)
		case "lbl":
			r.LBL = toStringSlice(v)
		case "at":
			r.AT = toStringSlice(v)
		case "aa":
			r.AA = toStringSlice(v)
		default:
			r.Attrs[k] = v
		}
	}
	return r, nil
}

func toStringSlice(v any) []string {
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

var prefixToType = map[string]model.ResourceType{}

func init() {
	for _, ty := range []model.ResourceType{
		model.TypeAE, model.TypeCNT, model.TypeCIN, model.TypeCSEBase,
		model.TypeGRP, model.TypeACP, model.TypeSUB, model.TypeNOD,
		model.TypeCSR, model.TypeMgmtObj, model.TypeFCNT,
		model.TypeAEAnnc, model.TypeCNTAnnc, model.TypeACPAnnc,
		model.TypeNODAnnc, model.TypeMgmtObjAnnc,
	} {
		if p := ty.TypePrefix(); p != "" {
			prefixToType[p] = ty
		}
	}
}

func typeForPrefix(prefix string) model.ResourceType {
	return prefixToType[prefix]
}

// AllowedChildrenDoc is a small diagnostic helper that reports how many
// resource types are registered.
func AllowedChildrenDoc(f *Factory) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return fmt.Sprintf("%d resource types registered", len(f.tables))
}
