// Package policy holds the attribute-policy registry and the Validator
// that checks CREATE/UPDATE payloads against it, grounded on
// original_source/acme/resources/CIN.py and DATC.py's constructPolicy /
// addPolicy / per-resource validate() pattern.
package policy

import (
	"fmt"

	"github.com/onem2m/acme-cse/internal/model"
)

// DataType is the declared attribute data type.
type DataType int

const (
	String DataType = iota
	Integer
	Boolean
	List
	Timestamp
	Any
)

// Optionality governs whether an attribute may/must appear for a given
// request phase.
type Optionality int

const (
	NotAllowed Optionality = iota
	Optional
	Mandatory
)

// AttributePolicy describes one (resource type, attribute) pair.
type AttributePolicy struct {
	ShortName    string
	LongName     string
	Type         DataType
	Create       Optionality
	Update       Optionality
	Discovery    Optionality
	Announced    bool
	ResourceType model.ResourceType
	// Cnd is the flexContainer container-definition short name this
	// policy applies under, empty for non-flexContainer attributes.
	Cnd string
}

// key identifies a policy slot: (ty, attribute[, cnd]).
type key struct {
	ty   model.ResourceType
	attr string
	cnd  string
}

// Registry is the immutable, compile-time-populated attribute-policy
// table. Built once at startup (internal/factory wires the default set)
// and never mutated afterward — safe for concurrent read access without
// synchronization, matching spec.md §5's "read-only after startup" rule.
type Registry struct {
	policies map[key]*AttributePolicy
}

// NewRegistry returns an empty registry; call AddPolicy to populate it.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[key]*AttributePolicy)}
}

// AddPolicy registers a policy, mirroring the original's addPolicy.
func (r *Registry) AddPolicy(p *AttributePolicy) {
	r.policies[key{ty: p.ResourceType, attr: p.ShortName, cnd: p.Cnd}] = p
}

// ConstructPolicy looks up the policy for an attribute under a type,
// falling back to the common (ty independent of cnd) slot.
func (r *Registry) ConstructPolicy(ty model.ResourceType, attr string, cnd string) (*AttributePolicy, bool) {
	if cnd != "" {
		if p, ok := r.policies[key{ty: ty, attr: attr, cnd: cnd}]; ok {
			return p, true
		}
	}
	p, ok := r.policies[key{ty: ty, attr: attr}]
	return p, ok
}

// AttributesFor returns every registered attribute short name for a type.
func (r *Registry) AttributesFor(ty model.ResourceType) []string {
	var out []string
	for k := range r.policies {
		if k.ty == ty {
			out = append(out, k.attr)
		}
	}
	return out
}

// AnnouncedAttributesFor returns the mandatory-announced attribute short
// names for ty — the base attrs an *Annc projection always carries,
// before the `aa`-listed optional extras are added (spec.md §4.9).
func (r *Registry) AnnouncedAttributesFor(ty model.ResourceType) []string {
	var out []string
	for k, p := range r.policies {
		if k.ty == ty && p.Announced {
			out = append(out, k.attr)
		}
	}
	return out
}

// IsAnnounceable reports whether attr is permitted in an `aa` projection
// for ty — either a mandatory-announced attribute or any other attribute
// registered for the type (oneM2M permits any attribute with an
// announced policy variant to appear in `aa`; unregistered attributes are
// stripped per spec.md §4.9).
func (r *Registry) IsAnnounceable(ty model.ResourceType, attr string) bool {
	_, ok := r.ConstructPolicy(ty, attr, "")
	return ok
}

// Validator applies the five ordered rules from spec.md §4.3 against a
// resource's Attrs map for a given operation.
type Validator struct {
	registry *Registry
	// custom holds per-type custom checks (rule 5), e.g. CIN size vs
	// parent mbs, DATC mutual exclusion — registered by internal/factory
	// so the vtable and the validator stay in lockstep per type.
	custom map[model.ResourceType]CustomCheck
}

// CustomCheck implements validator rule 5 for one resource type.
type CustomCheck func(r *model.Resource, parent *model.Resource) *model.CSEError

// NewValidator builds a Validator over a populated Registry.
func NewValidator(reg *Registry) *Validator {
	return &Validator{registry: reg, custom: make(map[model.ResourceType]CustomCheck)}
}

// RegisterCustomCheck wires rule 5 for a resource type.
func (v *Validator) RegisterCustomCheck(ty model.ResourceType, check CustomCheck) {
	v.custom[ty] = check
}

// Operation distinguishes create vs update for optionality checks.
type Operation int

const (
	OpCreate Operation = iota
	OpUpdate
)

// Validate runs rules 1-5 against r.Attrs for the declared type and cnd,
// returning the first violated rule as a CSEError, or nil.
func (v *Validator) Validate(r *model.Resource, op Operation, cnd string, parent *model.Resource) *model.CSEError {
	attrs := r.Attrs
	seen := make(map[string]bool, len(attrs))

	// Rule 1: unknown attributes.
	for name := range attrs {
		p, ok := v.registry.ConstructPolicy(r.TY, name, cnd)
		if !ok {
			return model.NewError(model.RSCBadRequest, "unknown attribute %q for type %d", name, r.TY)
		}
		seen[name] = true
		// Rule 3: read-only (NotAllowed on update) attributes present on update.
		if op == OpUpdate && p.Update == NotAllowed {
			return model.NewError(model.RSCBadRequest, "attribute %q is read-only on update", name)
		}
		// Rule 4: type/enum/range — delegated to per-attribute checkers
		// registered alongside the policy (kept minimal: type-kind match).
		if err := checkType(p, attrs[name]); err != nil {
			return model.NewError(model.RSCBadRequest, "attribute %q: %s", name, err)
		}
	}

	// Factory.Build moves rn, pi, csi, acpi, lbl, at and aa out of Attrs
	// into named Resource fields; they count as present when set.
	for name, set := range map[string]bool{
		"rn": r.RN != "", "pi": r.PI != "", "csi": r.CSI != "",
		"acpi": len(r.ACPI) > 0, "lbl": len(r.LBL) > 0, "at": len(r.AT) > 0, "aa": len(r.AA) > 0,
	} {
		if set {
			seen[name] = true
		}
	}

	// Rule 2: missing mandatory-on-create attributes.
	if op == OpCreate {
		for _, attr := range v.registry.AttributesFor(r.TY) {
			p, _ := v.registry.ConstructPolicy(r.TY, attr, cnd)
			if p.Create == Mandatory && !seen[attr] {
				return model.NewError(model.RSCBadRequest, "missing mandatory attribute %q", attr)
			}
		}
	}

	// Rule 5: per-resource custom checks.
	if check, ok := v.custom[r.TY]; ok {
		if err := check(r, parent); err != nil {
			return err
		}
	}

	return nil
}

func checkType(p *AttributePolicy, v any) error {
	if v == nil {
		return nil
	}
	switch p.Type {
	case Integer:
		switch v.(type) {
		case int, int64, float64:
			return nil
		}
		return fmt.Errorf("expected integer")
	case Boolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean")
		}
	case List:
		switch v.(type) {
		case []string, []any, []int:
			return nil
		}
		return fmt.Errorf("expected list")
	case String, Timestamp:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string")
		}
	}
	return nil
}
