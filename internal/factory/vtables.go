package factory

import (
	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/policy"
)

// RegisterDefaults installs the vtable for every resource type named in
// spec.md §3 and wires the rule-5 custom checks for CIN/DATC into v.
// Grounded on original_source/acme/resources/{ACP,CIN,DATC}.py.
func RegisterDefaults(f *Factory, v *policy.Validator) {
	f.Register(&VTable{
		Type:            model.TypeCSEBase,
		AllowedChildren: []model.ResourceType{model.TypeAE, model.TypeCNT, model.TypeACP, model.TypeGRP, model.TypeNOD, model.TypeCSR, model.TypeSUB, model.TypeMgmtObj, model.TypeFCNT},
	})

	f.Register(&VTable{
		Type:            model.TypeAE,
		AllowedChildren: []model.ResourceType{model.TypeCNT, model.TypeACP, model.TypeGRP, model.TypeSUB, model.TypeFCNT},
		Activate: func(r *model.Resource, parent *model.Resource) *model.CSEError {
			// Registration hook: assign AE-ID if the originator didn't
			// already supply a stable one (bootstrap create), mirroring
			// registration.checkResourceCreation for AE in spec.md §4.4.
			if _, ok := r.Attrs["aei"]; !ok {
				r.Attrs["aei"] = "C" + r.RI
			}
			return nil
		},
	})

	f.Register(&VTable{
		Type:            model.TypeCNT,
		AllowedChildren: []model.ResourceType{model.TypeCIN, model.TypeACP, model.TypeSUB, model.TypeCNT, model.TypeFCNT},
		Activate: func(r *model.Resource, parent *model.Resource) *model.CSEError {
			r.Attrs["cni"] = 0
			r.Attrs["cbs"] = 0
			r.Attrs["st"] = 0
			return nil
		},
	})

	f.Register(&VTable{
		Type:            model.TypeCIN,
		AllowedChildren: nil, // CIN.py canHaveChild is always false
		Update: func(r *model.Resource, patch map[string]any) *model.CSEError {
			return model.NewError(model.RSCOperationNotAllowed, "updating CIN is forbidden")
		},
		WillBeRetrieved: func(r *model.Resource, parent *model.Resource) *model.CSEError {
			if parent != nil {
				if disr, _ := parent.Attrs["disr"].(bool); disr {
					return model.NewError(model.RSCOperationNotAllowed, "retrieval disabled on parent container")
				}
			}
			return nil
		},
	})
	v.RegisterCustomCheck(model.TypeCIN, func(r *model.Resource, parent *model.Resource) *model.CSEError {
		con, _ := r.Attrs["con"].(string)
		r.Attrs["cs"] = len(con)
		if cnf, ok := r.Attrs["cnf"].(string); ok {
			if err := policy.ValidateCNF(cnf); err != nil {
				return err
			}
		}
		if parent != nil {
			if mbs, ok := parent.Attrs["mbs"].(int); ok && mbs > 0 {
				if len(con) > mbs {
					return model.NewError(model.RSCContentsUnacceptable, "content size %d exceeds parent mbs %d", len(con), mbs)
				}
			}
			if st, ok := parent.Attrs["st"].(int); ok {
				r.Attrs["st"] = st
			}
		}
		return nil
	})

	f.Register(&VTable{
		Type:            model.TypeACP,
		AllowedChildren: nil,
	})

	f.Register(&VTable{
		Type:            model.TypeSUB,
		AllowedChildren: nil,
	})

	f.Register(&VTable{
		Type:            model.TypeGRP,
		AllowedChildren: []model.ResourceType{model.TypeACP, model.TypeSUB},
		Activate: func(r *model.Resource, parent *model.Resource) *model.CSEError {
			mid := toLen(r.Attrs["mid"])
			r.Attrs["cnm"] = mid
			return nil
		},
	})

	f.Register(&VTable{
		Type:            model.TypeNOD,
		AllowedChildren: []model.ResourceType{model.TypeMgmtObj, model.TypeACP, model.TypeSUB},
	})

	f.Register(&VTable{
		Type:            model.TypeCSR,
		AllowedChildren: []model.ResourceType{model.TypeCNT, model.TypeACP, model.TypeSUB, model.TypeGRP, model.TypeNOD},
	})

	f.Register(&VTable{
		Type:            model.TypeMgmtObj,
		AllowedChildren: []model.ResourceType{model.TypeSUB},
	})
	// DATC mutual-exclusion rule, original_source/acme/resources/DATC.py:
	// "rpsc and rpil shall not be set together", analogous for mesc/meil.
	v.RegisterCustomCheck(model.TypeMgmtObj, func(r *model.Resource, parent *model.Resource) *model.CSEError {
		mgd, _ := r.Attrs["mgd"].(int)
		if mgd != dataCollectionMgd {
			return nil
		}
		_, rpsc := r.Attrs["rpsc"]
		_, rpil := r.Attrs["rpil"]
		if rpsc && rpil {
			return model.NewError(model.RSCBadRequest, "rpsc and rpil shall not be set together")
		}
		_, mesc := r.Attrs["mesc"]
		_, meil := r.Attrs["meil"]
		if mesc && meil {
			return model.NewError(model.RSCBadRequest, "mesc and meil shall not be set together")
		}
		return nil
	})

	f.Register(&VTable{
		Type:            model.TypeFCNT,
		AllowedChildren: []model.ResourceType{model.TypeCNT, model.TypeFCNT, model.TypeSUB, model.TypeACP},
		Activate: func(r *model.Resource, parent *model.Resource) *model.CSEError {
			r.Attrs["st"] = 0
			return nil
		},
	})

	for _, annc := range []model.ResourceType{
		model.TypeAEAnnc, model.TypeCNTAnnc, model.TypeACPAnnc,
		model.TypeNODAnnc, model.TypeMgmtObjAnnc,
	} {
		f.Register(&VTable{Type: annc})
	}
}

// dataCollectionMgd is the `mgd` value for the dataCollection mgmtObj
// specialization (original_source/acme/resources/DATC.py).
const dataCollectionMgd = 1016

func toLen(v any) int {
	switch t := v.(type) {
	case []string:
		return len(t)
	case []any:
		return len(t)
	default:
		return 0
	}
}
