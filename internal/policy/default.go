package policy

import "github.com/onem2m/acme-cse/internal/model"

// DefaultRegistry builds the attribute-policy table for the resource
// types in spec.md §3's type list. Mirrors the original's per-resource
// _attributes dict (CIN.py, DATC.py) collapsed into one table construction
// site, as directed by the Factory-owns-the-vtable design note (spec.md §9).
func DefaultRegistry() *Registry {
	r := NewRegistry()

	common := []struct {
		name string
		typ  DataType
	}{
		{"ri", String}, {"rn", String}, {"pi", String}, {"ty", Integer},
		{"ct", Timestamp}, {"lt", Timestamp}, {"et", Timestamp},
		{"acpi", List}, {"lbl", List}, {"at", List}, {"aa", List},
	}
	for _, ty := range []model.ResourceType{
		model.TypeAE, model.TypeCNT, model.TypeCIN, model.TypeCSEBase,
		model.TypeGRP, model.TypeACP, model.TypeSUB, model.TypeNOD,
		model.TypeMgmtObj, model.TypeFCNT,
	} {
		for _, c := range common {
			create := Optional
			if c.name == "ri" || c.name == "ct" || c.name == "lt" {
				create = NotAllowed // server-assigned
			}
			update := NotAllowed
			if c.name == "acpi" || c.name == "lbl" || c.name == "et" {
				update = Optional // acpi/lbl/et are the mutable common attributes
			}
			announced := c.name == "et" || c.name == "acpi" || c.name == "lbl"
			r.AddPolicy(&AttributePolicy{
				ShortName: c.name, Type: c.typ, ResourceType: ty,
				Create: create, Update: update, Discovery: Optional, Announced: announced,
			})
		}
		r.AddPolicy(&AttributePolicy{ShortName: "rn", Type: String, ResourceType: ty, Create: Mandatory, Update: NotAllowed})
	}

	// AE
	r.AddPolicy(&AttributePolicy{ShortName: "api", Type: String, ResourceType: model.TypeAE, Create: Mandatory, Update: NotAllowed, Announced: true})
	r.AddPolicy(&AttributePolicy{ShortName: "aei", Type: String, ResourceType: model.TypeAE, Create: NotAllowed, Update: NotAllowed})
	r.AddPolicy(&AttributePolicy{ShortName: "rr", Type: Boolean, ResourceType: model.TypeAE, Create: Optional, Update: Optional, Announced: true})
	r.AddPolicy(&AttributePolicy{ShortName: "poa", Type: List, ResourceType: model.TypeAE, Create: Optional, Update: Optional, Announced: true})

	// CNT
	r.AddPolicy(&AttributePolicy{ShortName: "mni", Type: Integer, ResourceType: model.TypeCNT, Create: Optional, Update: Optional, Announced: true})
	r.AddPolicy(&AttributePolicy{ShortName: "mbs", Type: Integer, ResourceType: model.TypeCNT, Create: Optional, Update: Optional, Announced: true})
	r.AddPolicy(&AttributePolicy{ShortName: "cni", Type: Integer, ResourceType: model.TypeCNT, Create: NotAllowed, Update: NotAllowed})
	r.AddPolicy(&AttributePolicy{ShortName: "cbs", Type: Integer, ResourceType: model.TypeCNT, Create: NotAllowed, Update: NotAllowed})
	r.AddPolicy(&AttributePolicy{ShortName: "st", Type: Integer, ResourceType: model.TypeCNT, Create: NotAllowed, Update: NotAllowed})
	r.AddPolicy(&AttributePolicy{ShortName: "disr", Type: Boolean, ResourceType: model.TypeCNT, Create: Optional, Update: Optional})

	// CIN
	r.AddPolicy(&AttributePolicy{ShortName: "con", Type: String, ResourceType: model.TypeCIN, Create: Mandatory, Update: NotAllowed})
	r.AddPolicy(&AttributePolicy{ShortName: "cnf", Type: String, ResourceType: model.TypeCIN, Create: Optional, Update: NotAllowed})
	r.AddPolicy(&AttributePolicy{ShortName: "cs", Type: Integer, ResourceType: model.TypeCIN, Create: NotAllowed, Update: NotAllowed})
	r.AddPolicy(&AttributePolicy{ShortName: "st", Type: Integer, ResourceType: model.TypeCIN, Create: NotAllowed, Update: NotAllowed})

	// CSEBase
	r.AddPolicy(&AttributePolicy{ShortName: "csi", Type: String, ResourceType: model.TypeCSEBase, Create: Mandatory, Update: NotAllowed})
	r.AddPolicy(&AttributePolicy{ShortName: "cst", Type: Integer, ResourceType: model.TypeCSEBase, Create: Mandatory, Update: NotAllowed})

	// ACP
	r.AddPolicy(&AttributePolicy{ShortName: "pv", Type: Any, ResourceType: model.TypeACP, Create: Mandatory, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "pvs", Type: Any, ResourceType: model.TypeACP, Create: Mandatory, Update: Optional})

	// SUB
	r.AddPolicy(&AttributePolicy{ShortName: "nu", Type: List, ResourceType: model.TypeSUB, Create: Mandatory, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "net", Type: List, ResourceType: model.TypeSUB, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "chty", Type: List, ResourceType: model.TypeSUB, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "atr", Type: List, ResourceType: model.TypeSUB, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "bn", Type: Any, ResourceType: model.TypeSUB, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "exc", Type: Integer, ResourceType: model.TypeSUB, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "ln", Type: Boolean, ResourceType: model.TypeSUB, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "nct", Type: Integer, ResourceType: model.TypeSUB, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "acrs", Type: List, ResourceType: model.TypeSUB, Create: Optional, Update: Optional})

	// GRP
	r.AddPolicy(&AttributePolicy{ShortName: "mt", Type: Integer, ResourceType: model.TypeGRP, Create: Mandatory, Update: NotAllowed})
	r.AddPolicy(&AttributePolicy{ShortName: "mid", Type: List, ResourceType: model.TypeGRP, Create: Mandatory, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "macp", Type: List, ResourceType: model.TypeGRP, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "mnm", Type: Integer, ResourceType: model.TypeGRP, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "cnm", Type: Integer, ResourceType: model.TypeGRP, Create: NotAllowed, Update: NotAllowed})

	// mgmtObj / DATC specialization (original_source/acme/resources/DATC.py)
	r.AddPolicy(&AttributePolicy{ShortName: "mgd", Type: Integer, ResourceType: model.TypeMgmtObj, Create: Mandatory, Update: NotAllowed})
	r.AddPolicy(&AttributePolicy{ShortName: "obis", Type: List, ResourceType: model.TypeMgmtObj, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "obps", Type: List, ResourceType: model.TypeMgmtObj, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "dc", Type: String, ResourceType: model.TypeMgmtObj, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "rpsc", Type: Boolean, ResourceType: model.TypeMgmtObj, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "rpil", Type: List, ResourceType: model.TypeMgmtObj, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "mesc", Type: Boolean, ResourceType: model.TypeMgmtObj, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "meil", Type: List, ResourceType: model.TypeMgmtObj, Create: Optional, Update: Optional})
	r.AddPolicy(&AttributePolicy{ShortName: "cmlk", Type: Boolean, ResourceType: model.TypeMgmtObj, Create: Optional, Update: Optional})

	// FCNT (flexContainer) — cnd-keyed custom attributes are registered
	// by callers via AddPolicy with Cnd set; only the common frame lives here.
	r.AddPolicy(&AttributePolicy{ShortName: "cnd", Type: String, ResourceType: model.TypeFCNT, Create: Mandatory, Update: NotAllowed})

	return r
}
