package dispatcher

import (
	"context"
	"sort"

	"github.com/onem2m/acme-cse/internal/model"
)

// RetrieveVirtual implements spec.md §4.4's RETRIEVE virtual-resource
// delegation (la/ol/fopt/pcu), called once ResolveAddress has stripped the
// trailing virtual short-name off the target path.
func (d *Dispatcher) RetrieveVirtual(ctx context.Context, parentRI string, virtual string, originator string) model.Result {
	parent, err := d.store.GetByRI(ctx, parentRI)
	if err != nil {
		return model.Err(model.NewError(model.RSCNotFound, "resource %s not found", parentRI))
	}
	if !d.security.HasAccess(ctx, originator, parent, model.PermRetrieve, false, model.TypeUnknown, false, nil) {
		return model.Err(model.NewError(model.RSCOriginatorHasNoPrivilege, "originator %s lacks RETRIEVE on %s", originator, parentRI))
	}

	switch virtual {
	case "la":
		return d.retrieveLatestOrOldest(ctx, parent, true)
	case "ol":
		return d.retrieveLatestOrOldest(ctx, parent, false)
	case "fopt":
		return d.retrieveFanOut(ctx, parent, originator)
	case "pcu":
		// No PCH (point-of-contact/polling-channel) resource type exists in
		// this tree; point-of-contact addressing is out of scope.
		return model.Err(model.NewError(model.RSCNotImplemented, "pcu addressing is not supported"))
	default:
		return model.Err(model.NewError(model.RSCBadRequest, "unknown virtual resource %q", virtual))
	}
}

func (d *Dispatcher) retrieveLatestOrOldest(ctx context.Context, parent *model.Resource, latest bool) model.Result {
	if parent.TY != model.TypeCNT {
		return model.Err(model.NewError(model.RSCOperationNotAllowed, "la/ol only apply to containers"))
	}
	children, err := d.store.ChildrenOf(ctx, parent.RI, model.TypeCIN)
	if err != nil || len(children) == 0 {
		return model.Err(model.NewError(model.RSCNotFound, "container %s has no content instances", parent.RI))
	}
	sort.Slice(children, func(i, j int) bool { return children[i].CT < children[j].CT })
	if latest {
		return model.OK(model.RSCOK, children[len(children)-1])
	}
	return model.OK(model.RSCOK, children[0])
}

func (d *Dispatcher) retrieveFanOut(ctx context.Context, grp *model.Resource, originator string) model.Result {
	if grp.TY != model.TypeGRP {
		return model.Err(model.NewError(model.RSCOperationNotAllowed, "fopt only applies to groups"))
	}
	members := toStringList(grp.Attrs["mid"])
	results := FanOut(ctx, members, func(ctx context.Context, memberRI string) model.Result {
		return d.Retrieve(ctx, memberRI, originator)
	})
	return aggregateFanOut(results)
}

// CreateViaGroup, UpdateViaGroup, and DeleteViaGroup fan a CRUD verb out
// across a GRP's `mid` member list, per spec.md §4.4: "Group (GRP)
// fan-out (fopt) evaluates each member's permission independently;
// partial success returns an aggregated response."
func (d *Dispatcher) CreateViaGroup(ctx context.Context, grpRI string, outerKey string, body map[string]any, originator string, declaredTy model.ResourceType) model.Result {
	grp, err := d.store.GetByRI(ctx, grpRI)
	if err != nil {
		return model.Err(model.NewError(model.RSCNotFound, "resource %s not found", grpRI))
	}
	if grp.TY != model.TypeGRP {
		return model.Err(model.NewError(model.RSCOperationNotAllowed, "fopt only applies to groups"))
	}
	members := toStringList(grp.Attrs["mid"])
	results := FanOut(ctx, members, func(ctx context.Context, memberRI string) model.Result {
		return d.create(ctx, memberRI, outerKey, body, originator, declaredTy, false)
	})
	return aggregateFanOut(results)
}

func (d *Dispatcher) UpdateViaGroup(ctx context.Context, grpRI string, patch map[string]any, originator string) model.Result {
	grp, err := d.store.GetByRI(ctx, grpRI)
	if err != nil {
		return model.Err(model.NewError(model.RSCNotFound, "resource %s not found", grpRI))
	}
	if grp.TY != model.TypeGRP {
		return model.Err(model.NewError(model.RSCOperationNotAllowed, "fopt only applies to groups"))
	}
	members := toStringList(grp.Attrs["mid"])
	results := FanOut(ctx, members, func(ctx context.Context, memberRI string) model.Result {
		return d.update(ctx, memberRI, patch, originator, false)
	})
	return aggregateFanOut(results)
}

func (d *Dispatcher) DeleteViaGroup(ctx context.Context, grpRI string, originator string) model.Result {
	grp, err := d.store.GetByRI(ctx, grpRI)
	if err != nil {
		return model.Err(model.NewError(model.RSCNotFound, "resource %s not found", grpRI))
	}
	if grp.TY != model.TypeGRP {
		return model.Err(model.NewError(model.RSCOperationNotAllowed, "fopt only applies to groups"))
	}
	members := toStringList(grp.Attrs["mid"])
	results := FanOut(ctx, members, func(ctx context.Context, memberRI string) model.Result {
		return d.Delete(ctx, memberRI, originator)
	})
	return aggregateFanOut(results)
}

// aggregateFanOut wraps per-member outcomes into a single Result. The
// envelope itself always reports rsc=ok; each member's own rsc travels
// inside Content, letting a caller distinguish full from partial success.
func aggregateFanOut(results []MemberResult) model.Result {
	return model.OKContent(model.RSCOK, results)
}

func toStringList(v any) []string {
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
