// Package dispatcher orchestrates CRUD operations on the resource tree:
// hierarchical resolution, child-type enforcement, permission checks,
// per-type hooks, and event fan-out, per spec.md §4.4. Grounded on the
// teacher's internal/handlers/resource.go request-handling shape,
// generalized from a gin-bound handler into a transport-agnostic
// orchestrator consumed by internal/transport/http and
// internal/transport/mqtt alike.
package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/factory"
	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/policy"
	"github.com/onem2m/acme-cse/internal/security"
	"github.com/onem2m/acme-cse/internal/storage"
)

// EventPublisher is the internal event bus's write side, implemented by
// internal/eventbus.Bus — kept as a narrow interface here so Dispatcher
// has no import-time dependency on the bus's transport.
type EventPublisher interface {
	Publish(ctx context.Context, ev *model.Event)
}

// Dispatcher implements spec.md §4.4's CRUD contract.
type Dispatcher struct {
	store     storage.Store
	factory   *factory.Factory
	validator *policy.Validator
	security  *security.Manager
	events    EventPublisher
	logger    *zap.Logger
	// DefaultExpireDelta sets ET to creation time plus this delta when a
	// CREATE payload omits et.
	DefaultExpireDelta time.Duration
	// LocalCSERN is this CSE's own `rn`, substituted for the literal "-"
	// segment in structured CSE-relative paths per spec.md §4.7.
	LocalCSERN string
}

// New builds a Dispatcher over its collaborators.
func New(store storage.Store, f *factory.Factory, v *policy.Validator, sec *security.Manager, events EventPublisher, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store: store, factory: f, validator: v, security: sec, events: events,
		logger: logger, DefaultExpireDelta: 24 * time.Hour,
	}
}

// Retrieve implements spec.md §4.4's RETRIEVE.
func (d *Dispatcher) Retrieve(ctx context.Context, ri string, originator string) model.Result {
	r, err := d.store.GetByRI(ctx, ri)
	if err != nil {
		return model.Err(model.NewError(model.RSCNotFound, "resource %s not found", ri))
	}

	var parent *model.Resource
	if r.PI != "" {
		parent, _ = d.store.GetByRI(ctx, r.PI)
	}

	if !d.security.HasAccess(ctx, originator, r, model.PermRetrieve, false, model.TypeUnknown, false, parent) {
		return model.Err(model.NewError(model.RSCOriginatorHasNoPrivilege, "originator %s lacks RETRIEVE on %s", originator, ri))
	}

	if vt, ok := d.factory.VTableFor(r.TY); ok && vt.WillBeRetrieved != nil {
		if cerr := vt.WillBeRetrieved(r, parent); cerr != nil {
			return model.Err(cerr)
		}
	}

	d.events.Publish(ctx, &model.Event{Kind: model.EventRetrieved, Resource: r, Parent: parent, Originator: originator})
	return model.OK(model.RSCOK, r)
}

// Create implements spec.md §4.4's CREATE.
func (d *Dispatcher) Create(ctx context.Context, parentRI string, outerKey string, body map[string]any, originator string, declaredTy model.ResourceType) model.Result {
	return d.create(ctx, parentRI, outerKey, body, originator, declaredTy, false)
}

// CreatePrivileged creates a resource bypassing the ACP check entirely.
// Used only by internal/boot's importer to seed the CSEBase and default
// ACP before any ACP resource exists to grant access against — mirrors
// the Python original's Importer calling CSE.dispatcher.createResource
// directly, outside the request path's security gate.
func (d *Dispatcher) CreatePrivileged(ctx context.Context, parentRI string, outerKey string, body map[string]any, originator string, declaredTy model.ResourceType) model.Result {
	return d.create(ctx, parentRI, outerKey, body, originator, declaredTy, true)
}

func (d *Dispatcher) create(ctx context.Context, parentRI string, outerKey string, body map[string]any, originator string, declaredTy model.ResourceType, privileged bool) model.Result {
	var parent *model.Resource
	if parentRI != "" {
		p, err := d.store.GetByRI(ctx, parentRI)
		if err != nil {
			return model.Err(model.NewError(model.RSCNotFound, "parent %s not found", parentRI))
		}
		parent = p
	}

	r, cerr := d.factory.Build(outerKey, body, declaredTy)
	if cerr != nil {
		return model.Err(cerr)
	}
	if parent != nil {
		r.PI = parent.RI
		if !d.factory.CanHaveChild(parent.TY, r.TY) {
			return model.Err(model.NewError(model.RSCOperationNotAllowed, "type %d cannot be a child of type %d", r.TY, parent.TY))
		}
	}

	isBootstrapAECreate := r.TY == model.TypeAE && parent == nil
	permTarget := parent
	if permTarget == nil {
		permTarget = r
	}
	if !privileged && !d.security.HasAccess(ctx, originator, permTarget, model.PermCreate, false, r.TY, true, nil) && !isBootstrapAECreate {
		return model.Err(model.NewError(model.RSCOriginatorHasNoPrivilege, "originator %s lacks CREATE on parent", originator))
	}

	// A CREATE without rn gets a generated name, unique like ri.
	if r.RN == "" {
		r.RN = uuid.NewString()
	}

	// Validator rules 1-5.
	cnd, _ := r.Attrs["cnd"].(string)
	if cerr := d.validator.Validate(r, policy.OpCreate, cnd, parent); cerr != nil {
		return model.Err(cerr)
	}

	r.RI = uuid.NewString()
	now := time.Now()
	r.CT = model.ISOTime(now)
	r.LT = r.CT
	if r.ET == "" {
		r.ET = model.ISOTime(now.Add(d.DefaultExpireDelta))
	}
	if parent != nil {
		r.SRN = parent.SRN + "/" + r.RN
	} else {
		r.SRN = r.RN
	}

	if vt, ok := d.factory.VTableFor(r.TY); ok && vt.Activate != nil {
		if cerr := vt.Activate(r, parent); cerr != nil {
			return model.Err(cerr)
		}
	}

	if err := d.store.Put(ctx, r); err != nil {
		if err == storage.ErrConflict {
			return model.Err(model.NewError(model.RSCConflict, "sibling %q already exists under %s", r.RN, parentRI))
		}
		return model.Err(model.NewError(model.RSCInternalServerError, "store put failed: %s", err))
	}

	if parent != nil && r.TY == model.TypeCIN {
		d.onCINCreated(ctx, parent, r)
	}

	d.events.Publish(ctx, &model.Event{Kind: model.EventCreated, Resource: r, Parent: parent, Originator: originator})
	if parent != nil {
		d.events.Publish(ctx, &model.Event{Kind: model.EventCreateDirectChild, Resource: r, Parent: parent, Originator: originator})
	}
	return model.OK(model.RSCCreated, r)
}

// Update implements spec.md §4.4's UPDATE.
func (d *Dispatcher) Update(ctx context.Context, ri string, patch map[string]any, originator string) model.Result {
	return d.update(ctx, ri, patch, originator, false)
}

// UpdatePrivileged updates a resource bypassing the ACP check, for the
// same boot-time reason as CreatePrivileged.
func (d *Dispatcher) UpdatePrivileged(ctx context.Context, ri string, patch map[string]any, originator string) model.Result {
	return d.update(ctx, ri, patch, originator, true)
}

func (d *Dispatcher) update(ctx context.Context, ri string, patch map[string]any, originator string, privileged bool) model.Result {
	r, err := d.store.GetByRI(ctx, ri)
	if err != nil {
		return model.Err(model.NewError(model.RSCNotFound, "resource %s not found", ri))
	}
	var parent *model.Resource
	if r.PI != "" {
		parent, _ = d.store.GetByRI(ctx, r.PI)
	}

	if !privileged && !d.security.HasAccess(ctx, originator, r, model.PermUpdate, false, model.TypeUnknown, false, parent) {
		return model.Err(model.NewError(model.RSCOriginatorHasNoPrivilege, "originator %s lacks UPDATE on %s", originator, ri))
	}

	if vt, ok := d.factory.VTableFor(r.TY); ok && vt.Update != nil {
		if cerr := vt.Update(r, patch); cerr != nil {
			return model.Err(cerr)
		}
	}

	merged := r.Clone()
	modified := make(map[string]any, len(patch))
	for k, v := range patch {
		merged.Attrs[k] = v
		modified[k] = v
	}
	// acpi is a named Resource field, as Factory.Build places it on CREATE.
	if v, ok := patch["acpi"]; ok {
		merged.ACPI = toStringList(v)
		delete(merged.Attrs, "acpi")
	}

	// Only the patched attributes are checked against the update policy;
	// stored read-only attributes (cst, cni, ...) are left as they are.
	probe := merged.Clone()
	probe.Attrs = patch
	cnd, _ := merged.Attrs["cnd"].(string)
	if cerr := d.validator.Validate(probe, policy.OpUpdate, cnd, parent); cerr != nil {
		return model.Err(cerr)
	}

	merged.LT = model.ISOTime(time.Now())
	if err := d.store.Update(ctx, merged); err != nil {
		return model.Err(model.NewError(model.RSCInternalServerError, "store update failed: %s", err))
	}

	d.events.Publish(ctx, &model.Event{Kind: model.EventUpdated, Resource: merged, Parent: parent, Originator: originator, ModifiedAttributes: modified})
	return model.OK(model.RSCUpdated, merged)
}

// Delete implements spec.md §4.4's DELETE: recursive depth-first child
// deletion, per-type deactivate, unindex, fire delete event.
func (d *Dispatcher) Delete(ctx context.Context, ri string, originator string) model.Result {
	r, err := d.store.GetByRI(ctx, ri)
	if err != nil {
		return model.Err(model.NewError(model.RSCNotFound, "resource %s not found", ri))
	}
	var parent *model.Resource
	if r.PI != "" {
		parent, _ = d.store.GetByRI(ctx, r.PI)
	}

	if !d.security.HasAccess(ctx, originator, r, model.PermDelete, false, model.TypeUnknown, false, parent) {
		return model.Err(model.NewError(model.RSCOriginatorHasNoPrivilege, "originator %s lacks DELETE on %s", originator, ri))
	}

	if err := d.deleteRecursive(ctx, r, originator); err != nil {
		return model.Err(model.NewError(model.RSCInternalServerError, "cascade delete failed: %s", err))
	}

	if parent != nil {
		d.events.Publish(ctx, &model.Event{Kind: model.EventDeleteDirectChild, Resource: r, Parent: parent, Originator: originator})
	}
	return model.OK(model.RSCDeleted, r)
}

func (d *Dispatcher) deleteRecursive(ctx context.Context, r *model.Resource, originator string) error {
	children, _ := d.store.ChildrenOf(ctx, r.RI, model.TypeUnknown)
	for _, c := range children {
		if err := d.deleteRecursive(ctx, c, originator); err != nil {
			// Best-effort cascade per spec.md §7: a child that fails to
			// delete leaves the parent in place; propagate the failure.
			return err
		}
	}
	if vt, ok := d.factory.VTableFor(r.TY); ok && vt.Deactivate != nil {
		if cerr := vt.Deactivate(r); cerr != nil {
			return cerr
		}
	}
	if err := d.store.Delete(ctx, r.RI); err != nil {
		return err
	}
	if r.TY == model.TypeCIN && r.PI != "" {
		d.onCINDeleted(ctx, r.PI, r)
	}
	d.events.Publish(ctx, &model.Event{Kind: model.EventDeleted, Resource: r, Originator: originator})
	return nil
}

// onCINCreated keeps the parent container's `cni`/`cbs` state counters in
// sync with its CIN children and evicts the oldest CIN once `mni` is
// exceeded, per spec.md §3's CNT/CIN invariant and scenario #8.3.
func (d *Dispatcher) onCINCreated(ctx context.Context, parent *model.Resource, cin *model.Resource) {
	updated := parent.Clone()
	cni := intAttr(updated.Attrs["cni"])
	cbs := intAttr(updated.Attrs["cbs"])
	updated.Attrs["cni"] = cni + 1
	updated.Attrs["cbs"] = cbs + cinContentSize(cin)
	if err := d.store.Update(ctx, updated); err != nil {
		d.logger.Error("failed to update container counters", zap.String("cnt", parent.RI), zap.Error(err))
		return
	}
	d.evictOldestCINIfOverLimit(ctx, updated)
}

// onCINDeleted mirrors onCINCreated's bookkeeping when a CIN is removed,
// whether by explicit DELETE, cascade, expiration sweep, or eviction.
func (d *Dispatcher) onCINDeleted(ctx context.Context, parentRI string, cin *model.Resource) {
	parent, err := d.store.GetByRI(ctx, parentRI)
	if err != nil {
		return
	}
	updated := parent.Clone()
	cni := intAttr(updated.Attrs["cni"])
	cbs := intAttr(updated.Attrs["cbs"])
	if cni > 0 {
		cni--
	}
	cbs -= cinContentSize(cin)
	if cbs < 0 {
		cbs = 0
	}
	updated.Attrs["cni"] = cni
	updated.Attrs["cbs"] = cbs
	if err := d.store.Update(ctx, updated); err != nil {
		d.logger.Error("failed to update container counters after CIN delete", zap.String("cnt", parentRI), zap.Error(err))
	}
}

// evictOldestCINIfOverLimit deletes the oldest CIN children, by `ct`, one
// at a time until `cni` no longer exceeds the container's `mni`.
func (d *Dispatcher) evictOldestCINIfOverLimit(ctx context.Context, cnt *model.Resource) {
	mni := intAttr(cnt.Attrs["mni"])
	if mni <= 0 {
		return
	}
	for {
		current, err := d.store.GetByRI(ctx, cnt.RI)
		if err != nil {
			return
		}
		cni := intAttr(current.Attrs["cni"])
		if cni <= mni {
			return
		}
		children, err := d.store.ChildrenOf(ctx, current.RI, model.TypeCIN)
		if err != nil || len(children) == 0 {
			return
		}
		oldest := children[0]
		for _, c := range children[1:] {
			if c.CT < oldest.CT {
				oldest = c
			}
		}
		if err := d.deleteRecursive(ctx, oldest, "CSE"); err != nil {
			return
		}
	}
}

func cinContentSize(cin *model.Resource) int {
	return intAttr(cin.Attrs["cs"])
}

// intAttr coerces a resource attribute to int regardless of whether it
// arrived as a Go int literal (server-computed, e.g. cni/cbs/cs) or as a
// float64 (anything that passed through encoding/json's map[string]any
// decoding, e.g. mni off a CREATE body).
func intAttr(v any) int {
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

// SweepExpired deletes every resource whose ET has elapsed, run
// periodically by a background actor per spec.md §4.4/§5. The CSE
// itself is used as the originator, bypassing permission checks through
// the bootstrap-equivalent internal call path (direct store access, no
// HasAccess gate — mirrors the Python scheduler's CSE-privileged sweep).
func (d *Dispatcher) SweepExpired(ctx context.Context, candidates []*model.Resource) int {
	now := time.Now()
	deleted := 0
	for _, r := range candidates {
		if !r.Expired(now) {
			continue
		}
		if err := d.deleteRecursive(ctx, r, "CSE"); err == nil {
			deleted++
		}
	}
	return deleted
}
