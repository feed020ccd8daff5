// Package announce implements the AnnouncementManager: composing and
// maintaining *Annc projections of `at`-tagged resources on remote CSEs,
// per spec.md §4.9. Grounded on
// original_source/acme/resources/FCIAnnc.py (announced-attribute policy
// shape: mandatory-announced attrs fixed per type, `aa` adds optional
// ones, `lnk` links back to the original) and on the teacher's pattern of
// a manager owning one outbound integration (internal/events/notifier.go)
// generalized here to CRUD against a remote CSE instead of a webhook POST.
package announce

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/policy"
	"github.com/onem2m/acme-cse/internal/storage"
)

// attrMapKey is the reserved Attrs key under which the manager tracks
// the remote ri assigned to each announcement target, keyed by remote
// csi. It is never part of an incoming CREATE/UPDATE payload and must be
// stripped by the transport layer before a resource crosses the wire.
const attrMapKey = "__anncMap"

// RemoteCSEClient performs the CRUD calls an Annc projection needs
// against a remote CSE, addressed by its csi.
type RemoteCSEClient interface {
	Create(ctx context.Context, remoteCSI, parentPath string, body map[string]any) (ri string, err error)
	Update(ctx context.Context, remoteCSI, ri string, body map[string]any) error
	Delete(ctx context.Context, remoteCSI, ri string) error
}

// Manager composes Annc resources, diffs `at`/`aa` on update, and
// projects the result onto each target CSE.
type Manager struct {
	store    storage.Store
	registry *policy.Registry
	client   RemoteCSEClient
	logger   *zap.Logger
}

// New builds a Manager.
func New(store storage.Store, registry *policy.Registry, client RemoteCSEClient, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, registry: registry, client: client, logger: logger}
}

// HandleEvent reacts to resource create/update/delete, mirroring changes
// to `at` onto remote CSEs. Registered as an eventbus.Handler by callers,
// so it runs off the originating request's goroutine per spec.md §5.
func (m *Manager) HandleEvent(ev *model.Event) {
	if ev.Resource == nil {
		return
	}
	ctx := context.Background()

	switch ev.Kind {
	case model.EventCreated:
		if len(ev.Resource.AT) == 0 {
			return
		}
		if err := m.announceAll(ctx, ev.Resource, ev.Resource.AT); err != nil {
			m.logger.Error("announcement failed", zap.String("ri", ev.Resource.RI), zap.Error(err))
		}
	case model.EventUpdated:
		if err := m.reconcile(ctx, ev.Resource); err != nil {
			m.logger.Error("announcement reconcile failed", zap.String("ri", ev.Resource.RI), zap.Error(err))
		}
	case model.EventDeleted:
		if err := m.withdrawAll(ctx, ev.Resource); err != nil {
			m.logger.Error("announcement withdrawal failed", zap.String("ri", ev.Resource.RI), zap.Error(err))
		}
	}
}

// announceAll creates an Annc projection on every target in targets,
// recording the remote ri assigned to each.
func (m *Manager) announceAll(ctx context.Context, r *model.Resource, targets []string) error {
	mapping := anncMap(r)
	for _, csi := range targets {
		if _, exists := mapping[csi]; exists {
			continue
		}
		body := m.compose(r, r.AA)
		remoteRI, err := m.client.Create(ctx, csi, remoteParentPath(r), body)
		if err != nil {
			return fmt.Errorf("announce %s to %s: %w", r.RI, csi, err)
		}
		mapping[csi] = remoteRI
	}
	return m.persistMap(ctx, r, mapping)
}

// withdrawAll deletes every live Annc projection for r, e.g. on resource delete.
func (m *Manager) withdrawAll(ctx context.Context, r *model.Resource) error {
	mapping := anncMap(r)
	var firstErr error
	for csi, remoteRI := range mapping {
		if err := m.client.Delete(ctx, csi, remoteRI); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// reconcile diffs the current `at`/`aa` against the tracked mapping and
// adds/removes/updates projections accordingly, per spec.md §4.9.
func (m *Manager) reconcile(ctx context.Context, r *model.Resource) error {
	mapping := anncMap(r)
	wanted := make(map[string]bool, len(r.AT))
	for _, csi := range r.AT {
		wanted[csi] = true
	}

	// Remove projections for targets no longer in `at`.
	for csi, remoteRI := range mapping {
		if wanted[csi] {
			continue
		}
		if err := m.client.Delete(ctx, csi, remoteRI); err != nil {
			m.logger.Warn("failed to withdraw stale announcement", zap.String("csi", csi), zap.Error(err))
		}
		delete(mapping, csi)
	}

	// Add projections for newly added targets.
	body := m.compose(r, r.AA)
	for csi := range wanted {
		if _, ok := mapping[csi]; ok {
			continue
		}
		remoteRI, err := m.client.Create(ctx, csi, remoteParentPath(r), body)
		if err != nil {
			return fmt.Errorf("announce %s to %s: %w", r.RI, csi, err)
		}
		mapping[csi] = remoteRI
	}

	// Project attribute changes onto every surviving mirror.
	for csi, remoteRI := range mapping {
		if err := m.client.Update(ctx, csi, remoteRI, body); err != nil {
			m.logger.Warn("failed to update announcement", zap.String("csi", csi), zap.Error(err))
		}
	}

	return m.persistMap(ctx, r, mapping)
}

// compose builds the Annc projection body: mandatory-announced attrs for
// r's type plus every attribute listed in aa that is actually
// announceable. Non-announceable attrs in aa are silently stripped; the
// surviving entries are written to body["aa"], which is left out when none
// survive.
func (m *Manager) compose(r *model.Resource, aa []string) map[string]any {
	body := map[string]any{
		"ty":  int(r.TY + model.TypeAnncOffset),
		"lnk": r.RI,
		"et":  r.ET,
	}
	if len(r.ACPI) > 0 {
		body["acpi"] = r.ACPI
	}
	if len(r.LBL) > 0 {
		body["lbl"] = r.LBL
	}
	// et/acpi/lbl live as named Resource fields, not in Attrs, so the
	// per-type announced attributes below cover only the type-specific
	// ones (api, rr, poa, mni, mbs, ...); et/acpi/lbl are handled above.
	for _, attr := range m.registry.AnnouncedAttributesFor(r.TY) {
		if v, ok := r.Attrs[attr]; ok {
			body[attr] = v
		}
	}

	var keptAA []string
	for _, attr := range aa {
		if !m.registry.IsAnnounceable(r.TY, attr) {
			continue
		}
		if v, ok := r.Attrs[attr]; ok {
			body[attr] = v
			keptAA = append(keptAA, attr)
		}
	}
	if keptAA != nil {
		body["aa"] = keptAA
	}
	return body
}

func anncMap(r *model.Resource) map[string]string {
	raw, ok := r.Attrs[attrMapKey]
	if !ok {
		return make(map[string]string)
	}
	m, ok := raw.(map[string]string)
	if !ok {
		return make(map[string]string)
	}
	return m
}

func (m *Manager) persistMap(ctx context.Context, r *model.Resource, mapping map[string]string) error {
	r.Attrs[attrMapKey] = mapping
	return m.store.Update(ctx, r)
}

// remoteParentPath derives the structured path under which the Annc
// projection is created on the remote CSE: "/<pi>/remoteCSE", built from
// the announced resource's own parent identifier. Kept as a
// function (rather than a config lookup) so tests can exercise composition
// without a real CSR resource.
func remoteParentPath(r *model.Resource) string {
	return fmt.Sprintf("/%s/remoteCSE", r.PI)
}
