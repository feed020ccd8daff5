// Package boot seeds the resource tree with a CSEBase and its default
// ACP (and any other fixture-described resources) before the CSE starts
// accepting requests, grounded on
// original_source/acme/services/Importer.py's priority-first,
// skip-if-already-populated import flow. The Python original reads a
// directory of hand-authored JSON files; this rendering reads one
// ordered YAML fixture and resolves parent/update references by `rn`
// instead of by a pre-assigned `ri`, since the Go Dispatcher always
// mints its own `ri` on CREATE.
package boot

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/onem2m/acme-cse/internal/dispatcher"
	"github.com/onem2m/acme-cse/internal/model"
	"github.com/onem2m/acme-cse/internal/storage"
)

// ResourceEntry describes one resource to create at boot. ParentRN
// references an earlier entry's RN ("" for the root CSEBase); Body
// carries every attribute besides `rn`, which is taken from RN itself.
type ResourceEntry struct {
	RN       string         `yaml:"rn"`
	Tpe      string         `yaml:"tpe"`
	ParentRN string         `yaml:"parent_rn"`
	Body     map[string]any `yaml:"body"`
}

// UpdateEntry patches an already-imported resource, addressed by the RN
// it was given in Resources.
type UpdateEntry struct {
	RN   string         `yaml:"rn"`
	Body map[string]any `yaml:"body"`
}

// Fixture is the boot-time resource fixture's top-level shape.
type Fixture struct {
	Resources []ResourceEntry `yaml:"resources"`
	Updates   []UpdateEntry   `yaml:"updates"`
}

// Importer seeds the resource tree from a Fixture, mirroring
// Importer.importResources' "only when the store is empty" guard so
// restarts against an already-populated store are a no-op.
type Importer struct {
	store      storage.Store
	dispatcher *dispatcher.Dispatcher
	logger     *zap.Logger
	originator string
}

// New builds an Importer. originator is the bootstrap identity used to
// own every seeded resource (spec.md §6's admin_originator).
func New(store storage.Store, d *dispatcher.Dispatcher, originator string, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, dispatcher: d, originator: originator, logger: logger}
}

// LoadFixture reads and parses a YAML fixture file from path.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Import runs the fixture against the store, skipping entirely if a
// CSEBase matching csi is already present — the Go analogue of
// countResources() > 0 in the Python original, keyed by csi since the Go
// store has no global resource count.
func (im *Importer) Import(ctx context.Context, f *Fixture, csi string) error {
	if existing, err := im.store.GetByCSI(ctx, csi); err == nil {
		im.logger.Info("resources already imported, skipping", zap.String("csi", csi), zap.String("ri", existing.RI))
		return nil
	}

	riByRN := make(map[string]string, len(f.Resources))
	imported := 0
	for _, entry := range f.Resources {
		var parentRI string
		if entry.ParentRN != "" {
			ri, ok := riByRN[entry.ParentRN]
			if !ok {
				return fmt.Errorf("fixture entry %q references unknown parent_rn %q", entry.RN, entry.ParentRN)
			}
			parentRI = ri
		}

		body := make(map[string]any, len(entry.Body)+1)
		for k, v := range entry.Body {
			body[k] = resolveRef(v, riByRN)
		}
		body["rn"] = entry.RN

		res := im.dispatcher.CreatePrivileged(ctx, parentRI, entry.Tpe, body, im.originator, model.TypeUnknown)
		if !res.Succeeded() {
			return fmt.Errorf("import %q (%s): rsc=%d: %s", entry.RN, entry.Tpe, res.RSC, res.Dbg)
		}
		riByRN[entry.RN] = res.Resource.RI
		imported++
		im.logger.Info("imported fixture resource", zap.String("rn", entry.RN), zap.String("tpe", entry.Tpe), zap.String("ri", res.Resource.RI))
	}

	if _, ok := riByRN[f.rootRN()]; !ok {
		return fmt.Errorf("fixture did not produce a root resource")
	}

	updated := 0
	for _, u := range f.Updates {
		ri, ok := riByRN[u.RN]
		if !ok {
			return fmt.Errorf("update entry references unknown rn %q", u.RN)
		}
		patch := make(map[string]any, len(u.Body))
		for k, v := range u.Body {
			patch[k] = resolveRef(v, riByRN)
		}
		res := im.dispatcher.UpdatePrivileged(ctx, ri, patch, im.originator)
		if !res.Succeeded() {
			return fmt.Errorf("update %q: rsc=%d: %s", u.RN, res.RSC, res.Dbg)
		}
		updated++
	}

	im.logger.Info("fixture import complete", zap.Int("imported", imported), zap.Int("updated", updated))
	return nil
}

// refPrefix marks a fixture value as a forward/back-reference to another
// entry's assigned `ri`, resolved against riByRN at apply time — e.g.
// `$ref:default` inside the CSEBase update's `acpi` list, once the
// default ACP (created after the CSEBase) has been assigned its `ri`.
const refPrefix = "$ref:"

func resolveRef(v any, riByRN map[string]string) any {
	switch t := v.(type) {
	case string:
		if rn, ok := stripRefPrefix(t); ok {
			return riByRN[rn]
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = resolveRef(e, riByRN)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = resolveRef(e, riByRN)
		}
		return out
	default:
		return v
	}
}

func stripRefPrefix(s string) (string, bool) {
	if len(s) > len(refPrefix) && s[:len(refPrefix)] == refPrefix {
		return s[len(refPrefix):], true
	}
	return "", false
}

// rootRN returns the RN of the first fixture entry, expected to be the
// CSEBase (the oneM2M equivalent of Importer.py's _firstImporters check).
func (f *Fixture) rootRN() string {
	if len(f.Resources) == 0 {
		return ""
	}
	return f.Resources[0].RN
}
