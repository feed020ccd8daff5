package dispatcher

import (
	"context"
	"strings"

	"github.com/onem2m/acme-cse/internal/model"
)

// virtualSuffixes are the trailing short names spec.md §4.7 recognizes as
// virtual-resource addressing rather than a plain structured segment.
var virtualSuffixes = map[string]bool{"la": true, "ol": true, "fopt": true, "pcu": true}

// StripVirtualSuffix recognizes a trailing virtual resource short name
// (la/ol/fopt/pcu) on a path, returning the base path with that segment
// removed and the suffix itself (empty if none), per spec.md §4.7: "a
// trailing virtual short-name is stripped, resolved against its parent,
// then re-applied."
func StripVirtualSuffix(path string) (string, string) {
	path = strings.Trim(path, "/")
	if path == "" {
		return path, ""
	}
	last := path
	idx := strings.LastIndex(path, "/")
	if idx >= 0 {
		last = path[idx+1:]
	}
	if !virtualSuffixes[last] {
		return path, ""
	}
	if idx < 0 {
		return "", last
	}
	return path[:idx], last
}

// ResolveAddress classifies raw per spec.md §4.7's three addressing
// classes (CSE-relative, SP-relative, Absolute), strips any trailing
// virtual suffix first, and resolves the remainder to a `ri`. Callers
// dispatch the virtual suffix (if any) themselves via RetrieveVirtual /
// *ViaGroup.
func (d *Dispatcher) ResolveAddress(ctx context.Context, raw string) (string, string, *model.CSEError) {
	base, virtual := StripVirtualSuffix(raw)

	switch {
	case strings.HasPrefix(base, "~/"):
		ri, cerr := d.resolveSPRelative(ctx, strings.TrimPrefix(base, "~/"))
		if cerr != nil {
			return "", "", cerr
		}
		return ri, virtual, nil
	case strings.HasPrefix(base, "_/"):
		rest := strings.TrimPrefix(base, "_/")
		// Absolute carries a leading service-provider-id segment; this CSE
		// has no multi-SP routing table to resolve it against, so it is
		// dropped and the remainder resolved exactly as SP-relative.
		if idx := strings.Index(rest, "/"); idx >= 0 {
			rest = rest[idx+1:]
		} else {
			rest = ""
		}
		ri, cerr := d.resolveSPRelative(ctx, rest)
		if cerr != nil {
			return "", "", cerr
		}
		return ri, virtual, nil
	default:
		ri, cerr := d.resolveCSERelative(ctx, base)
		if cerr != nil {
			return "", "", cerr
		}
		return ri, virtual, nil
	}
}

// resolveSPRelative resolves "csi/remaining/structured/path" against the
// CSE registered under csi (itself or a known CSR), per spec.md §4.7.
func (d *Dispatcher) resolveSPRelative(ctx context.Context, rest string) (string, *model.CSEError) {
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", model.NewError(model.RSCBadRequest, "SP-relative address missing csi segment")
	}
	segs := strings.SplitN(rest, "/", 2)
	// A csi is stored with its leading "/" ("/cse-in"), which the "~" or
	// "_/spi" prefix has already consumed; try that form, then the bare one.
	remote, err := d.store.GetByCSI(ctx, "/"+segs[0])
	if err != nil {
		remote, err = d.store.GetByCSI(ctx, segs[0])
	}
	if err != nil {
		return "", model.NewError(model.RSCNotFound, "no CSE registered with csi %q", segs[0])
	}
	if len(segs) == 1 || segs[1] == "" {
		return remote.RI, nil
	}
	ri, serr := d.store.ResolveSRN(ctx, remote.SRN+"/"+segs[1])
	if serr != nil {
		return "", model.NewError(model.RSCNotFound, "no resource at path %q", rest)
	}
	return ri, nil
}

// resolveCSERelative resolves a CSE-relative path: structured (joined by
// the local CSEBase's `rn`, indexed by srn) or unstructured (a bare `ri`).
// The literal "-" first segment is rewritten to the local CSE's `rn`, and
// an empty path (the HTTP root) resolves to the CSEBase itself.
func (d *Dispatcher) resolveCSERelative(ctx context.Context, path string) (string, *model.CSEError) {
	path = strings.Trim(path, "/")
	if path == "" {
		path = d.LocalCSERN
	}
	segs := strings.Split(path, "/")
	if segs[0] == "-" {
		segs[0] = d.LocalCSERN
	}
	path = strings.Join(segs, "/")

	if ri, err := d.store.ResolveSRN(ctx, path); err == nil {
		return ri, nil
	}
	if len(segs) == 1 {
		if r, err := d.store.GetByRI(ctx, path); err == nil {
			return r.RI, nil
		}
	}
	return "", model.NewError(model.RSCNotFound, "no resource at path %q", path)
}
