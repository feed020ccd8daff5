package model

import "time"

// ISOTime formats a time.Time the way oneM2M attributes expect: basic
// ISO-8601, UTC, no separators (YYYYMMDDTHHMMSS,ffffff).
func ISOTime(t time.Time) string {
	return t.UTC().Format("20060102T150405,000000")
}

// Resource is the common envelope every typed resource embeds. Only `ri`
// is ever used to reference another resource — no owning pointers are
// kept in either direction; children are found via Storage.ChildrenOf and
// parents via Storage.GetByRI(pi), per spec.md §9.
type Resource struct {
	RI   string       `json:"ri"`
	RN   string       `json:"rn"`
	PI   string       `json:"pi,omitempty"`
	TY   ResourceType `json:"ty"`
	CT   string       `json:"ct"`
	LT   string       `json:"lt"`
	ET   string       `json:"et,omitempty"`
	ACPI []string     `json:"acpi,omitempty"`
	LBL  []string     `json:"lbl,omitempty"`
	AT   []string     `json:"at,omitempty"`
	AA   []string     `json:"aa,omitempty"`

	// CSI is populated only on CSEBase/CSR resources.
	CSI string `json:"csi,omitempty"`
	// SRN is derived, not stored on the wire representation, but kept
	// denormalized on the in-memory/stored record for fast lookup.
	SRN string `json:"-"`

	// Attrs holds type-specific attributes not promoted to named Go
	// fields, keyed by oneM2M short name. Resource-type packages read
	// and write through here via the Factory's vtable, matching the
	// Python original's dict-backed attribute store.
	Attrs map[string]any `json:"-"`
}

// Clone returns a deep-enough copy for safe mutation during UPDATE diffing.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	c := *r
	c.ACPI = append([]string(nil), r.ACPI...)
	c.LBL = append([]string(nil), r.LBL...)
	c.AT = append([]string(nil), r.AT...)
	c.AA = append([]string(nil), r.AA...)
	c.Attrs = make(map[string]any, len(r.Attrs))
	for k, v := range r.Attrs {
		c.Attrs[k] = v
	}
	return &c
}

// Expired reports whether ET has elapsed as of now.
func (r *Resource) Expired(now time.Time) bool {
	if r.ET == "" {
		return false
	}
	et, err := time.Parse("20060102T150405,000000", r.ET)
	if err != nil {
		return false
	}
	return now.After(et)
}

// InheritsACP reports whether the resource has no own ACPI and must
// resolve access control from its parent.
func (r *Resource) InheritsACP() bool {
	return len(r.ACPI) == 0
}
