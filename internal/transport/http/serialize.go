package http

import "github.com/onem2m/acme-cse/internal/model"

// anncMapAttr is internal/announce's reserved Attrs key tracking remote
// `ri` values per announcement target. It must never cross the wire.
const anncMapAttr = "__anncMap"

// serializeResource renders r as the "m2m:<type>" envelope the oneM2M
// HTTP binding expects: the common envelope fields plus every
// type-specific attribute in r.Attrs, with internal-only bookkeeping
// entries stripped.
func serializeResource(r *model.Resource) map[string]any {
	body := map[string]any{
		"ri": r.RI,
		"rn": r.RN,
		"ty": int(r.TY),
		"ct": r.CT,
		"lt": r.LT,
	}
	if r.PI != "" {
		body["pi"] = r.PI
	}
	if r.ET != "" {
		body["et"] = r.ET
	}
	if len(r.ACPI) > 0 {
		body["acpi"] = r.ACPI
	}
	if len(r.LBL) > 0 {
		body["lbl"] = r.LBL
	}
	if len(r.AT) > 0 {
		body["at"] = r.AT
	}
	if len(r.AA) > 0 {
		body["aa"] = r.AA
	}
	if r.CSI != "" {
		body["csi"] = r.CSI
	}
	for k, v := range r.Attrs {
		if k == anncMapAttr {
			continue
		}
		body[k] = v
	}

	prefix := r.TY.TypePrefix()
	if prefix == "" {
		return body
	}
	return map[string]any{prefix: body}
}
