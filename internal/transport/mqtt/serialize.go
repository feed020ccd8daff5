package mqtt

import "github.com/onem2m/acme-cse/internal/model"

// anncMapAttr is internal/announce's reserved Attrs key; it must never
// cross the wire. Duplicated from internal/transport/http's constant of
// the same name since each binding owns its own wire rendering.
const anncMapAttr = "__anncMap"

// serializeResource renders r as the "m2m:<type>" envelope the MQTT
// binding's primitive content carries, matching
// internal/transport/http's serializeResource.
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
