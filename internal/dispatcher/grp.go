package dispatcher

import (
	"context"

	"github.com/onem2m/acme-cse/internal/model"
)

// MemberResult is one member's outcome within a GRP fan-out operation.
type MemberResult struct {
	MemberRI string
	Result   model.Result
}

// FanOut evaluates op independently against every member RI of a GRP's
// `mid` list and aggregates partial success, per spec.md §4.4: "Group
// (GRP) fan-out (fopt) evaluates each member's permission independently;
// partial success returns an aggregated response."
func FanOut(ctx context.Context, members []string, op func(ctx context.Context, memberRI string) model.Result) []MemberResult {
	out := make([]MemberResult, 0, len(members))
	for _, m := range members {
		out = append(out, MemberResult{MemberRI: m, Result: op(ctx, m)})
	}
	return out
}
