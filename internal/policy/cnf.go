package policy

import (
	"strconv"
	"strings"

	"github.com/onem2m/acme-cse/internal/model"
)

// ValidateCNF checks a ContentInstance's `cnf` (content-info) attribute,
// a semicolon-separated media-type;encoding;content-disposition triplet,
// grounded on original_source/acme/resources/CIN.py's use of
// CSE.validator.validateCNF.
func ValidateCNF(cnf string) *model.CSEError {
	if cnf == "" {
		return nil
	}
	parts := strings.Split(cnf, ";")
	if len(parts) == 0 || len(parts) > 3 {
		return model.NewError(model.RSCBadRequest, "cnf must have 1-3 semicolon-separated parts: %q", cnf)
	}
	if parts[0] == "" {
		return model.NewError(model.RSCBadRequest, "cnf media-type must not be empty")
	}
	if len(parts) >= 2 && parts[1] != "" {
		if _, err := strconv.Atoi(parts[1]); err != nil {
			return model.NewError(model.RSCBadRequest, "cnf encoding must be numeric: %q", parts[1])
		}
	}
	return nil
}
