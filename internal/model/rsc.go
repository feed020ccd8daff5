package model

import "net/http"

// ResponseStatusCode is the numeric protocol outcome (`rsc`) carried on
// every Result, rendered to a binding-appropriate status by HTTPStatus.
type ResponseStatusCode int

const (
	RSCOK                                        ResponseStatusCode = 2000
	RSCCreated                                   ResponseStatusCode = 2001
	RSCDeleted                                   ResponseStatusCode = 2002
	RSCUpdated                                   ResponseStatusCode = 2004
	RSCBadRequest                                ResponseStatusCode = 4000
	RSCInvalidArguments                          ResponseStatusCode = 4102
	RSCOriginatorHasNoPrivilege                  ResponseStatusCode = 4103
	RSCGroupMemberTypeInconsistent               ResponseStatusCode = 4104
	RSCReceiverHasNoPrivileges                   ResponseStatusCode = 4105
	RSCSecurityAssociationRequired               ResponseStatusCode = 4107
	RSCContentsUnacceptable                      ResponseStatusCode = 4108
	RSCNotFound                                  ResponseStatusCode = 4004
	RSCOperationNotAllowed                       ResponseStatusCode = 4005
	RSCRequestTimeout                            ResponseStatusCode = 4008
	RSCNotAcceptable                             ResponseStatusCode = 4006
	RSCConflict                                  ResponseStatusCode = 4109
	RSCAlreadyExists                             ResponseStatusCode = 4110
	RSCTargetNotReachable                        ResponseStatusCode = 5103
	RSCSubscriptionVerificationInitiationFailed  ResponseStatusCode = 5203
	RSCReleaseVersionNotSupported                ResponseStatusCode = 5207
	RSCInternalServerError                       ResponseStatusCode = 5000
	RSCNotImplemented                            ResponseStatusCode = 5001
)

// HTTPStatus maps a response status code to its HTTP binding per spec.md §6.
func (r ResponseStatusCode) HTTPStatus() int {
	switch r {
	case RSCOK, RSCUpdated, RSCDeleted:
		return http.StatusOK
	case RSCCreated:
		return http.StatusCreated
	case RSCBadRequest, RSCInvalidArguments, RSCContentsUnacceptable, RSCGroupMemberTypeInconsistent:
		return http.StatusBadRequest
	case RSCOriginatorHasNoPrivilege, RSCReceiverHasNoPrivileges, RSCSecurityAssociationRequired, RSCTargetNotReachable:
		return http.StatusForbidden
	case RSCNotFound:
		return http.StatusNotFound
	case RSCOperationNotAllowed:
		return http.StatusMethodNotAllowed
	case RSCNotAcceptable:
		return http.StatusNotAcceptable
	case RSCRequestTimeout:
		return http.StatusRequestTimeout
	case RSCConflict, RSCAlreadyExists:
		return http.StatusConflict
	case RSCReleaseVersionNotSupported, RSCNotImplemented:
		return http.StatusNotImplemented
	case RSCSubscriptionVerificationInitiationFailed:
		return http.StatusInternalServerError
	case RSCInternalServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Succeeded reports whether rsc denotes a 2xxx oneM2M outcome.
func (r ResponseStatusCode) Succeeded() bool {
	return r >= 2000 && r < 3000
}
