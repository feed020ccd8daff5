package model

import "fmt"

// CSEError is the structured error value threaded across subsystem
// boundaries in place of propagated exceptions, per spec.md §7 — every
// failure carries a ResponseStatusCode and an optional debug string.
type CSEError struct {
	RSC ResponseStatusCode
	Dbg string
}

func (e *CSEError) Error() string {
	if e.Dbg == "" {
		return fmt.Sprintf("rsc=%d", e.RSC)
	}
	return fmt.Sprintf("rsc=%d: %s", e.RSC, e.Dbg)
}

// NewError constructs a CSEError, optionally formatting the debug string.
func NewError(rsc ResponseStatusCode, format string, args ...any) *CSEError {
	return &CSEError{RSC: rsc, Dbg: fmt.Sprintf(format, args...)}
}

// Result is the outcome of a Dispatcher operation: either a resource (or
// list/partial-aggregate payload) on success, or an error.
type Result struct {
	RSC      ResponseStatusCode
	Resource *Resource
	Content  any // used for non-Resource payloads: lists, aggregates, {m2m:uri: ri}, etc.
	Dbg      string
}

// OK builds a success Result wrapping a resource.
func OK(rsc ResponseStatusCode, r *Resource) Result {
	return Result{RSC: rsc, Resource: r}
}

// OKContent builds a success Result wrapping an arbitrary payload.
func OKContent(rsc ResponseStatusCode, content any) Result {
	return Result{RSC: rsc, Content: content}
}

// Err builds a failure Result from a CSEError.
func Err(err *CSEError) Result {
	return Result{RSC: err.RSC, Dbg: err.Dbg}
}

// Succeeded reports whether the Result represents a successful outcome.
func (r Result) Succeeded() bool {
	return r.RSC.Succeeded()
}

// AsError converts a failed Result into a *CSEError, or nil if it succeeded.
func (r Result) AsError() *CSEError {
	if r.Succeeded() {
		return nil
	}
	return &CSEError{RSC: r.RSC, Dbg: r.Dbg}
}
