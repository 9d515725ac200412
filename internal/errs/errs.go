// Package errs defines the error taxonomy of the visit workflow engine.
// Handlers map these kinds to HTTP statuses; nothing in the core is fatal.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for boundary handling.
type Kind string

const (
	// KindValidation: the request itself is malformed (missing coordinates,
	// bad enum value). 400.
	KindValidation Kind = "validation_error"
	// KindLocationRejected: the request was well-formed but the agent is
	// outside the geofence radius. 400, distinct code so clients can offer
	// an override flow.
	KindLocationRejected Kind = "location_rejected"
	// KindNotFound: unknown visit/task/customer, or a visit already in a
	// terminal state for idempotent re-submissions. 404.
	KindNotFound Kind = "not_found"
	// KindStateConflict: the operation is illegal in the current state,
	// e.g. check-out with mandatory tasks pending. 400 with detail.
	KindStateConflict Kind = "state_conflict"
	// KindTransientStore: the persistence call failed; safe to retry. 500.
	KindTransientStore Kind = "transient_store_failure"
)

// Error is a classified error with optional machine-readable detail.
type Error struct {
	Kind    Kind
	Message string
	// Detail carries structured context, e.g. blocking task ids on a
	// check-out gate failure.
	Detail map[string]interface{}
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindTransientStore:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Validation builds a 400 validation error.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// LocationRejected builds a geofence rejection carrying the measured distance.
func LocationRejected(distanceMeters, radiusMeters float64) *Error {
	return &Error{
		Kind:    KindLocationRejected,
		Message: fmt.Sprintf("agent is %.1fm from customer location (allowed %.0fm)", distanceMeters, radiusMeters),
		Detail: map[string]interface{}{
			"distance_meters": distanceMeters,
			"radius_meters":   radiusMeters,
		},
	}
}

// NotFound builds a 404 error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// StateConflict builds a state-conflict error with structured detail.
func StateConflict(message string, detail map[string]interface{}) *Error {
	return &Error{Kind: KindStateConflict, Message: message, Detail: detail}
}

// Store wraps an underlying persistence failure as transient.
func Store(op string, cause error) *Error {
	return &Error{Kind: KindTransientStore, Message: op + " failed", cause: cause}
}

// As extracts a classified error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	if e, ok := As(err); ok {
		return e.Kind == kind
	}
	return false
}
