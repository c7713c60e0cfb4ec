package authz

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an authorization failure. The HTTP adapter maps kinds to
// status codes; the engine itself never touches the transport.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnauthenticated means no principal accompanied the request.
	KindUnauthenticated
	// KindDenied means the principal lacks permission for the target.
	KindDenied
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
	// KindMismatch means two request ids reference entities that are not
	// associated with each other, or the request shape is invalid.
	KindMismatch
	// KindUnavailable means the entity store failed.
	KindUnavailable
	// KindInternal means a schema lookup miss or malformed permission
	// document. Client-opaque; logged with full context.
	KindInternal
)

// Deny scopes, used in error details so support can attribute a denial.
const (
	ScopeAccountDeny = "account-scoped"
	ScopeProjectDeny = "project-override"
	ScopeAPIKeyDeny  = "api-key-scoped"
)

// Error is the engine's failure value. Detail is safe to surface to clients;
// it names the responsible scope but never role names or override documents.
type Error struct {
	Kind   Kind
	Scope  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("%s: %s", e.Scope, e.Detail)
	}
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to the status taxonomy handlers propagate
// unchanged.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

// KindOf extracts the Kind from any error returned by the engine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus returns the status code for any error returned by the engine.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusServiceUnavailable
}

// Detail returns the client-safe detail string for an engine error.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "internal server error"
}

func Unauthenticated(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthenticated, Detail: fmt.Sprintf(format, args...)}
}

func Denied(scope, format string, args ...any) *Error {
	return &Error{Kind: KindDenied, Scope: scope, Detail: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

func Mismatch(format string, args ...any) *Error {
	return &Error{Kind: KindMismatch, Detail: fmt.Sprintf(format, args...)}
}

func Unavailable(err error, format string, args ...any) *Error {
	return &Error{Kind: KindUnavailable, Detail: fmt.Sprintf(format, args...), Err: err}
}

func Internal(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Detail: fmt.Sprintf(format, args...)}
}
