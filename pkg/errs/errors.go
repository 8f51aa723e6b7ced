package errs

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for callers and for the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation: missing or malformed input, raised before any write.
	KindValidation
	// KindAuth: no acting user, or the identity provider refused the request.
	KindAuth
	// KindNotFound: a referenced record does not exist.
	KindNotFound
	// KindConstraint: a unique/constraint violation or a lost state race.
	KindConstraint
	// KindDependency: a later step failed after an earlier step committed.
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConstraint:
		return "constraint"
	case KindDependency:
		return "dependency"
	}
	return "internal"
}

// Error is the single error an operation surfaces. Message is safe to show
// to the console user; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

func Auth(message string, err error) error {
	return &Error{Kind: KindAuth, Message: message, Err: err}
}

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Constraint(message string, err error) error {
	return &Error{Kind: KindConstraint, Message: message, Err: err}
}

func Dependency(message string, err error) error {
	return &Error{Kind: KindDependency, Message: message, Err: err}
}

func Internal(message string, err error) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

var (
	ErrNotAuthenticated = Auth("Authenticated user required", nil)
	ErrForbidden        = Auth("Forbidden access", nil)
)

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}

var statusMap = map[Kind]int{
	KindInternal:   http.StatusInternalServerError,
	KindValidation: http.StatusBadRequest,
	KindAuth:       http.StatusUnauthorized,
	KindNotFound:   http.StatusNotFound,
	KindConstraint: http.StatusConflict,
	KindDependency: http.StatusBadGateway,
}

// StatusCode maps err to the HTTP status written by the handlers.
func StatusCode(err error) int {
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	return statusMap[KindOf(err)]
}
