package client

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the API client can surface. Each
// operation fails with exactly one kind; callers branch on the kind,
// not on status codes.
type Kind int

const (
	// KindNetwork covers transport failures and 5xx responses. Safe to
	// retry on idempotent reads only.
	KindNetwork Kind = iota
	// KindAuthentication means the credentials or token were rejected;
	// the session should be cleared and the user asked to log in again.
	KindAuthentication
	// KindAuthorization means the caller lacks the role for the
	// operation. The message never names the role that was required.
	KindAuthorization
	// KindValidation means the input was malformed; Code identifies the
	// offending field or rule for inline display.
	KindValidation
	// KindConflict means a state transition lost a race; the caller
	// should refresh its view rather than retry the same mutation.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind   Kind
	Code   string
	Status int
	cause  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Code)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds an error that did not come off the wire, for layers
// above the client that want the same taxonomy.
func NewError(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// ErrKind extracts the kind of a client error, or KindNetwork when the
// error did not come from the API at all.
func ErrKind(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

func IsAuthentication(err error) bool { return IsKind(err, KindAuthentication) }
func IsAuthorization(err error) bool  { return IsKind(err, KindAuthorization) }
func IsValidation(err error) bool     { return IsKind(err, KindValidation) }
func IsConflict(err error) bool       { return IsKind(err, KindConflict) }

func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == KindNetwork
	}
	return true
}

func networkError(cause error) *Error {
	return &Error{Kind: KindNetwork, cause: cause}
}

func classifyStatus(status int, code string) *Error {
	apiErr := &Error{Code: code, Status: status}
	switch {
	case status == 401:
		apiErr.Kind = KindAuthentication
	case status == 403:
		apiErr.Kind = KindAuthorization
	case status == 409:
		// Duplicate email is a registration input problem, not a lost
		// race on a state transition.
		if code == "email_taken" {
			apiErr.Kind = KindValidation
		} else {
			apiErr.Kind = KindConflict
		}
	case status >= 400 && status < 500:
		apiErr.Kind = KindValidation
	default:
		apiErr.Kind = KindNetwork
	}
	return apiErr
}
