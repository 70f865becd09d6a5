// Package autherr defines the tagged error taxonomy for identity operations.
//
// Every failure crossing the auth-client or session-controller boundary is an
// *Error carrying a Kind from the fixed set below plus an optional
// human-readable message. Callers switch on Kind (via KindOf or the Is*
// helpers), never on message content.
package autherr

import (
	"errors"
	"fmt"
)

// Kind classifies an authentication failure.
type Kind int

const (
	// Unknown is the zero value; it marks errors that did not originate in
	// this package.
	Unknown Kind = iota
	// ValidationFailed means a local precondition (password mismatch, length)
	// was violated before any network call.
	ValidationFailed
	// InvalidCredentials means the server rejected the supplied credentials.
	InvalidCredentials
	// Unauthenticated means the bearer token is absent, invalid or expired.
	// It triggers forced de-authentication.
	Unauthenticated
	// ServerUnavailable means a transport failure or a 5xx response.
	ServerUnavailable
	// StorageUnavailable means the local token store is inaccessible. It is
	// swallowed at the store boundary and never shown to the user.
	StorageUnavailable
	// Internal covers everything else.
	Internal
)

// String returns a short stable name for the kind.
func (k Kind) String() string {
	switch k {
	case ValidationFailed:
		return "validation_failed"
	case InvalidCredentials:
		return "invalid_credentials"
	case Unauthenticated:
		return "unauthenticated"
	case ServerUnavailable:
		return "server_unavailable"
	case StorageUnavailable:
		return "storage_unavailable"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a tagged authentication error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given kind and user-facing message.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf reports the Kind of err, or Unknown when the chain contains no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// MessageOf returns the user-facing message of err, falling back to
// err.Error() for foreign errors and "" for nil.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// IsValidationFailed reports whether err is a local validation failure.
func IsValidationFailed(err error) bool { return KindOf(err) == ValidationFailed }

// IsInvalidCredentials reports whether err is a credential rejection.
func IsInvalidCredentials(err error) bool { return KindOf(err) == InvalidCredentials }

// IsUnauthenticated reports whether err is a missing/expired-token failure.
func IsUnauthenticated(err error) bool { return KindOf(err) == Unauthenticated }

// IsServerUnavailable reports whether err is a transport or 5xx failure.
func IsServerUnavailable(err error) bool { return KindOf(err) == ServerUnavailable }
