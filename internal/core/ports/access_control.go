package ports

import (
	"context"
	"errors"

	"github.com/avatarctic/herdbook/go/internal/core/domain/access"
	"github.com/avatarctic/herdbook/go/internal/core/domain/auth"
)

// AuthorizationEngine decides a single (principal, resource, verb) question.
// Implementations must be pure: no I/O, no side effects.
type AuthorizationEngine interface {
	Decide(p access.Principal, resource access.Resource, verb access.Verb) access.Decision
	// EffectiveAccess evaluates Decide for every registered resource and verb.
	EffectiveAccess(p access.Principal) map[access.Resource]access.VerbSet
}

// PrincipalLoader attaches the bound profile to an identity ahead of decisions.
type PrincipalLoader interface {
	Load(ctx context.Context, identity auth.Identity) (*access.Principal, error)
}

// ErrorKind classifies an AccessError.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthentication
	KindAuthorization
	KindValidation
	KindNotFound
	KindStore
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Codes carried by AccessError.
const (
	CodeAuthRequired        = "auth_required"
	CodeAccessDenied        = "access_denied"
	CodeDuplicateName       = "duplicate_name"
	CodeInvalidGrant        = "invalid_grant"
	CodeInUse               = "in_use"
	CodeInvalidReassignment = "invalid_reassignment"
	CodeInvalidRequest      = "invalid_request"
	CodeNotFound            = "not_found"
	CodeStoreFailure        = "internal_error"
)

// AccessError represents a typed error returned by the access-control layer.
// It is defined here so infrastructure can depend on the error contract without
// importing application-level implementations.
type AccessError interface {
	error
	Kind() ErrorKind
	// Code is safe to send to clients.
	Code() string
	// Message is for server-side diagnostics.
	Message() string
}

// Concrete implementation returned by the constructors below.
type accessError struct {
	kind      ErrorKind
	code      string
	message   string
	reason    access.DenyReason
	transient bool
	cause     error
}

func (e *accessError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}
func (e *accessError) Kind() ErrorKind { return e.kind }
func (e *accessError) Code() string    { return e.code }
func (e *accessError) Message() string { return e.message }
func (e *accessError) Unwrap() error   { return e.cause }

// NewAuthenticationError marks a missing, expired or unverifiable identity.
func NewAuthenticationError(message string, cause error) AccessError {
	return &accessError{kind: KindAuthentication, code: CodeAuthRequired, message: message, cause: cause}
}

// NewAuthorizationError carries the specific deny reason for diagnostics only.
func NewAuthorizationError(reason access.DenyReason) AccessError {
	return &accessError{kind: KindAuthorization, code: CodeAccessDenied, message: "access denied: " + string(reason), reason: reason}
}

func NewValidationError(code, message string) AccessError {
	return &accessError{kind: KindValidation, code: code, message: message}
}

func NewNotFoundError(message string) AccessError {
	return &accessError{kind: KindNotFound, code: CodeNotFound, message: message}
}

// NewStoreError wraps a persistence failure. Transient failures (serialization
// conflicts, deadlocks) may be retried by the caller.
func NewStoreError(message string, cause error, transient bool) AccessError {
	return &accessError{kind: KindStore, code: CodeStoreFailure, message: message, transient: transient, cause: cause}
}

// KindOf returns the kind of err, or KindUnknown when err is not an AccessError.
func KindOf(err error) ErrorKind {
	var ae AccessError
	if errors.As(err, &ae) {
		return ae.Kind()
	}
	return KindUnknown
}

// HasCode reports whether err is an AccessError with code.
func HasCode(err error, code string) bool {
	var ae AccessError
	return errors.As(err, &ae) && ae.Code() == code
}

// DenyReasonOf extracts the reason from an authorization error.
func DenyReasonOf(err error) (access.DenyReason, bool) {
	var ae *accessError
	if errors.As(err, &ae) && ae.kind == KindAuthorization {
		return ae.reason, true
	}
	return access.ReasonNone, false
}

// IsTransient reports whether err is a store error worth retrying.
func IsTransient(err error) bool {
	var ae *accessError
	return errors.As(err, &ae) && ae.kind == KindStore && ae.transient
}
