// Package autherr defines the typed error taxonomy shared by the
// session-key manager, the encryption service, and the authorization
// backend. Every error carries a stable machine-readable code and an
// HTTP-style status code so that thin transport layers can map it
// without string matching.
package autherr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	// Configuration errors: raised at construction, never retryable.
	CodeEncryptionKeyRequired   Code = "ENCRYPTION_KEY_REQUIRED"
	CodeDatabaseAdapterRequired Code = "DATABASE_ADAPTER_REQUIRED"
	CodeRedirectURLRequired     Code = "REDIRECT_URL_REQUIRED"
	CodeRPCURLRequired          Code = "RPC_URL_REQUIRED"
	CodeTreasuryRequired        Code = "TREASURY_REQUIRED"
	CodeInvalidConfiguration    Code = "INVALID_CONFIGURATION"

	// Input-validation errors: caller bugs, raised from the offending call.
	CodeUserIDRequired  Code = "USER_ID_REQUIRED"
	CodeStateRequired   Code = "STATE_REQUIRED"
	CodeGranterRequired Code = "GRANTER_REQUIRED"

	// Lifecycle errors: raised from session-key manager operations.
	CodeSessionKeyNotFound        Code = "SESSION_KEY_NOT_FOUND"
	CodeSessionKeyInvalid         Code = "SESSION_KEY_INVALID"
	CodeSessionKeyStorageError    Code = "SESSION_KEY_STORAGE_ERROR"
	CodeSessionKeyRevocationError Code = "SESSION_KEY_REVOCATION_ERROR"
	CodeSessionKeyRefreshError    Code = "SESSION_KEY_REFRESH_ERROR"

	// Cryptographic errors: always fail closed.
	CodeEncryptionError Code = "ENCRYPTION_ERROR"
)

// Error is a typed error with a stable code and HTTP-style status.
type Error struct {
	Code       Code
	StatusCode int
	Message    string
	Err        error
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

// Is treats two typed errors with the same code as equivalent, so callers
// can use errors.Is against the exported sentinel constructors.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates a typed error.
func New(code Code, statusCode int, message string) *Error {
	return &Error{Code: code, StatusCode: statusCode, Message: message}
}

// Wrap creates a typed error around a cause. If the cause is already a
// typed *Error it is returned unchanged, preserving the original code
// (no double-wrapping).
func Wrap(code Code, statusCode int, message string, err error) error {
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Code: code, StatusCode: statusCode, Message: message, Err: err}
}

// CodeOf returns the code of err if it is typed, or "" otherwise.
func CodeOf(err error) Code {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return ""
}

// StatusOf returns the HTTP status of err if it is typed, or 500.
func StatusOf(err error) int {
	var typed *Error
	if errors.As(err, &typed) && typed.StatusCode != 0 {
		return typed.StatusCode
	}
	return http.StatusInternalServerError
}

// Constructors for the common cases. Messages follow the wire-visible
// wording the consent UI and SDK clients already rely on.

func UserIDRequired() *Error {
	return New(CodeUserIDRequired, http.StatusBadRequest, "userId is required")
}

func StateRequired() *Error {
	return New(CodeStateRequired, http.StatusBadRequest, "state parameter is required")
}

func GranterRequired() *Error {
	return New(CodeGranterRequired, http.StatusBadRequest, "granter address is required")
}

func SessionKeyNotFound(userID string) *Error {
	return New(CodeSessionKeyNotFound, http.StatusNotFound,
		fmt.Sprintf("no valid session key found for user %s", userID))
}

func SessionKeyInvalid(message string) *Error {
	return New(CodeSessionKeyInvalid, http.StatusConflict, message)
}

func SessionKeyStorage(message string, err error) error {
	return Wrap(CodeSessionKeyStorageError, http.StatusInternalServerError, message, err)
}

func SessionKeyRevocation(message string, err error) error {
	return Wrap(CodeSessionKeyRevocationError, http.StatusInternalServerError, message, err)
}

func SessionKeyRefresh(message string, err error) error {
	return Wrap(CodeSessionKeyRefreshError, http.StatusInternalServerError, message, err)
}

func Encryption(message string, err error) error {
	return Wrap(CodeEncryptionError, http.StatusInternalServerError, message, err)
}

func Configuration(code Code, message string) *Error {
	return New(code, http.StatusInternalServerError, message)
}
