// Package apierror defines the closed set of error tags the API ever returns
// to a caller, and the envelope mapping described in spec section 7.
package apierror

import (
	"fmt"
	"net/http"
)

// Code is a stable, camelCase error tag. The set is closed: handlers and
// services only ever return one of the constants below (wrapped with Wrap
// or New), never a bare error.
type Code string

const (
	// Auth
	CodeUnauthorized             Code = "unauthorized"
	CodeMalformedAccessToken     Code = "malformedAccessToken"
	CodeMalformedAPIToken        Code = "malformedApiToken"
	CodeAuthorizationTokenInvalid Code = "authorizationTokenInvalid"
	CodeMFARequired              Code = "mfaRequired"
	CodeMFAOTPInvalid            Code = "mfaOtpInvalid"
	CodeInvalidPassword          Code = "invalidPassword"

	// User / input
	CodeUserNotFound             Code = "userNotFound"
	CodeInvalidEmail             Code = "invalidEmail"
	CodeInvalidUsername          Code = "invalidUsername"
	CodeInvalidPhoneNumber       Code = "invalidPhoneNumber"
	CodeInvalidOrganisationName  Code = "invalidOrganisationName"
	CodePasswordTooWeak          Code = "passwordTooWeak"
	CodeWrongParameters          Code = "wrongParameters"
	CodeInvalidDomainName        Code = "invalidDomainName"
	CodeInvalidOTP               Code = "invalidOtp"
	CodeOTPExpired                Code = "otpExpired"
	CodeEmailTokenNotFound       Code = "emailTokenNotFound"
	CodeEmailTokenExpired        Code = "emailTokenExpired"

	// Resource
	CodeNotFound            Code = "notFound"
	CodeResourceDoesNotExist Code = "resourceDoesNotExist"
	CodeResourceExists       Code = "resourceExists"
	CodeResourceInUse        Code = "resourceInUse"
	CodeCannotAddNewVolume   Code = "cannotAddNewVolume"
	CodeCannotRemoveVolume   Code = "cannotRemoveVolume"

	// Quota
	CodeResourceLimitExceeded   Code = "resourceLimitExceeded"
	CodeDatabaseLimitExceeded   Code = "databaseLimitExceeded"
	CodeCardlessFreeLimitExceeded Code = "cardlessFreeLimitExceeded"
	CodeRegionNotReadyYet       Code = "regionNotReadyYet"
	CodeMaxLimitReached         Code = "maxLimitReached"

	// Conflict
	CodeEmailTaken          Code = "emailTaken"
	CodeUsernameTaken       Code = "usernameTaken"
	CodePhoneNumberTaken    Code = "phoneNumberTaken"
	CodeWorkspaceExists     Code = "workspaceExists"
	CodeAddressAlreadyExists Code = "addressAlreadyExists"

	// Server
	CodeServerError Code = "serverError"
)

// statusByCode maps each tag to the HTTP status the framework serializes it
// as. Unlisted codes fall back to 500.
var statusByCode = map[Code]int{
	CodeUnauthorized:              http.StatusUnauthorized,
	CodeMalformedAccessToken:      http.StatusUnauthorized,
	CodeMalformedAPIToken:         http.StatusUnauthorized,
	CodeAuthorizationTokenInvalid: http.StatusUnauthorized,
	CodeMFARequired:               http.StatusUnauthorized,
	CodeMFAOTPInvalid:             http.StatusUnauthorized,
	CodeInvalidPassword:           http.StatusUnauthorized,

	CodeUserNotFound:            http.StatusNotFound,
	CodeInvalidEmail:            http.StatusBadRequest,
	CodeInvalidUsername:        http.StatusBadRequest,
	CodeInvalidPhoneNumber:     http.StatusBadRequest,
	CodeInvalidOrganisationName: http.StatusBadRequest,
	CodePasswordTooWeak:         http.StatusBadRequest,
	CodeWrongParameters:         http.StatusBadRequest,
	CodeInvalidDomainName:       http.StatusBadRequest,
	CodeInvalidOTP:              http.StatusBadRequest,
	CodeOTPExpired:              http.StatusBadRequest,
	CodeEmailTokenNotFound:      http.StatusNotFound,
	CodeEmailTokenExpired:       http.StatusBadRequest,

	CodeNotFound:             http.StatusNotFound,
	CodeResourceDoesNotExist: http.StatusNotFound,
	CodeResourceExists:       http.StatusConflict,
	CodeResourceInUse:        http.StatusConflict,
	CodeCannotAddNewVolume:   http.StatusBadRequest,
	CodeCannotRemoveVolume:   http.StatusBadRequest,

	CodeResourceLimitExceeded:    http.StatusPaymentRequired,
	CodeDatabaseLimitExceeded:    http.StatusPaymentRequired,
	CodeCardlessFreeLimitExceeded: http.StatusPaymentRequired,
	CodeRegionNotReadyYet:        http.StatusServiceUnavailable,
	CodeMaxLimitReached:          http.StatusPaymentRequired,

	CodeEmailTaken:           http.StatusConflict,
	CodeUsernameTaken:        http.StatusConflict,
	CodePhoneNumberTaken:     http.StatusConflict,
	CodeWorkspaceExists:      http.StatusConflict,
	CodeAddressAlreadyExists: http.StatusConflict,

	CodeServerError: http.StatusInternalServerError,
}

// Error is the only error type handlers and services return across a
// request boundary. cause is kept for logging and is never serialized.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// StatusCode returns the HTTP status this error should be serialized as.
func (e *Error) StatusCode() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New creates a tagged error with a human-readable message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap tags an arbitrary lower-layer error (a driver error, a context
// timeout, ...) so the framework can still serialize it in the closed
// envelope without leaking internals to the caller.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Server wraps an opaque internal failure as serverError. Used at handler
// and repository boundaries whenever an error can't be mapped to a more
// specific tag.
func Server(cause error) *Error {
	return &Error{Code: CodeServerError, Message: "an internal error occurred", cause: cause}
}

// As reports whether err carries one of the given codes.
func As(err error, codes ...Code) bool {
	apiErr, ok := err.(*Error)
	if !ok {
		return false
	}
	for _, c := range codes {
		if apiErr.Code == c {
			return true
		}
	}
	return false
}

// Envelope is the wire shape for both success and error responses.
type Envelope struct {
	Success bool   `json:"success"`
	Error   Code   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorEnvelope builds the failure envelope for a given error, classifying
// anything that isn't already an *Error as an opaque server error.
func ErrorEnvelope(err error) (int, Envelope) {
	apiErr, ok := err.(*Error)
	if !ok {
		apiErr = Server(err)
	}
	return apiErr.StatusCode(), Envelope{
		Success: false,
		Error:   apiErr.Code,
		Message: apiErr.Message,
	}
}
