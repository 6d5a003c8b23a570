package errs

import (
	"errors"
	"fmt"
)

// Error is a client-visible failure with a stable code and severity.
// Codes follow the AUTHnnn/CHANnnn convention used by the websocket
// error frames and the admin API.
type Error struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Details  string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on code so wrapped copies with extra details still compare
// equal to the sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrAuthenticationFailed = &Error{Code: "AUTH001", Message: "authentication failed, credential invalid", Severity: "high"}
	ErrPermissionDenied     = &Error{Code: "AUTH002", Message: "insufficient permissions for this operation", Severity: "high"}
	ErrSessionExpired       = &Error{Code: "AUTH003", Message: "session expired, please log in again", Severity: "medium"}
	ErrValidation           = &Error{Code: "VALID001", Message: "validation error in received data", Severity: "medium"}
	ErrChannelNotFound      = &Error{Code: "CHAN001", Message: "channel not found", Severity: "low"}
	ErrChannelCapacity      = &Error{Code: "CHAN002", Message: "channel capacity exceeded", Severity: "medium"}
	ErrUserNotFound         = &Error{Code: "USER001", Message: "user not found", Severity: "medium"}
	ErrRateLimited          = &Error{Code: "RATE001", Message: "rate limit exceeded", Severity: "medium"}
	ErrInternal             = &Error{Code: "SYS001", Message: "internal server error", Severity: "critical"}
)

// WithDetails returns a copy of e carrying additional context. The copy
// still errors.Is-matches the original sentinel.
func (e *Error) WithDetails(details string) *Error {
	c := *e
	c.Details = details
	return &c
}

// Internal wraps an unexpected error as ErrInternal without leaking the
// underlying message to clients. The cause stays available via Unwrap.
func Internal(cause error) error {
	return fmt.Errorf("%w: %w", ErrInternal, cause)
}

// CodeOf extracts the stable error code, defaulting to SYS001 for
// anything outside the taxonomy.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}
