package usecase

import "fmt"

type ErrorCode string

const (
	ErrorBlockedContent    ErrorCode = "BLOCKED_CONTENT"
	ErrorGenerationStopped ErrorCode = "GENERATION_STOPPED"
	ErrorEmptyResponse     ErrorCode = "EMPTY_RESPONSE"
	ErrorInternal          ErrorCode = "INTERNAL_ERROR"
)

// Error is the closed failure surface of the orchestrator. The router switches
// on Code to pick the user-facing message; Reason and Err are for logs only
// and never reach the user.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
