package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// Error Codes
// ==========================

type ErrorCode string

const (
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	ErrCodeRateLimited         ErrorCode = "RATE_LIMITED"
	ErrCodeInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	ErrCodeInvalidQuery        ErrorCode = "INVALID_QUERY"
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"

	ErrCodeInternalInconsistency ErrorCode = "INTERNAL_INCONSISTENCY"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// Constructors
// ==========================

func NewUnauthorizedError(userID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   "User is not on the allow-list",
		Details:   fmt.Sprintf("userId: %d", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewValidationFailedError(field, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"field": field},
		Timestamp: time.Now().UTC(),
	}
}

func NewRateLimitedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Search API rate limit reached",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewInsufficientCreditsError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInsufficientCredits,
		Message:   "Not enough API credits for this request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidQueryError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidQuery,
		Message:   "Search API rejected the query",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewUpstreamUnavailableError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeUpstreamUnavailable,
		Message:   "Search API is unavailable",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotFoundError(resource string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   "No information available",
		Details:   fmt.Sprintf("resource: %s", resource),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalInconsistencyError(state, action string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternalInconsistency,
		Message:   "Action does not apply to the current session state",
		Details:   fmt.Sprintf("state: %s, action: %s", state, action),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Classification
// ==========================

// AsStandard unwraps err into a *StandardError when one is in the chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the error code carried by err, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsUpstream reports whether code belongs to the search API failure family.
func IsUpstream(code ErrorCode) bool {
	switch code {
	case ErrCodeRateLimited, ErrCodeInsufficientCredits, ErrCodeInvalidQuery,
		ErrCodeUpstreamUnavailable, ErrCodeNotFound:
		return true
	}
	return false
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeUpstreamUnavailable:
		return 3
	case ErrCodeRateLimited:
		return 2
	default:
		return 0
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "UNAUTHORIZED"):
		return "ACCESS"
	case strings.Contains(codeStr, "VALIDATION"):
		return "INPUT"
	case IsUpstream(code):
		return "UPSTREAM"
	case strings.Contains(codeStr, "INCONSISTENCY"):
		return "SESSION"
	default:
		return "INTERNAL"
	}
}

// UserMessage is the chat-facing explanation for a failure, always ending
// with how the user can proceed.
func UserMessage(code ErrorCode) string {
	switch code {
	case ErrCodeUnauthorized:
		return "You are not authorized to use this bot. Ask the administrator to add your user ID."
	case ErrCodeValidationFailed:
		return "That value is not valid. Please send it again."
	case ErrCodeRateLimited:
		return "The search API is rate limiting requests. Wait a moment and try again."
	case ErrCodeInsufficientCredits:
		return "Your API plan has no credits left for this request. Check /info for your balance."
	case ErrCodeInvalidQuery:
		return "The search API rejected this query. Check the syntax with /filters and try again."
	case ErrCodeUpstreamUnavailable:
		return "The search API is not reachable right now. Please try again later."
	case ErrCodeNotFound:
		return "No information is available for that target."
	case ErrCodeInternalInconsistency:
		return "Your session got out of sync and was reset. Use /start to begin again."
	default:
		return "Something went wrong. Use /start to begin again."
	}
}
