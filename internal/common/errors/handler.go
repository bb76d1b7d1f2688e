package errors

import (
	"context"
	"errors"
)

type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle normalizes err, logs it with the caller's fields and returns the
// normalized error. Expected failures (validation, upstream) log at warn.
func (h *ErrorHandler) Handle(ctx context.Context, err error, fields map[string]interface{}) *StandardError {
	stdErr := h.normalizeError(ctx, err)
	h.logError(stdErr, fields)
	return stdErr
}

func (h *ErrorHandler) normalizeError(ctx context.Context, err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewUpstreamUnavailableError(err)
	}
	return NewInternalError(err)
}

func (h *ErrorHandler) logError(stdErr *StandardError, fields map[string]interface{}) {
	out := map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range stdErr.Metadata {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}

	switch GetErrorCategory(stdErr.Code) {
	case "INPUT", "UPSTREAM", "ACCESS":
		h.logger.Warn("Request failed", out)
	default:
		h.logger.Error("Request failed", out)
	}
}
