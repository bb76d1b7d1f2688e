package searchapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apperrors "hostintel-bot/internal/common/errors"
	apphttp "hostintel-bot/internal/common/http"
)

// upstreamMessage pulls the "error" field out of an API error body.
func upstreamMessage(body string) string {
	var e apiError
	if err := json.Unmarshal([]byte(body), &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(body)
}

// classify maps a transport or status failure onto the upstream taxonomy.
// Nothing below this function leaks raw transport errors to callers.
func classify(err error, resource string) *apperrors.StandardError {
	if err == nil {
		return nil
	}
	if stdErr, ok := apperrors.AsStandard(err); ok {
		return stdErr
	}

	var statusErr *apphttp.StatusError
	if !errors.As(err, &statusErr) {
		return apperrors.NewUpstreamUnavailableError(err)
	}

	msg := upstreamMessage(statusErr.Body)
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "no information available"):
		return apperrors.NewNotFoundError(resource)
	case strings.Contains(lower, "credits") || strings.Contains(lower, "upgrade your api plan"):
		return apperrors.NewInsufficientCreditsError(msg)
	}

	switch statusErr.StatusCode {
	case http.StatusBadRequest:
		return apperrors.NewInvalidQueryError(msg)
	case http.StatusPaymentRequired, http.StatusForbidden:
		return apperrors.NewInsufficientCreditsError(msg)
	case http.StatusNotFound:
		return apperrors.NewNotFoundError(resource)
	case http.StatusTooManyRequests:
		return apperrors.NewRateLimitedError(msg)
	default:
		return apperrors.NewUpstreamUnavailableError(statusErr)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.CodeOf(err))
}
