package telegram

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"hostintel-bot/internal/common/logger"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler accepts pushed updates and queues them. A non-2xx answer
// makes the Bot API redeliver, which the dispatcher's de-duplication absorbs.
type WebhookHandler struct {
	secret string
	queue  *Queue
	logger logger.Logger
}

func NewWebhookHandler(secret string, queue *Queue, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret: secret,
		queue:  queue,
		logger: log.With(map[string]interface{}{"component": "webhook"}),
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.logger.Warn("webhook secret mismatch", map[string]interface{}{"remote": r.RemoteAddr})
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	var u Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxResponseBody)).Decode(&u); err != nil {
		h.logger.Warn("webhook body rejected", map[string]interface{}{"error": err.Error()})
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if in, ok := convert(u); ok {
		// dropped updates are acknowledged so Telegram does not redeliver them
		if err := h.queue.Enqueue(r.Context(), in); err != nil && !errors.Is(err, ErrUserBusy) {
			if !errors.Is(err, ErrQueueClosed) {
				h.logger.Warn("webhook update not queued", map[string]interface{}{
					"updateId": u.UpdateID,
					"error":    err.Error(),
				})
			}
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
