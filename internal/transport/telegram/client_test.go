package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hostintel-bot/internal/common/logger"
	"hostintel-bot/internal/dispatcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const testToken = "123456:secret-token"

func createTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(ClientConfig{
		BaseURL: srv.URL,
		Token:   testToken,
		Timeout: 2 * time.Second,
	}, logger.NewTestLogger(t))
	return c, srv
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	var body map[string]interface{}
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

// recorder keeps request bodies by path.
type recorder struct {
	mu     sync.Mutex
	bodies map[string]map[string]interface{}
}

func (rec *recorder) record(t *testing.T, r *http.Request) {
	body := decodeBody(t, r)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.bodies == nil {
		rec.bodies = map[string]map[string]interface{}{}
	}
	rec.bodies[r.URL.Path] = body
}

func (rec *recorder) body(method string) map[string]interface{} {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.bodies["/bot"+testToken+"/"+method]
}

func writeOK(w http.ResponseWriter, result string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true,"result":` + result + `}`))
}

// ==========================
// Methods
// ==========================

func TestSendMessage_HTMLWithKeyboard(t *testing.T) {
	rec := &recorder{}
	client, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		writeOK(w, `{"message_id":1}`)
	})

	err := client.SendMessage(context.Background(), dispatcher.OutboundMessage{
		ChatID: 42,
		Text:   "<b>hi</b>",
		Keyboard: [][]dispatcher.Button{
			{{Text: "Next", Data: "page:next"}},
		},
	})
	require.NoError(t, err)

	body := rec.body("sendMessage")
	require.NotNil(t, body)
	assert.Equal(t, float64(42), body["chat_id"])
	assert.Equal(t, "HTML", body["parse_mode"])
	assert.Equal(t, true, body["disable_web_page_preview"])

	markup := body["reply_markup"].(map[string]interface{})
	rows := markup["inline_keyboard"].([]interface{})
	require.Len(t, rows, 1)
	btn := rows[0].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Next", btn["text"])
	assert.Equal(t, "page:next", btn["callback_data"])
}

func TestSendMessage_NoKeyboardOmitsMarkup(t *testing.T) {
	rec := &recorder{}
	client, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		writeOK(w, `{}`)
	})

	require.NoError(t, client.SendMessage(context.Background(), dispatcher.OutboundMessage{ChatID: 1, Text: "x"}))
	_, ok := rec.body("sendMessage")["reply_markup"]
	assert.False(t, ok)
}

func TestGetUpdates(t *testing.T) {
	rec := &recorder{}
	client, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		writeOK(w, `[
			{"update_id":10,"message":{"message_id":1,"from":{"id":7,"is_bot":false,"username":"ann"},"chat":{"id":7,"type":"private"},"text":"/start"}},
			{"update_id":11,"callback_query":{"id":"cb1","from":{"id":7,"is_bot":false},"message":{"message_id":2,"chat":{"id":7,"type":"private"}},"data":"menu:main"}}
		]`)
	})

	updates, err := client.GetUpdates(context.Background(), 10, 25)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	body := rec.body("getUpdates")
	assert.Equal(t, float64(10), body["offset"])
	assert.Equal(t, float64(25), body["timeout"])
	assert.Equal(t, []interface{}{"message", "callback_query"}, body["allowed_updates"])

	assert.Equal(t, "/start", updates[0].Message.Text)
	assert.Equal(t, "ann", updates[0].Message.From.Username)
	assert.Equal(t, "cb1", updates[1].CallbackQuery.ID)
	assert.Equal(t, "menu:main", updates[1].CallbackQuery.Data)
}

func TestSetWebhookAndCommands(t *testing.T) {
	rec := &recorder{}
	client, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		writeOK(w, `true`)
	})

	ctx := context.Background()
	require.NoError(t, client.SetWebhook(ctx, WebhookOptions{
		URL:                "https://bot.example.com/webhook",
		SecretToken:        "s3cret",
		DropPendingUpdates: true,
	}))
	require.NoError(t, client.SetMyCommands(ctx, []BotCommand{{Command: "start", Description: "Main menu"}}))
	require.NoError(t, client.DeleteWebhook(ctx, false))

	hook := rec.body("setWebhook")
	require.NotNil(t, hook)
	assert.Equal(t, "https://bot.example.com/webhook", hook["url"])
	assert.Equal(t, "s3cret", hook["secret_token"])
	assert.Equal(t, true, hook["drop_pending_updates"])
	assert.Equal(t, []interface{}{"message", "callback_query"}, hook["allowed_updates"])

	cmds := rec.body("setMyCommands")["commands"].([]interface{})
	require.Len(t, cmds, 1)
	assert.Equal(t, "start", cmds[0].(map[string]interface{})["command"])

	assert.Equal(t, false, rec.body("deleteWebhook")["drop_pending_updates"])
}

func TestGetMe(t *testing.T) {
	client, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, `{"id":99,"is_bot":true,"username":"HostIntelBot"}`)
	})

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(99), me.ID)
	assert.True(t, me.IsBot)
}

// ==========================
// Errors
// ==========================

func TestAPIError(t *testing.T) {
	client, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`))
	})

	err := client.AnswerCallbackQuery(context.Background(), "cb")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "answerCallbackQuery", apiErr.Method)
	assert.Equal(t, 429, apiErr.Code)
	assert.Equal(t, 3, apiErr.RetryAfter)
	assert.Equal(t, 3*time.Second, retryDelay(err, time.Second))
}

func TestAPIError_CodeFallsBackToStatus(t *testing.T) {
	client, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Forbidden: bot was blocked by the user"}`))
	})

	err := client.SendMessage(context.Background(), dispatcher.OutboundMessage{ChatID: 1, Text: "x"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Code)
	assert.Contains(t, apiErr.Error(), "blocked")
}

func TestUndecodableResponse(t *testing.T) {
	client, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	err := client.SendMessage(context.Background(), dispatcher.OutboundMessage{ChatID: 1, Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undecodable")
}

func TestTransportErrorRedactsToken(t *testing.T) {
	client, srv := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	err := client.SendMessage(context.Background(), dispatcher.OutboundMessage{ChatID: 1, Text: "x"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testToken)
	assert.Contains(t, err.Error(), "<token>")
}
