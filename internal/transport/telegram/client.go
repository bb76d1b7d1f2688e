package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apphttp "hostintel-bot/internal/common/http"
	"hostintel-bot/internal/common/logger"
	"hostintel-bot/internal/dispatcher"
)

const maxResponseBody = 1 << 20

// APIError is a Bot API reply with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// ClientConfig holds the Bot API endpoint settings.
type ClientConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client talks to the Bot API. The token is part of every URL, so errors
// leaving this type have it redacted.
type Client struct {
	baseURL string
	token   string
	http    *apphttp.Client
	logger  logger.Logger
}

func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    apphttp.NewClient(cfg.Timeout).WithRetry(cfg.MaxRetries, cfg.RetryDelay),
		logger:  log.With(map[string]interface{}{"component": "telegram"}),
	}
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        timeout,
		AllowedUpdates: allowedUpdates,
	}, &updates)
	return updates, err
}

// SendMessage delivers one HTML formatted reply with its inline keyboard.
func (c *Client) SendMessage(ctx context.Context, msg dispatcher.OutboundMessage) error {
	req := sendMessageRequest{
		ChatID:                msg.ChatID,
		Text:                  msg.Text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	if len(msg.Keyboard) > 0 {
		req.ReplyMarkup = toInlineKeyboard(msg.Keyboard)
	}
	return c.call(ctx, "sendMessage", req, nil)
}

// AnswerCallbackQuery stops the client-side spinner on a pressed button.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{CallbackQueryID: id}, nil)
}

func (c *Client) SetWebhook(ctx context.Context, opts WebhookOptions) error {
	return c.call(ctx, "setWebhook", setWebhookRequest{
		URL:                opts.URL,
		SecretToken:        opts.SecretToken,
		AllowedUpdates:     allowedUpdates,
		DropPendingUpdates: opts.DropPendingUpdates,
	}, nil)
}

// DeleteWebhook is required before polling on a bot that had a webhook.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return c.call(ctx, "deleteWebhook", deleteWebhookRequest{DropPendingUpdates: dropPending}, nil)
}

func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	return c.call(ctx, "setMyCommands", setMyCommandsRequest{Commands: commands}, nil)
}

// GetMe returns the bot's own account; it doubles as a token check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func toInlineKeyboard(rows [][]dispatcher.Button) *inlineKeyboard {
	kb := &inlineKeyboard{InlineKeyboard: make([][]inlineButton, 0, len(rows))}
	for _, r := range rows {
		out := make([]inlineButton, 0, len(r))
		for _, b := range r {
			out = append(out, inlineButton{Text: b.Text, CallbackData: b.Data})
		}
		kb.InlineKeyboard = append(kb.InlineKeyboard, out)
	}
	return kb
}

func (c *Client) call(ctx context.Context, method string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	endpoint := c.baseURL + "/bot" + c.token + "/" + method

	resp, err := c.http.DoWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return c.redact(method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return c.redact(method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("telegram %s: status %d: undecodable response", method, resp.StatusCode)
	}
	if !envelope.OK {
		apiErr := &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = envelope.Parameters.RetryAfter
		}
		return apiErr
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) redact(method string, err error) error {
	msg := err.Error()
	if c.token != "" {
		msg = strings.ReplaceAll(msg, c.token, "<token>")
	}
	return errors.New("telegram " + method + ": " + msg)
}
