package telegram

import (
	"strings"

	"hostintel-bot/internal/dispatcher"
)

// inbound is a converted update plus the callback id to acknowledge.
type inbound struct {
	update     dispatcher.Update
	callbackID string
}

// convert maps a Bot API update onto the dispatcher's model. Updates from
// bots, edits and non-text messages are dropped.
func convert(u Update) (inbound, bool) {
	if cb := u.CallbackQuery; cb != nil {
		if cb.From == nil || cb.From.IsBot {
			return inbound{}, false
		}
		chatID := cb.From.ID
		if cb.Message != nil && cb.Message.Chat != nil {
			chatID = cb.Message.Chat.ID
		}
		return inbound{
			update: dispatcher.Update{
				ID:       u.UpdateID,
				UserID:   cb.From.ID,
				ChatID:   chatID,
				Username: cb.From.Username,
				Kind:     dispatcher.KindButton,
				Payload:  cb.Data,
			},
			callbackID: cb.ID,
		}, true
	}

	msg := u.Message
	if msg == nil || msg.From == nil || msg.From.IsBot || msg.Chat == nil {
		return inbound{}, false
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return inbound{}, false
	}
	kind := dispatcher.KindText
	if strings.HasPrefix(text, "/") {
		kind = dispatcher.KindCommand
	}
	return inbound{
		update: dispatcher.Update{
			ID:       u.UpdateID,
			UserID:   msg.From.ID,
			ChatID:   msg.Chat.ID,
			Username: msg.From.Username,
			Kind:     kind,
			Payload:  text,
		},
	}, true
}
