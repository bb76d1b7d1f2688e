package telegram

import (
	"testing"

	"hostintel-bot/internal/dispatcher"

	"github.com/stretchr/testify/assert"
)

func TestConvert(t *testing.T) {
	human := &User{ID: 7, Username: "ann"}
	chat := &Chat{ID: 70, Type: "private"}

	tests := []struct {
		name     string
		update   Update
		ok       bool
		want     dispatcher.Update
		callback string
	}{
		{
			name:   "command",
			update: Update{UpdateID: 1, Message: &Message{From: human, Chat: chat, Text: " /host 8.8.8.8 "}},
			ok:     true,
			want:   dispatcher.Update{ID: 1, UserID: 7, ChatID: 70, Username: "ann", Kind: dispatcher.KindCommand, Payload: "/host 8.8.8.8"},
		},
		{
			name:   "text",
			update: Update{UpdateID: 2, Message: &Message{From: human, Chat: chat, Text: "nginx"}},
			ok:     true,
			want:   dispatcher.Update{ID: 2, UserID: 7, ChatID: 70, Username: "ann", Kind: dispatcher.KindText, Payload: "nginx"},
		},
		{
			name: "button",
			update: Update{UpdateID: 3, CallbackQuery: &CallbackQuery{
				ID: "cb", From: human, Data: "page:next", Message: &Message{Chat: chat},
			}},
			ok:       true,
			want:     dispatcher.Update{ID: 3, UserID: 7, ChatID: 70, Username: "ann", Kind: dispatcher.KindButton, Payload: "page:next"},
			callback: "cb",
		},
		{
			name:     "button without message uses user chat",
			update:   Update{UpdateID: 4, CallbackQuery: &CallbackQuery{ID: "cb", From: human, Data: "noop"}},
			ok:       true,
			want:     dispatcher.Update{ID: 4, UserID: 7, ChatID: 7, Username: "ann", Kind: dispatcher.KindButton, Payload: "noop"},
			callback: "cb",
		},
		{name: "edited message", update: Update{UpdateID: 5, EditedMessage: &Message{From: human, Chat: chat, Text: "x"}}},
		{name: "photo without text", update: Update{UpdateID: 6, Message: &Message{From: human, Chat: chat, Caption: "pic"}}},
		{name: "from bot", update: Update{UpdateID: 7, Message: &Message{From: &User{ID: 9, IsBot: true}, Chat: chat, Text: "hi"}}},
		{name: "no sender", update: Update{UpdateID: 8, Message: &Message{Chat: chat, Text: "hi"}}},
		{name: "empty", update: Update{UpdateID: 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := convert(tt.update)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.want, in.update)
			assert.Equal(t, tt.callback, in.callbackID)
		})
	}
}
