// Package dispatcher turns transport-neutral chat updates into replies.
package dispatcher

type Kind string

const (
	KindCommand Kind = "command"
	KindText    Kind = "text"
	KindButton  Kind = "button"
)

// Update is one inbound event. Payload is the raw command text, message
// text or button data depending on Kind.
type Update struct {
	ID       int64
	UserID   int64
	ChatID   int64
	Username string
	Kind     Kind
	Payload  string
}

type Button struct {
	Text string
	Data string
}

// OutboundMessage is an HTML formatted reply.
type OutboundMessage struct {
	ChatID   int64
	Text     string
	Keyboard [][]Button
}
