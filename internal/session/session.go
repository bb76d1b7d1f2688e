// Package session holds the per-user conversation state machine.
package session

import (
	"time"

	"hostintel-bot/internal/models"
)

type State int

const (
	StateIdle State = iota
	StateCategorySelect
	StateTemplateSelect
	StateCollectingParam
	StateConfirming
	StateExecuting
	StateViewingResults
	StateCancelled
)

var stateNames = map[State]string{
	StateIdle:            "IDLE",
	StateCategorySelect:  "CATEGORY_SELECT",
	StateTemplateSelect:  "TEMPLATE_SELECT",
	StateCollectingParam: "COLLECTING_PARAM",
	StateConfirming:      "CONFIRMING",
	StateExecuting:       "EXECUTING",
	StateViewingResults:  "VIEWING_RESULTS",
	StateCancelled:       "CANCELLED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Cursor points into a fully materialized result.
type Cursor struct {
	Page int
}

// Session is one user's conversation state. Params only ever holds names
// declared by the active template; display order comes from the template.
type Session struct {
	UserID       int64
	State        State
	CategoryID   string
	TemplateID   string
	ParamIndex   int
	Params       map[string]string
	Editing      bool
	PendingQuery string
	Result       *models.QueryResult
	Cursor       Cursor
	Awaiting     Command
	UpdatedAt    time.Time
}

func New(userID int64) *Session {
	return &Session{UserID: userID, State: StateIdle, Params: map[string]string{}}
}

// Clone copies the session. Result is shared; it is never mutated.
func (s *Session) Clone() *Session {
	out := *s
	out.Params = make(map[string]string, len(s.Params))
	for k, v := range s.Params {
		out.Params[k] = v
	}
	return &out
}

// reset drops everything except the user id and returns to IDLE.
func (s *Session) reset() {
	*s = Session{UserID: s.UserID, State: StateIdle, Params: map[string]string{}, UpdatedAt: s.UpdatedAt}
}

// startWizard clears any previous wizard or result state.
func (s *Session) startWizard(state State) {
	s.reset()
	s.State = state
}
