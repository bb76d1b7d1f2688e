package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hostintel-bot/internal/catalog"
	apperrors "hostintel-bot/internal/common/errors"
	"hostintel-bot/internal/common/logger"
	"hostintel-bot/internal/common/metrics"
	"hostintel-bot/internal/formatter"
	"hostintel-bot/internal/session"

	"github.com/google/uuid"
)

var errUnrenderable = errors.New("outcome has no renderer")

// Guard decides whether a user may use the bot.
type Guard interface {
	IsAuthorized(userID int64) bool
}

// Engine applies session actions.
type Engine interface {
	Apply(ctx context.Context, userID int64, action session.Action) *session.Outcome
}

type Dispatcher struct {
	guard   Guard
	engine  Engine
	catalog *catalog.Catalog
	dedup   Deduper
	logger  logger.Logger
	errs    *apperrors.ErrorHandler
	limit   int
}

// NewDispatcher wires the pipeline. dedup may be nil to disable
// de-duplication.
func NewDispatcher(guard Guard, engine Engine, cat *catalog.Catalog, dedup Deduper, log logger.Logger) *Dispatcher {
	log = log.With(map[string]interface{}{"component": "dispatcher"})
	return &Dispatcher{
		guard:   guard,
		engine:  engine,
		catalog: cat,
		dedup:   dedup,
		logger:  log,
		errs:    apperrors.NewErrorHandler(log),
		limit:   formatter.MaxMessageLength,
	}
}

// Handle processes one update and returns the replies in send order. It
// never panics; failures become a message telling the user how to go on.
func (d *Dispatcher) Handle(ctx context.Context, u Update) (msgs []OutboundMessage) {
	start := time.Now()
	outcome := "ok"
	log := d.logger.With(map[string]interface{}{
		"requestId": uuid.New().String(),
		"updateId":  u.ID,
		"userId":    u.UserID,
		"kind":      string(u.Kind),
	})
	ctx = logger.IntoContext(ctx, log)

	defer func() {
		if rec := recover(); rec != nil {
			outcome = "panic"
			stdErr := d.errs.Handle(ctx, fmt.Errorf("panic: %v", rec), map[string]interface{}{"userId": u.UserID})
			msgs = errorReply(stdErr).messages(u.ChatID, d.limit)
		}
		metrics.UpdatesReceived.WithLabelValues(string(u.Kind), outcome).Inc()
		metrics.UpdateDuration.WithLabelValues(string(u.Kind)).Observe(time.Since(start).Seconds())
		log.Debug("update handled", map[string]interface{}{
			"outcome":    outcome,
			"messages":   len(msgs),
			"durationMs": time.Since(start).Milliseconds(),
		})
	}()

	if d.duplicate(ctx, log, u.ID) {
		outcome = "duplicate"
		return nil
	}

	if !d.guard.IsAuthorized(u.UserID) {
		outcome = "unauthorized"
		d.errs.Handle(ctx, apperrors.NewUnauthorizedError(u.UserID), map[string]interface{}{"username": u.Username})
		return textReply(formatter.Unauthorized(u.UserID), nil).messages(u.ChatID, d.limit)
	}

	var in intent
	switch u.Kind {
	case KindCommand:
		in = parseCommand(u.Payload)
	case KindButton:
		in = parseButton(u.Payload)
	case KindText:
		in = intent{action: session.FreeText{Text: u.Payload}}
	default:
		outcome = "ignored"
		return nil
	}

	r, ok := d.route(ctx, u, in)
	if !ok {
		outcome = "ignored"
		return nil
	}
	return r.messages(u.ChatID, d.limit)
}

func (d *Dispatcher) duplicate(ctx context.Context, log logger.Logger, updateID int64) bool {
	if d.dedup == nil || updateID <= 0 {
		return false
	}
	seen, err := d.dedup.Seen(ctx, updateID)
	if err != nil {
		log.Warn("update de-duplication unavailable", map[string]interface{}{"error": err.Error()})
		return false
	}
	if seen {
		metrics.DuplicateUpdates.Inc()
		log.Info("duplicate update dropped", nil)
	}
	return seen
}

// route resolves an intent into a reply. ok is false when nothing should
// be sent.
func (d *Dispatcher) route(ctx context.Context, u Update, in intent) (reply, bool) {
	if in.example != "" {
		tpl, err := d.catalog.Template(in.example)
		if err != nil || tpl.Example == "" {
			return d.unknownButton(ctx, u), true
		}
		in.action = session.RunCommand{Command: session.CmdSearch, Arg: tpl.Example}
	}

	if in.action != nil {
		out := d.engine.Apply(ctx, u.UserID, in.action)
		return render(d.catalog, out), true
	}

	switch in.view {
	case viewHelp:
		return textReply(formatter.Welcome(), mainMenuKeyboard()), true
	case viewFilters:
		return textReply(formatter.Filters(), [][]Button{backToMain()}), true
	case viewDNSMenu:
		return textReply(formatter.DNSMenu(), dnsKeyboard()), true
	case viewTemplateDetail:
		tpl, err := d.catalog.Template(in.arg)
		if err != nil {
			return d.unknownButton(ctx, u), true
		}
		return textReply(formatter.TemplateDetail(tpl), templateDetailKeyboard(tpl)), true
	case viewUnknownCommand:
		return textReply("❓ Unknown command <code>/"+formatter.Escape(in.arg)+"</code>.\nUse /help to see what I can do.",
			[][]Button{backToMain()}), true
	case viewUnknownButton:
		return d.unknownButton(ctx, u), true
	}
	return reply{}, false
}

// unknownButton handles payloads from stale or foreign keyboards by
// resetting the session.
func (d *Dispatcher) unknownButton(ctx context.Context, u Update) reply {
	logger.FromContext(ctx, d.logger).Warn("unrecognized button payload", map[string]interface{}{"payload": u.Payload})
	d.engine.Apply(ctx, u.UserID, session.Home{})
	return errorReply(apperrors.NewInternalInconsistencyError("unknown", "button:"+u.Payload))
}
