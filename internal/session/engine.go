package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hostintel-bot/internal/catalog"
	"hostintel-bot/internal/common/config"
	apperrors "hostintel-bot/internal/common/errors"
	"hostintel-bot/internal/common/logger"
	"hostintel-bot/internal/common/metrics"
	"hostintel-bot/internal/formatter"
	"hostintel-bot/internal/models"
)

// SearchAPI is the subset of the search adapter the engine drives.
type SearchAPI interface {
	Search(ctx context.Context, query, facets string) (*models.QueryResult, error)
	Count(ctx context.Context, query, facets string) (*models.CountResult, error)
	Host(ctx context.Context, ip string) (*models.HostInfo, error)
	ResolveDNS(ctx context.Context, hostnames []string) ([]models.HostAddress, error)
	ReverseDNS(ctx context.Context, ips []string) ([]models.ReverseEntry, error)
	Domain(ctx context.Context, domain string) (*models.DomainInfo, error)
	Exploits(ctx context.Context, query string) (*models.ExploitResult, error)
	HoneyScore(ctx context.Context, ip string) (*models.HoneyScore, error)
	SubmitScan(ctx context.Context, target string) (*models.ScanSubmission, error)
	ScanStatus(ctx context.Context, id string) (*models.ScanStatus, error)
	AccountInfo(ctx context.Context) (*models.AccountInfo, error)
}

type Config struct {
	PageSize      int
	MaxPages      int
	DefaultFacets string
	CountFacets   string
}

func NewConfig(cfg *config.Config) *Config {
	return &Config{
		PageSize:      cfg.SearchAPI.PageSize,
		MaxPages:      cfg.SearchAPI.MaxPages,
		DefaultFacets: cfg.SearchAPI.DefaultFacets,
		CountFacets:   cfg.SearchAPI.CountFacets,
	}
}

// Screen tells the caller what to show for an Outcome.
type Screen int

const (
	ScreenWelcome Screen = iota
	ScreenCategories
	ScreenTemplates
	ScreenFindResults
	ScreenParamPrompt
	ScreenConfirm
	ScreenResults
	ScreenCount
	ScreenHost
	ScreenDNSResolve
	ScreenDNSReverse
	ScreenDomain
	ScreenExploits
	ScreenHoneypot
	ScreenScanConfirm
	ScreenScanSubmitted
	ScreenScanStatus
	ScreenScanStatusUsage
	ScreenAccount
	ScreenAwait
	ScreenCancelled
	ScreenError
)

// Outcome is the result of one transition. Session is a snapshot taken
// after the transition. Err is set for validation failures (the prompt is
// shown again) and for ScreenError.
type Outcome struct {
	Screen    Screen
	Session   *Session
	Category  catalog.Category
	Template  catalog.Template
	Templates []catalog.Template
	Keyword   string
	Query     string
	Page      formatter.Page
	Data      interface{}
	Err       *apperrors.StandardError
}

type Engine struct {
	config  *Config
	catalog *catalog.Catalog
	api     SearchAPI
	store   Store
	locks   *keyedMutex
	logger  logger.Logger
	errs    *apperrors.ErrorHandler
	now     func() time.Time
}

func NewEngine(cfg *Config, cat *catalog.Catalog, api SearchAPI, store Store, log logger.Logger) *Engine {
	log = log.With(map[string]interface{}{"component": "session"})
	return &Engine{
		config:  cfg,
		catalog: cat,
		api:     api,
		store:   store,
		locks:   newKeyedMutex(),
		logger:  log,
		errs:    apperrors.NewErrorHandler(log),
		now:     time.Now,
	}
}

// Snapshot returns a copy of the user's session, or a fresh IDLE one.
func (e *Engine) Snapshot(userID int64) *Session {
	if s, ok := e.store.Get(userID); ok {
		return s
	}
	return New(userID)
}

// Apply runs one action for userID. Actions for the same user are applied
// strictly one at a time; different users proceed concurrently.
func (e *Engine) Apply(ctx context.Context, userID int64, action Action) *Outcome {
	unlock := e.locks.Lock(userID)
	defer unlock()

	sess, ok := e.store.Get(userID)
	if !ok {
		sess = New(userID)
	}

	log := logger.FromContext(ctx, e.logger).With(map[string]interface{}{
		"userId": userID,
		"action": ActionName(action),
	})
	r := &run{engine: e, sess: sess, log: log}
	out := r.apply(ctx, action)

	sess.UpdatedAt = e.now()
	e.store.Put(sess)
	metrics.SessionsActive.Set(float64(e.store.Len()))

	out.Session = sess.Clone()
	return out
}

// run carries one transition's working state.
type run struct {
	engine *Engine
	sess   *Session
	log    logger.Logger
}

func (r *run) transition(to State) {
	from := r.sess.State
	r.sess.State = to
	metrics.SessionTransitions.WithLabelValues(from.String(), to.String()).Inc()
	r.log.Debug("session transition", map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	})
}

// inconsistent resets the session after an action that does not apply to
// its state.
func (r *run) inconsistent(action Action, reason string) *Outcome {
	state := r.sess.State.String()
	err := apperrors.NewInternalInconsistencyError(state, ActionName(action))
	if reason != "" {
		err.WithMetadata("reason", reason)
	}
	r.engine.errs.Handle(context.Background(), err, map[string]interface{}{
		"userId": r.sess.UserID,
		"state":  state,
	})
	r.resetTo(StateIdle)
	return &Outcome{Screen: ScreenError, Err: err}
}

func (r *run) resetTo(state State) {
	from := r.sess.State
	r.sess.reset()
	r.sess.State = from
	r.transition(state)
}

func (r *run) apply(ctx context.Context, action Action) *Outcome {
	switch a := action.(type) {
	case Home:
		r.resetTo(StateIdle)
		return &Outcome{Screen: ScreenWelcome}
	case OpenCatalog:
		return r.openCatalog(a)
	case SelectCategory:
		return r.selectCategory(a)
	case SelectTemplate:
		return r.selectTemplate(a)
	case FindTemplates:
		return r.findTemplates(a)
	case SubmitParam:
		return r.submitParam(a)
	case UseDefault:
		return r.useDefault(a)
	case Confirm:
		return r.confirm(ctx, a)
	case EditParam:
		return r.editParam(a)
	case NextPage:
		return r.page(a, 1)
	case PrevPage:
		return r.page(a, -1)
	case Cancel:
		r.transition(StateCancelled)
		r.resetTo(StateIdle)
		return &Outcome{Screen: ScreenCancelled}
	case RunCommand:
		return r.runCommand(ctx, a)
	case FreeText:
		return r.freeText(ctx, a)
	default:
		return r.inconsistent(action, "unknown action")
	}
}

// ==========================
// Wizard
// ==========================

func (r *run) openCatalog(a OpenCatalog) *Outcome {
	if a.Category == "" {
		r.sess.startWizard(r.sess.State)
		r.transition(StateCategorySelect)
		return &Outcome{Screen: ScreenCategories}
	}
	cat, err := r.engine.catalog.Category(a.Category)
	if err != nil {
		return r.inconsistent(a, err.Error())
	}
	r.sess.startWizard(r.sess.State)
	r.sess.CategoryID = cat.ID
	r.transition(StateTemplateSelect)
	return &Outcome{Screen: ScreenTemplates, Category: cat, Templates: r.engine.catalog.Templates(cat.ID)}
}

func (r *run) selectCategory(a SelectCategory) *Outcome {
	if r.sess.State != StateCategorySelect && r.sess.State != StateTemplateSelect {
		return r.inconsistent(a, "")
	}
	cat, err := r.engine.catalog.Category(a.ID)
	if err != nil {
		return r.inconsistent(a, err.Error())
	}
	r.sess.CategoryID = cat.ID
	r.transition(StateTemplateSelect)
	return &Outcome{Screen: ScreenTemplates, Category: cat, Templates: r.engine.catalog.Templates(cat.ID)}
}

func (r *run) findTemplates(a FindTemplates) *Outcome {
	keyword := strings.TrimSpace(a.Keyword)
	if keyword == "" {
		r.resetTo(StateIdle)
		r.sess.Awaiting = CmdFind
		return &Outcome{Screen: ScreenAwait, Keyword: string(CmdFind)}
	}
	r.sess.startWizard(r.sess.State)
	r.transition(StateCategorySelect)
	return &Outcome{Screen: ScreenFindResults, Keyword: keyword, Templates: r.engine.catalog.Search(keyword)}
}

func (r *run) selectTemplate(a SelectTemplate) *Outcome {
	if r.sess.State != StateCategorySelect && r.sess.State != StateTemplateSelect {
		return r.inconsistent(a, "")
	}
	tpl, err := r.engine.catalog.Template(a.ID)
	if err != nil {
		return r.inconsistent(a, err.Error())
	}

	r.sess.TemplateID = tpl.ID
	r.sess.CategoryID = tpl.Category
	r.sess.Params = map[string]string{}
	r.sess.ParamIndex = 0
	r.sess.Editing = false

	if len(tpl.Params) == 0 {
		return r.toConfirming(tpl)
	}
	r.transition(StateCollectingParam)
	return r.prompt(tpl, nil)
}

// activeTemplate resolves the template of a session in the wizard.
func (r *run) activeTemplate() (catalog.Template, error) {
	tpl, err := r.engine.catalog.Template(r.sess.TemplateID)
	if err != nil {
		return catalog.Template{}, err
	}
	if r.sess.State == StateCollectingParam && (r.sess.ParamIndex < 0 || r.sess.ParamIndex >= len(tpl.Params)) {
		return catalog.Template{}, fmt.Errorf("%w: %d", catalog.ErrParamIndex, r.sess.ParamIndex)
	}
	return tpl, nil
}

func (r *run) prompt(tpl catalog.Template, err *apperrors.StandardError) *Outcome {
	return &Outcome{Screen: ScreenParamPrompt, Template: tpl, Err: err}
}

func (r *run) submitParam(a SubmitParam) *Outcome {
	if r.sess.State != StateCollectingParam {
		return r.inconsistent(a, "")
	}
	tpl, err := r.activeTemplate()
	if err != nil {
		return r.inconsistent(a, err.Error())
	}

	value := strings.TrimSpace(a.Value)
	param := tpl.Params[r.sess.ParamIndex]
	result, err := r.engine.catalog.ValidateParam(tpl.ID, r.sess.ParamIndex, value)
	if err != nil {
		return r.inconsistent(a, err.Error())
	}
	if !result.Valid {
		r.log.Debug("parameter rejected", map[string]interface{}{"param": param.Name})
		return r.prompt(tpl, apperrors.NewValidationFailedError(param.Name, result.Messages()))
	}
	return r.accept(tpl, param, value)
}

func (r *run) useDefault(a UseDefault) *Outcome {
	if r.sess.State != StateCollectingParam {
		return r.inconsistent(a, "")
	}
	tpl, err := r.activeTemplate()
	if err != nil {
		return r.inconsistent(a, err.Error())
	}

	param := tpl.Params[r.sess.ParamIndex]
	if a.Param != "" && a.Param != param.Name {
		return r.inconsistent(a, "default for "+a.Param+" while collecting "+param.Name)
	}
	switch {
	case param.HasDefault():
		return r.accept(tpl, param, param.Default)
	case param.Optional:
		// left unset; BuildQuery drops its filter
		return r.accept(tpl, param, "")
	default:
		return r.prompt(tpl, apperrors.NewValidationFailedError(param.Name, "this parameter has no default value"))
	}
}

// accept stores value and moves to the next parameter, or to confirmation
// after the last one or after an edit.
func (r *run) accept(tpl catalog.Template, param catalog.Param, value string) *Outcome {
	r.sess.Params[param.Name] = value

	next := r.sess.ParamIndex + 1
	if r.sess.Editing || next >= len(tpl.Params) {
		r.sess.Editing = false
		return r.toConfirming(tpl)
	}
	r.sess.ParamIndex = next
	r.transition(StateCollectingParam)
	return r.prompt(tpl, nil)
}

func (r *run) toConfirming(tpl catalog.Template) *Outcome {
	query, err := tpl.BuildQuery(r.sess.Params)
	if err != nil {
		query = ""
	}
	r.transition(StateConfirming)
	return &Outcome{Screen: ScreenConfirm, Template: tpl, Query: query}
}

func (r *run) editParam(a EditParam) *Outcome {
	if r.sess.State != StateConfirming {
		return r.inconsistent(a, "")
	}
	tpl, err := r.activeTemplate()
	if err != nil {
		return r.inconsistent(a, err.Error())
	}
	if a.Index < 0 || a.Index >= len(tpl.Params) {
		return r.inconsistent(a, fmt.Sprintf("parameter index %d out of range", a.Index))
	}
	r.sess.ParamIndex = a.Index
	r.sess.Editing = true
	r.transition(StateCollectingParam)
	return r.prompt(tpl, nil)
}

func (r *run) confirm(ctx context.Context, a Confirm) *Outcome {
	if r.sess.State != StateConfirming && r.sess.State != StateCollectingParam {
		return r.inconsistent(a, "")
	}
	tpl, err := r.activeTemplate()
	if err != nil {
		return r.inconsistent(a, err.Error())
	}

	// A stale run button while a parameter is pending leaves the wizard as is.
	if r.sess.State == StateCollectingParam {
		name := tpl.Params[r.sess.ParamIndex].Name
		return r.prompt(tpl, apperrors.NewValidationFailedError(name, "answer this parameter before the search can run"))
	}

	query, err := tpl.BuildQuery(r.sess.Params)
	if errors.Is(err, catalog.ErrMissingParam) {
		missing := tpl.MissingRequired(r.sess.Params)
		r.sess.ParamIndex = missing[0]
		r.sess.Editing = false
		r.transition(StateCollectingParam)
		name := tpl.Params[missing[0]].Name
		return r.prompt(tpl, apperrors.NewValidationFailedError(name, "a value is required before the search can run"))
	}
	if err != nil {
		return r.inconsistent(a, err.Error())
	}

	facets := tpl.Facets
	if facets == "" {
		facets = r.engine.config.DefaultFacets
	}
	return r.execute(ctx, query, facets, tpl)
}

// execute runs a search and moves to VIEWING_RESULTS, or to IDLE when the
// upstream call fails.
func (r *run) execute(ctx context.Context, query, facets string, tpl catalog.Template) *Outcome {
	r.sess.PendingQuery = query
	r.transition(StateExecuting)
	r.engine.store.Put(r.sess)

	result, err := r.engine.api.Search(ctx, query, facets)
	if err != nil {
		stdErr := r.engine.errs.Handle(ctx, err, map[string]interface{}{
			"userId": r.sess.UserID,
			"query":  query,
		})
		r.resetTo(StateIdle)
		return &Outcome{Screen: ScreenError, Err: stdErr, Template: tpl, Query: query}
	}

	r.sess.Result = result
	r.sess.Cursor = Cursor{Page: 0}
	r.transition(StateViewingResults)
	r.log.Info("search completed", map[string]interface{}{
		"query":   query,
		"total":   result.Total,
		"fetched": len(result.Matches),
	})
	return r.resultsOutcome(tpl)
}

func (r *run) resultsOutcome(tpl catalog.Template) *Outcome {
	cfg := r.engine.config
	page := formatter.RenderPage(r.sess.Result, r.sess.Cursor.Page, cfg.PageSize, cfg.MaxPages)
	return &Outcome{Screen: ScreenResults, Template: tpl, Query: r.sess.PendingQuery, Page: page}
}

func (r *run) page(a Action, delta int) *Outcome {
	if r.sess.State != StateViewingResults || r.sess.Result == nil {
		return r.inconsistent(a, "")
	}
	cfg := r.engine.config
	total := formatter.TotalPages(len(r.sess.Result.Matches), cfg.PageSize, cfg.MaxPages)
	r.sess.Cursor.Page = formatter.ClampPage(r.sess.Cursor.Page+delta, total)

	tpl, _ := r.engine.catalog.Template(r.sess.TemplateID)
	return r.resultsOutcome(tpl)
}

func (r *run) freeText(ctx context.Context, a FreeText) *Outcome {
	if r.sess.State == StateCollectingParam {
		return r.submitParam(SubmitParam{Value: a.Text})
	}
	if pending := r.sess.Awaiting; pending != "" {
		if pending == CmdFind {
			return r.findTemplates(FindTemplates{Keyword: a.Text})
		}
		return r.runCommand(ctx, RunCommand{Command: pending, Arg: a.Text})
	}
	return r.runCommand(ctx, RunCommand{Command: CmdSearch, Arg: a.Text})
}
