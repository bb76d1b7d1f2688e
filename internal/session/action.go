package session

// Command names a one-shot command that runs outside the template wizard.
type Command string

const (
	CmdSearch     Command = "search"
	CmdCount      Command = "count"
	CmdHost       Command = "host"
	CmdDNS        Command = "dns"
	CmdRDNS       Command = "rdns"
	CmdDomain     Command = "domain"
	CmdExploit    Command = "exploit"
	CmdHoneypot   Command = "honeypot"
	CmdScan       Command = "scan"
	CmdScanStatus Command = "scanstatus"
	CmdInfo       Command = "info"

	// CmdFind is not a direct command; it only marks a pending template search.
	CmdFind Command = "find"
)

var directCommands = map[Command]bool{
	CmdSearch: true, CmdCount: true, CmdHost: true, CmdDNS: true, CmdRDNS: true,
	CmdDomain: true, CmdExploit: true, CmdHoneypot: true, CmdScan: true,
	CmdScanStatus: true, CmdInfo: true,
}

// IsDirect reports whether c is a known one-shot command.
func (c Command) IsDirect() bool {
	return directCommands[c]
}

// Action is the closed set of inputs the engine understands.
type Action interface {
	actionName() string
}

// Home returns to the main menu and drops any session state.
type Home struct{}

// OpenCatalog enters the wizard. A non-empty Category jumps straight to
// that category's templates.
type OpenCatalog struct{ Category string }

type SelectCategory struct{ ID string }

type SelectTemplate struct{ ID string }

// FindTemplates lists templates matching Keyword and enters the wizard.
type FindTemplates struct{ Keyword string }

type SubmitParam struct{ Value string }

// UseDefault accepts the current parameter's default. Param, when set,
// must name the parameter being collected.
type UseDefault struct{ Param string }

type Confirm struct{}

type EditParam struct{ Index int }

type NextPage struct{}

type PrevPage struct{}

type Cancel struct{}

// RunCommand executes a direct command. Scans need Confirmed before any
// credits are spent.
type RunCommand struct {
	Command   Command
	Arg       string
	Confirmed bool
}

// FreeText is a plain message: a parameter value while collecting, the
// argument of an awaited command, or otherwise a raw search query.
type FreeText struct{ Text string }

func (Home) actionName() string           { return "home" }
func (OpenCatalog) actionName() string    { return "open_catalog" }
func (SelectCategory) actionName() string { return "select_category" }
func (SelectTemplate) actionName() string { return "select_template" }
func (FindTemplates) actionName() string  { return "find_templates" }
func (SubmitParam) actionName() string    { return "submit_param" }
func (UseDefault) actionName() string     { return "use_default" }
func (Confirm) actionName() string        { return "confirm" }
func (EditParam) actionName() string      { return "edit_param" }
func (NextPage) actionName() string       { return "next_page" }
func (PrevPage) actionName() string       { return "prev_page" }
func (Cancel) actionName() string         { return "cancel" }
func (RunCommand) actionName() string     { return "run_command" }
func (FreeText) actionName() string       { return "free_text" }

// ActionName is the label used in logs and metrics.
func ActionName(a Action) string {
	if a == nil {
		return "none"
	}
	return a.actionName()
}
