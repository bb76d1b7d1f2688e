package dispatcher

import (
	"strconv"
	"strings"

	"hostintel-bot/internal/session"
)

// view is a reply that needs no session state.
type view int

const (
	viewNone view = iota
	viewHelp
	viewFilters
	viewDNSMenu
	viewTemplateDetail
	viewNoop
	viewUnknownCommand
	viewUnknownButton
)

// intent is either an engine action or a stateless view. example names a
// template whose example query should run as a search.
type intent struct {
	action  session.Action
	view    view
	arg     string
	example string
}

var commandActions = map[string]session.Command{
	"search":     session.CmdSearch,
	"count":      session.CmdCount,
	"host":       session.CmdHost,
	"dns":        session.CmdDNS,
	"rdns":       session.CmdRDNS,
	"domain":     session.CmdDomain,
	"exploit":    session.CmdExploit,
	"honeypot":   session.CmdHoneypot,
	"scan":       session.CmdScan,
	"scanstatus": session.CmdScanStatus,
	"info":       session.CmdInfo,
}

// splitCommand splits "/name@bot arg..." into a lower-case name and the
// trimmed argument.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "/")
	name, arg, _ := strings.Cut(text, " ")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '\n'); i >= 0 {
		arg = name[i+1:] + " " + arg
		name = name[:i]
	}
	return strings.ToLower(name), strings.TrimSpace(arg)
}

func parseCommand(text string) intent {
	name, arg := splitCommand(text)
	switch name {
	case "start":
		return intent{action: session.Home{}}
	case "help":
		return intent{view: viewHelp}
	case "templates", "t":
		return intent{action: session.OpenCatalog{}}
	case "find":
		return intent{action: session.FindTemplates{Keyword: arg}}
	case "filters":
		return intent{view: viewFilters}
	case "cancel":
		return intent{action: session.Cancel{}}
	}
	if cmd, ok := commandActions[name]; ok {
		return intent{action: session.RunCommand{Command: cmd, Arg: arg}}
	}
	return intent{view: viewUnknownCommand, arg: name}
}

var menuActions = map[string]intent{
	payloadMain:      {action: session.Home{}},
	payloadTemplates: {action: session.OpenCatalog{}},
	payloadHost:      {action: session.RunCommand{Command: session.CmdHost}},
	payloadDNS:       {view: viewDNSMenu},
	payloadExploits:  {action: session.RunCommand{Command: session.CmdExploit}},
	payloadVuln:      {action: session.OpenCatalog{Category: vulnCategory}},
	payloadCount:     {action: session.RunCommand{Command: session.CmdCount}},
	payloadRaw:       {action: session.RunCommand{Command: session.CmdSearch}},
	payloadInfo:      {action: session.RunCommand{Command: session.CmdInfo}},
	payloadFilters:   {view: viewFilters},
	payloadHelp:      {view: viewHelp},
	payloadResolve:   {action: session.RunCommand{Command: session.CmdDNS}},
	payloadReverse:   {action: session.RunCommand{Command: session.CmdRDNS}},
	payloadDomain:    {action: session.RunCommand{Command: session.CmdDomain}},
	payloadNext:      {action: session.NextPage{}},
	payloadPrev:      {action: session.PrevPage{}},
	payloadNoop:      {view: viewNoop},
	payloadConfirm:   {action: session.Confirm{}},
	payloadCancel:    {action: session.Cancel{}},
}

// parseButton decodes callback data. example:ID is resolved by the
// dispatcher since it needs the catalog.
func parseButton(data string) intent {
	if in, ok := menuActions[data]; ok {
		return in
	}

	prefix, value, ok := cutPrefix(data)
	if !ok || value == "" {
		return intent{view: viewUnknownButton, arg: data}
	}
	switch prefix {
	case prefixCategory:
		return intent{action: session.SelectCategory{ID: value}}
	case prefixTemplate:
		return intent{view: viewTemplateDetail, arg: value}
	case prefixUse:
		return intent{action: session.SelectTemplate{ID: value}}
	case prefixExample:
		return intent{example: value}
	case prefixDefault:
		return intent{action: session.UseDefault{Param: value}}
	case prefixEdit:
		i, err := strconv.Atoi(value)
		if err != nil {
			return intent{view: viewUnknownButton, arg: data}
		}
		return intent{action: session.EditParam{Index: i}}
	case prefixScan:
		return intent{action: session.RunCommand{Command: session.CmdScan, Arg: value, Confirmed: true}}
	}
	return intent{view: viewUnknownButton, arg: data}
}

var prefixes = []string{
	prefixCategory, prefixTemplate, prefixUse, prefixExample,
	prefixDefault, prefixEdit, prefixScan,
}

func cutPrefix(data string) (string, string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(data, p) {
			return p, strings.TrimPrefix(data, p), true
		}
	}
	return "", "", false
}
