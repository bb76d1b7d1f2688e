package dispatcher

import (
	"fmt"
	"strconv"
	"strings"

	"hostintel-bot/internal/catalog"
)

// Button payloads. Telegram caps callback data at 64 bytes; the longest
// payload is a template id or scan target behind a short prefix.
const (
	payloadMain      = "menu:main"
	payloadTemplates = "menu:templates"
	payloadHost      = "menu:host"
	payloadDNS       = "menu:dns"
	payloadExploits  = "menu:exploits"
	payloadVuln      = "menu:vuln"
	payloadCount     = "menu:count"
	payloadRaw       = "menu:raw"
	payloadInfo      = "cmd:info"
	payloadFilters   = "cmd:filters"
	payloadHelp      = "cmd:help"
	payloadResolve   = "dns:resolve"
	payloadReverse   = "dns:reverse"
	payloadDomain    = "dns:domain"
	payloadNext      = "page:next"
	payloadPrev      = "page:prev"
	payloadNoop      = "noop"
	payloadConfirm   = "confirm"
	payloadCancel    = "cancel"

	prefixCategory = "cat:"
	prefixTemplate = "tmpl:"
	prefixUse      = "use:"
	prefixExample  = "example:"
	prefixDefault  = "default:"
	prefixEdit     = "edit:"
	prefixScan     = "doscan:"

	maxCallbackData = 64
	vulnCategory    = "vuln"
)

func row(buttons ...Button) []Button { return buttons }

func backToMain() []Button {
	return row(Button{Text: "🔙 Main Menu", Data: payloadMain})
}

func mainMenuKeyboard() [][]Button {
	return [][]Button{
		row(Button{"🎯 Templates", payloadTemplates}, Button{"🖥️ Host Lookup", payloadHost}),
		row(Button{"📋 DNS Tools", payloadDNS}, Button{"💥 Exploits", payloadExploits}),
		row(Button{"🛡️ Vuln Search", payloadVuln}, Button{"📊 Count", payloadCount}),
		row(Button{"🔍 Raw Search", payloadRaw}, Button{"ℹ️ Account Info", payloadInfo}),
		row(Button{"📖 Filters", payloadFilters}, Button{"❓ Help", payloadHelp}),
	}
}

// categoryKeyboard lists non-empty categories two per row.
func categoryKeyboard(cat *catalog.Catalog) [][]Button {
	var rows [][]Button
	var current []Button
	for _, c := range cat.Categories() {
		n := len(cat.Templates(c.ID))
		if n == 0 {
			continue
		}
		current = append(current, Button{Text: fmt.Sprintf("%s (%d)", c.Label(), n), Data: prefixCategory + c.ID})
		if len(current) == 2 {
			rows = append(rows, current)
			current = nil
		}
	}
	if len(current) > 0 {
		rows = append(rows, current)
	}
	return append(rows, backToMain())
}

func templateKeyboard(templates []catalog.Template, back Button) [][]Button {
	rows := make([][]Button, 0, len(templates)+1)
	for _, t := range templates {
		rows = append(rows, row(Button{Text: strings.TrimSpace(t.Emoji + " " + t.Name), Data: prefixTemplate + t.ID}))
	}
	return append(rows, row(back))
}

func templateDetailKeyboard(tpl catalog.Template) [][]Button {
	rows := [][]Button{row(Button{"✅ Use this template", prefixUse + tpl.ID})}
	if tpl.Example != "" {
		rows = append(rows, row(Button{"⭐ Run example", prefixExample + tpl.ID}))
	}
	return append(rows, row(Button{"🔙 Back", prefixCategory + tpl.Category}))
}

func paramKeyboard(p catalog.Param) [][]Button {
	var rows [][]Button
	switch {
	case p.HasDefault():
		label := "✅ Use default (" + p.Default + ")"
		rows = append(rows, row(Button{Text: label, Data: fitPayload(prefixDefault + p.Name)}))
	case p.Optional:
		rows = append(rows, row(Button{Text: "⏭ Skip", Data: fitPayload(prefixDefault + p.Name)}))
	}
	return append(rows, row(Button{"❌ Cancel", payloadCancel}))
}

func confirmKeyboard(tpl catalog.Template, ready bool) [][]Button {
	var rows [][]Button
	if ready {
		rows = append(rows, row(Button{"▶️ Run", payloadConfirm}))
	}
	var current []Button
	for i, p := range tpl.Params {
		current = append(current, Button{Text: "✏️ " + p.Name, Data: prefixEdit + strconv.Itoa(i)})
		if len(current) == 2 {
			rows = append(rows, current)
			current = nil
		}
	}
	if len(current) > 0 {
		rows = append(rows, current)
	}
	return append(rows, row(Button{"❌ Cancel", payloadCancel}))
}

// paginationKeyboard shows prev/next around a page indicator; page is zero based.
func paginationKeyboard(page, total int, hasPrev, hasNext bool) [][]Button {
	var rows [][]Button
	if total > 1 {
		var nav []Button
		if hasPrev {
			nav = append(nav, Button{"⬅️ Prev", payloadPrev})
		}
		nav = append(nav, Button{Text: fmt.Sprintf("📄 %d/%d", page+1, total), Data: payloadNoop})
		if hasNext {
			nav = append(nav, Button{"Next ➡️", payloadNext})
		}
		rows = append(rows, nav)
	}
	return append(rows, backToMain())
}

func dnsKeyboard() [][]Button {
	return [][]Button{
		row(Button{"🔍 Resolve hostname", payloadResolve}),
		row(Button{"🔄 Reverse DNS", payloadReverse}),
		row(Button{"🌐 Domain info", payloadDomain}),
		backToMain(),
	}
}

// scanConfirmKeyboard reports false when the target does not fit a
// callback payload; truncating it would confirm a different target.
func scanConfirmKeyboard(target string) ([][]Button, bool) {
	data := prefixScan + target
	if len(data) > maxCallbackData {
		return nil, false
	}
	return [][]Button{
		row(Button{"✅ Yes, scan", data}, Button{"❌ Cancel", payloadCancel}),
	}, true
}

func cancelKeyboard() [][]Button {
	return [][]Button{row(Button{"❌ Cancel", payloadCancel})}
}

// fitPayload truncates data to the callback limit on a byte boundary that
// keeps it valid UTF-8.
func fitPayload(data string) string {
	if len(data) <= maxCallbackData {
		return data
	}
	cut := maxCallbackData
	for cut > 0 && !isRuneStart(data[cut]) {
		cut--
	}
	return data[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
