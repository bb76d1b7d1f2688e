package formatter

import (
	"fmt"
	"strings"

	"hostintel-bot/internal/catalog"
	apperrors "hostintel-bot/internal/common/errors"
)

func Welcome() string {
	sep := strings.Repeat("─", 30)
	return strings.Join([]string{
		"╔" + strings.Repeat("═", 34) + "╗",
		"║  🚀 <b>Host Intel Bot</b>",
		"║  <i>Shodan search from your chat</i>",
		"╚" + strings.Repeat("═", 34) + "╝",
		"",
		"👋 <b>Welcome!</b>",
		"Run Shodan searches straight from Telegram",
		"with ready-made query templates.",
		"",
		sep,
		"🔍 <b>MAIN COMMANDS:</b>",
		"",
		"  /search <code>[query]</code>",
		"  Run a raw Shodan query",
		"",
		"  /templates or /t",
		"  Browse the ready-made templates",
		"",
		"  /find <code>[keyword]</code>",
		"  Find a template by keyword",
		"",
		"  /host <code>[IP]</code>",
		"  Full details for an IP",
		"",
		"  /count <code>[query]</code>",
		"  Count results without spending credits",
		"",
		sep,
		"📋 <b>DNS &amp; DOMAIN:</b>",
		"",
		"  /dns <code>[hostname]</code>",
		"  Resolve a hostname to an IP",
		"",
		"  /rdns <code>[IP]</code>",
		"  Reverse DNS lookup",
		"",
		"  /domain <code>[domain]</code>",
		"  DNS records of a domain",
		"",
		sep,
		"💥 <b>EXPLOITS &amp; VULNS:</b>",
		"",
		"  /exploit <code>[query]</code>",
		"  Search exploits by keyword",
		"",
		"  /honeypot <code>[IP]</code>",
		"  Check whether an IP is a honeypot",
		"",
		sep,
		"📡 <b>SCANNING:</b>",
		"",
		"  /scan <code>[IP/CIDR]</code>",
		"  Request an on-demand scan",
		"",
		"  /scanstatus <code>[scan_id]</code>",
		"  Check the status of a scan",
		"",
		sep,
		"⚙️ <b>OTHER:</b>",
		"",
		"  /info: account status and credits",
		"  /filters: Shodan filter reference",
		"  /cancel: abort the current step",
		"  /help: show this help",
		"",
		sep,
		"⭐ <b>TIP:</b>",
		"Use /templates for quick searches.",
		"Pick one, fill in the parameters, done! ✨",
	}, "\n")
}

func Filters() string {
	return strings.Join([]string{
		"🔍 <b>SHODAN FILTER REFERENCE</b>",
		strings.Repeat("═", 30),
		"",
		"🌐 <b>Location:</b>",
		`  <code>country:"ID"</code> country code`,
		`  <code>city:"Jakarta"</code> city`,
		`  <code>region:"West Java"</code> region or province`,
		"",
		"🏢 <b>Organization:</b>",
		`  <code>org:"Telkom"</code> organization name`,
		`  <code>isp:"Telkomsel"</code> ISP name`,
		"  <code>asn:AS17974</code> AS number",
		"  <code>net:202.134.0.0/16</code> CIDR subnet",
		"",
		"🔌 <b>Service:</b>",
		"  <code>port:22</code> port number",
		`  <code>product:"nginx"</code> product name`,
		`  <code>version:"1.19"</code> product version`,
		`  <code>os:"Windows"</code> operating system`,
		"",
		"🌐 <b>HTTP:</b>",
		`  <code>http.title:"Login"</code> page title`,
		`  <code>http.server:"Apache"</code> web server`,
		"  <code>http.status:200</code> HTTP status",
		`  <code>http.component:"jQuery"</code> web technology`,
		"  <code>http.favicon.hash:NNN</code> favicon hash",
		"",
		"🔒 <b>SSL/TLS:</b>",
		`  <code>ssl.cert.subject.CN:"*.example.com"</code>`,
		`  <code>ssl.cert.subject.O:"Org Name"</code>`,
		"  <code>ssl.cert.expired:true</code>",
		"  <code>has_ssl:true</code>",
		"",
		"🛡️ <b>Vulnerability:</b>",
		`  <code>vuln:"CVE-2021-44228"</code> specific CVE`,
		"  <code>has_vuln:true</code> any vulnerability",
		`  <code>tag:"ics"</code> ICS/SCADA tag`,
		"",
		"📋 <b>DNS:</b>",
		`  <code>hostname:".go.id"</code> hostname`,
		"  <code>has_screenshot:true</code> has a screenshot",
		"",
		"ℹ️ <b>Others:</b>",
		`  <code>before:"01/01/2024"</code> seen before date`,
		`  <code>after:"01/01/2024"</code> seen after date`,
		`  <code>"keyword"</code> search the banner`,
		"",
		"⭐ <b>Combining:</b>",
		"  Separate filters with spaces:",
		`  <code>product:"nginx" country:"ID" port:443</code>`,
	}, "\n")
}

func CatalogIntro() string {
	return headerBox("Search Templates", "Pick a category") + "\n\nℹ️ Choose a category to see its templates:"
}

func CategoryTemplates(cat catalog.Category) string {
	return "🔍 <b>" + Escape(cat.Label()) + "</b>\n\nPick a template:"
}

func VulnTemplates() string {
	return "🛡️ <b>Vulnerability Search</b>\n\nPick a template:"
}

// FindResults lists the templates matching a keyword search.
func FindResults(keyword string, found []catalog.Template) string {
	if len(found) == 0 {
		return "⚠️ No templates match <code>" + Escape(keyword) + "</code>.\nUse /templates to browse by category."
	}
	return fmt.Sprintf("🔍 <b>%d templates match</b> <code>%s</code>:", len(found), Escape(keyword))
}

func TemplateDetail(tpl catalog.Template) string {
	var params strings.Builder
	for _, p := range tpl.Params {
		req := "required"
		if p.Optional {
			req = "optional"
		}
		params.WriteString("  ▶️ <b>" + Escape(p.Name) + "</b>: " + Escape(p.Prompt) + " (" + req + ")\n")
		if p.HasDefault() {
			params.WriteString("     <i>Example: <code>" + Escape(p.Default) + "</code></i>\n")
		}
	}
	if len(tpl.Params) == 0 {
		params.WriteString("  <i>none</i>\n")
	}

	return tpl.Emoji + " <b>" + Escape(tpl.Name) + "</b>\n" +
		strings.Repeat("─", dividerWidth) + "\n\n" +
		"ℹ️ " + Escape(tpl.Description) + "\n\n" +
		"⚙️ <b>Parameters:</b>\n" + params.String() + "\n" +
		"🔍 <b>Query template:</b>\n  <code>" + Escape(tpl.Query) + "</code>\n\n" +
		"⭐ <b>Example query:</b>\n  <code>" + Escape(tpl.Example) + "</code>"
}

// ParamPrompt asks for the index-th parameter and shows progress so far.
func ParamPrompt(tpl catalog.Template, index int, values map[string]string) string {
	progress := make([]string, 0, len(tpl.Params))
	for i, p := range tpl.Params {
		switch {
		case i == index:
			progress = append(progress, "  ▶️ <b>"+Escape(p.Name)+":</b> <i>(waiting for input...)</i>")
		case values[p.Name] != "":
			progress = append(progress, "  ✅ <b>"+Escape(p.Name)+":</b> <code>"+Escape(values[p.Name])+"</code>")
		default:
			progress = append(progress, "  ◽ <b>"+Escape(p.Name)+":</b> <i>-</i>")
		}
	}

	sep := strings.Repeat("─", dividerWidth)
	text := "⚙️ <b>Template: " + Escape(tpl.Name) + "</b>\n" + sep + "\n\n" +
		"<b>Progress:</b>\n" + strings.Join(progress, "\n") + "\n\n" + sep
	if index >= 0 && index < len(tpl.Params) {
		p := tpl.Params[index]
		text += "\n▶️ <b>Enter " + Escape(p.Prompt) + ":</b>"
		if p.HasDefault() {
			text += "\n<i>Example: <code>" + Escape(p.Default) + "</code></i>"
		}
		if p.Optional {
			text += "\n<i>Optional.</i>"
		}
	}
	return text
}

// Confirmation summarizes the collected values and the query about to run.
// An empty query means required values are still missing.
func Confirmation(tpl catalog.Template, values map[string]string, query string) string {
	lines := []string{
		"✅ <b>Ready to run: " + Escape(tpl.Name) + "</b>",
		strings.Repeat("─", dividerWidth),
	}
	for _, p := range tpl.Params {
		v, ok := catalog.Resolve(p, values)
		switch {
		case !ok:
			lines = append(lines, "  ◽ <b>"+Escape(p.Name)+":</b> "+placeholder)
		case strings.TrimSpace(values[p.Name]) == "":
			lines = append(lines, "  ✅ <b>"+Escape(p.Name)+":</b> <code>"+Escape(v)+"</code> <i>(default)</i>")
		default:
			lines = append(lines, "  ✅ <b>"+Escape(p.Name)+":</b> <code>"+Escape(v)+"</code>")
		}
	}
	if query == "" {
		lines = append(lines, "", "⚠️ <i>Some required values are still missing.</i>")
	} else {
		lines = append(lines, "", "🔍 <b>Query:</b>", "  <code>"+Escape(query)+"</code>")
	}
	lines = append(lines, "", "Press <b>Run</b> to search, or edit a value first.")
	return strings.Join(lines, "\n")
}

var awaitPrompts = map[string]string{
	"search":   "🔍 <b>Shodan Search</b>\n\nSend a Shodan query.\n<i>Example: product:\"nginx\" country:\"ID\"</i>\n\nℹ️ Use /filters to see the available filters.",
	"count":    "📊 <b>Count Query</b>\n\nSend a query to count (no query credits used).\n<i>Example: country:\"ID\" port:22</i>",
	"host":     "🖥️ <b>Host Lookup</b>\n\nSend an IP address.\n<i>Example: 8.8.8.8</i>",
	"dns":      "📋 <b>DNS Resolve</b>\n\nSend a hostname to resolve.\n<i>Example: google.com</i>",
	"rdns":     "📋 <b>Reverse DNS</b>\n\nSend an IP address.\n<i>Example: 8.8.8.8</i>",
	"domain":   "🌐 <b>Domain Info</b>\n\nSend a domain to list its DNS records.\n<i>Example: example.com</i>",
	"exploit":  "💥 <b>Exploit Search</b>\n\nSend a keyword.\n<i>Example: apache 2.4</i>",
	"honeypot": "🍯 <b>Honeypot Detection</b>\n\nSend an IP to score.\n<i>Example: 1.2.3.4</i>",
	"scan":     "📡 <b>Request Scan</b>\n\nSend an IP or CIDR to scan.\n<i>Example: 1.2.3.4</i>\n\n⚠️ <b>Note:</b> scans use scan credits!",
	"find":     "🔍 <b>Find Template</b>\n\nSend a keyword.\n<i>Example: mongodb</i>",
}

// AwaitPrompt asks for the argument a command was sent without.
func AwaitPrompt(command string) string {
	if p, ok := awaitPrompts[command]; ok {
		return p
	}
	return "ℹ️ Send the value for /" + Escape(command) + "."
}

func ScanStatusUsage() string {
	return "ℹ️ <b>Scan Status</b>\n\nSend the scan ID with the command.\n<i>Example: /scanstatus abc123</i>"
}

func ScanConfirm(target string) string {
	return "⚠️ <b>Confirm Scan</b>\n\nScan <code>" + Escape(target) + "</code>?\nThis uses scan credits."
}

func DNSMenu() string {
	return "📋 <b>DNS Tools</b>\n\nPick a DNS tool:"
}

func Cancelled() string {
	return "❌ Cancelled. Use /start to open the menu."
}

func Unauthorized(userID int64) string {
	return fmt.Sprintf("❌ <b>Access denied.</b>\nYour user ID: <code>%d</code>\nAsk the administrator for access.", userID)
}

// Error renders a failure with what happened and how to proceed.
func Error(err *apperrors.StandardError) string {
	if err == nil {
		return "❌ " + Escape(apperrors.UserMessage(apperrors.ErrCodeInternal))
	}
	switch err.Code {
	case apperrors.ErrCodeValidationFailed:
		field, _ := err.Metadata["field"].(string)
		text := "⚠️ <b>Invalid value</b>"
		if field != "" {
			text = "⚠️ <b>Invalid value for " + Escape(field) + "</b>"
		}
		if err.Details != "" {
			text += "\n<i>" + Escape(truncate(err.Details, 300)) + "</i>"
		}
		return text + "\n" + Escape(apperrors.UserMessage(err.Code))
	case apperrors.ErrCodeInternal, apperrors.ErrCodeInternalInconsistency:
		return "❌ " + Escape(apperrors.UserMessage(err.Code))
	}

	text := "❌ <b>" + Escape(err.Message) + "</b>"
	if err.Details != "" {
		text += "\n<code>" + Escape(truncate(err.Details, 500)) + "</code>"
	}
	return text + "\n\n<i>" + Escape(apperrors.UserMessage(err.Code)) + "</i>"
}
