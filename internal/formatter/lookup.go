package formatter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"hostintel-bot/internal/models"
)

const (
	maxHostHostnames  = 5
	maxHostPorts      = 30
	maxHostVulns      = 10
	maxHostServices   = 8
	maxServiceBanner  = 300
	maxHTTPTitle      = 80
	maxSubdomains     = 20
	maxDomainRecords  = 15
	maxExploits       = 10
	maxExploitCVEs    = 5
	maxExploitSummary = 300
)

// RenderHost renders the host summary followed by one block per service.
func RenderHost(h *models.HostInfo) []string {
	lines := []string{
		headerBox("Host: "+h.IP, "Full report for "+h.IP),
		"",
		sectionHeader("🖥️", "General"),
		keyValue("📡", "IP Address", h.IP),
		keyValue("🏢", "Organization", h.Org),
		keyValue("📶", "ISP", h.ISP),
		keyValue("🌐", "ASN", h.ASN),
		keyValue("💻", "OS", h.OS),
		keyValue("🌍", "Country", h.Country),
		keyValue("🏙️", "City", h.City),
	}
	if len(h.Hostnames) > 0 {
		hosts := h.Hostnames
		if len(hosts) > maxHostHostnames {
			hosts = hosts[:maxHostHostnames]
		}
		lines = append(lines, keyValue("📋", "Hostnames", strings.Join(hosts, ", ")))
	}
	if !h.LastUpdate.IsZero() {
		lines = append(lines, keyValue("🕐", "Last Update", h.LastUpdate.UTC().Format("2006-01-02T15:04:05")))
	}

	if len(h.Ports) > 0 {
		ports := make([]int, len(h.Ports))
		copy(ports, h.Ports)
		sort.Ints(ports)
		if len(ports) > maxHostPorts {
			ports = ports[:maxHostPorts]
		}
		parts := make([]string, len(ports))
		for i, p := range ports {
			parts[i] = strconv.Itoa(p)
		}
		lines = append(lines,
			sectionHeader("🔌", fmt.Sprintf("Open Ports (%d)", len(h.Ports))),
			"  <code>"+strings.Join(parts, ", ")+"</code>",
		)
	}

	if len(h.Vulns) > 0 {
		lines = append(lines, sectionHeader("🛡️", fmt.Sprintf("Vulnerabilities (%d)", len(h.Vulns))))
		shown := h.Vulns
		if len(shown) > maxHostVulns {
			shown = shown[:maxHostVulns]
		}
		for _, v := range shown {
			lines = append(lines, "  🔥 <code>"+Escape(v)+"</code>")
		}
		if extra := len(h.Vulns) - maxHostVulns; extra > 0 {
			lines = append(lines, moreLine("  ", extra))
		}
	}

	blocks := []string{strings.Join(lines, "\n")}
	services := h.Services
	if len(services) > maxHostServices {
		services = services[:maxHostServices]
	}
	for _, svc := range services {
		blocks = append(blocks, renderService(svc))
	}
	return blocks
}

func renderService(svc models.Match) string {
	transport := svc.Transport
	if transport == "" {
		transport = "tcp"
	}
	port := portText(svc.Port)
	if port == "" {
		port = "?"
	}
	lines := []string{
		"┌─── 🔌 <b>Port " + port + "/" + Escape(transport) + "</b> ───",
		"",
	}
	if p := productText(svc.Product, svc.Version); p != "" {
		lines = append(lines, keyValue("📦", "Product", p))
	}
	if svc.Module != "" {
		lines = append(lines, keyValue("⚙️", "Module", svc.Module))
	}
	if svc.HTTPTitle != "" {
		lines = append(lines, keyValue("🌐", "Title", truncate(svc.HTTPTitle, maxHTTPTitle)))
	}
	if svc.HTTPStatus > 0 {
		lines = append(lines, keyValue("☑️", "Status", strconv.Itoa(svc.HTTPStatus)))
	}
	if svc.HTTPServer != "" {
		lines = append(lines, keyValue("🖥️", "Server", svc.HTTPServer))
	}
	if svc.SSLCommon != "" {
		lines = append(lines, keyValue("🔒", "SSL CN", svc.SSLCommon))
	}
	if svc.SSLIssuer != "" {
		lines = append(lines, keyValue("🔐", "Issuer", svc.SSLIssuer))
	}
	if banner := strings.TrimSpace(truncate(svc.Banner, maxServiceBanner)); banner != "" {
		lines = append(lines, "\n  📁 <b>Banner:</b>", "  <code>"+Escape(banner)+"</code>")
	}
	lines = append(lines, closingLine())
	return strings.Join(lines, "\n")
}

func RenderDNSResolve(entries []models.HostAddress) string {
	lines := []string{headerBox("DNS Resolve", ""), ""}
	for _, e := range entries {
		addr := e.Address
		if addr == "" {
			addr = "no address"
		}
		lines = append(lines,
			"  📋 <code>"+Escape(e.Hostname)+"</code>",
			"    ➜ <code>"+Escape(addr)+"</code>",
		)
	}
	return strings.Join(lines, "\n")
}

func RenderDNSReverse(entries []models.ReverseEntry) string {
	lines := []string{headerBox("Reverse DNS", ""), ""}
	for _, e := range entries {
		lines = append(lines, "  📡 <code>"+Escape(e.IP)+"</code>")
		if len(e.Hostnames) == 0 {
			lines = append(lines, "    ➜ "+placeholder)
			continue
		}
		for _, h := range e.Hostnames {
			lines = append(lines, "    ➜ <code>"+Escape(h)+"</code>")
		}
	}
	return strings.Join(lines, "\n")
}

func RenderDomain(d *models.DomainInfo) string {
	domain := Escape(d.Domain)
	lines := []string{
		headerBox("Domain: "+d.Domain, ""),
		"",
		sectionHeader("📋", "Subdomains"),
	}

	subs := d.Subdomains
	if len(subs) > maxSubdomains {
		subs = subs[:maxSubdomains]
	}
	for _, s := range subs {
		lines = append(lines, "  ◽ <code>"+Escape(s)+"."+domain+"</code>")
	}
	if extra := len(d.Subdomains) - maxSubdomains; extra > 0 {
		lines = append(lines, moreLine("  ", extra))
	}
	if len(d.Subdomains) == 0 {
		lines = append(lines, "  "+placeholder)
	}

	if len(d.Records) > 0 {
		lines = append(lines, sectionHeader("🌐", "DNS Records"))
		records := d.Records
		if len(records) > maxDomainRecords {
			records = records[:maxDomainRecords]
		}
		for _, r := range records {
			prefix := ""
			if r.Subdomain != "" {
				prefix = Escape(r.Subdomain) + "."
			}
			rtype := r.Type
			if rtype == "" {
				rtype = "?"
			}
			value := r.Value
			if value == "" {
				value = "N/A"
			}
			lines = append(lines, "  <b>"+Escape(rtype)+"</b> <code>"+prefix+domain+"</code> → <code>"+Escape(value)+"</code>")
		}
	}
	return strings.Join(lines, "\n")
}

// RenderExploits renders the summary and up to ten exploit blocks.
func RenderExploits(r *models.ExploitResult) []string {
	hdr := headerBox("Exploit Search", "Query: "+r.Query)
	hdr += "\n\n📊 <b>Total:</b> " + formatNumber(r.Total) + " exploits found"
	blocks := []string{hdr}

	if len(r.Matches) == 0 {
		return append(blocks, "⚠️ <i>No exploits found.</i>")
	}

	matches := r.Matches
	if len(matches) > maxExploits {
		matches = matches[:maxExploits]
	}
	for i, e := range matches {
		lines := []string{
			fmt.Sprintf("┌─── 💥 <b>Exploit #%d</b> ───", i+1),
			keyValue("🔑", "ID", e.ID),
			keyValue("🔗", "Source", e.Source),
			keyValue("🏷️", "Type", e.Type),
		}
		if len(e.CVE) > 0 {
			cves := e.CVE
			if len(cves) > maxExploitCVEs {
				cves = cves[:maxExploitCVEs]
			}
			lines = append(lines, keyValue("🛡️", "CVE", strings.Join(cves, ", ")))
		}
		desc := strings.TrimSpace(truncate(e.Description, maxExploitSummary))
		if desc == "" {
			desc = "N/A"
		}
		lines = append(lines,
			"\n  ℹ️ <b>Description:</b>",
			"  <i>"+Escape(desc)+"</i>",
			"└"+strings.Repeat("─", dividerWidth)+"┘",
		)
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return blocks
}

func RenderAccount(info *models.AccountInfo) string {
	unlocked := "No"
	if info.Unlocked {
		unlocked = "Yes ✅"
	}
	plan := info.Plan
	if plan == "" {
		plan = "?"
	}
	return strings.Join([]string{
		headerBox("Account Info", ""),
		"",
		keyValue("⭐", "Plan", plan),
		keyValue("🔍", "Query Credits", formatNumber(info.QueryCredits)),
		keyValue("📡", "Scan Credits", formatNumber(info.ScanCredits)),
		keyValue("🔐", "Unlocked", unlocked),
		keyValue("🔑", "Unlocked Left", formatNumber(info.UnlockedLeft)),
	}, "\n")
}

func RenderScanSubmitted(s *models.ScanSubmission) string {
	return strings.Join([]string{
		headerBox("Scan Submitted", ""),
		"",
		keyValue("🔑", "Scan ID", s.ID),
		keyValue("📡", "IPs to scan", formatNumber(s.Count)),
		keyValue("📊", "Credits left", formatNumber(s.CreditsLeft)),
		"\nℹ️ <i>Use /scanstatus " + Escape(s.ID) + " to check progress</i>",
	}, "\n")
}

func scanStatusEmoji(status string) string {
	switch status {
	case models.ScanStatusDone:
		return "✅"
	case models.ScanStatusSubmitting:
		return "⏳"
	case models.ScanStatusQueue:
		return "📋"
	default:
		return "❓"
	}
}

func RenderScanStatus(s *models.ScanStatus) string {
	status := s.Status
	if status == "" {
		status = "UNKNOWN"
	}
	lines := []string{
		headerBox("Scan Status", ""),
		"",
		keyValue("🔑", "Scan ID", s.ID),
		"  " + scanStatusEmoji(s.Status) + " <b>Status:</b> " + Escape(status),
	}
	if s.Count > 0 {
		lines = append(lines, keyValue("📡", "IPs", formatNumber(s.Count)))
	}
	return strings.Join(lines, "\n")
}

// HoneypotVerdict classifies a honeypot score.
func HoneypotVerdict(score float64) string {
	switch {
	case score >= 0.8:
		return "likely"
	case score >= 0.5:
		return "possible"
	default:
		return "unlikely"
	}
}

func RenderHoneyScore(h *models.HoneyScore) string {
	if h.Score < 0 {
		return "❌ Could not check the honeypot score for <code>" + Escape(h.IP) + "</code>"
	}

	var verdict string
	switch HoneypotVerdict(h.Score) {
	case "likely":
		verdict = "🍯 <b>Very likely a HONEYPOT</b>"
	case "possible":
		verdict = "⚠️ <b>Possibly a honeypot</b>"
	default:
		verdict = "✅ <b>Probably not a honeypot</b>"
	}

	return strings.Join([]string{
		headerBox("Honeypot Detection", "IP: "+h.IP),
		"",
		keyValue("📡", "IP", h.IP),
		fmt.Sprintf("  🍯 <b>Score:</b> %.2f / 1.00", h.Score),
		"  " + progressBar(int(h.Score*10), 10),
		"\n  " + verdict,
	}, "\n")
}
