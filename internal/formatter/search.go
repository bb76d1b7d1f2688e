package formatter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"hostintel-bot/internal/models"
)

const (
	maxFacetValues = 8
	maxHostnames   = 3
	maxMatchVulns  = 5
	bannerSnippet  = 200
)

// Page is one rendered page of a search result. Index is zero based.
type Page struct {
	Blocks     []string
	Index      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// Text joins the blocks into a single message body.
func (p Page) Text() string {
	return strings.Join(p.Blocks, "\n\n")
}

// TotalPages is the number of pages the materialized matches span,
// capped at maxPages. It is at least 1.
func TotalPages(matches, pageSize, maxPages int) int {
	if pageSize <= 0 {
		pageSize = 1
	}
	pages := (matches + pageSize - 1) / pageSize
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}
	if pages < 1 {
		pages = 1
	}
	return pages
}

// ClampPage pins page into [0, totalPages).
func ClampPage(page, totalPages int) int {
	if page >= totalPages {
		page = totalPages - 1
	}
	if page < 0 {
		page = 0
	}
	return page
}

// RenderPage renders page of an already materialized result. Facets are
// attached to the first page only and out of range pages clamp.
func RenderPage(result *models.QueryResult, page, pageSize, maxPages int) Page {
	if result == nil || result.Total == 0 {
		query := ""
		if result != nil {
			query = result.Query
		}
		return Page{Blocks: []string{noResults(query)}, TotalPages: 1}
	}
	if pageSize <= 0 {
		pageSize = 1
	}

	totalPages := TotalPages(len(result.Matches), pageSize, maxPages)
	page = ClampPage(page, totalPages)

	start := page * pageSize
	end := start + pageSize
	if start > len(result.Matches) {
		start = len(result.Matches)
	}
	if end > len(result.Matches) {
		end = len(result.Matches)
	}
	matches := result.Matches[start:end]

	header := headerBox("Search Results", "Query: "+result.Query)
	header += "\n\n📊 <b>Total found:</b> " + formatNumber(result.Total) + " results"
	header += fmt.Sprintf("\nℹ️ <b>Page:</b> %d/%d (showing %d results)", page+1, totalPages, len(matches))
	if result.CreditsRemaining != nil {
		header += "\n🔑 <b>Query credits left:</b> " + formatNumber(*result.CreditsRemaining)
	}
	if page == 0 && len(result.Facets) > 0 {
		header += renderFacets(result.Facets, "Breakdown")
	}

	blocks := []string{header}
	for i, m := range matches {
		blocks = append(blocks, renderMatch(m, start+i+1))
	}
	if len(matches) == 0 {
		blocks = append(blocks, "⚠️ <i>No matches could be listed for this query.</i>")
		return Page{Blocks: blocks, Index: page, TotalPages: totalPages}
	}

	return Page{
		Blocks:     blocks,
		Index:      page,
		TotalPages: totalPages,
		HasNext:    page < totalPages-1,
		HasPrev:    page > 0,
	}
}

func noResults(query string) string {
	text := "⚠️ <b>No results found.</b>"
	if query != "" {
		text += "\nQuery: <code>" + Escape(query) + "</code>"
	}
	return text + "\n<i>Try a broader query or check /filters.</i>"
}

// RenderCount renders a count result. Count never paginates.
func RenderCount(result *models.CountResult) string {
	if result == nil || result.Total == 0 {
		query := ""
		if result != nil {
			query = result.Query
		}
		return noResults(query)
	}
	text := headerBox("Count Result", "Query: "+result.Query)
	text += "\n\n📊 <b>Total:</b> " + formatNumber(result.Total) + " results found"
	text += "\nℹ️ <i>Count queries do not use query credits!</i>"
	if len(result.Facets) > 0 {
		text += renderFacets(result.Facets, "Breakdown")
	}
	return text
}

var facetLabels = map[string][2]string{
	"org":     {"🏢", "Top Organizations"},
	"port":    {"🔌", "Top Ports"},
	"product": {"📦", "Top Products"},
	"os":      {"💻", "Top OS"},
	"country": {"🌍", "Top Countries"},
	"city":    {"🏙️", "Top Cities"},
	"isp":     {"📶", "Top ISPs"},
	"domain":  {"🌐", "Top Domains"},
	"asn":     {"🔢", "Top ASNs"},
	"vuln":    {"🛡️", "Top CVE"},
}

// RankFacet orders buckets by count, highest first. Ties keep the order
// the API returned them in.
func RankFacet(values []models.FacetValue) []models.FacetValue {
	ranked := make([]models.FacetValue, len(values))
	copy(ranked, values)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	return ranked
}

func renderFacets(facets []models.Facet, title string) string {
	var b strings.Builder
	b.WriteString("\n\n" + strings.Repeat("─", dividerWidth))
	b.WriteString("\n📈 <b>" + Escape(title) + ":</b>")

	for _, f := range facets {
		label, ok := facetLabels[f.Name]
		if !ok {
			label = [2]string{"📊", facetTitle(f.Name)}
		}
		b.WriteString("\n\n" + label[0] + " <b>" + Escape(label[1]) + ":</b>")

		ranked := RankFacet(f.Values)
		if len(ranked) == 0 {
			b.WriteString("\n  " + placeholder)
			continue
		}
		top := ranked[0].Count
		if len(ranked) > maxFacetValues {
			ranked = ranked[:maxFacetValues]
		}
		for _, v := range ranked {
			value := v.Value
			if value == "" {
				value = "N/A"
			}
			b.WriteString("\n  " + progressBar(v.Count, top) + " <code>" + Escape(value) + "</code> (" + formatNumber(v.Count) + ")")
		}
	}
	return b.String()
}

func facetTitle(name string) string {
	if name == "" {
		return "Other"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func portText(port int) string {
	if port <= 0 {
		return ""
	}
	return strconv.Itoa(port)
}

func productText(product, version string) string {
	return strings.TrimSpace(product + " " + version)
}

// renderMatch always prints IP, port, organization, ISP, product, country
// and city, in that order, so a missing field shows up as N/A.
func renderMatch(m models.Match, index int) string {
	lines := []string{
		fmt.Sprintf("┌─── 🖥️ <b>Result #%d</b> ───┐", index),
		"",
		keyValue("📡", "IP", m.IP),
		keyValue("🔌", "Port", portText(m.Port)),
		keyValue("🏢", "Organization", m.Org),
		keyValue("📶", "ISP", m.ISP),
		keyValue("📦", "Product", productText(m.Product, m.Version)),
		keyValue("🌍", "Country", m.Location.CountryName),
		keyValue("🏙️", "City", m.Location.City),
	}

	if m.OS != "" {
		lines = append(lines, keyValue("💻", "OS", m.OS))
	}
	if len(m.Hostnames) > 0 {
		hosts := m.Hostnames
		if len(hosts) > maxHostnames {
			hosts = hosts[:maxHostnames]
		}
		lines = append(lines, keyValue("📋", "Hostname", strings.Join(hosts, ", ")))
	}
	if m.SSLCommon != "" {
		lines = append(lines, keyValue("🔒", "SSL CN", m.SSLCommon))
	}
	if m.SSLExpires != "" {
		lines = append(lines, keyValue("🕐", "SSL Expires", m.SSLExpires))
	}

	if len(m.Vulns) > 0 {
		lines = append(lines, fmt.Sprintf("\n  🛡️ <b>Vulnerabilities (%d):</b>", len(m.Vulns)))
		shown := m.Vulns
		if len(shown) > maxMatchVulns {
			shown = shown[:maxMatchVulns]
		}
		for _, v := range shown {
			lines = append(lines, "    🔥 <code>"+Escape(v)+"</code>")
		}
		if extra := len(m.Vulns) - maxMatchVulns; extra > 0 {
			lines = append(lines, moreLine("    ", extra))
		}
	}

	if banner := strings.TrimSpace(truncate(m.Banner, bannerSnippet)); banner != "" {
		lines = append(lines, "\n  📁 <b>Banner:</b>", "  <code>"+Escape(banner)+"</code>")
	}
	if !m.LastSeen.IsZero() {
		lines = append(lines, "\n  🕐 <i>Last seen: "+m.LastSeen.UTC().Format("2006-01-02T15:04:05")+"</i>")
	}

	lines = append(lines, closingLine())
	return strings.Join(lines, "\n")
}
