package searchapi

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"hostintel-bot/internal/models"
)

// Wire types mirror the API's JSON. Only fields the bot renders are kept.

type apiError struct {
	Error string `json:"error"`
}

type apiBanner struct {
	IPStr     string          `json:"ip_str"`
	Port      int             `json:"port"`
	Transport string          `json:"transport"`
	Org       string          `json:"org"`
	ISP       string          `json:"isp"`
	ASN       string          `json:"asn"`
	Product   string          `json:"product"`
	Version   string          `json:"version"`
	OS        string          `json:"os"`
	Hostnames []string        `json:"hostnames"`
	Location  apiLocation     `json:"location"`
	Vulns     json.RawMessage `json:"vulns"`
	Data      string          `json:"data"`
	Timestamp string          `json:"timestamp"`
	Shodan    struct {
		Module string `json:"module"`
	} `json:"_shodan"`
	HTTP *struct {
		Title  string `json:"title"`
		Status int    `json:"status"`
		Server string `json:"server"`
	} `json:"http"`
	SSL *struct {
		Cert struct {
			Subject struct {
				CN string `json:"CN"`
			} `json:"subject"`
			Issuer struct {
				O string `json:"O"`
			} `json:"issuer"`
			Expires string `json:"expires"`
		} `json:"cert"`
	} `json:"ssl"`
}

type apiLocation struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
}

type apiFacetValue struct {
	Count int             `json:"count"`
	Value json.RawMessage `json:"value"`
}

type apiSearchResponse struct {
	Matches []apiBanner                `json:"matches"`
	Total   int                        `json:"total"`
	Facets  map[string][]apiFacetValue `json:"facets"`
}

type apiHost struct {
	IPStr       string          `json:"ip_str"`
	Org         string          `json:"org"`
	ISP         string          `json:"isp"`
	ASN         string          `json:"asn"`
	OS          string          `json:"os"`
	CountryName string          `json:"country_name"`
	City        string          `json:"city"`
	Hostnames   []string        `json:"hostnames"`
	Ports       []int           `json:"ports"`
	Vulns       json.RawMessage `json:"vulns"`
	Tags        []string        `json:"tags"`
	LastUpdate  string          `json:"last_update"`
	Data        []apiBanner     `json:"data"`
}

type apiDomain struct {
	Domain     string   `json:"domain"`
	Tags       []string `json:"tags"`
	Subdomains []string `json:"subdomains"`
	Data       []struct {
		Subdomain string `json:"subdomain"`
		Type      string `json:"type"`
		Value     string `json:"value"`
	} `json:"data"`
}

type apiExploit struct {
	ID          json.RawMessage `json:"_id"`
	Description string          `json:"description"`
	Source      string          `json:"source"`
	Type        string          `json:"type"`
	Platform    json.RawMessage `json:"platform"`
	CVE         []string        `json:"cve"`
}

type apiExploitResponse struct {
	Matches []apiExploit `json:"matches"`
	Total   int          `json:"total"`
}

type apiScan struct {
	ID          string `json:"id"`
	Count       int    `json:"count"`
	CreditsLeft int    `json:"credits_left"`
	Status      string `json:"status"`
}

type apiInfo struct {
	Plan         string `json:"plan"`
	QueryCredits int    `json:"query_credits"`
	ScanCredits  int    `json:"scan_credits"`
	Unlocked     bool   `json:"unlocked"`
	UnlockedLeft int    `json:"unlocked_left"`
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// rawString renders a scalar JSON value (string or number) as text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return strings.Trim(string(raw), `"`)
}

// vulnList accepts both shapes the API uses: an array of CVE ids (host
// lookup) and an object keyed by CVE id (search banners). Object keys are
// sorted so output is stable.
func vulnList(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var byID map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byID); err == nil {
		out := make([]string, 0, len(byID))
		for id := range byID {
			out = append(out, id)
		}
		sort.Strings(out)
		return out
	}
	return nil
}

func toMatch(b apiBanner) models.Match {
	m := models.Match{
		IP:        b.IPStr,
		Port:      b.Port,
		Transport: b.Transport,
		Org:       b.Org,
		ISP:       b.ISP,
		ASN:       b.ASN,
		Product:   b.Product,
		Version:   b.Version,
		OS:        b.OS,
		Hostnames: b.Hostnames,
		Location: models.Location{
			CountryCode: b.Location.CountryCode,
			CountryName: b.Location.CountryName,
			City:        b.Location.City,
		},
		Vulns:    vulnList(b.Vulns),
		Banner:   b.Data,
		Module:   b.Shodan.Module,
		LastSeen: parseTimestamp(b.Timestamp),
	}
	if b.HTTP != nil {
		m.HTTPTitle = b.HTTP.Title
		m.HTTPStatus = b.HTTP.Status
		m.HTTPServer = b.HTTP.Server
	}
	if b.SSL != nil {
		m.SSLCommon = b.SSL.Cert.Subject.CN
		m.SSLIssuer = b.SSL.Cert.Issuer.O
		m.SSLExpires = b.SSL.Cert.Expires
	}
	return m
}

// facetNames extracts the facet names from a "name:size,name" list in
// request order.
func facetNames(facets string) []string {
	var names []string
	for _, part := range strings.Split(facets, ",") {
		name := strings.TrimSpace(part)
		if i := strings.IndexByte(name, ':'); i >= 0 {
			name = name[:i]
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// toFacets orders facets the way they were requested. Facets the API
// returned without being asked for follow in name order. Buckets keep the
// API order.
func toFacets(raw map[string][]apiFacetValue, requested string) []models.Facet {
	if len(raw) == 0 {
		return nil
	}
	order := facetNames(requested)
	seen := make(map[string]bool, len(order))
	var extra []string
	for name := range raw {
		extra = append(extra, name)
	}
	sort.Strings(extra)

	facets := make([]models.Facet, 0, len(raw))
	add := func(name string) {
		values, ok := raw[name]
		if !ok || seen[name] {
			return
		}
		seen[name] = true
		out := make([]models.FacetValue, len(values))
		for i, v := range values {
			out[i] = models.FacetValue{Value: rawString(v.Value), Count: v.Count}
		}
		facets = append(facets, models.Facet{Name: name, Values: out})
	}
	for _, name := range order {
		add(name)
	}
	for _, name := range extra {
		add(name)
	}
	return facets
}

func toHost(h apiHost) *models.HostInfo {
	services := make([]models.Match, len(h.Data))
	for i, b := range h.Data {
		services[i] = toMatch(b)
	}
	return &models.HostInfo{
		IP:         h.IPStr,
		Org:        h.Org,
		ISP:        h.ISP,
		ASN:        h.ASN,
		OS:         h.OS,
		Country:    h.CountryName,
		City:       h.City,
		Hostnames:  h.Hostnames,
		Ports:      h.Ports,
		Vulns:      vulnList(h.Vulns),
		Tags:       h.Tags,
		LastUpdate: parseTimestamp(h.LastUpdate),
		Services:   services,
	}
}

func toDomain(d apiDomain) *models.DomainInfo {
	records := make([]models.DNSRecord, len(d.Data))
	for i, r := range d.Data {
		records[i] = models.DNSRecord{Subdomain: r.Subdomain, Type: r.Type, Value: r.Value}
	}
	return &models.DomainInfo{
		Domain:     d.Domain,
		Subdomains: d.Subdomains,
		Records:    records,
		Tags:       d.Tags,
	}
}

func toExploit(e apiExploit) models.Exploit {
	return models.Exploit{
		ID:          rawString(e.ID),
		Description: e.Description,
		Source:      e.Source,
		Type:        e.Type,
		Platform:    rawString(e.Platform),
		CVE:         e.CVE,
	}
}

// parseScore reads the honeyscore body, a bare JSON number.
func parseScore(body []byte) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(body)), 64)
}
