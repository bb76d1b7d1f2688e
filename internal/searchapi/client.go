// Package searchapi is the typed adapter over the Shodan REST API.
package searchapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	apperrors "hostintel-bot/internal/common/errors"
	apphttp "hostintel-bot/internal/common/http"
	"hostintel-bot/internal/common/logger"
	"hostintel-bot/internal/common/metrics"
	"hostintel-bot/internal/common/observability"
	"hostintel-bot/internal/models"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const accountCacheKey = "account-info"

type Client struct {
	config   *Config
	http     *apphttp.Client
	logger   logger.Logger
	obs      *observability.Observability
	accounts *cache.Cache
	inflight singleflight.Group
}

func NewClient(cfg *Config, log logger.Logger, obs *observability.Observability) *Client {
	if obs == nil {
		obs = observability.NewNoop()
	}
	ttl := cfg.AccountCacheTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Client{
		config:   cfg,
		http:     apphttp.NewClient(cfg.Timeout).WithRetry(cfg.MaxRetries, cfg.RetryDelay),
		logger:   log.With(map[string]interface{}{"component": "searchapi"}),
		obs:      obs,
		accounts: cache.New(ttl, 10*time.Minute),
	}
}

// ==========================
// Search
// ==========================

// Search runs query and materializes up to FetchLimit matches plus the
// requested facets in a single request.
func (c *Client) Search(ctx context.Context, query, facets string) (*models.QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationFailedError("query", "query must not be empty")
	}

	params := url.Values{"query": {query}, "page": {"1"}}
	if facets != "" {
		params.Set("facets", facets)
	}

	var resp apiSearchResponse
	if err := c.getJSON(ctx, "search", c.config.BaseURL, "/shodan/host/search", params, &resp, query); err != nil {
		return nil, err
	}

	banners := resp.Matches
	if c.config.FetchLimit > 0 && len(banners) > c.config.FetchLimit {
		banners = banners[:c.config.FetchLimit]
	}
	matches := make([]models.Match, len(banners))
	for i, b := range banners {
		matches[i] = toMatch(b)
	}
	c.obs.RecordResultSize(ctx, "search", resp.Total)

	return &models.QueryResult{
		Query:   query,
		Total:   resp.Total,
		Matches: matches,
		Facets:  toFacets(resp.Facets, facets),
	}, nil
}

// Count returns only the total and facets. It never falls back to Search.
func (c *Client) Count(ctx context.Context, query, facets string) (*models.CountResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationFailedError("query", "query must not be empty")
	}

	params := url.Values{"query": {query}}
	if facets != "" {
		params.Set("facets", facets)
	}

	var resp apiSearchResponse
	if err := c.getJSON(ctx, "count", c.config.BaseURL, "/shodan/host/count", params, &resp, query); err != nil {
		return nil, err
	}
	c.obs.RecordResultSize(ctx, "count", resp.Total)

	return &models.CountResult{
		Query:  query,
		Total:  resp.Total,
		Facets: toFacets(resp.Facets, facets),
	}, nil
}

// ==========================
// Host & DNS
// ==========================

func parseIP(field, raw string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", apperrors.NewValidationFailedError(field, fmt.Sprintf("%q is not a valid IPv4 or IPv6 address", raw))
	}
	return addr.String(), nil
}

func (c *Client) Host(ctx context.Context, ip string) (*models.HostInfo, error) {
	addr, err := parseIP("ip", ip)
	if err != nil {
		return nil, err
	}

	var resp apiHost
	if err := c.getJSON(ctx, "host", c.config.BaseURL, "/shodan/host/"+url.PathEscape(addr), nil, &resp, addr); err != nil {
		return nil, err
	}
	if resp.IPStr == "" {
		resp.IPStr = addr
	}
	return toHost(resp), nil
}

// ResolveDNS looks up hostnames and returns them in the order given.
func (c *Client) ResolveDNS(ctx context.Context, hostnames []string) ([]models.HostAddress, error) {
	names := make([]string, 0, len(hostnames))
	for _, h := range hostnames {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if strings.ContainsAny(h, " /,") {
			return nil, apperrors.NewValidationFailedError("hostname", fmt.Sprintf("%q is not a hostname", h))
		}
		names = append(names, h)
	}
	if len(names) == 0 {
		return nil, apperrors.NewValidationFailedError("hostname", "at least one hostname is required")
	}

	var resp map[string]*string
	params := url.Values{"hostnames": {strings.Join(names, ",")}}
	if err := c.getJSON(ctx, "dns_resolve", c.config.BaseURL, "/dns/resolve", params, &resp, names[0]); err != nil {
		return nil, err
	}

	out := make([]models.HostAddress, len(names))
	for i, name := range names {
		out[i] = models.HostAddress{Hostname: name}
		if addr := resp[name]; addr != nil {
			out[i].Address = *addr
		}
	}
	return out, nil
}

// ReverseDNS looks up the hostnames of ips and returns them in the order given.
func (c *Client) ReverseDNS(ctx context.Context, ips []string) ([]models.ReverseEntry, error) {
	addrs := make([]string, 0, len(ips))
	for _, raw := range ips {
		addr, err := parseIP("ip", raw)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, apperrors.NewValidationFailedError("ip", "at least one IP is required")
	}

	var resp map[string][]string
	params := url.Values{"ips": {strings.Join(addrs, ",")}}
	if err := c.getJSON(ctx, "dns_reverse", c.config.BaseURL, "/dns/reverse", params, &resp, addrs[0]); err != nil {
		return nil, err
	}

	out := make([]models.ReverseEntry, len(addrs))
	for i, addr := range addrs {
		out[i] = models.ReverseEntry{IP: addr, Hostnames: resp[addr]}
	}
	return out, nil
}

func (c *Client) Domain(ctx context.Context, domain string) (*models.DomainInfo, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" || strings.ContainsAny(domain, " /") {
		return nil, apperrors.NewValidationFailedError("domain", "a domain name such as example.com is required")
	}

	var resp apiDomain
	if err := c.getJSON(ctx, "dns_domain", c.config.BaseURL, "/dns/domain/"+url.PathEscape(domain), nil, &resp, domain); err != nil {
		return nil, err
	}
	if resp.Domain == "" {
		resp.Domain = domain
	}
	return toDomain(resp), nil
}

// ==========================
// Exploits & labs
// ==========================

func (c *Client) Exploits(ctx context.Context, query string) (*models.ExploitResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationFailedError("query", "query must not be empty")
	}

	var resp apiExploitResponse
	if err := c.getJSON(ctx, "exploits", c.config.ExploitsURL, "/api/search", url.Values{"query": {query}}, &resp, query); err != nil {
		return nil, err
	}

	matches := make([]models.Exploit, len(resp.Matches))
	for i, e := range resp.Matches {
		matches[i] = toExploit(e)
	}
	return &models.ExploitResult{Query: query, Total: resp.Total, Matches: matches}, nil
}

func (c *Client) HoneyScore(ctx context.Context, ip string) (*models.HoneyScore, error) {
	addr, err := parseIP("ip", ip)
	if err != nil {
		return nil, err
	}

	var score float64
	err = c.call(ctx, "honeyscore", addr, func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, c.config.BaseURL, "/labs/honeyscore/"+url.PathEscape(addr), nil, nil)
	}, func(resp *http.Response) error {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return apphttp.DecodeJSON(resp, nil)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
		if err != nil {
			return err
		}
		score, err = parseScore(body)
		if err != nil {
			return fmt.Errorf("decode honeyscore: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.HoneyScore{IP: addr, Score: score}, nil
}

// ==========================
// Scans
// ==========================

// NormalizeTarget canonicalizes a scan target: a single address without
// a zone, or a CIDR network reduced to its masked form.
func NormalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if addr, err := netip.ParseAddr(raw); err == nil {
		if addr.Zone() != "" {
			return "", apperrors.NewValidationFailedError("target", fmt.Sprintf("%q carries an interface zone", raw))
		}
		return addr.String(), nil
	}
	if prefix, err := netip.ParsePrefix(raw); err == nil {
		return prefix.Masked().String(), nil
	}
	return "", apperrors.NewValidationFailedError("target", fmt.Sprintf("%q is not an IP address or CIDR network", raw))
}

// SubmitScan requests an on-demand scan. It does not wait for the scan;
// callers poll with ScanStatus.
func (c *Client) SubmitScan(ctx context.Context, target string) (*models.ScanSubmission, error) {
	target, err := NormalizeTarget(target)
	if err != nil {
		return nil, err
	}

	var resp apiScan
	form := url.Values{"ips": {target}}
	err = c.call(ctx, "scan_submit", target, func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, c.config.BaseURL, "/shodan/scan", nil, form)
	}, func(r *http.Response) error {
		return apphttp.DecodeJSON(r, &resp)
	})
	if err != nil {
		return nil, err
	}

	c.accounts.Delete(accountCacheKey)
	return &models.ScanSubmission{ID: resp.ID, Count: resp.Count, CreditsLeft: resp.CreditsLeft}, nil
}

func (c *Client) ScanStatus(ctx context.Context, id string) (*models.ScanStatus, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, " /?#") {
		return nil, apperrors.NewValidationFailedError("scan_id", "a scan id is required")
	}

	var resp apiScan
	if err := c.getJSON(ctx, "scan_status", c.config.BaseURL, "/shodan/scan/"+url.PathEscape(id), nil, &resp, id); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = id
	}
	return &models.ScanStatus{ID: resp.ID, Status: resp.Status, Count: resp.Count}, nil
}

// ==========================
// Account
// ==========================

// AccountInfo is cached for AccountCacheTTL. Concurrent misses share one
// upstream request.
func (c *Client) AccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	if cached, ok := c.accounts.Get(accountCacheKey); ok {
		return cached.(*models.AccountInfo), nil
	}

	v, err, _ := c.inflight.Do(accountCacheKey, func() (interface{}, error) {
		var resp apiInfo
		if err := c.getJSON(ctx, "account_info", c.config.BaseURL, "/api-info", nil, &resp, "account"); err != nil {
			return nil, err
		}
		info := &models.AccountInfo{
			Plan:         resp.Plan,
			QueryCredits: resp.QueryCredits,
			ScanCredits:  resp.ScanCredits,
			Unlocked:     resp.Unlocked,
			UnlockedLeft: resp.UnlockedLeft,
		}
		c.accounts.SetDefault(accountCacheKey, info)
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.AccountInfo), nil
}

// ==========================
// Plumbing
// ==========================

func (c *Client) newRequest(ctx context.Context, method, base, path string, params, form url.Values) (*http.Request, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("key", c.config.APIKey)
	u.RawQuery = q.Encode()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, op, base, path string, params url.Values, out interface{}, resource string) error {
	return c.call(ctx, op, resource, func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, base, path, params, nil)
	}, func(resp *http.Response) error {
		return apphttp.DecodeJSON(resp, out)
	})
}

// call runs one operation with retries, tracing and metrics, and maps any
// failure onto the upstream error taxonomy.
func (c *Client) call(ctx context.Context, op, resource string, newReq apphttp.RequestFunc, decode func(*http.Response) error) (err error) {
	ctx, span := observability.StartSpan(ctx, "searchapi."+op, attribute.String("searchapi.resource", resource))
	start := time.Now()

	defer func() {
		elapsed := time.Since(start)
		result := resultLabel(err)
		metrics.SearchAPIRequests.WithLabelValues(op, result).Inc()
		metrics.SearchAPIDuration.WithLabelValues(op).Observe(elapsed.Seconds())
		c.obs.RecordQuery(ctx, op, result, elapsed)
		observability.EndSpan(span, err)

		fields := map[string]interface{}{
			"operation":  op,
			"result":     result,
			"durationMs": elapsed.Milliseconds(),
		}
		if err != nil {
			c.logger.Warn("search API call failed", fields)
		} else {
			c.logger.Debug("search API call", fields)
		}
	}()

	resp, doErr := c.http.DoWithRetry(ctx, newReq)
	if doErr != nil {
		return classify(doErr, resource)
	}
	defer resp.Body.Close()

	if decodeErr := decode(resp); decodeErr != nil {
		return classify(decodeErr, resource)
	}
	return nil
}
