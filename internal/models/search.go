// internal/models/search.go
package models

import "time"

// Location is the geo block attached to a service banner.
type Location struct {
	CountryCode string `json:"country_code,omitempty"`
	CountryName string `json:"country_name,omitempty"`
	City        string `json:"city,omitempty"`
}

// Match is one service banner returned by a search.
type Match struct {
	IP         string    `json:"ip"`
	Port       int       `json:"port"`
	Transport  string    `json:"transport,omitempty"`
	Org        string    `json:"org,omitempty"`
	ISP        string    `json:"isp,omitempty"`
	ASN        string    `json:"asn,omitempty"`
	Product    string    `json:"product,omitempty"`
	Version    string    `json:"version,omitempty"`
	OS         string    `json:"os,omitempty"`
	Hostnames  []string  `json:"hostnames,omitempty"`
	Location   Location  `json:"location"`
	Vulns      []string  `json:"vulns,omitempty"`
	Banner     string    `json:"banner,omitempty"`
	Module     string    `json:"module,omitempty"`
	HTTPTitle  string    `json:"http_title,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	HTTPServer string    `json:"http_server,omitempty"`
	SSLCommon  string    `json:"ssl_cn,omitempty"`
	SSLIssuer  string    `json:"ssl_issuer,omitempty"`
	SSLExpires string    `json:"ssl_expires,omitempty"`
	LastSeen   time.Time `json:"last_seen,omitempty"`
}

// FacetValue is one bucket of a facet breakdown.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Facet keeps buckets in the order the API returned them.
type Facet struct {
	Name   string       `json:"name"`
	Values []FacetValue `json:"values"`
}

// QueryResult is a fully materialized search response. It is never
// mutated after the adapter returns it.
type QueryResult struct {
	Query            string  `json:"query"`
	Total            int     `json:"total"`
	Matches          []Match `json:"matches"`
	Facets           []Facet `json:"facets,omitempty"`
	CreditsRemaining *int    `json:"credits_remaining,omitempty"`
}

// CountResult is the response of a count query; it never carries matches.
type CountResult struct {
	Query  string  `json:"query"`
	Total  int     `json:"total"`
	Facets []Facet `json:"facets,omitempty"`
}
