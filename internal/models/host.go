package models

import "time"

// HostInfo is everything known about a single IP.
type HostInfo struct {
	IP         string
	Org        string
	ISP        string
	ASN        string
	OS         string
	Country    string
	City       string
	Hostnames  []string
	Ports      []int
	Vulns      []string
	Tags       []string
	LastUpdate time.Time
	Services   []Match
}

// HoneyScore is the honeypot probability for an IP, in [0, 1].
type HoneyScore struct {
	IP    string
	Score float64
}
