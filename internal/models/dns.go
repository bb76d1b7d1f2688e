package models

// HostAddress pairs a hostname with its resolved address. Address is empty
// when the name did not resolve.
type HostAddress struct {
	Hostname string
	Address  string
}

// ReverseEntry lists the hostnames pointing at an IP.
type ReverseEntry struct {
	IP        string
	Hostnames []string
}

type DNSRecord struct {
	Subdomain string
	Type      string
	Value     string
}

type DomainInfo struct {
	Domain     string
	Subdomains []string
	Records    []DNSRecord
	Tags       []string
}
