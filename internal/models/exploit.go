package models

type Exploit struct {
	ID          string
	Description string
	Source      string
	Type        string
	Platform    string
	CVE         []string
}

type ExploitResult struct {
	Query   string
	Total   int
	Matches []Exploit
}
