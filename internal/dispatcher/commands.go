package dispatcher

// MenuEntry is a command advertised in the chat client's command menu.
type MenuEntry struct {
	Command     string
	Description string
}

// Menu lists the commands published with set-commands, in display order.
func Menu() []MenuEntry {
	return []MenuEntry{
		{"start", "Main menu"},
		{"templates", "Browse query templates"},
		{"find", "Find templates by keyword"},
		{"search", "Raw search query"},
		{"count", "Count results with facets"},
		{"host", "Host details for an IP"},
		{"dns", "Resolve hostnames"},
		{"rdns", "Reverse DNS for IPs"},
		{"domain", "Domain subdomains and records"},
		{"exploit", "Search exploits"},
		{"honeypot", "Honeypot probability for an IP"},
		{"scan", "Request an on-demand scan"},
		{"scanstatus", "Check a scan by id"},
		{"info", "API plan and credits"},
		{"filters", "Search filter reference"},
		{"cancel", "Cancel the current operation"},
		{"help", "How to use the bot"},
	}
}
