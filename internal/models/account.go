package models

// AccountInfo is the API plan and remaining credit balance.
type AccountInfo struct {
	Plan         string
	QueryCredits int
	ScanCredits  int
	Unlocked     bool
	UnlockedLeft int
}

type ScanSubmission struct {
	ID          string
	Count       int
	CreditsLeft int
}

// Scan states reported by the API.
const (
	ScanStatusSubmitting = "SUBMITTING"
	ScanStatusQueue      = "QUEUE"
	ScanStatusProcessing = "PROCESSING"
	ScanStatusDone       = "DONE"
)

type ScanStatus struct {
	ID     string
	Status string
	Count  int
}
