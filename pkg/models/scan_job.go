package models

import "time"

// Scan job statuses. At most one job may be running at a time; the running
// row is the cross-process scan lock.
const (
	ScanJobStatusRunning   = "running"
	ScanJobStatusCompleted = "completed"
	ScanJobStatusFailed    = "failed"
)

// ScanError records a per-record failure that did not abort the scan.
type ScanError struct {
	OrganizationID string `json:"organizationId,omitempty"`
	ContactID      string `json:"contactId,omitempty"`
	Message        string `json:"message"`
}

// Scan triggers.
const (
	ScanTriggerCron   = "cron"
	ScanTriggerManual = "manual"
)

// ScanJob is the bookkeeping record for one scan invocation.
type ScanJob struct {
	ID                   string      `json:"id"`
	Status               string      `json:"status"`
	Trigger              string      `json:"trigger"`
	StartedAt            time.Time   `json:"startedAt"`
	FinishedAt           *time.Time  `json:"finishedAt,omitempty"`
	OrganizationsScanned int         `json:"organizationsScanned"`
	ContactsScanned      int         `json:"contactsScanned"`
	CandidatesCreated    int         `json:"candidatesCreated"`
	CandidatesUpdated    int         `json:"candidatesUpdated"`
	Errors               []ScanError `json:"errors,omitempty"`
}

// ScanResult is the summary returned to the scheduler.
type ScanResult struct {
	ScanJobID            string `json:"scanJobId"`
	OrganizationsScanned int    `json:"organizationsScanned"`
	CandidatesCreated    int    `json:"candidatesCreated"`
	CandidatesUpdated    int    `json:"candidatesUpdated"`
	DurationMs           int64  `json:"durationMs"`
}
