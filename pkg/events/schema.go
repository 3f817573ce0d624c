package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	// Candidate lifecycle events
	EventTypeCandidateCreated  EventType = "candidate.created"
	EventTypeCandidateUpdated  EventType = "candidate.updated"
	EventTypeCandidateRejected EventType = "candidate.rejected"
	EventTypeCandidateStale    EventType = "candidate.stale"

	// Import events
	EventTypeCandidateAutoImported   EventType = "candidate.auto_imported"
	EventTypeCandidateManualImported EventType = "candidate.manually_imported"
	EventTypeContactImported         EventType = "contact.imported"

	// Scan events
	EventTypeScanCompleted EventType = "scan.completed"
	EventTypeScanFailed    EventType = "scan.failed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// CandidateEventPayload describes a candidate at the time of the event.
type CandidateEventPayload struct {
	BaseEvent
	CandidateID   string   `json:"candidate_id"`
	Score         float64  `json:"score"`
	Status        string   `json:"status"`
	VariantCount  int      `json:"variant_count"`
	Organizations []string `json:"organizations"`
	ResolvedBy    string   `json:"resolved_by,omitempty"`
}

// ContactImportedPayload describes a contact written by an import path.
type ContactImportedPayload struct {
	BaseEvent
	CandidateID    string `json:"candidate_id"`
	ContactID      string `json:"contact_id"`
	OrganizationID string `json:"organization_id"`
	ImportPath     string `json:"import_path"` // auto or manual
}

// ScanCompletedPayload summarizes a finished scan.
type ScanCompletedPayload struct {
	BaseEvent
	ScanJobID            string `json:"scan_job_id"`
	OrganizationsScanned int    `json:"organizations_scanned"`
	ContactsScanned      int    `json:"contacts_scanned"`
	CandidatesCreated    int    `json:"candidates_created"`
	CandidatesUpdated    int    `json:"candidates_updated"`
	ErrorCount           int    `json:"error_count"`
	DurationMs           int64  `json:"duration_ms"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
