package models

import (
	"errors"
	"time"
)

// ErrVersionConflict is returned when an optimistic candidate update lost
// the race. Callers re-read the candidate and retry.
var ErrVersionConflict = errors.New("candidate version conflict")

// Candidate statuses
const (
	CandidateStatusPending          = "pending"
	CandidateStatusAutoImported     = "auto_imported"
	CandidateStatusManuallyImported = "manually_imported"
	CandidateStatusRejected         = "rejected"
	CandidateStatusStale            = "stale"
)

// Variant is an immutable snapshot of one organization's contact record,
// captured at scan time. It is never a live reference into tenant data.
type Variant struct {
	OrganizationID   string    `json:"organizationId"`
	OrganizationName string    `json:"organizationName"`
	SourceContactID  string    `json:"sourceContactId"`
	DisplayName      string    `json:"displayName"`
	NormalizedName   string    `json:"normalizedName"`
	Emails           []string  `json:"emails"`
	Position         string    `json:"position"`
	CompanyNameRaw   string    `json:"companyNameRaw"`
	CapturedAt       time.Time `json:"capturedAt"`
}

// Candidate is a provisional cluster of contact variants believed to denote
// the same real person across organizations. Score is the minimum pairwise
// similarity of its variants. Version is the optimistic-concurrency token
// for read-modify-write updates.
type Candidate struct {
	ID         string     `json:"id"`
	Variants   []Variant  `json:"variants"`
	Score      float64    `json:"score"`
	Status     string     `json:"status"`
	Version    int        `json:"version"`
	ResolvedBy *string    `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// HasVariant reports whether the candidate already covers the given
// organization/contact pair.
func (c *Candidate) HasVariant(organizationID, sourceContactID string) bool {
	for _, v := range c.Variants {
		if v.OrganizationID == organizationID && v.SourceContactID == sourceContactID {
			return true
		}
	}
	return false
}

// HasOrganization reports whether any variant belongs to the organization.
// Candidates never hold two variants from the same organization.
func (c *Candidate) HasOrganization(organizationID string) bool {
	for _, v := range c.Variants {
		if v.OrganizationID == organizationID {
			return true
		}
	}
	return false
}

// Representative returns the variant used for first-pass comparisons against
// new contacts. Nil for an empty candidate.
func (c *Candidate) Representative() *Variant {
	if len(c.Variants) == 0 {
		return nil
	}
	return &c.Variants[0]
}
