package models

import "time"

// Contact is a record in one organization's authoritative contact store.
// The engine only writes contacts through the import paths.
type Contact struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	DisplayName    string     `json:"displayName"`
	Emails         []string   `json:"emails"`
	Position       string     `json:"position,omitempty"`
	CompanyName    string     `json:"companyName,omitempty"`
	ImportedFrom   *string    `json:"importedFrom,omitempty"` // candidate id for imported records
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// Company is an organization-owned company record.
type Company struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organizationId" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Domain         string    `json:"domain,omitempty" db:"domain"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// Publication is an organization-owned publication record.
type Publication struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organizationId" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Domain         string    `json:"domain,omitempty" db:"domain"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}
