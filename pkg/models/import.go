package models

// CompanyMatch is the best fuzzy company match found for an imported
// contact's raw company name.
type CompanyMatch struct {
	CompanyID   string  `json:"companyId"`
	CompanyName string  `json:"companyName"`
	Confidence  float64 `json:"confidence"`
}

// PublicationMatch links an imported contact to a known publication.
type PublicationMatch struct {
	PublicationID string  `json:"publicationId"`
	Name          string  `json:"name"`
	Confidence    float64 `json:"confidence"`
}

// ImportResult is returned by the import paths. It is transient and never
// persisted as its own entity.
type ImportResult struct {
	ContactID          string             `json:"contactId"`
	CompanyMatch       *CompanyMatch      `json:"companyMatch,omitempty"`
	PublicationMatches []PublicationMatch `json:"publicationMatches"`
}

// ImportStats summarizes an auto-import run.
type ImportStats struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// FieldConflict records a merge conflict between variants and how it was
// resolved.
type FieldConflict struct {
	Field         string   `json:"field"`
	Values        []string `json:"values"`
	Resolution    string   `json:"resolution"` // majority, most_recent, ai, selected_variant
	ResolvedValue string   `json:"resolvedValue"`
}
