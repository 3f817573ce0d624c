package autoimport

import (
	"github.com/Ramsey-B/clover/pkg/models"
)

// DestinationPolicy decides which organizations receive the merged contact
// produced by an auto-import.
type DestinationPolicy interface {
	Destinations(candidate *models.Candidate) []string
}

// PrimaryVariantPolicy writes the merged contact only into the organization
// of the most recently captured variant. The other organizations keep their
// own records untouched; the default and least surprising behavior.
type PrimaryVariantPolicy struct{}

func (PrimaryVariantPolicy) Destinations(candidate *models.Candidate) []string {
	if len(candidate.Variants) == 0 {
		return nil
	}
	primary := candidate.Variants[0]
	for _, v := range candidate.Variants[1:] {
		if v.CapturedAt.After(primary.CapturedAt) {
			primary = v
		}
	}
	return []string{primary.OrganizationID}
}

// AllOrganizationsPolicy writes the merged contact into every organization
// represented in the candidate.
type AllOrganizationsPolicy struct{}

func (AllOrganizationsPolicy) Destinations(candidate *models.Candidate) []string {
	seen := map[string]bool{}
	orgs := make([]string, 0, len(candidate.Variants))
	for _, v := range candidate.Variants {
		if !seen[v.OrganizationID] {
			seen[v.OrganizationID] = true
			orgs = append(orgs, v.OrganizationID)
		}
	}
	return orgs
}

// NewPolicy maps a policy name to its implementation, defaulting to the
// primary variant policy for unknown names.
func NewPolicy(name string) DestinationPolicy {
	switch name {
	case "all_organizations":
		return AllOrganizationsPolicy{}
	default:
		return PrimaryVariantPolicy{}
	}
}
