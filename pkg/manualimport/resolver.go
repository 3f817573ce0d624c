// Package manualimport resolves a candidate under operator control. The
// operator picks the authoritative variant and the destination; the other
// variants only fill fields the selected one is missing.
package manualimport

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// companyMatchFloor is the lowest similarity accepted when linking the
// imported contact's raw company name to an existing record.
const companyMatchFloor = 0.75

// CandidateStore is the candidate access the resolver needs.
type CandidateStore interface {
	GetByID(ctx context.Context, id string) (*models.Candidate, error)
	ClaimForImport(ctx context.Context, id, toStatus, actor string) (bool, error)
	Release(ctx context.Context, id string) error
}

// ContactWriter writes imported contacts into tenant stores.
type ContactWriter interface {
	Create(ctx context.Context, contact *models.Contact) (*models.Contact, error)
}

// CompanySource reads and creates destination-organization companies.
type CompanySource interface {
	ListByOrganization(ctx context.Context, organizationID string) ([]*models.Company, error)
	Create(ctx context.Context, company *models.Company) (*models.Company, error)
}

// PublicationSource reads destination-organization publications.
type PublicationSource interface {
	ListByOrganization(ctx context.Context, organizationID string) ([]*models.Publication, error)
}

// Request describes one manual import.
type Request struct {
	CandidateID string `json:"-"`
	// The authoritative variant, by its position in the candidate's variants.
	SelectedVariantIndex int  `json:"selectedVariantIndex" validate:"min=0"`
	UseAiMerge           bool `json:"useAiMerge"`
	// Destination defaults to the selected variant's organization.
	DestinationOrganizationID string `json:"destinationOrganizationId"`
	CreateMissingCompany      bool   `json:"createMissingCompany"`
	ResolvedBy                string `json:"-"`
}

// Resolver performs manual imports.
type Resolver struct {
	candidates   CandidateStore
	contacts     ContactWriter
	companies    CompanySource
	publications PublicationSource
	merger       *merging.FieldMerger
	reconciler   reconcile.Reconciler
	scorer       *scoring.Scorer
	emitter      *events.Emitter
	projector    *graph.Projector
	logger       ectologger.Logger
}

// NewResolver creates a new manual import resolver. reconciler, emitter and
// projector may be nil.
func NewResolver(candidates CandidateStore, contacts ContactWriter, companies CompanySource, publications PublicationSource, merger *merging.FieldMerger, reconciler reconcile.Reconciler, scorer *scoring.Scorer, emitter *events.Emitter, projector *graph.Projector, logger ectologger.Logger) *Resolver {
	return &Resolver{
		candidates:   candidates,
		contacts:     contacts,
		companies:    companies,
		publications: publications,
		merger:       merger,
		reconciler:   reconciler,
		scorer:       scorer,
		emitter:      emitter,
		projector:    projector,
		logger:       logger,
	}
}

// Import resolves the candidate into a contact in the destination
// organization.
func (r *Resolver) Import(ctx context.Context, req Request) (*models.ImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "manualimport.Resolver.Import")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{"candidate_id": req.CandidateID})

	candidate, err := r.candidates.GetByID(ctx, req.CandidateID)
	if err != nil {
		return nil, err
	}
	if candidate.Status != models.CandidateStatusPending {
		return nil, httperror.NewHTTPError(http.StatusConflict, "candidate is already resolved")
	}

	if req.SelectedVariantIndex < 0 || req.SelectedVariantIndex >= len(candidate.Variants) {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "selected variant index is out of range")
	}
	selected := candidate.Variants[req.SelectedVariantIndex]

	destination := req.DestinationOrganizationID
	if destination == "" {
		destination = selected.OrganizationID
	}

	var merged merging.MergedContact
	var conflicts []models.FieldConflict
	if req.UseAiMerge && r.reconciler != nil {
		merged, conflicts = r.merger.MergeWithPrimaryReconciler(ctx, candidate.Variants, req.SelectedVariantIndex, r.reconciler)
	} else {
		merged, conflicts = r.merger.MergeWithPrimary(candidate.Variants, req.SelectedVariantIndex)
	}
	if len(conflicts) > 0 {
		log.WithFields(map[string]any{"conflicts": len(conflicts)}).Debug("Merged with conflicts")
	}

	claimed, err := r.candidates.ClaimForImport(ctx, candidate.ID, models.CandidateStatusManuallyImported, req.ResolvedBy)
	if err != nil {
		return nil, err
	}
	if !claimed {
		metrics.ImportsTotal.WithLabelValues("manual", "skipped").Inc()
		return nil, httperror.NewHTTPError(http.StatusConflict, "candidate was resolved by someone else")
	}

	result := &models.ImportResult{PublicationMatches: []models.PublicationMatch{}}

	companyMatch, company, err := r.matchCompany(ctx, destination, merged.CompanyName, req.CreateMissingCompany)
	if err != nil {
		log.WithError(err).Warn("Company matching failed, importing without company link")
	}
	result.CompanyMatch = companyMatch

	pubMatches, publications, err := r.matchPublications(ctx, destination, merged.CompanyName)
	if err != nil {
		log.WithError(err).Warn("Publication matching failed")
	} else {
		result.PublicationMatches = pubMatches
	}

	importedFrom := candidate.ID
	contact := &models.Contact{
		OrganizationID: destination,
		DisplayName:    merged.DisplayName,
		Emails:         merged.Emails,
		Position:       merged.Position,
		CompanyName:    merged.CompanyName,
		ImportedFrom:   &importedFrom,
	}
	saved, err := r.contacts.Create(ctx, contact)
	if err != nil {
		log.WithError(err).Error("Contact write failed, releasing claim")
		if relErr := r.candidates.Release(ctx, candidate.ID); relErr != nil {
			log.WithError(relErr).Error("Release failed, candidate stuck in manually_imported")
		}
		metrics.ImportsTotal.WithLabelValues("manual", "failed").Inc()
		return nil, err
	}
	result.ContactID = saved.ID

	candidate.Status = models.CandidateStatusManuallyImported
	candidate.ResolvedBy = &req.ResolvedBy

	if r.emitter.Enabled() {
		if err := r.emitter.EmitCandidateResolved(ctx, candidate); err != nil {
			log.WithError(err).Warn("Candidate event emission failed")
		}
		if err := r.emitter.EmitContactImported(ctx, saved, candidate.ID, "manual"); err != nil {
			log.WithError(err).Warn("Contact event emission failed")
		}
	}

	if r.projector.Enabled() {
		if err := r.projector.ProjectContact(ctx, saved); err != nil {
			log.WithError(err).Warn("Graph projection failed")
		}
		if company != nil {
			if err := r.projector.LinkWorksAt(ctx, saved, company); err != nil {
				log.WithError(err).Warn("Graph projection failed")
			}
		}
		for _, pub := range publications {
			if err := r.projector.LinkWritesFor(ctx, saved, pub); err != nil {
				log.WithError(err).Warn("Graph projection failed")
			}
		}
	}

	metrics.ImportsTotal.WithLabelValues("manual", "imported").Inc()
	log.WithFields(map[string]any{"contact_id": saved.ID, "organization_id": destination}).Info("Candidate manually imported")
	return result, nil
}

// matchCompany links the merged company name to the destination's closest
// company, creating one when allowed and nothing clears the floor.
func (r *Resolver) matchCompany(ctx context.Context, organizationID, companyName string, createMissing bool) (*models.CompanyMatch, *models.Company, error) {
	if companyName == "" {
		return nil, nil, nil
	}

	companies, err := r.companies.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, nil, err
	}

	var best *models.Company
	bestScore := 0.0
	for _, c := range companies {
		score := r.scorer.ScoreCompanyName(companyName, c.Name)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}

	if best != nil && bestScore >= companyMatchFloor {
		return &models.CompanyMatch{CompanyID: best.ID, CompanyName: best.Name, Confidence: bestScore}, best, nil
	}

	if !createMissing {
		return nil, nil, nil
	}

	created, err := r.companies.Create(ctx, &models.Company{OrganizationID: organizationID, Name: companyName})
	if err != nil {
		return nil, nil, err
	}
	return &models.CompanyMatch{CompanyID: created.ID, CompanyName: created.Name, Confidence: 1.0}, created, nil
}

// matchPublications returns destination publications whose names clear the
// floor against the merged company name. Contacts in this domain often list
// their outlet as their company.
func (r *Resolver) matchPublications(ctx context.Context, organizationID, companyName string) ([]models.PublicationMatch, []*models.Publication, error) {
	if companyName == "" {
		return []models.PublicationMatch{}, nil, nil
	}

	publications, err := r.publications.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, nil, err
	}

	matches := make([]models.PublicationMatch, 0)
	var matched []*models.Publication
	for _, p := range publications {
		score := r.scorer.ScoreCompanyName(companyName, p.Name)
		if score >= companyMatchFloor {
			matches = append(matches, models.PublicationMatch{PublicationID: p.ID, Name: p.Name, Confidence: score})
			matched = append(matched, p)
		}
	}
	return matches, matched, nil
}
