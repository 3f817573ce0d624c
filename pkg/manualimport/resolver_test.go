package manualimport

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scoring"
)

type stubCandidates struct {
	candidate *models.Candidate
	claimDeny bool
	claims    []string
	released  []string
}

func (s *stubCandidates) GetByID(ctx context.Context, id string) (*models.Candidate, error) {
	return s.candidate, nil
}

func (s *stubCandidates) ClaimForImport(ctx context.Context, id, toStatus, actor string) (bool, error) {
	if s.claimDeny {
		return false, nil
	}
	s.claims = append(s.claims, id)
	return true, nil
}

func (s *stubCandidates) Release(ctx context.Context, id string) error {
	s.released = append(s.released, id)
	return nil
}

type stubContacts struct {
	created []*models.Contact
	failErr error
}

func (s *stubContacts) Create(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	if s.failErr != nil {
		return nil, s.failErr
	}
	contact.ID = "contact-1"
	s.created = append(s.created, contact)
	return contact, nil
}

type stubCompanies struct {
	companies []*models.Company
	created   []*models.Company
}

func (s *stubCompanies) ListByOrganization(ctx context.Context, organizationID string) ([]*models.Company, error) {
	return s.companies, nil
}

func (s *stubCompanies) Create(ctx context.Context, company *models.Company) (*models.Company, error) {
	company.ID = "company-new"
	s.created = append(s.created, company)
	return company, nil
}

type stubPublications struct {
	publications []*models.Publication
}

func (s *stubPublications) ListByOrganization(ctx context.Context, organizationID string) ([]*models.Publication, error) {
	return s.publications, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func pendingCandidate() *models.Candidate {
	captured := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return &models.Candidate{
		ID:     "cand-1",
		Status: models.CandidateStatusPending,
		Score:  0.92,
		Variants: []models.Variant{
			{OrganizationID: "org-a", SourceContactID: "c1", DisplayName: "Jane Doe", NormalizedName: "jane doe", Emails: []string{"jane@example.com"}, Position: "Editor", CompanyNameRaw: "The Daily Planet", CapturedAt: captured},
			{OrganizationID: "org-b", SourceContactID: "c2", DisplayName: "Jane M. Doe", NormalizedName: "jane m doe", Emails: []string{"jane.doe@daily.example"}, CapturedAt: captured},
		},
	}
}

func newTestResolver(candidates *stubCandidates, contacts *stubContacts, companies *stubCompanies, publications *stubPublications) *Resolver {
	logger := testLogger()
	return NewResolver(candidates, contacts, companies, publications, merging.NewFieldMerger(logger), nil, scoring.NewScorer(), nil, nil, logger)
}

func TestImport_SelectedVariantIsAuthoritative(t *testing.T) {
	candidates := &stubCandidates{candidate: pendingCandidate()}
	contacts := &stubContacts{}
	companies := &stubCompanies{}
	publications := &stubPublications{}

	result, err := newTestResolver(candidates, contacts, companies, publications).Import(context.Background(), Request{
		CandidateID:          "cand-1",
		SelectedVariantIndex: 0,
		ResolvedBy:           "user-7",
	})
	require.NoError(t, err)

	assert.Equal(t, "contact-1", result.ContactID)
	require.Len(t, contacts.created, 1)
	written := contacts.created[0]
	assert.Equal(t, "org-a", written.OrganizationID)
	assert.Equal(t, "Jane Doe", written.DisplayName)
	assert.Equal(t, "Editor", written.Position)
	assert.Contains(t, written.Emails, "jane@example.com")
	assert.Contains(t, written.Emails, "jane.doe@daily.example")
	assert.Equal(t, []string{"cand-1"}, candidates.claims)
}

func TestImport_DestinationOverride(t *testing.T) {
	candidates := &stubCandidates{candidate: pendingCandidate()}
	contacts := &stubContacts{}

	_, err := newTestResolver(candidates, contacts, &stubCompanies{}, &stubPublications{}).Import(context.Background(), Request{
		CandidateID:               "cand-1",
		SelectedVariantIndex:      0,
		DestinationOrganizationID: "org-b",
		ResolvedBy:                "user-7",
	})
	require.NoError(t, err)

	require.Len(t, contacts.created, 1)
	assert.Equal(t, "org-b", contacts.created[0].OrganizationID)
}

func TestImport_MatchesExistingCompany(t *testing.T) {
	candidates := &stubCandidates{candidate: pendingCandidate()}
	companies := &stubCompanies{companies: []*models.Company{
		{ID: "company-1", OrganizationID: "org-a", Name: "The Daily Planet"},
		{ID: "company-2", OrganizationID: "org-a", Name: "Acme Corp"},
	}}

	result, err := newTestResolver(candidates, &stubContacts{}, companies, &stubPublications{}).Import(context.Background(), Request{
		CandidateID:          "cand-1",
		SelectedVariantIndex: 0,
		ResolvedBy:           "user-7",
	})
	require.NoError(t, err)

	require.NotNil(t, result.CompanyMatch)
	assert.Equal(t, "company-1", result.CompanyMatch.CompanyID)
	assert.GreaterOrEqual(t, result.CompanyMatch.Confidence, 0.75)
	assert.Empty(t, companies.created)
}

func TestImport_CreatesMissingCompanyWhenAsked(t *testing.T) {
	candidates := &stubCandidates{candidate: pendingCandidate()}
	companies := &stubCompanies{}

	result, err := newTestResolver(candidates, &stubContacts{}, companies, &stubPublications{}).Import(context.Background(), Request{
		CandidateID:          "cand-1",
		SelectedVariantIndex: 0,
		CreateMissingCompany: true,
		ResolvedBy:           "user-7",
	})
	require.NoError(t, err)

	require.NotNil(t, result.CompanyMatch)
	assert.Equal(t, "company-new", result.CompanyMatch.CompanyID)
	require.Len(t, companies.created, 1)
	assert.Equal(t, "The Daily Planet", companies.created[0].Name)
}

func TestImport_MatchesPublications(t *testing.T) {
	candidates := &stubCandidates{candidate: pendingCandidate()}
	publications := &stubPublications{publications: []*models.Publication{
		{ID: "pub-1", OrganizationID: "org-a", Name: "The Daily Planet"},
		{ID: "pub-2", OrganizationID: "org-a", Name: "Gotham Gazette"},
	}}

	result, err := newTestResolver(candidates, &stubContacts{}, &stubCompanies{}, publications).Import(context.Background(), Request{
		CandidateID:          "cand-1",
		SelectedVariantIndex: 0,
		ResolvedBy:           "user-7",
	})
	require.NoError(t, err)

	require.Len(t, result.PublicationMatches, 1)
	assert.Equal(t, "pub-1", result.PublicationMatches[0].PublicationID)
}

func TestImport_RejectsOutOfRangeVariant(t *testing.T) {
	candidates := &stubCandidates{candidate: pendingCandidate()}

	_, err := newTestResolver(candidates, &stubContacts{}, &stubCompanies{}, &stubPublications{}).Import(context.Background(), Request{
		CandidateID:          "cand-1",
		SelectedVariantIndex: 5,
		ResolvedBy:           "user-7",
	})
	require.Error(t, err)

	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, 400, httperror.GetStatusCode(err))
	assert.Empty(t, candidates.claims)
}

func TestImport_ResolvedCandidateConflicts(t *testing.T) {
	resolved := pendingCandidate()
	resolved.Status = models.CandidateStatusAutoImported
	candidates := &stubCandidates{candidate: resolved}

	_, err := newTestResolver(candidates, &stubContacts{}, &stubCompanies{}, &stubPublications{}).Import(context.Background(), Request{
		CandidateID:          "cand-1",
		SelectedVariantIndex: 0,
		ResolvedBy:           "user-7",
	})
	require.Error(t, err)

	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, 409, httperror.GetStatusCode(err))
}

func TestImport_WriteFailureReleasesClaim(t *testing.T) {
	candidates := &stubCandidates{candidate: pendingCandidate()}
	contacts := &stubContacts{failErr: assert.AnError}

	_, err := newTestResolver(candidates, contacts, &stubCompanies{}, &stubPublications{}).Import(context.Background(), Request{
		CandidateID:          "cand-1",
		SelectedVariantIndex: 0,
		ResolvedBy:           "user-7",
	})
	require.Error(t, err)

	assert.Equal(t, []string{"cand-1"}, candidates.released)
}

func TestImport_SecondVariantDefaultsDestination(t *testing.T) {
	candidates := &stubCandidates{candidate: pendingCandidate()}
	contacts := &stubContacts{}

	_, err := newTestResolver(candidates, contacts, &stubCompanies{}, &stubPublications{}).Import(context.Background(), Request{
		CandidateID:          "cand-1",
		SelectedVariantIndex: 1,
		ResolvedBy:           "user-7",
	})
	require.NoError(t, err)

	require.Len(t, contacts.created, 1)
	written := contacts.created[0]
	assert.Equal(t, "org-b", written.OrganizationID)
	assert.Equal(t, "Jane M. Doe", written.DisplayName)
	// The selected variant has no position, so the other variant fills it.
	assert.Equal(t, "Editor", written.Position)
}

type stubReconciler struct {
	calls int
}

func (s *stubReconciler) ReconcileField(ctx context.Context, field string, values []string) (string, error) {
	s.calls++
	return values[0], nil
}

func TestImport_AiMergeConsultsReconciler(t *testing.T) {
	candidate := pendingCandidate()
	candidate.Variants = append(candidate.Variants, models.Variant{
		OrganizationID:  "org-c",
		SourceContactID: "c3",
		DisplayName:     "Jane Doe",
		NormalizedName:  "jane doe",
		Emails:          []string{"jane@example.com"},
		Position:        "Senior Editor",
		CapturedAt:      time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
	})
	candidates := &stubCandidates{candidate: candidate}
	contacts := &stubContacts{}
	rec := &stubReconciler{}
	logger := testLogger()
	resolver := NewResolver(candidates, contacts, &stubCompanies{}, &stubPublications{}, merging.NewFieldMerger(logger), rec, scoring.NewScorer(), nil, nil, logger)

	// Selecting the variant with no position forces a fill from the two
	// disagreeing variants.
	_, err := resolver.Import(context.Background(), Request{
		CandidateID:          "cand-1",
		SelectedVariantIndex: 1,
		UseAiMerge:           true,
		ResolvedBy:           "user-7",
	})
	require.NoError(t, err)

	assert.Positive(t, rec.calls)
	require.Len(t, contacts.created, 1)
	assert.Contains(t, []string{"Editor", "Senior Editor"}, contacts.created[0].Position)
}
