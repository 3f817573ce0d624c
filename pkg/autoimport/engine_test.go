package autoimport

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

type stubCandidates struct {
	importable []*models.Candidate
	claimDeny  map[string]bool
	claims     []string
	released   []string
}

func (s *stubCandidates) GetImportable(ctx context.Context, minScore float64, minVariants, limit int) ([]*models.Candidate, error) {
	return s.importable, nil
}

func (s *stubCandidates) ClaimForImport(ctx context.Context, id, toStatus, actor string) (bool, error) {
	if s.claimDeny[id] {
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
	contact.ID = "contact-" + contact.OrganizationID
	s.created = append(s.created, contact)
	return contact, nil
}

type stubSettings struct {
	settings *models.MatchingSettings
	recorded bool
}

func (s *stubSettings) Get(ctx context.Context) (*models.MatchingSettings, error) {
	return s.settings, nil
}

func (s *stubSettings) RecordAutoImportRun(ctx context.Context, lastRun, nextRun time.Time) error {
	s.recorded = true
	return nil
}

type stubReconciler struct {
	calls       []string
	suggestions map[string]string
}

func (s *stubReconciler) ReconcileField(ctx context.Context, field string, values []string) (string, error) {
	s.calls = append(s.calls, field)
	return s.suggestions[field], nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func enabledSettings() *models.MatchingSettings {
	return &models.MatchingSettings{
		AutoImportEnabled:         true,
		AutoImportIntervalMinutes: 60,
		AutoImportMinScore:        0.9,
	}
}

func eligibleCandidate() *models.Candidate {
	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	return &models.Candidate{
		ID:     "cand-1",
		Status: models.CandidateStatusPending,
		Score:  0.97,
		Variants: []models.Variant{
			{OrganizationID: "org-a", SourceContactID: "c1", DisplayName: "Jane Doe", NormalizedName: "jane doe", Emails: []string{"jane@example.com"}, Position: "Editor", CapturedAt: older},
			{OrganizationID: "org-b", SourceContactID: "c2", DisplayName: "Jane Doe", NormalizedName: "jane doe", Emails: []string{"jane@example.com"}, Position: "Editor", CapturedAt: newer},
		},
	}
}

func newTestEngine(candidates *stubCandidates, contacts *stubContacts, settings *stubSettings, policy DestinationPolicy) *Engine {
	logger := testLogger()
	return NewEngine(candidates, contacts, settings, merging.NewFieldMerger(logger), nil, policy, nil, nil, Config{BatchSize: 10}, logger)
}

func TestRun_DisabledIsNoOp(t *testing.T) {
	candidates := &stubCandidates{importable: []*models.Candidate{eligibleCandidate()}}
	contacts := &stubContacts{}
	settings := &stubSettings{settings: &models.MatchingSettings{AutoImportEnabled: false}}

	stats, err := newTestEngine(candidates, contacts, settings, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &models.ImportStats{}, stats)
	assert.Empty(t, candidates.claims)
	assert.Empty(t, contacts.created)
}

func TestRun_ImportsIntoMostRecentOrganization(t *testing.T) {
	candidates := &stubCandidates{importable: []*models.Candidate{eligibleCandidate()}}
	contacts := &stubContacts{}
	settings := &stubSettings{settings: enabledSettings()}

	stats, err := newTestEngine(candidates, contacts, settings, PrimaryVariantPolicy{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Imported)
	require.Len(t, contacts.created, 1)
	written := contacts.created[0]
	assert.Equal(t, "org-b", written.OrganizationID)
	assert.Equal(t, "Jane Doe", written.DisplayName)
	assert.Equal(t, []string{"jane@example.com"}, written.Emails)
	require.NotNil(t, written.ImportedFrom)
	assert.Equal(t, "cand-1", *written.ImportedFrom)
	assert.True(t, settings.recorded)
}

func TestRun_AllOrganizationsPolicyWritesEverywhere(t *testing.T) {
	candidates := &stubCandidates{importable: []*models.Candidate{eligibleCandidate()}}
	contacts := &stubContacts{}
	settings := &stubSettings{settings: enabledSettings()}

	stats, err := newTestEngine(candidates, contacts, settings, AllOrganizationsPolicy{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Imported)
	require.Len(t, contacts.created, 2)
	orgs := []string{contacts.created[0].OrganizationID, contacts.created[1].OrganizationID}
	assert.ElementsMatch(t, []string{"org-a", "org-b"}, orgs)
}

func TestRun_LostClaimCountsAsSkipped(t *testing.T) {
	candidates := &stubCandidates{
		importable: []*models.Candidate{eligibleCandidate()},
		claimDeny:  map[string]bool{"cand-1": true},
	}
	contacts := &stubContacts{}
	settings := &stubSettings{settings: enabledSettings()}

	stats, err := newTestEngine(candidates, contacts, settings, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, contacts.created)
}

func TestRun_WriteFailureReleasesClaim(t *testing.T) {
	candidates := &stubCandidates{importable: []*models.Candidate{eligibleCandidate()}}
	contacts := &stubContacts{failErr: assert.AnError}
	settings := &stubSettings{settings: enabledSettings()}

	stats, err := newTestEngine(candidates, contacts, settings, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, []string{"cand-1"}, candidates.released)
}

func TestRun_AiMergeConsultsReconciler(t *testing.T) {
	candidate := eligibleCandidate()
	candidate.Variants[0].Position = "Editor"
	candidate.Variants[1].Position = "Senior Editor"

	candidates := &stubCandidates{importable: []*models.Candidate{candidate}}
	contacts := &stubContacts{}
	sets := enabledSettings()
	sets.UseAiMerge = true
	settings := &stubSettings{settings: sets}
	rec := &stubReconciler{suggestions: map[string]string{"position": "Senior Editor"}}

	logger := testLogger()
	engine := NewEngine(candidates, contacts, settings, merging.NewFieldMerger(logger), rec, PrimaryVariantPolicy{}, nil, nil, Config{BatchSize: 10}, logger)

	stats, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Imported)
	assert.Contains(t, rec.calls, "position")
	require.Len(t, contacts.created, 1)
	assert.Equal(t, "Senior Editor", contacts.created[0].Position)
}

func TestNewPolicy(t *testing.T) {
	assert.IsType(t, AllOrganizationsPolicy{}, NewPolicy("all_organizations"))
	assert.IsType(t, PrimaryVariantPolicy{}, NewPolicy("primary_variant"))
	assert.IsType(t, PrimaryVariantPolicy{}, NewPolicy(""))
}
