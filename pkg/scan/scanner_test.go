package scan

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scoring"
)

type stubContacts struct {
	orgs     []string
	byOrg    map[string][]*models.Contact
	existing map[string]bool
}

func (s *stubContacts) ListOrganizations(ctx context.Context) ([]string, error) {
	return s.orgs, nil
}

func (s *stubContacts) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*models.Contact, error) {
	return s.byOrg[orgID], nil
}

func (s *stubContacts) FilterExisting(ctx context.Context, ids []string) (map[string]bool, error) {
	if s.existing != nil {
		return s.existing, nil
	}
	all := make(map[string]bool, len(ids))
	for _, id := range ids {
		all[id] = true
	}
	return all, nil
}

type stubCandidates struct {
	pending       []*models.Candidate
	created       []*models.Candidate
	updates       []string
	staled        []string
	conflictsLeft int
	fresh         *models.Candidate
}

func (s *stubCandidates) GetUnresolved(ctx context.Context) ([]*models.Candidate, error) {
	return s.pending, nil
}

func (s *stubCandidates) GetByID(ctx context.Context, id string) (*models.Candidate, error) {
	return s.fresh, nil
}

func (s *stubCandidates) Create(ctx context.Context, c *models.Candidate) (*models.Candidate, error) {
	c.ID = "created-" + string(rune('a'+len(s.created)))
	s.created = append(s.created, c)
	return c, nil
}

func (s *stubCandidates) UpdateVariants(ctx context.Context, id string, variants []models.Variant, score float64, expectedVersion int) error {
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return models.ErrVersionConflict
	}
	s.updates = append(s.updates, id)
	return nil
}

func (s *stubCandidates) MarkStale(ctx context.Context, ids []string) error {
	s.staled = append(s.staled, ids...)
	return nil
}

type stubJobs struct {
	startErr  error
	completed bool
	failed    bool
	created   int
	updated   int
}

func (s *stubJobs) Start(ctx context.Context, trigger string, staleAfter time.Duration) (*models.ScanJob, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	return &models.ScanJob{ID: "job-1", Status: models.ScanJobStatusRunning, Trigger: trigger, StartedAt: time.Now().UTC()}, nil
}

func (s *stubJobs) Complete(ctx context.Context, id string, orgs, contacts, created, updated int, errs []models.ScanError) error {
	s.completed = true
	s.created = created
	s.updated = updated
	return nil
}

func (s *stubJobs) Fail(ctx context.Context, id string, errs []models.ScanError) error {
	s.failed = true
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestScanner(contacts *stubContacts, candidates *stubCandidates, jobs *stubJobs) *Scanner {
	cfg := Config{MinClusterScore: 0.6, MaxContactsPerScan: 1000, StaleAfter: 30 * time.Minute, RetryCount: 3}
	return NewScanner(contacts, candidates, jobs, scoring.NewScorer(), nil, nil, cfg, testLogger())
}

func contact(id, org, name, email string) *models.Contact {
	return &models.Contact{ID: id, OrganizationID: org, DisplayName: name, Emails: []string{email}}
}

func TestRun_CreatesCandidateAcrossOrganizations(t *testing.T) {
	contacts := &stubContacts{
		orgs: []string{"org-a", "org-b"},
		byOrg: map[string][]*models.Contact{
			"org-a": {contact("c1", "org-a", "Jane Doe", "jane@example.com")},
			"org-b": {contact("c2", "org-b", "Jane Doe", "jane@example.com")},
		},
	}
	candidates := &stubCandidates{}
	jobs := &stubJobs{}

	result, err := newTestScanner(contacts, candidates, jobs).Run(context.Background(), models.ScanTriggerManual)
	require.NoError(t, err)

	require.Len(t, candidates.created, 1)
	created := candidates.created[0]
	assert.Len(t, created.Variants, 2)
	assert.GreaterOrEqual(t, created.Score, 0.95)
	assert.True(t, jobs.completed)
	assert.Equal(t, 1, jobs.created)
	assert.Equal(t, 1, result.CandidatesCreated)
	assert.Equal(t, 2, result.OrganizationsScanned)
}

func TestRun_NeverClustersWithinOneOrganization(t *testing.T) {
	contacts := &stubContacts{
		orgs: []string{"org-a"},
		byOrg: map[string][]*models.Contact{
			"org-a": {
				contact("c1", "org-a", "Jane Doe", "jane@example.com"),
				contact("c2", "org-a", "Jane Doe", "jane@example.com"),
			},
		},
	}
	candidates := &stubCandidates{}
	jobs := &stubJobs{}

	_, err := newTestScanner(contacts, candidates, jobs).Run(context.Background(), models.ScanTriggerManual)
	require.NoError(t, err)

	assert.Empty(t, candidates.created)
	assert.True(t, jobs.completed)
}

func TestRun_DissimilarContactsStayApart(t *testing.T) {
	contacts := &stubContacts{
		orgs: []string{"org-a", "org-b"},
		byOrg: map[string][]*models.Contact{
			"org-a": {contact("c1", "org-a", "Jane Doe", "jane@acme.com")},
			"org-b": {contact("c2", "org-b", "Robert Krueger", "bob@krueger.io")},
		},
	}
	candidates := &stubCandidates{}
	jobs := &stubJobs{}

	_, err := newTestScanner(contacts, candidates, jobs).Run(context.Background(), models.ScanTriggerManual)
	require.NoError(t, err)

	assert.Empty(t, candidates.created)
}

func TestRun_AttachesToExistingCandidate(t *testing.T) {
	existing := &models.Candidate{
		ID:      "cand-1",
		Status:  models.CandidateStatusPending,
		Version: 2,
		Variants: []models.Variant{
			{OrganizationID: "org-a", SourceContactID: "c1", DisplayName: "Jane Doe", NormalizedName: "jane doe", Emails: []string{"jane@example.com"}},
			{OrganizationID: "org-b", SourceContactID: "c2", DisplayName: "Jane Doe", NormalizedName: "jane doe", Emails: []string{"jane@example.com"}},
		},
		Score: 1.0,
	}
	contacts := &stubContacts{
		orgs: []string{"org-c"},
		byOrg: map[string][]*models.Contact{
			"org-c": {contact("c3", "org-c", "Jane Doe", "jane@example.com")},
		},
		existing: map[string]bool{"c1": true, "c2": true},
	}
	candidates := &stubCandidates{pending: []*models.Candidate{existing}}
	jobs := &stubJobs{}

	_, err := newTestScanner(contacts, candidates, jobs).Run(context.Background(), models.ScanTriggerManual)
	require.NoError(t, err)

	assert.Empty(t, candidates.created)
	require.Equal(t, []string{"cand-1"}, candidates.updates)
	assert.Len(t, existing.Variants, 3)
	assert.True(t, existing.HasOrganization("org-c"))
}

func TestRun_RefreshesExistingVariant(t *testing.T) {
	existing := &models.Candidate{
		ID:      "cand-1",
		Status:  models.CandidateStatusPending,
		Version: 1,
		Variants: []models.Variant{
			{OrganizationID: "org-a", SourceContactID: "c1", DisplayName: "Jane Doe", NormalizedName: "jane doe", Emails: []string{"jane@example.com"}},
			{OrganizationID: "org-b", SourceContactID: "c2", DisplayName: "Jane Doe", NormalizedName: "jane doe", Emails: []string{"jane@example.com"}},
		},
		Score: 1.0,
	}
	contacts := &stubContacts{
		orgs: []string{"org-a"},
		byOrg: map[string][]*models.Contact{
			"org-a": {contact("c1", "org-a", "Jane A. Doe", "jane@example.com")},
		},
		existing: map[string]bool{"c1": true, "c2": true},
	}
	candidates := &stubCandidates{pending: []*models.Candidate{existing}}
	jobs := &stubJobs{}

	_, err := newTestScanner(contacts, candidates, jobs).Run(context.Background(), models.ScanTriggerManual)
	require.NoError(t, err)

	require.Equal(t, []string{"cand-1"}, candidates.updates)
	assert.Len(t, existing.Variants, 2)
	assert.Equal(t, "Jane A. Doe", existing.Variants[0].DisplayName)
}

func TestRun_MarksStaleCandidates(t *testing.T) {
	gone := &models.Candidate{
		ID:      "cand-1",
		Status:  models.CandidateStatusPending,
		Version: 1,
		Variants: []models.Variant{
			{OrganizationID: "org-a", SourceContactID: "deleted-1", NormalizedName: "jane doe"},
			{OrganizationID: "org-b", SourceContactID: "deleted-2", NormalizedName: "jane doe"},
		},
	}
	contacts := &stubContacts{
		orgs:     []string{"org-a"},
		byOrg:    map[string][]*models.Contact{},
		existing: map[string]bool{},
	}
	candidates := &stubCandidates{pending: []*models.Candidate{gone}}
	jobs := &stubJobs{}

	_, err := newTestScanner(contacts, candidates, jobs).Run(context.Background(), models.ScanTriggerManual)
	require.NoError(t, err)

	assert.Equal(t, []string{"cand-1"}, candidates.staled)
}

func TestRun_RetriesLostOptimisticUpdate(t *testing.T) {
	existing := &models.Candidate{
		ID:      "cand-1",
		Status:  models.CandidateStatusPending,
		Version: 1,
		Variants: []models.Variant{
			{OrganizationID: "org-a", SourceContactID: "c1", DisplayName: "Jane Doe", NormalizedName: "jane doe", Emails: []string{"jane@example.com"}},
			{OrganizationID: "org-b", SourceContactID: "c2", DisplayName: "Jane Doe", NormalizedName: "jane doe", Emails: []string{"jane@example.com"}},
		},
		Score: 1.0,
	}
	fresh := &models.Candidate{
		ID:       "cand-1",
		Status:   models.CandidateStatusPending,
		Version:  2,
		Variants: append([]models.Variant(nil), existing.Variants...),
		Score:    1.0,
	}
	contacts := &stubContacts{
		orgs: []string{"org-a"},
		byOrg: map[string][]*models.Contact{
			"org-a": {contact("c1", "org-a", "Jane A. Doe", "jane@example.com")},
		},
		existing: map[string]bool{"c1": true, "c2": true},
	}
	candidates := &stubCandidates{
		pending:       []*models.Candidate{existing},
		conflictsLeft: 1,
		fresh:         fresh,
	}
	jobs := &stubJobs{}

	_, err := newTestScanner(contacts, candidates, jobs).Run(context.Background(), models.ScanTriggerManual)
	require.NoError(t, err)

	require.Equal(t, []string{"cand-1"}, candidates.updates)
	assert.Equal(t, "Jane A. Doe", fresh.Variants[0].DisplayName)
}

func TestRun_LockConflictPassesThrough(t *testing.T) {
	conflict := assert.AnError
	contacts := &stubContacts{}
	candidates := &stubCandidates{}
	jobs := &stubJobs{startErr: conflict}

	_, err := newTestScanner(contacts, candidates, jobs).Run(context.Background(), models.ScanTriggerCron)
	assert.ErrorIs(t, err, conflict)
	assert.False(t, jobs.completed)
	assert.Empty(t, candidates.created)
}
