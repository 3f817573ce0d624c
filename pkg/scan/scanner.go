// Package scan walks every organization's contacts and maintains the set of
// cross-organization match candidates. Scans are mutually exclusive: the
// running scan job row in Postgres is the authoritative lock, with an
// optional Redis advisory lock as a cheap fast path in front of it.
package scan

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const lockKey = "contact-scan"

// ContactSource reads tenant contact data for scanning.
type ContactSource interface {
	ListOrganizations(ctx context.Context) ([]string, error)
	ListByOrganization(ctx context.Context, organizationID string, limit int) ([]*models.Contact, error)
	FilterExisting(ctx context.Context, ids []string) (map[string]bool, error)
}

// CandidateStore persists match candidates.
type CandidateStore interface {
	GetUnresolved(ctx context.Context) ([]*models.Candidate, error)
	GetByID(ctx context.Context, id string) (*models.Candidate, error)
	Create(ctx context.Context, candidate *models.Candidate) (*models.Candidate, error)
	UpdateVariants(ctx context.Context, id string, variants []models.Variant, score float64, expectedVersion int) error
	MarkStale(ctx context.Context, ids []string) error
}

// JobTracker records scan executions and enforces single-scan exclusion.
type JobTracker interface {
	Start(ctx context.Context, trigger string, staleAfter time.Duration) (*models.ScanJob, error)
	Complete(ctx context.Context, id string, orgsScanned, contactsScanned, created, updated int, scanErrors []models.ScanError) error
	Fail(ctx context.Context, id string, scanErrors []models.ScanError) error
}

// Config tunes a scanner.
type Config struct {
	MinClusterScore    float64
	MaxContactsPerScan int
	StaleAfter         time.Duration
	RetryCount         int
}

// Scanner runs full matching scans.
type Scanner struct {
	contacts   ContactSource
	candidates CandidateStore
	jobs       JobTracker
	scorer     *scoring.Scorer
	locker     *redis.Locker
	emitter    *events.Emitter
	logger     ectologger.Logger
	cfg        Config
}

// NewScanner creates a new scanner. locker and emitter may be nil.
func NewScanner(contacts ContactSource, candidates CandidateStore, jobs JobTracker, scorer *scoring.Scorer, locker *redis.Locker, emitter *events.Emitter, cfg Config, logger ectologger.Logger) *Scanner {
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 3
	}
	if cfg.MaxContactsPerScan < 1 {
		cfg.MaxContactsPerScan = 5000
	}
	return &Scanner{
		contacts:   contacts,
		candidates: candidates,
		jobs:       jobs,
		scorer:     scorer,
		locker:     locker,
		emitter:    emitter,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run executes one full scan. Returns 409 via the job tracker when another
// scan holds the lock.
func (s *Scanner) Run(ctx context.Context, trigger string) (*models.ScanResult, error) {
	ctx, span := tracing.StartSpan(ctx, "scan.Scanner.Run")
	defer span.End()

	started := time.Now()

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, lockKey, s.cfg.StaleAfter)
		if err == nil {
			defer lock.Release(context.WithoutCancel(ctx))
		} else if err != redis.ErrLockNotAcquired {
			// Redis trouble never blocks a scan, the job row still protects us.
			s.logger.WithContext(ctx).WithError(err).Warn("Advisory lock unavailable, relying on job lock")
		}
		// Lost advisory lock falls through to the job tracker, which is the
		// authority and returns the conflict.
	}

	job, err := s.jobs.Start(ctx, trigger, s.cfg.StaleAfter)
	if err != nil {
		metrics.ScansTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{"scan_job_id": job.ID, "trigger": trigger})
	log.Info("Scan started")

	outcome, scanErr := s.scanAll(ctx)
	if scanErr != nil {
		log.WithError(scanErr).Error("Scan failed")
		metrics.ScansTotal.WithLabelValues("failed").Inc()
		var errs []models.ScanError
		if outcome != nil {
			errs = outcome.errors
		}
		errs = append(errs, models.ScanError{Message: scanErr.Error()})
		if failErr := s.jobs.Fail(ctx, job.ID, errs); failErr != nil {
			log.WithError(failErr).Error("Failed to record scan failure")
		}
		return nil, scanErr
	}

	if err := s.jobs.Complete(ctx, job.ID, outcome.orgsScanned, outcome.contactsScanned, outcome.created, outcome.updated, outcome.errors); err != nil {
		return nil, err
	}

	duration := time.Since(started)
	metrics.ScansTotal.WithLabelValues("completed").Inc()
	metrics.ScanDuration.Observe(duration.Seconds())

	if s.emitter.Enabled() {
		finished := time.Now().UTC()
		job.Status = models.ScanJobStatusCompleted
		job.FinishedAt = &finished
		job.OrganizationsScanned = outcome.orgsScanned
		job.ContactsScanned = outcome.contactsScanned
		job.CandidatesCreated = outcome.created
		job.CandidatesUpdated = outcome.updated
		job.Errors = outcome.errors
		if err := s.emitter.EmitScanCompleted(ctx, job); err != nil {
			log.WithError(err).Warn("Scan event emission failed")
		}
	}

	log.WithFields(map[string]any{
		"organizations":      outcome.orgsScanned,
		"contacts":           outcome.contactsScanned,
		"candidates_created": outcome.created,
		"candidates_updated": outcome.updated,
		"errors":             len(outcome.errors),
		"duration_ms":        duration.Milliseconds(),
	}).Info("Scan completed")

	return &models.ScanResult{
		ScanJobID:            job.ID,
		OrganizationsScanned: outcome.orgsScanned,
		CandidatesCreated:    outcome.created,
		CandidatesUpdated:    outcome.updated,
		DurationMs:           duration.Milliseconds(),
	}, nil
}

type scanOutcome struct {
	orgsScanned     int
	contactsScanned int
	created         int
	updated         int
	errors          []models.ScanError
}

// scanAll loads a snapshot of every organization's contacts and reconciles
// the pending candidate set against it.
func (s *Scanner) scanAll(ctx context.Context) (*scanOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "scan.Scanner.scanAll")
	defer span.End()

	outcome := &scanOutcome{}

	orgIDs, err := s.contacts.ListOrganizations(ctx)
	if err != nil {
		return outcome, err
	}
	outcome.orgsScanned = len(orgIDs)

	capturedAt := time.Now().UTC()
	remaining := s.cfg.MaxContactsPerScan
	var snapshot []models.Variant
	for _, orgID := range orgIDs {
		if remaining <= 0 {
			s.logger.WithContext(ctx).WithFields(map[string]any{"limit": s.cfg.MaxContactsPerScan}).Warn("Contact cap reached, scan is partial")
			break
		}
		contacts, err := s.contacts.ListByOrganization(ctx, orgID, remaining)
		if err != nil {
			outcome.errors = append(outcome.errors, models.ScanError{OrganizationID: orgID, Message: err.Error()})
			continue
		}
		remaining -= len(contacts)
		outcome.contactsScanned += len(contacts)
		for _, c := range contacts {
			snapshot = append(snapshot, snapshotVariant(c, capturedAt))
		}
	}

	pending, err := s.candidates.GetUnresolved(ctx)
	if err != nil {
		return outcome, err
	}

	if err := s.retireStale(ctx, pending, outcome); err != nil {
		outcome.errors = append(outcome.errors, models.ScanError{Message: err.Error()})
	}

	s.reconcile(ctx, snapshot, pending, outcome)
	return outcome, nil
}

// retireStale marks candidates whose source contacts have all disappeared.
func (s *Scanner) retireStale(ctx context.Context, pending []*models.Candidate, outcome *scanOutcome) error {
	ids := make([]string, 0)
	for _, c := range pending {
		for _, v := range c.Variants {
			ids = append(ids, v.SourceContactID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	existing, err := s.contacts.FilterExisting(ctx, ids)
	if err != nil {
		return err
	}

	var stale []string
	for _, c := range pending {
		alive := false
		for _, v := range c.Variants {
			if existing[v.SourceContactID] {
				alive = true
				break
			}
		}
		if !alive {
			stale = append(stale, c.ID)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if err := s.candidates.MarkStale(ctx, stale); err != nil {
		return err
	}
	s.logger.WithContext(ctx).WithFields(map[string]any{"count": len(stale)}).Info("Retired stale candidates")
	return nil
}

func snapshotVariant(c *models.Contact, capturedAt time.Time) models.Variant {
	emails := make([]string, 0, len(c.Emails))
	for _, e := range c.Emails {
		if n := scoring.NormalizeEmail(e); n != "" {
			emails = append(emails, n)
		}
	}
	return models.Variant{
		OrganizationID:  c.OrganizationID,
		SourceContactID: c.ID,
		DisplayName:     c.DisplayName,
		NormalizedName:  scoring.NormalizeName(c.DisplayName),
		Emails:          emails,
		Position:        c.Position,
		CompanyNameRaw:  c.CompanyName,
		CapturedAt:      capturedAt,
	}
}
