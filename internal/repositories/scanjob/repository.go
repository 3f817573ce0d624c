// Package scanjob tracks scan executions. A partial unique index on
// status guarantees at most one running job, which is the authoritative
// mutual-exclusion lock for scans.
package scanjob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const uniqueViolationCode = "23505"

const selectColumns = "id, status, triggered_by, started_at, finished_at, organizations_scanned, contacts_scanned, candidates_created, candidates_updated, errors"

// Repository handles scan job persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new scan job repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type scanJobRow struct {
	ID                string                             `db:"id"`
	Status            string                             `db:"status"`
	Trigger           string                             `db:"triggered_by"`
	StartedAt         time.Time                          `db:"started_at"`
	FinishedAt        sql.NullTime                       `db:"finished_at"`
	OrgsScanned       int                                `db:"organizations_scanned"`
	ContactsScanned   int                                `db:"contacts_scanned"`
	CandidatesCreated int                                `db:"candidates_created"`
	CandidatesUpdated int                                `db:"candidates_updated"`
	Errors            database.JSONB[[]models.ScanError] `db:"errors"`
}

func (row *scanJobRow) toModel() *models.ScanJob {
	job := &models.ScanJob{
		ID:                row.ID,
		Status:            row.Status,
		Trigger:           row.Trigger,
		StartedAt:            row.StartedAt,
		OrganizationsScanned: row.OrgsScanned,
		ContactsScanned:      row.ContactsScanned,
		CandidatesCreated: row.CandidatesCreated,
		CandidatesUpdated: row.CandidatesUpdated,
		Errors:            row.Errors.Data,
	}
	if row.FinishedAt.Valid {
		job.FinishedAt = &row.FinishedAt.Time
	}
	return job
}

// Start acquires the scan lock by inserting a running job. Running jobs
// older than staleAfter are expired first so a crashed scan cannot wedge
// the system. Returns 409 when another scan is already running.
func (r *Repository) Start(ctx context.Context, trigger string, staleAfter time.Duration) (*models.ScanJob, error) {
	ctx, span := tracing.StartSpan(ctx, "scanjob.Repository.Start")
	defer span.End()

	if err := r.expireStale(ctx, staleAfter); err != nil {
		return nil, err
	}

	job := &models.ScanJob{
		ID:        uuid.New().String(),
		Status:    models.ScanJobStatusRunning,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("scan_jobs")
	sb.Cols("id", "status", "triggered_by", "started_at", "errors")
	sb.Values(job.ID, job.Status, job.Trigger, job.StartedAt, database.JSONB[[]models.ScanError]{Data: []models.ScanError{}})

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
			return nil, httperror.NewHTTPError(http.StatusConflict, "a scan is already running")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to start scan job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start scan job")
	}

	return job, nil
}

// expireStale fails any running job that exceeded the staleness timeout.
func (r *Repository) expireStale(ctx context.Context, staleAfter time.Duration) error {
	cutoff := time.Now().UTC().Add(-staleAfter)

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("scan_jobs")
	ub.Set(
		ub.Assign("status", models.ScanJobStatusFailed),
		ub.Assign("finished_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("status", models.ScanJobStatusRunning),
		ub.LessThan("started_at", cutoff),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to expire stale scan jobs")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to expire stale scan jobs")
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"expired": rows}).Warn("Expired stale running scan jobs")
	}
	return nil
}

// Complete marks a running job completed and records its counters.
func (r *Repository) Complete(ctx context.Context, id string, orgsScanned, contactsScanned, created, updated int, scanErrors []models.ScanError) error {
	ctx, span := tracing.StartSpan(ctx, "scanjob.Repository.Complete")
	defer span.End()

	if scanErrors == nil {
		scanErrors = []models.ScanError{}
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("scan_jobs")
	ub.Set(
		ub.Assign("status", models.ScanJobStatusCompleted),
		ub.Assign("finished_at", time.Now().UTC()),
		ub.Assign("organizations_scanned", orgsScanned),
		ub.Assign("contacts_scanned", contactsScanned),
		ub.Assign("candidates_created", created),
		ub.Assign("candidates_updated", updated),
		ub.Assign("errors", database.JSONB[[]models.ScanError]{Data: scanErrors}),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.ScanJobStatusRunning),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"scan_job_id": id}).Error("Failed to complete scan job")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete scan job")
	}
	return nil
}

// Fail marks a running job failed with the errors gathered so far.
func (r *Repository) Fail(ctx context.Context, id string, scanErrors []models.ScanError) error {
	ctx, span := tracing.StartSpan(ctx, "scanjob.Repository.Fail")
	defer span.End()

	if scanErrors == nil {
		scanErrors = []models.ScanError{}
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("scan_jobs")
	ub.Set(
		ub.Assign("status", models.ScanJobStatusFailed),
		ub.Assign("finished_at", time.Now().UTC()),
		ub.Assign("errors", database.JSONB[[]models.ScanError]{Data: scanErrors}),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.ScanJobStatusRunning),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"scan_job_id": id}).Error("Failed to fail scan job")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to fail scan job")
	}
	return nil
}

// GetByID retrieves a scan job by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.ScanJob, error) {
	ctx, span := tracing.StartSpan(ctx, "scanjob.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("scan_jobs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row scanJobRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("scan job %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get scan job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get scan job")
	}

	return row.toModel(), nil
}

// LastCompleted returns the most recently completed scan, or nil when no
// scan has completed yet.
func (r *Repository) LastCompleted(ctx context.Context) (*models.ScanJob, error) {
	ctx, span := tracing.StartSpan(ctx, "scanjob.Repository.LastCompleted")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("scan_jobs")
	sb.Where(sb.Equal("status", models.ScanJobStatusCompleted))
	sb.OrderBy("finished_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var row scanJobRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get last completed scan")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get last completed scan")
	}

	return row.toModel(), nil
}

// List returns scan history, newest first
func (r *Repository) List(ctx context.Context, limit, offset int) ([]*models.ScanJob, error) {
	ctx, span := tracing.StartSpan(ctx, "scanjob.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("scan_jobs")
	sb.OrderBy("started_at DESC")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var rows []scanJobRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list scan jobs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list scan jobs")
	}

	jobs := make([]*models.ScanJob, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toModel())
	}
	return jobs, nil
}
