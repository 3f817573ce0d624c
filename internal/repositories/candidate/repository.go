// Package candidate persists matching candidates. Concurrency rules:
// variant updates go through an optimistic version check, and resolution is
// a single conditional status transition so at most one importer wins.
package candidate

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const selectColumns = "id, variants, score, status, version, resolved_by, resolved_at, created_at, updated_at"

// Repository handles candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type candidateRow struct {
	ID         string                           `db:"id"`
	Variants   database.JSONB[[]models.Variant] `db:"variants"`
	Score      float64                          `db:"score"`
	Status     string                           `db:"status"`
	Version    int                              `db:"version"`
	ResolvedBy sql.NullString                   `db:"resolved_by"`
	ResolvedAt sql.NullTime                     `db:"resolved_at"`
	CreatedAt  time.Time                        `db:"created_at"`
	UpdatedAt  time.Time                        `db:"updated_at"`
}

func (row *candidateRow) toModel() *models.Candidate {
	c := &models.Candidate{
		ID:        row.ID,
		Variants:  row.Variants.Data,
		Score:     row.Score,
		Status:    row.Status,
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.ResolvedBy.Valid {
		c.ResolvedBy = &row.ResolvedBy.String
	}
	if row.ResolvedAt.Valid {
		c.ResolvedAt = &row.ResolvedAt.Time
	}
	return c
}

// Create creates a new pending candidate
func (r *Repository) Create(ctx context.Context, candidate *models.Candidate) (*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Create")
	defer span.End()

	if len(candidate.Variants) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "a candidate requires at least one variant")
	}

	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}
	candidate.CreatedAt = time.Now().UTC()
	candidate.UpdatedAt = candidate.CreatedAt
	candidate.Status = models.CandidateStatusPending
	candidate.Version = 1

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_candidates")
	sb.Cols("id", "variants", "score", "status", "version", "created_at", "updated_at")
	sb.Values(candidate.ID, database.JSONB[[]models.Variant]{Data: candidate.Variants}, candidate.Score, candidate.Status, candidate.Version, candidate.CreatedAt, candidate.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidate.ID}).Error("Failed to create candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create candidate")
	}

	return candidate, nil
}

// GetByID retrieves a candidate by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("match_candidates")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row candidateRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("candidate %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get candidate")
	}

	return row.toModel(), nil
}

// List retrieves candidates, optionally filtered by status
func (r *Repository) List(ctx context.Context, status string, limit, offset int) ([]*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("match_candidates")
	if status != "" {
		sb.Where(sb.Equal("status", status))
	}
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var rows []candidateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list candidates")
	}

	candidates := make([]*models.Candidate, 0, len(rows))
	for i := range rows {
		candidates = append(candidates, rows[i].toModel())
	}
	return candidates, nil
}

// GetUnresolved returns all pending candidates for scan-time matching
func (r *Repository) GetUnresolved(ctx context.Context) ([]*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetUnresolved")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("match_candidates")
	sb.Where(sb.Equal("status", models.CandidateStatusPending))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var rows []candidateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load unresolved candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load unresolved candidates")
	}

	candidates := make([]*models.Candidate, 0, len(rows))
	for i := range rows {
		candidates = append(candidates, rows[i].toModel())
	}
	return candidates, nil
}

// GetImportable returns pending candidates eligible for auto-import:
// at least minVariants variants and a score at or above minScore.
func (r *Repository) GetImportable(ctx context.Context, minScore float64, minVariants, limit int) ([]*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetImportable")
	defer span.End()

	if limit < 1 || limit > 1000 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("match_candidates")
	sb.Where(
		sb.Equal("status", models.CandidateStatusPending),
		sb.GreaterEqualThan("score", minScore),
		sb.GreaterEqualThan("jsonb_array_length(variants)", minVariants),
	)
	sb.OrderBy("score DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []candidateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load importable candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load importable candidates")
	}

	candidates := make([]*models.Candidate, 0, len(rows))
	for i := range rows {
		candidates = append(candidates, rows[i].toModel())
	}
	return candidates, nil
}

// UpdateVariants replaces a candidate's variants and score, guarded by the
// version the caller read. Returns ErrVersionConflict when another writer
// got there first.
func (r *Repository) UpdateVariants(ctx context.Context, id string, variants []models.Variant, score float64, expectedVersion int) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.UpdateVariants")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_candidates")
	ub.Set(
		ub.Assign("variants", database.JSONB[[]models.Variant]{Data: variants}),
		ub.Assign("score", score),
		"version = version + 1",
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("version", expectedVersion),
		ub.Equal("status", models.CandidateStatusPending),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id}).Error("Failed to update candidate variants")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update candidate")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrVersionConflict
	}
	return nil
}

// ClaimForImport atomically transitions a pending candidate to the given
// resolved status. Returns false when the candidate was no longer pending,
// which means another importer won the race or a human got there first.
func (r *Repository) ClaimForImport(ctx context.Context, id, toStatus, actor string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.ClaimForImport")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_candidates")
	ub.Set(
		ub.Assign("status", toStatus),
		ub.Assign("resolved_by", actor),
		ub.Assign("resolved_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.CandidateStatusPending),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id}).Error("Failed to claim candidate")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to claim candidate")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// Release reverts a claimed candidate to pending after a failed import so
// the next run can retry it.
func (r *Repository) Release(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Release")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_candidates")
	ub.Set(
		ub.Assign("status", models.CandidateStatusPending),
		"resolved_by = NULL",
		"resolved_at = NULL",
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id}).Error("Failed to release candidate")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to release candidate")
	}
	return nil
}

// UpdateStatus moves a candidate to a terminal status by operator action
// (reject). Only pending candidates can be transitioned.
func (r *Repository) UpdateStatus(ctx context.Context, id, status, actor string) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.UpdateStatus")
	defer span.End()

	claimed, err := r.ClaimForImport(ctx, id, status, actor)
	if err != nil {
		return err
	}
	if !claimed {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("candidate %s is not pending", id))
	}
	return nil
}

// MarkStale flags candidates whose source records are all gone. Stale
// candidates are excluded from auto-import.
func (r *Repository) MarkStale(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.MarkStale")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_candidates")
	ub.Set(
		ub.Assign("status", models.CandidateStatusStale),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}
	ub.Where(
		ub.In("id", anyIDs...),
		ub.Equal("status", models.CandidateStatusPending),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark candidates stale")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark candidates stale")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(ids)}).Debug("Marked candidates stale")
	return nil
}
