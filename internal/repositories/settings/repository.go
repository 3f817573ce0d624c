// Package settings persists the single global matching settings document.
// The row is versioned; updates run in a transaction and carry the version
// the caller read so concurrent saves surface as conflicts instead of
// silently overwriting each other.
package settings

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// settingsRowID is the fixed primary key of the single settings row.
const settingsRowID = 1

const selectColumns = "use_ai_merge, auto_scan_enabled, auto_scan_interval_minutes, auto_scan_last_run, auto_scan_next_run, auto_import_enabled, auto_import_interval_minutes, auto_import_min_score, auto_import_last_run, auto_import_next_run, version, updated_at, updated_by"

// Defaults applied until an operator saves settings for the first time.
func defaultSettings() *models.MatchingSettings {
	return &models.MatchingSettings{
		UseAiMerge:                false,
		AutoScanEnabled:           false,
		AutoScanIntervalMinutes:   60,
		AutoImportEnabled:         false,
		AutoImportIntervalMinutes: 60,
		AutoImportMinScore:        0.9,
		Version:                   0,
	}
}

// Repository handles matching settings persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new settings repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type settingsRow struct {
	UseAiMerge                bool           `db:"use_ai_merge"`
	AutoScanEnabled           bool           `db:"auto_scan_enabled"`
	AutoScanIntervalMinutes   int            `db:"auto_scan_interval_minutes"`
	AutoScanLastRun           sql.NullTime   `db:"auto_scan_last_run"`
	AutoScanNextRun           sql.NullTime   `db:"auto_scan_next_run"`
	AutoImportEnabled         bool           `db:"auto_import_enabled"`
	AutoImportIntervalMinutes int            `db:"auto_import_interval_minutes"`
	AutoImportMinScore        float64        `db:"auto_import_min_score"`
	AutoImportLastRun         sql.NullTime   `db:"auto_import_last_run"`
	AutoImportNextRun         sql.NullTime   `db:"auto_import_next_run"`
	Version                   int            `db:"version"`
	UpdatedAt                 time.Time      `db:"updated_at"`
	UpdatedBy                 sql.NullString `db:"updated_by"`
}

func (row *settingsRow) toModel() *models.MatchingSettings {
	s := &models.MatchingSettings{
		UseAiMerge:                row.UseAiMerge,
		AutoScanEnabled:           row.AutoScanEnabled,
		AutoScanIntervalMinutes:   row.AutoScanIntervalMinutes,
		AutoImportEnabled:         row.AutoImportEnabled,
		AutoImportIntervalMinutes: row.AutoImportIntervalMinutes,
		AutoImportMinScore:        row.AutoImportMinScore,
		Version:                   row.Version,
		UpdatedAt:                 row.UpdatedAt,
		UpdatedBy:                 row.UpdatedBy.String,
	}
	if row.AutoScanLastRun.Valid {
		s.AutoScanLastRun = &row.AutoScanLastRun.Time
	}
	if row.AutoScanNextRun.Valid {
		s.AutoScanNextRun = &row.AutoScanNextRun.Time
	}
	if row.AutoImportLastRun.Valid {
		s.AutoImportLastRun = &row.AutoImportLastRun.Time
	}
	if row.AutoImportNextRun.Valid {
		s.AutoImportNextRun = &row.AutoImportNextRun.Time
	}
	return s
}

// Get returns the current settings, or the defaults when none were saved yet.
func (r *Repository) Get(ctx context.Context) (*models.MatchingSettings, error) {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns)
	sb.From("matching_settings")
	sb.Where(sb.Equal("id", settingsRowID))

	query, args := sb.Build()
	var row settingsRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return defaultSettings(), nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get matching settings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get matching settings")
	}

	return row.toModel(), nil
}

// Update saves the document, guarded by the version the caller read. The
// first save upserts over the defaults (version 0). Returns 409 when the
// stored version no longer matches.
func (r *Repository) Update(ctx context.Context, updated *models.MatchingSettings, updatedBy string) (*models.MatchingSettings, error) {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.Update")
	defer span.End()

	ctx, tx, err := database.GetTx(ctx, r.logger, r.db, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update matching settings")
	}
	defer tx.Rollback(ctx)

	var currentVersion int
	query := tx.Rebind("SELECT version FROM matching_settings WHERE id = ? FOR UPDATE")
	err = tx.GetContext(ctx, &currentVersion, query, settingsRowID)
	if err != nil && err.Error() != "sql: no rows in result set" {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read matching settings version")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update matching settings")
	}

	if currentVersion != updated.Version {
		return nil, httperror.NewHTTPError(http.StatusConflict, "matching settings were modified by someone else, reload and retry")
	}

	now := time.Now().UTC()
	updated.Version = currentVersion + 1
	updated.UpdatedAt = now
	updated.UpdatedBy = updatedBy

	upsert := tx.Rebind(`
		INSERT INTO matching_settings (
			id, use_ai_merge, auto_scan_enabled, auto_scan_interval_minutes,
			auto_import_enabled, auto_import_interval_minutes, auto_import_min_score,
			version, updated_at, updated_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			use_ai_merge = EXCLUDED.use_ai_merge,
			auto_scan_enabled = EXCLUDED.auto_scan_enabled,
			auto_scan_interval_minutes = EXCLUDED.auto_scan_interval_minutes,
			auto_import_enabled = EXCLUDED.auto_import_enabled,
			auto_import_interval_minutes = EXCLUDED.auto_import_interval_minutes,
			auto_import_min_score = EXCLUDED.auto_import_min_score,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by`)
	_, err = tx.ExecContext(ctx, upsert,
		settingsRowID, updated.UseAiMerge, updated.AutoScanEnabled, updated.AutoScanIntervalMinutes,
		updated.AutoImportEnabled, updated.AutoImportIntervalMinutes, updated.AutoImportMinScore,
		updated.Version, now, updatedBy)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to save matching settings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update matching settings")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update matching settings")
	}

	return updated, nil
}

// RecordAutoScanRun updates the auto-scan bookkeeping timestamps after a
// scheduled scan. Not versioned; it never touches operator-owned fields.
func (r *Repository) RecordAutoScanRun(ctx context.Context, lastRun, nextRun time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.RecordAutoScanRun")
	defer span.End()

	return r.recordRun(ctx, "auto_scan_last_run", "auto_scan_next_run", lastRun, nextRun)
}

// RecordAutoImportRun updates the auto-import bookkeeping timestamps.
func (r *Repository) RecordAutoImportRun(ctx context.Context, lastRun, nextRun time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "settings.Repository.RecordAutoImportRun")
	defer span.End()

	return r.recordRun(ctx, "auto_import_last_run", "auto_import_next_run", lastRun, nextRun)
}

func (r *Repository) recordRun(ctx context.Context, lastCol, nextCol string, lastRun, nextRun time.Time) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("matching_settings")
	ub.Set(
		ub.Assign(lastCol, lastRun),
		ub.Assign(nextCol, nextRun),
	)
	ub.Where(ub.Equal("id", settingsRowID))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to record scheduler run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record scheduler run")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// No row yet means the defaults are still in force; nothing to track.
		r.logger.WithContext(ctx).Debug("No settings row, skipped scheduler bookkeeping")
	}
	return nil
}
