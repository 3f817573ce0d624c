// Package autoimport resolves eligible candidates without human review.
// Each candidate is claimed with a conditional status transition before any
// contact is written, so two overlapping runs never import the same
// candidate twice. A failed write releases the claim for the next run.
package autoimport

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Actor recorded on candidates resolved by this engine.
const Actor = "auto-import"

// minVariants is the smallest cluster auto-import will touch. A single
// variant has nothing to merge.
const minVariants = 2

// CandidateStore is the candidate access auto-import needs.
type CandidateStore interface {
	GetImportable(ctx context.Context, minScore float64, minVariants, limit int) ([]*models.Candidate, error)
	ClaimForImport(ctx context.Context, id, toStatus, actor string) (bool, error)
	Release(ctx context.Context, id string) error
}

// ContactWriter writes imported contacts into tenant stores.
type ContactWriter interface {
	Create(ctx context.Context, contact *models.Contact) (*models.Contact, error)
}

// SettingsSource provides the settings document and run bookkeeping.
type SettingsSource interface {
	Get(ctx context.Context) (*models.MatchingSettings, error)
	RecordAutoImportRun(ctx context.Context, lastRun, nextRun time.Time) error
}

// Config tunes an engine.
type Config struct {
	BatchSize int
}

// Engine runs scheduled auto-imports.
type Engine struct {
	candidates CandidateStore
	contacts   ContactWriter
	settings   SettingsSource
	merger     *merging.FieldMerger
	reconciler reconcile.Reconciler
	policy     DestinationPolicy
	emitter    *events.Emitter
	projector  *graph.Projector
	logger     ectologger.Logger
	cfg        Config
}

// NewEngine creates a new auto-import engine. reconciler, emitter and
// projector may be nil.
func NewEngine(candidates CandidateStore, contacts ContactWriter, settings SettingsSource, merger *merging.FieldMerger, reconciler reconcile.Reconciler, policy DestinationPolicy, emitter *events.Emitter, projector *graph.Projector, cfg Config, logger ectologger.Logger) *Engine {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if policy == nil {
		policy = PrimaryVariantPolicy{}
	}
	return &Engine{
		candidates: candidates,
		contacts:   contacts,
		settings:   settings,
		merger:     merger,
		reconciler: reconciler,
		policy:     policy,
		emitter:    emitter,
		projector:  projector,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run claims and imports one batch of eligible candidates. A disabled
// auto-import setting makes the run a no-op rather than an error, so the
// cron schedule stays dumb.
func (e *Engine) Run(ctx context.Context) (*models.ImportStats, error) {
	ctx, span := tracing.StartSpan(ctx, "autoimport.Engine.Run")
	defer span.End()

	started := time.Now()
	stats := &models.ImportStats{}

	settings, err := e.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.AutoImportEnabled {
		e.logger.WithContext(ctx).Info("Auto-import disabled, skipping run")
		return stats, nil
	}

	batch, err := e.candidates.GetImportable(ctx, settings.AutoImportMinScore, minVariants, e.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	for _, candidate := range batch {
		outcome := e.importOne(ctx, candidate, settings)
		switch outcome {
		case "imported":
			stats.Imported++
		case "skipped":
			stats.Skipped++
		default:
			stats.Failed++
		}
		metrics.ImportsTotal.WithLabelValues("auto", outcome).Inc()
	}

	now := time.Now().UTC()
	next := now.Add(time.Duration(settings.AutoImportIntervalMinutes) * time.Minute)
	if err := e.settings.RecordAutoImportRun(ctx, now, next); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to record auto-import run")
	}

	metrics.ImportDuration.WithLabelValues("auto").Observe(time.Since(started).Seconds())
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"imported": stats.Imported,
		"skipped":  stats.Skipped,
		"failed":   stats.Failed,
	}).Info("Auto-import run finished")

	return stats, nil
}

// importOne claims a single candidate and writes the merged contact.
// Returns "imported", "skipped" or "failed".
func (e *Engine) importOne(ctx context.Context, candidate *models.Candidate, settings *models.MatchingSettings) string {
	ctx, span := tracing.StartSpan(ctx, "autoimport.Engine.importOne")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{"candidate_id": candidate.ID})

	claimed, err := e.candidates.ClaimForImport(ctx, candidate.ID, models.CandidateStatusAutoImported, Actor)
	if err != nil {
		log.WithError(err).Error("Claim failed")
		return "failed"
	}
	if !claimed {
		// Someone else resolved it between the read and the claim.
		return "skipped"
	}

	var merged merging.MergedContact
	var conflicts []models.FieldConflict
	if settings.UseAiMerge && e.reconciler != nil {
		merged, conflicts = e.merger.MergeWithReconciler(ctx, candidate.Variants, e.reconciler)
	} else {
		merged, conflicts = e.merger.Merge(candidate.Variants)
	}
	if len(conflicts) > 0 {
		log.WithFields(map[string]any{"conflicts": len(conflicts)}).Debug("Merged with conflicts")
	}

	importedFrom := candidate.ID
	var written []*models.Contact
	for _, orgID := range e.policy.Destinations(candidate) {
		contact := &models.Contact{
			OrganizationID: orgID,
			DisplayName:    merged.DisplayName,
			Emails:         merged.Emails,
			Position:       merged.Position,
			CompanyName:    merged.CompanyName,
			ImportedFrom:   &importedFrom,
		}
		saved, err := e.contacts.Create(ctx, contact)
		if err != nil {
			log.WithError(err).WithFields(map[string]any{"organization_id": orgID}).Error("Contact write failed, releasing claim")
			if relErr := e.candidates.Release(ctx, candidate.ID); relErr != nil {
				log.WithError(relErr).Error("Release failed, candidate stuck in auto_imported")
			}
			return "failed"
		}
		written = append(written, saved)
	}

	candidate.Status = models.CandidateStatusAutoImported
	actor := Actor
	candidate.ResolvedBy = &actor

	if e.emitter.Enabled() {
		if err := e.emitter.EmitCandidateResolved(ctx, candidate); err != nil {
			log.WithError(err).Warn("Candidate event emission failed")
		}
		for _, c := range written {
			if err := e.emitter.EmitContactImported(ctx, c, candidate.ID, "auto"); err != nil {
				log.WithError(err).Warn("Contact event emission failed")
			}
		}
	}

	if e.projector.Enabled() {
		for _, c := range written {
			if err := e.projector.ProjectContact(ctx, c); err != nil {
				log.WithError(err).Warn("Graph projection failed")
			}
		}
		for i := 1; i < len(written); i++ {
			if err := e.projector.LinkSharedIdentity(ctx, candidate.ID, written[0], written[i]); err != nil {
				log.WithError(err).Warn("Shared identity projection failed")
			}
		}
	}

	return "imported"
}
