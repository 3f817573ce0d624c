// Package events handles event emission for candidate and import lifecycle
// changes. Emission is best effort; callers log failures and continue, the
// database remains the source of truth.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes lifecycle events to the match event topic.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// Enabled reports whether an emitter is wired to a producer. A nil emitter
// or nil producer disables emission without branching at every call site.
func (e *Emitter) Enabled() bool {
	return e != nil && e.producer != nil
}

func candidatePayload(eventType EventType, candidate *models.Candidate) *CandidateEventPayload {
	orgs := make([]string, 0, len(candidate.Variants))
	seen := map[string]bool{}
	for _, v := range candidate.Variants {
		if !seen[v.OrganizationID] {
			seen[v.OrganizationID] = true
			orgs = append(orgs, v.OrganizationID)
		}
	}

	payload := &CandidateEventPayload{
		BaseEvent:     NewBaseEvent(eventType),
		CandidateID:   candidate.ID,
		Score:         candidate.Score,
		Status:        candidate.Status,
		VariantCount:  len(candidate.Variants),
		Organizations: orgs,
	}
	if candidate.ResolvedBy != nil {
		payload.ResolvedBy = *candidate.ResolvedBy
	}
	return payload
}

func (e *Emitter) emitCandidate(ctx context.Context, eventType EventType, candidate *models.Candidate) error {
	payload := candidatePayload(eventType, candidate)
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.MatchEvent{
		EventType:     string(eventType),
		CandidateID:   candidate.ID,
		Organizations: payload.Organizations,
		Data:          data,
	}

	if err := e.producer.PublishMatchEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type":   eventType,
			"candidate_id": candidate.ID,
		}).Error("Failed to emit candidate event")
		return err
	}
	return nil
}

// EmitCandidatesCreated publishes candidate.created events for a whole scan
// batch in a single producer write.
func (e *Emitter) EmitCandidatesCreated(ctx context.Context, candidates []*models.Candidate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCandidatesCreated")
	defer span.End()

	batch := make([]*kafka.MatchEvent, 0, len(candidates))
	for _, candidate := range candidates {
		payload := candidatePayload(EventTypeCandidateCreated, candidate)
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		batch = append(batch, &kafka.MatchEvent{
			EventType:     string(EventTypeCandidateCreated),
			CandidateID:   candidate.ID,
			Organizations: payload.Organizations,
			Data:          data,
		})
	}

	if err := e.producer.PublishMatchEvents(ctx, batch); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"count": len(batch),
		}).Error("Failed to emit candidate batch")
		return err
	}
	return nil
}

// EmitCandidateUpdated emits a candidate.updated event
func (e *Emitter) EmitCandidateUpdated(ctx context.Context, candidate *models.Candidate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCandidateUpdated")
	defer span.End()

	return e.emitCandidate(ctx, EventTypeCandidateUpdated, candidate)
}

// EmitCandidateResolved emits the event matching the candidate's terminal
// status (auto_imported, manually_imported, rejected or stale).
func (e *Emitter) EmitCandidateResolved(ctx context.Context, candidate *models.Candidate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCandidateResolved")
	defer span.End()

	var eventType EventType
	switch candidate.Status {
	case models.CandidateStatusAutoImported:
		eventType = EventTypeCandidateAutoImported
	case models.CandidateStatusManuallyImported:
		eventType = EventTypeCandidateManualImported
	case models.CandidateStatusRejected:
		eventType = EventTypeCandidateRejected
	case models.CandidateStatusStale:
		eventType = EventTypeCandidateStale
	default:
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"candidate_id": candidate.ID,
			"status":       candidate.Status,
		}).Warn("Skipped resolved event for non-terminal status")
		return nil
	}

	return e.emitCandidate(ctx, eventType, candidate)
}

// EmitContactImported emits a contact.imported event
func (e *Emitter) EmitContactImported(ctx context.Context, contact *models.Contact, candidateID, importPath string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitContactImported")
	defer span.End()

	payload := &ContactImportedPayload{
		BaseEvent:      NewBaseEvent(EventTypeContactImported),
		CandidateID:    candidateID,
		ContactID:      contact.ID,
		OrganizationID: contact.OrganizationID,
		ImportPath:     importPath,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.MatchEvent{
		EventType:     string(EventTypeContactImported),
		CandidateID:   candidateID,
		Organizations: []string{contact.OrganizationID},
		Data:          data,
	}

	if err := e.producer.PublishMatchEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"candidate_id": candidateID,
			"contact_id":   contact.ID,
		}).Error("Failed to emit contact.imported event")
		return err
	}
	return nil
}

// EmitScanCompleted emits a scan.completed event
func (e *Emitter) EmitScanCompleted(ctx context.Context, job *models.ScanJob) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitScanCompleted")
	defer span.End()

	eventType := EventTypeScanCompleted
	if job.Status == models.ScanJobStatusFailed {
		eventType = EventTypeScanFailed
	}

	payload := &ScanCompletedPayload{
		BaseEvent:            NewBaseEvent(eventType),
		ScanJobID:            job.ID,
		OrganizationsScanned: job.OrganizationsScanned,
		ContactsScanned:      job.ContactsScanned,
		CandidatesCreated:    job.CandidatesCreated,
		CandidatesUpdated:    job.CandidatesUpdated,
		ErrorCount:           len(job.Errors),
	}
	if job.FinishedAt != nil {
		payload.DurationMs = job.FinishedAt.Sub(job.StartedAt).Milliseconds()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.MatchEvent{
		EventType:   string(eventType),
		CandidateID: job.ID, // keyed on the job so scan events stay ordered
		Data:        data,
	}

	if err := e.producer.PublishMatchEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"scan_job_id": job.ID,
		}).Error("Failed to emit scan event")
		return err
	}
	return nil
}
