package merging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func capturedAt(day int) time.Time {
	return time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)
}

func TestMerge_UnanimousValues(t *testing.T) {
	merger := NewFieldMerger(testLogger())

	variants := []models.Variant{
		{DisplayName: "Max Müller", Emails: []string{"max@verlag.de"}, Position: "Redakteur", CapturedAt: capturedAt(1)},
		{DisplayName: "Max Müller", Emails: []string{"MAX@verlag.de"}, Position: "Redakteur", CapturedAt: capturedAt(2)},
	}

	merged, conflicts := merger.Merge(variants)

	assert.Empty(t, conflicts)
	assert.Equal(t, "Max Müller", merged.DisplayName)
	assert.Equal(t, "Redakteur", merged.Position)
	assert.Equal(t, []string{"max@verlag.de"}, merged.Emails, "emails are unioned and deduplicated")
}

func TestMerge_MajorityWins(t *testing.T) {
	merger := NewFieldMerger(testLogger())

	variants := []models.Variant{
		{DisplayName: "Max Müller", CapturedAt: capturedAt(1)},
		{DisplayName: "Max Müller", CapturedAt: capturedAt(2)},
		{DisplayName: "M. Müller", CapturedAt: capturedAt(3)},
	}

	merged, conflicts := merger.Merge(variants)

	assert.Equal(t, "Max Müller", merged.DisplayName)
	require.Len(t, conflicts, 1)
	assert.Equal(t, FieldDisplayName, conflicts[0].Field)
	assert.Equal(t, "majority", conflicts[0].Resolution)
	assert.Len(t, conflicts[0].Values, 2)
}

func TestMerge_TieBrokenByMostRecent(t *testing.T) {
	merger := NewFieldMerger(testLogger())

	variants := []models.Variant{
		{DisplayName: "Max Müller", Position: "Redakteur", CapturedAt: capturedAt(1)},
		{DisplayName: "Max Müller", Position: "Chefredakteur", CapturedAt: capturedAt(5)},
	}

	merged, conflicts := merger.Merge(variants)

	assert.Equal(t, "Chefredakteur", merged.Position)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "most_recent", conflicts[0].Resolution)
}

func TestMerge_EmptyValuesDoNotConflict(t *testing.T) {
	merger := NewFieldMerger(testLogger())

	variants := []models.Variant{
		{DisplayName: "Max Müller", Position: "Redakteur", CapturedAt: capturedAt(1)},
		{DisplayName: "Max Müller", Position: "", CapturedAt: capturedAt(2)},
	}

	merged, conflicts := merger.Merge(variants)

	assert.Equal(t, "Redakteur", merged.Position, "missing values are filled, not conflicting")
	assert.Empty(t, conflicts)
}

type stubReconciler struct {
	suggestion string
	err        error
	calls      []string
}

func (s *stubReconciler) ReconcileField(_ context.Context, field string, _ []string) (string, error) {
	s.calls = append(s.calls, field)
	return s.suggestion, s.err
}

func TestMergeWithReconciler_AdoptsValidSuggestion(t *testing.T) {
	merger := NewFieldMerger(testLogger())
	rec := &stubReconciler{suggestion: "Chefredakteur"}

	variants := []models.Variant{
		{DisplayName: "Max Müller", Position: "Redakteur", CapturedAt: capturedAt(5)},
		{DisplayName: "Max Müller", Position: "Chefredakteur", CapturedAt: capturedAt(1)},
	}

	merged, conflicts := merger.MergeWithReconciler(context.Background(), variants, rec)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "ai", conflicts[0].Resolution)
	assert.Equal(t, "Chefredakteur", merged.Position)
	assert.Equal(t, []string{"position"}, rec.calls, "unanimous fields must never reach the reconciler")
}

func TestMergeWithReconciler_RejectsHallucination(t *testing.T) {
	merger := NewFieldMerger(testLogger())
	rec := &stubReconciler{suggestion: "Senior Editor-in-Chief of Everything"}

	variants := []models.Variant{
		{DisplayName: "Max Müller", Position: "Redakteur", CapturedAt: capturedAt(5)},
		{DisplayName: "Max Müller", Position: "Chefredakteur", CapturedAt: capturedAt(1)},
	}

	merged, conflicts := merger.MergeWithReconciler(context.Background(), variants, rec)

	require.Len(t, conflicts, 1)
	assert.NotEqual(t, "ai", conflicts[0].Resolution)
	assert.Equal(t, "Redakteur", merged.Position, "fallback keeps the deterministic resolution")
}

func TestMergeWithReconciler_ErrorFallsBack(t *testing.T) {
	merger := NewFieldMerger(testLogger())
	rec := &stubReconciler{err: fmt.Errorf("timeout")}

	variants := []models.Variant{
		{DisplayName: "Max Müller", Position: "Redakteur", CapturedAt: capturedAt(5)},
		{DisplayName: "Max Müller", Position: "Chefredakteur", CapturedAt: capturedAt(1)},
	}

	merged, conflicts := merger.MergeWithReconciler(context.Background(), variants, rec)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "Redakteur", merged.Position)
}

func TestMergeWithPrimary_SelectedVariantIsAuthoritative(t *testing.T) {
	merger := NewFieldMerger(testLogger())

	variants := []models.Variant{
		{DisplayName: "Max Müller", Position: "Redakteur", Emails: []string{"max@verlag.de"}, CapturedAt: capturedAt(1)},
		{DisplayName: "M. Mueller", Position: "", Emails: []string{"mm@gmail.com"}, CapturedAt: capturedAt(2)},
	}

	merged, conflicts := merger.MergeWithPrimary(variants, 1)

	assert.Equal(t, "M. Mueller", merged.DisplayName, "the human's choice is never overridden")
	assert.Equal(t, "Redakteur", merged.Position, "missing fields are filled from other variants")
	assert.ElementsMatch(t, []string{"max@verlag.de", "mm@gmail.com"}, merged.Emails)
	assert.Empty(t, conflicts)
}
