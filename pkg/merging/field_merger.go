// Package merging builds a single contact record out of a candidate's
// variants. The core policy is deterministic: a unanimous value wins
// untouched, otherwise the value present in the most variants wins, with
// ties broken by the most recently captured variant. The AI step is an
// advisory layer on top and can never override a unanimous value.
package merging

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Fields subject to conflict resolution. Emails are unioned, not resolved.
const (
	FieldDisplayName = "displayName"
	FieldPosition    = "position"
	FieldCompanyName = "companyName"
)

// MergedContact holds the reconciled field values for a candidate.
type MergedContact struct {
	DisplayName string
	Emails      []string
	Position    string
	CompanyName string
}

// FieldMerger merges variant snapshots into one contact record.
type FieldMerger struct {
	logger ectologger.Logger
}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger(logger ectologger.Logger) *FieldMerger {
	return &FieldMerger{logger: logger}
}

type fieldValue struct {
	value      string
	capturedAt time.Time
}

// Merge applies the deterministic policy to all variants.
func (m *FieldMerger) Merge(variants []models.Variant) (MergedContact, []models.FieldConflict) {
	merged := MergedContact{Emails: unionEmails(variants)}
	var conflicts []models.FieldConflict

	for _, field := range []string{FieldDisplayName, FieldPosition, FieldCompanyName} {
		value, conflict := m.resolveField(field, collectValues(field, variants))
		setField(&merged, field, value)
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}

	return merged, conflicts
}

// MergeWithReconciler is Merge plus an advisory AI pass over the conflicting
// fields. A suggestion is only adopted when it validates against the
// variant-provided values; any failure falls back silently to the
// deterministic resolution.
func (m *FieldMerger) MergeWithReconciler(ctx context.Context, variants []models.Variant, rec reconcile.Reconciler) (MergedContact, []models.FieldConflict) {
	ctx, span := tracing.StartSpan(ctx, "merging.FieldMerger.MergeWithReconciler")
	defer span.End()

	merged, conflicts := m.Merge(variants)
	if rec == nil {
		return merged, conflicts
	}

	for i, conflict := range conflicts {
		suggestion, err := rec.ReconcileField(ctx, conflict.Field, conflict.Values)
		if err != nil {
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"field": conflict.Field,
			}).Warn("reconciler failed, keeping deterministic resolution")
			continue
		}

		if !reconcile.ValidateSuggestion(conflict.Values, suggestion) {
			m.logger.WithContext(ctx).WithFields(map[string]any{
				"field": conflict.Field,
			}).Warn("rejected reconciler suggestion not traceable to variant values")
			continue
		}

		conflicts[i].Resolution = "ai"
		conflicts[i].ResolvedValue = suggestion
		setField(&merged, conflict.Field, suggestion)
	}

	return merged, conflicts
}

// MergeWithPrimary merges for the manual path: the selected variant is
// authoritative for every field it defines; only genuinely missing fields
// are filled from the other variants.
func (m *FieldMerger) MergeWithPrimary(variants []models.Variant, primaryIndex int) (MergedContact, []models.FieldConflict) {
	filled, conflicts := m.Merge(variantsExcept(variants, primaryIndex))
	return overlayPrimary(variants, primaryIndex, filled, conflicts)
}

// MergeWithPrimaryReconciler is MergeWithPrimary with the missing-field fill
// routed through the reconciler, for operators who opt into assisted merges.
func (m *FieldMerger) MergeWithPrimaryReconciler(ctx context.Context, variants []models.Variant, primaryIndex int, rec reconcile.Reconciler) (MergedContact, []models.FieldConflict) {
	filled, conflicts := m.MergeWithReconciler(ctx, variantsExcept(variants, primaryIndex), rec)
	return overlayPrimary(variants, primaryIndex, filled, conflicts)
}

func variantsExcept(variants []models.Variant, skip int) []models.Variant {
	rest := make([]models.Variant, 0, len(variants)-1)
	for i, v := range variants {
		if i != skip {
			rest = append(rest, v)
		}
	}
	return rest
}

func overlayPrimary(variants []models.Variant, primaryIndex int, filled MergedContact, conflicts []models.FieldConflict) (MergedContact, []models.FieldConflict) {
	primary := variants[primaryIndex]

	merged := MergedContact{
		DisplayName: primary.DisplayName,
		Position:    primary.Position,
		CompanyName: primary.CompanyNameRaw,
		Emails:      unionEmails(variants),
	}

	var kept []models.FieldConflict
	for _, field := range []string{FieldDisplayName, FieldPosition, FieldCompanyName} {
		if getField(&merged, field) != "" {
			// The human's choice stands; drop any conflict on this field.
			continue
		}
		setField(&merged, field, getField(&filled, field))
		for _, c := range conflicts {
			if c.Field == field {
				kept = append(kept, c)
			}
		}
	}

	return merged, kept
}

func (m *FieldMerger) resolveField(field string, values []fieldValue) (string, *models.FieldConflict) {
	if len(values) == 0 {
		return "", nil
	}

	distinct := distinctValues(values)
	if len(distinct) == 1 {
		return distinct[0], nil
	}

	// Majority wins; ties go to the most recently captured variant.
	type tally struct {
		count  int
		latest time.Time
	}
	counts := make(map[string]*tally)
	for _, fv := range values {
		key := canonical(fv.value)
		t, ok := counts[key]
		if !ok {
			t = &tally{}
			counts[key] = t
		}
		t.count++
		if fv.capturedAt.After(t.latest) {
			t.latest = fv.capturedAt
		}
	}

	var winner string
	var winnerTally tally
	for _, fv := range values {
		t := counts[canonical(fv.value)]
		switch {
		case winner == "":
			winner, winnerTally = fv.value, *t
		case t.count > winnerTally.count:
			winner, winnerTally = fv.value, *t
		case t.count == winnerTally.count && t.latest.After(winnerTally.latest):
			winner, winnerTally = fv.value, *t
		}
	}

	resolution := "majority"
	for key, t := range counts {
		if key != canonical(winner) && t.count == winnerTally.count {
			resolution = "most_recent"
			break
		}
	}

	return winner, &models.FieldConflict{
		Field:         field,
		Values:        distinct,
		Resolution:    resolution,
		ResolvedValue: winner,
	}
}

func collectValues(field string, variants []models.Variant) []fieldValue {
	var values []fieldValue
	for _, v := range variants {
		var raw string
		switch field {
		case FieldDisplayName:
			raw = v.DisplayName
		case FieldPosition:
			raw = v.Position
		case FieldCompanyName:
			raw = v.CompanyNameRaw
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		values = append(values, fieldValue{value: raw, capturedAt: v.CapturedAt})
	}
	return values
}

func distinctValues(values []fieldValue) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, fv := range values {
		key := canonical(fv.value)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, fv.value)
	}
	sort.Strings(out)
	return out
}

func unionEmails(variants []models.Variant) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range variants {
		for _, email := range v.Emails {
			normalized := scoring.NormalizeEmail(email)
			if normalized == "" {
				continue
			}
			if _, ok := seen[normalized]; ok {
				continue
			}
			seen[normalized] = struct{}{}
			out = append(out, normalized)
		}
	}
	return out
}

func canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func setField(c *MergedContact, field, value string) {
	switch field {
	case FieldDisplayName:
		c.DisplayName = value
	case FieldPosition:
		c.Position = value
	case FieldCompanyName:
		c.CompanyName = value
	}
}

func getField(c *MergedContact, field string) string {
	switch field {
	case FieldDisplayName:
		return c.DisplayName
	case FieldPosition:
		return c.Position
	case FieldCompanyName:
		return c.CompanyName
	}
	return ""
}
