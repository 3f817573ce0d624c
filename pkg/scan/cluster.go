package scan

import (
	"context"
	"errors"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type workingCandidate struct {
	cand *models.Candidate
	// upserts are the variants added or refreshed this scan, replayed on a
	// fresh copy when the optimistic update loses.
	upserts []models.Variant
}

// reconcile folds the contact snapshot into the pending candidate set:
// refresh variants that are already clustered, attach new contacts to the
// best candidate that stays above the floor, then pair up the leftovers.
func (s *Scanner) reconcile(ctx context.Context, snapshot []models.Variant, pending []*models.Candidate, outcome *scanOutcome) {
	ctx, span := tracing.StartSpan(ctx, "scan.Scanner.reconcile")
	defer span.End()

	working := make([]*workingCandidate, 0, len(pending))
	for _, c := range pending {
		if c.Status == models.CandidateStatusPending {
			working = append(working, &workingCandidate{cand: c})
		}
	}

	var leftovers []models.Variant
	for _, v := range snapshot {
		if s.refreshExisting(working, v) {
			continue
		}
		if s.attachToBest(working, v) {
			continue
		}
		leftovers = append(leftovers, v)
	}

	created := s.pairLeftovers(leftovers)

	s.persist(ctx, working, created, outcome)
}

// refreshExisting updates the stored snapshot of a contact that is already
// part of a candidate. Membership is never revoked here; a cluster whose
// score drops below the floor surfaces through its updated score.
func (s *Scanner) refreshExisting(working []*workingCandidate, v models.Variant) bool {
	for _, w := range working {
		if !w.cand.HasVariant(v.OrganizationID, v.SourceContactID) {
			continue
		}
		for i := range w.cand.Variants {
			ev := &w.cand.Variants[i]
			if ev.OrganizationID == v.OrganizationID && ev.SourceContactID == v.SourceContactID {
				*ev = v
				break
			}
		}
		w.cand.Score = s.scorer.CombinedScore(w.cand.Variants)
		w.upserts = append(w.upserts, v)
		return true
	}
	return false
}

// attachToBest joins the variant to the highest-scoring candidate that has
// no variant from its organization and whose minimum pairwise similarity
// stays at or above the floor.
func (s *Scanner) attachToBest(working []*workingCandidate, v models.Variant) bool {
	var best *workingCandidate
	bestScore := 0.0
	for _, w := range working {
		if w.cand.HasOrganization(v.OrganizationID) {
			continue
		}
		prospective := s.scorer.CombinedScore(append(w.cand.Variants, v))
		if prospective >= s.cfg.MinClusterScore && prospective > bestScore {
			best = w
			bestScore = prospective
		}
	}
	if best == nil {
		return false
	}

	best.cand.Variants = append(best.cand.Variants, v)
	best.cand.Score = bestScore
	best.upserts = append(best.upserts, v)
	return true
}

// pairLeftovers greedily clusters unmatched variants across organizations.
// A cluster only accepts a member that keeps every pairwise similarity at
// or above the floor, so the conservative minimum score holds.
func (s *Scanner) pairLeftovers(leftovers []models.Variant) []*models.Candidate {
	used := make([]bool, len(leftovers))
	var created []*models.Candidate

	for i := range leftovers {
		if used[i] {
			continue
		}
		cluster := []models.Variant{leftovers[i]}
		orgs := map[string]bool{leftovers[i].OrganizationID: true}
		members := []int{i}

		for j := i + 1; j < len(leftovers); j++ {
			if used[j] || orgs[leftovers[j].OrganizationID] {
				continue
			}
			fits := true
			for _, member := range cluster {
				if s.scorer.Score(member, leftovers[j]) < s.cfg.MinClusterScore {
					fits = false
					break
				}
			}
			if fits {
				cluster = append(cluster, leftovers[j])
				orgs[leftovers[j].OrganizationID] = true
				members = append(members, j)
			}
		}

		if len(cluster) < 2 {
			continue
		}
		for _, m := range members {
			used[m] = true
		}
		created = append(created, &models.Candidate{
			Variants: cluster,
			Score:    s.scorer.CombinedScore(cluster),
			Status:   models.CandidateStatusPending,
		})
	}

	return created
}

// persist writes new candidates and pushes dirty ones through the
// optimistic update, retrying lost races on a fresh read.
func (s *Scanner) persist(ctx context.Context, working []*workingCandidate, created []*models.Candidate, outcome *scanOutcome) {
	ctx, span := tracing.StartSpan(ctx, "scan.Scanner.persist")
	defer span.End()

	var saved []*models.Candidate
	for _, c := range created {
		row, err := s.candidates.Create(ctx, c)
		if err != nil {
			outcome.errors = append(outcome.errors, models.ScanError{Message: err.Error()})
			continue
		}
		outcome.created++
		metrics.CandidatesCreated.Inc()
		saved = append(saved, row)
	}
	if s.emitter.Enabled() && len(saved) > 0 {
		if err := s.emitter.EmitCandidatesCreated(ctx, saved); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Candidate event emission failed")
		}
	}

	for _, w := range working {
		if len(w.upserts) == 0 {
			continue
		}
		if err := s.updateWithRetry(ctx, w); err != nil {
			outcome.errors = append(outcome.errors, models.ScanError{Message: err.Error()})
			continue
		}
		outcome.updated++
		metrics.CandidatesUpdated.Inc()
		if s.emitter.Enabled() {
			if err := s.emitter.EmitCandidateUpdated(ctx, w.cand); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("Candidate event emission failed")
			}
		}
	}
}

func (s *Scanner) updateWithRetry(ctx context.Context, w *workingCandidate) error {
	err := s.candidates.UpdateVariants(ctx, w.cand.ID, w.cand.Variants, w.cand.Score, w.cand.Version)
	for attempt := 1; errors.Is(err, models.ErrVersionConflict) && attempt < s.cfg.RetryCount; attempt++ {
		fresh, getErr := s.candidates.GetByID(ctx, w.cand.ID)
		if getErr != nil {
			return getErr
		}
		if fresh.Status != models.CandidateStatusPending {
			// Resolved while we were scanning, the resolution wins.
			return nil
		}
		s.replay(fresh, w.upserts)
		w.cand = fresh
		err = s.candidates.UpdateVariants(ctx, fresh.ID, fresh.Variants, fresh.Score, fresh.Version)
	}
	return err
}

// replay applies this scan's variant upserts to a freshly read candidate.
func (s *Scanner) replay(fresh *models.Candidate, upserts []models.Variant) {
	for _, u := range upserts {
		if fresh.HasVariant(u.OrganizationID, u.SourceContactID) {
			for i := range fresh.Variants {
				ev := &fresh.Variants[i]
				if ev.OrganizationID == u.OrganizationID && ev.SourceContactID == u.SourceContactID {
					*ev = u
					break
				}
			}
		} else if !fresh.HasOrganization(u.OrganizationID) {
			fresh.Variants = append(fresh.Variants, u)
		}
	}
	fresh.Score = s.scorer.CombinedScore(fresh.Variants)
}
