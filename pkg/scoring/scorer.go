// Package scoring computes similarity confidence between contact variants.
// Everything here is a pure function of its inputs so scans are reproducible
// and auditable.
package scoring

import (
	"sort"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Signal weights. Position is dropped (and the rest renormalized) when it is
// absent on either side; likewise email when neither side has one.
const (
	nameWeight     = 0.6
	emailWeight    = 0.3
	positionWeight = 0.1

	// A shared outlet domain alone is a weak signal. Many journalists share
	// an employer domain, so it must not dominate the score.
	sharedDomainScore = 0.25
)

// Scorer provides contact variant similarity scoring
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes the confidence in [0,1] that two variants denote the same
// real person.
func (s *Scorer) Score(a, b models.Variant) float64 {
	nameScore := s.NameSimilarity(a.DisplayName, b.DisplayName)
	emailScore, emailKnown := s.emailSignal(a.Emails, b.Emails)
	positionScore, positionKnown := s.positionSignal(a.Position, b.Position)

	weightedSum := nameWeight * nameScore
	totalWeight := nameWeight

	if emailKnown {
		weightedSum += emailWeight * emailScore
		totalWeight += emailWeight
	}
	if positionKnown {
		weightedSum += positionWeight * positionScore
		totalWeight += positionWeight
	}

	return clamp01(weightedSum / totalWeight)
}

// CombinedScore returns the group confidence for a set of variants: the
// minimum of all pairwise scores. A group is only as strong as its weakest
// link, which prevents transitive false merges (A~B, B~C, but A!~C).
func (s *Scorer) CombinedScore(variants []models.Variant) float64 {
	if len(variants) < 2 {
		return 1.0
	}

	minScore := 1.0
	for i := 0; i < len(variants); i++ {
		for j := i + 1; j < len(variants); j++ {
			if score := s.Score(variants[i], variants[j]); score < minScore {
				minScore = score
			}
		}
	}
	return minScore
}

// NameSimilarity compares two person names. Token-set overlap keeps
// "Müller Max" close to "Max Müller"; edit distance on the sorted token
// string catches typos and abbreviations.
func (s *Scorer) NameSimilarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	ta, tb := strings.Fields(na), strings.Fields(nb)
	overlap := s.tokenOverlap(ta, tb)

	sa, sb := sortedJoin(ta), sortedJoin(tb)
	edit := s.JaroWinkler(sa, sb)

	return clamp01(0.6*overlap + 0.4*edit)
}

// tokenOverlap is a fuzzy Jaccard: tokens count as shared when equal or
// within a small edit distance of each other.
func (s *Scorer) tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchedB := make([]bool, len(b))
	shared := 0
	for _, ta := range a {
		for j, tb := range b {
			if matchedB[j] {
				continue
			}
			if ta == tb || s.Levenshtein(ta, tb) >= 0.8 {
				matchedB[j] = true
				shared++
				break
			}
		}
	}

	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

// emailSignal returns the email score and whether either side had an email.
func (s *Scorer) emailSignal(a, b []string) (float64, bool) {
	if len(a) == 0 && len(b) == 0 {
		return 0.0, false
	}
	if len(a) == 0 || len(b) == 0 {
		// One-sided: no evidence either way, treat as unknown.
		return 0.0, false
	}

	bSet := make(map[string]struct{}, len(b))
	bDomains := make(map[string]struct{}, len(b))
	for _, email := range b {
		bSet[NormalizeEmail(email)] = struct{}{}
		if d := EmailDomain(email); d != "" {
			bDomains[d] = struct{}{}
		}
	}

	sharedDomain := false
	for _, email := range a {
		if _, ok := bSet[NormalizeEmail(email)]; ok {
			return 1.0, true
		}
		if d := EmailDomain(email); d != "" {
			if _, ok := bDomains[d]; ok {
				sharedDomain = true
			}
		}
	}

	if sharedDomain {
		return sharedDomainScore, true
	}
	return 0.0, true
}

// positionSignal is neutral (unknown) when either side has no position.
func (s *Scorer) positionSignal(a, b string) (float64, bool) {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0.0, false
	}
	if na == nb {
		return 1.0, true
	}
	return s.JaroWinkler(na, nb), true
}

// ScoreCompanyName fuzzily compares a variant's raw company name against an
// existing company record's name. Used by the manual import path.
func (s *Scorer) ScoreCompanyName(raw, existing string) float64 {
	nr, ne := NormalizeName(raw), NormalizeName(existing)
	if nr == "" || ne == "" {
		return 0.0
	}
	if nr == ne {
		return 1.0
	}

	overlap := s.tokenOverlap(strings.Fields(nr), strings.Fields(ne))
	edit := s.JaroWinkler(nr, ne)
	return clamp01(0.5*overlap + 0.5*edit)
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings
// Returns a value between 0.0 (no similarity) and 1.0 (exact match)
func (s *Scorer) JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	jaro := s.Jaro(a, b)

	// Winkler modification: boost for common prefix
	prefixLen := 0
	maxPrefix := 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] == b[i] {
			prefixLen++
		} else {
			break
		}
	}

	scalingFactor := 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Levenshtein returns a similarity score between 0.0 and 1.0
func (s *Scorer) Levenshtein(a, b string) float64 {
	distance := s.LevenshteinDistance(a, b)
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

func sortedJoin(tokens []string) string {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
