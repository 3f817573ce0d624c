package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func variant(org, name string, emails []string, position string) models.Variant {
	return models.Variant{
		OrganizationID:  org,
		SourceContactID: "contact-" + org,
		DisplayName:     name,
		NormalizedName:  NormalizeName(name),
		Emails:          emails,
		Position:        position,
		CapturedAt:      time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Max Müller", "max muller"},
		{"  MÜLLER,   Max ", "muller max"},
		{"José García-López", "jose garcia lopez"},
		{"Anna-Lena O'Brien", "anna lena o brien"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeName(tt.input), "input: %q", tt.input)
	}
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "verlag.de", EmailDomain("Max@Verlag.DE"))
	assert.Equal(t, "", EmailDomain("not-an-email"))
	assert.Equal(t, "", EmailDomain("trailing@"))
}

func TestScore_ExactMatch(t *testing.T) {
	scorer := NewScorer()

	a := variant("org-a", "Max Müller", []string{"max@verlag.de"}, "")
	b := variant("org-b", "Max Müller", []string{"max@verlag.de"}, "")

	score := scorer.Score(a, b)
	assert.GreaterOrEqual(t, score, 0.95, "identical name and email must score very high")
	assert.LessOrEqual(t, score, 1.0)
}

func TestScore_SharedDomainOnly(t *testing.T) {
	scorer := NewScorer()

	a := variant("org-a", "Anna Schmidt", []string{"anna@verlag.de"}, "")
	b := variant("org-b", "Peter Meyer", []string{"peter@verlag.de"}, "")

	score := scorer.Score(a, b)
	assert.Less(t, score, 0.3, "a shared outlet domain alone must not group dissimilar people")
}

func TestScore_TokenOrderInsensitive(t *testing.T) {
	scorer := NewScorer()

	a := variant("org-a", "Müller, Max", []string{"max@verlag.de"}, "")
	b := variant("org-b", "Max Mueller", []string{"max@verlag.de"}, "")

	score := scorer.Score(a, b)
	assert.GreaterOrEqual(t, score, 0.9, "swapped first/last name order must still score highly")
}

func TestScore_Deterministic(t *testing.T) {
	scorer := NewScorer()

	a := variant("org-a", "Jana Nováková", []string{"jana@denik.cz"}, "Redakteurin")
	b := variant("org-b", "Jana Novakova", []string{"j.novakova@denik.cz"}, "Editor")

	first := scorer.Score(a, b)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scorer.Score(a, b))
	}
}

func TestScore_PositionNeutralWhenAbsent(t *testing.T) {
	scorer := NewScorer()

	a := variant("org-a", "Max Müller", []string{"max@verlag.de"}, "Redakteur")
	b := variant("org-b", "Max Müller", []string{"max@verlag.de"}, "")
	c := variant("org-c", "Max Müller", []string{"max@verlag.de"}, "Redakteur")

	withMissing := scorer.Score(a, b)
	withMatching := scorer.Score(a, c)

	assert.GreaterOrEqual(t, withMissing, 0.95, "a missing position must not penalize the score")
	assert.GreaterOrEqual(t, withMatching, withMissing)
}

func TestCombinedScore_IsMinimumPairwise(t *testing.T) {
	scorer := NewScorer()

	a := variant("org-a", "Max Müller", []string{"max@verlag.de"}, "")
	b := variant("org-b", "Max Müller", []string{"max@verlag.de", "mm@gmail.com"}, "")
	c := variant("org-c", "Markus Mahler", []string{"mm@gmail.com"}, "")

	ab := scorer.Score(a, b)
	bc := scorer.Score(b, c)
	ac := scorer.Score(a, c)

	combined := scorer.CombinedScore([]models.Variant{a, b, c})

	minPairwise := ab
	if bc < minPairwise {
		minPairwise = bc
	}
	if ac < minPairwise {
		minPairwise = ac
	}

	assert.Equal(t, minPairwise, combined)
	assert.Less(t, combined, ab, "weak link must drag the group score down")
}

func TestCombinedScore_SingleVariant(t *testing.T) {
	scorer := NewScorer()
	a := variant("org-a", "Max Müller", []string{"max@verlag.de"}, "")
	assert.Equal(t, 1.0, scorer.CombinedScore([]models.Variant{a}))
}

func TestScoreCompanyName(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 1.0, scorer.ScoreCompanyName("Der Verlag GmbH", "der verlag gmbh"))
	assert.Greater(t, scorer.ScoreCompanyName("Verlag GmbH", "Der Verlag GmbH"), 0.5)
	assert.Less(t, scorer.ScoreCompanyName("Tagesspiegel", "Motorpresse Stuttgart"), 0.5)
}

func TestJaroWinklerBounds(t *testing.T) {
	scorer := NewScorer()

	require.Equal(t, 1.0, scorer.JaroWinkler("muller", "muller"))
	assert.Equal(t, 0.0, scorer.JaroWinkler("abc", ""))

	sim := scorer.JaroWinkler("muller", "mueller")
	assert.Greater(t, sim, 0.9)
	assert.LessOrEqual(t, sim, 1.0)
}

func TestLevenshtein(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 0, scorer.LevenshteinDistance("max", "max"))
	assert.Equal(t, 1, scorer.LevenshteinDistance("max", "mix"))
	assert.Equal(t, 3, scorer.LevenshteinDistance("", "max"))
	assert.InDelta(t, 1.0-1.0/7.0, scorer.Levenshtein("muller", "mueller"), 1e-9)
}
