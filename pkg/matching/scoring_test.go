package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleSimilarity(t *testing.T) {
	scorer := NewScorer()

	t.Run("IdenticalIsOne", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.TitleSimilarity("Money Trees", "Money Trees"))
	})

	t.Run("NormalizedEqualIsOne", func(t *testing.T) {
		// Case, diacritics and punctuation differences normalize away
		assert.Equal(t, 1.0, scorer.TitleSimilarity("HUMBLE.", "humble"))
		assert.Equal(t, 1.0, scorer.TitleSimilarity("Déjà Vu", "deja vu"))
	})

	t.Run("DifferentStringsNeverOne", func(t *testing.T) {
		// Same tokens, different order: high but strictly below 1.0
		sim := scorer.TitleSimilarity("money trees", "trees money")
		assert.Less(t, sim, 1.0)
		assert.Greater(t, sim, 0.9)
	})

	t.Run("Symmetric", func(t *testing.T) {
		pairs := [][2]string{
			{"Money Trees", "Money Tree"},
			{"Culture II", "Culture 2"},
			{"", "something"},
			{"abc", "xyz"},
		}
		for _, p := range pairs {
			assert.Equal(t, scorer.TitleSimilarity(p[0], p[1]), scorer.TitleSimilarity(p[1], p[0]))
		}
	})

	t.Run("Bounded", func(t *testing.T) {
		pairs := [][2]string{{"a", "completely different thing"}, {"", ""}, {"x", "x"}}
		for _, p := range pairs {
			sim := scorer.TitleSimilarity(p[0], p[1])
			assert.GreaterOrEqual(t, sim, 0.0)
			assert.LessOrEqual(t, sim, 1.0)
		}
	})

	t.Run("NearMissScoresHigh", func(t *testing.T) {
		assert.GreaterOrEqual(t, scorer.TitleSimilarity("Money Trees", "Money Tree"), 0.9)
	})

	t.Run("UnrelatedScoresLow", func(t *testing.T) {
		assert.Less(t, scorer.TitleSimilarity("Money Trees", "Bohemian Rhapsody"), 0.5)
	})
}

func TestNameSimilarity(t *testing.T) {
	scorer := NewScorer()

	t.Run("WhitespaceAndCase", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.NameSimilarity("Metro Boomin", "metro boomin "))
	})

	t.Run("Misspelling", func(t *testing.T) {
		assert.GreaterOrEqual(t, scorer.NameSimilarity("Metro Boomin", "Metro Boomim"), 0.9)
	})
}

func TestLevenshtein(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		a, b     string
		distance int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"same", "same", 0},
		{"a", "b", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.distance, scorer.LevenshteinDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestJaroWinkler(t *testing.T) {
	scorer := NewScorer()

	t.Run("Exact", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.JaroWinkler("drake", "drake"))
	})

	t.Run("PrefixBoost", func(t *testing.T) {
		// Shared prefix scores above plain Jaro
		jw := scorer.JaroWinkler("martha", "marhta")
		j := scorer.Jaro("martha", "marhta")
		assert.Greater(t, jw, j)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.Jaro("", "abc"))
	})
}

func TestTokenSetRatio(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 1.0, scorer.TokenSetRatio("money trees", "trees money"))
	assert.Equal(t, 0.0, scorer.TokenSetRatio("abc", ""))
	assert.InDelta(t, 1.0/3.0, scorer.TokenSetRatio("a b", "b c"), 0.0001)
}
