// Package sentiment scores review text with a rule-based VADER backend.
package sentiment

import (
	"strings"

	"github.com/grassmudhorses/vader-go/lexicon"
	"github.com/grassmudhorses/vader-go/sentitext"

	"ReviewRadar/internal/domain"
	"ReviewRadar/internal/ports"
)

const (
	positiveThreshold = 0.05
	negativeThreshold = -0.05
)

// VaderScorer classifies polarity from the VADER compound score.
type VaderScorer struct{}

var _ ports.SentimentScorer = (*VaderScorer)(nil)

// NewVaderScorer builds the default rule-based scorer.
func NewVaderScorer() *VaderScorer {
	return &VaderScorer{}
}

// Score is total: empty or non-text input yields (neutral, 0) rather than an error.
func (s *VaderScorer) Score(text string) (domain.SentimentLabel, float64, error) {
	if strings.TrimSpace(text) == "" {
		return domain.SentimentNeutral, 0, nil
	}

	parsed := sentitext.Parse(text, lexicon.DefaultLexicon)
	compound := sentitext.PolarityScore(parsed).Compound

	switch {
	case compound >= positiveThreshold:
		return domain.SentimentPositive, compound, nil
	case compound <= negativeThreshold:
		return domain.SentimentNegative, compound, nil
	default:
		return domain.SentimentNeutral, compound, nil
	}
}
