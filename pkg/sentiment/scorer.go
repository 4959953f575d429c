package sentiment

import "github.com/jonreiter/govader"

// Scorer returns a compound sentiment score in [-1, 1] for a piece of text.
type Scorer interface {
	Score(text string) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(text string) float64

func (f ScorerFunc) Score(text string) float64 { return f(text) }

// Vader scores text with the VADER lexicon and rules.
type Vader struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewVader loads the built-in VADER lexicon. The analyzer is read-only after
// construction and safe to share.
func NewVader() *Vader {
	return &Vader{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Score implements Scorer.
func (v *Vader) Score(text string) float64 {
	c := v.analyzer.PolarityScores(text).Compound
	switch {
	case c > 1:
		return 1
	case c < -1:
		return -1
	}
	return c
}
