// Package sentiment scores text and buckets compound scores into labels.
package sentiment

// Label is the discrete sentiment class stored with every score.
type Label string

const (
	Positive Label = "positive"
	Neutral  Label = "neutral"
	Negative Label = "negative"
)

// Fixed label thresholds on the compound score.
const (
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// LabelFor maps a compound score in [-1, 1] to its label. Both thresholds
// are inclusive.
func LabelFor(compound float64) Label {
	switch {
	case compound >= PositiveThreshold:
		return Positive
	case compound <= NegativeThreshold:
		return Negative
	default:
		return Neutral
	}
}

func (l Label) String() string { return string(l) }
