package refresh

import (
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/sentiradar/internal/config"
)

// Timeframe is the look-back window of a run.
type Timeframe string

const (
	Timeframe24h Timeframe = "24h"
	Timeframe7d  Timeframe = "7d"
	Timeframe30d Timeframe = "30d"
)

// Timeframes lists the supported windows, shortest first.
var Timeframes = []Timeframe{Timeframe24h, Timeframe7d, Timeframe30d}

// ParseTimeframe validates s. Unknown values yield a *config.Error wrapping
// config.ErrUnsupportedTimeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.TrimSpace(s))
	if tf.Hours() == 0 {
		return "", &config.Error{
			Field:  "timeframe",
			Reason: fmt.Sprintf("%q is not one of 24h, 7d, 30d", s),
			Err:    config.ErrUnsupportedTimeframe,
		}
	}
	return tf, nil
}

// Hours returns the window length in hours, or 0 for an unknown timeframe.
func (t Timeframe) Hours() int {
	switch t {
	case Timeframe24h:
		return 24
	case Timeframe7d:
		return 7 * 24
	case Timeframe30d:
		return 30 * 24
	}
	return 0
}

// Duration returns the window length.
func (t Timeframe) Duration() time.Duration {
	return time.Duration(t.Hours()) * time.Hour
}

// Cutoff returns the earliest creation time a run started at now accepts.
func (t Timeframe) Cutoff(now time.Time) time.Time {
	return now.Add(-t.Duration())
}

func (t Timeframe) String() string { return string(t) }
