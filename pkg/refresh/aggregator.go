package refresh

import (
	"sort"
	"time"

	"github.com/elonfeng/sentiradar/internal/store"
	"github.com/elonfeng/sentiradar/pkg/sentiment"
)

// Counts are the labelled tallies of one day bucket.
type Counts struct {
	Positive      int
	Neutral       int
	Negative      int
	ActivityCount int
}

type bucketKey struct {
	communityID string
	day         string
}

// Aggregator accumulates per-community, per-UTC-day label counts for one
// run. It is created at run start, shared by every community's processing
// step, and discarded after the flush. It is not safe for concurrent use.
type Aggregator struct {
	buckets     map[bucketKey]*Counts
	communities map[string]struct{}
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		buckets:     make(map[bucketKey]*Counts),
		communities: make(map[string]struct{}),
	}
}

// DayBucket returns UTC midnight of the day t falls on.
func DayBucket(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Add counts one scored item.
func (a *Aggregator) Add(communityID string, postedAt time.Time, label sentiment.Label) {
	key := bucketKey{communityID: communityID, day: DayBucket(postedAt).Format(store.BucketLayout)}
	c, ok := a.buckets[key]
	if !ok {
		c = &Counts{}
		a.buckets[key] = c
	}
	switch label {
	case sentiment.Positive:
		c.Positive++
	case sentiment.Negative:
		c.Negative++
	default:
		c.Neutral++
	}
	c.ActivityCount++
	a.communities[communityID] = struct{}{}
}

// Get returns the counts for a community and day, if any.
func (a *Aggregator) Get(communityID string, day time.Time) (Counts, bool) {
	c, ok := a.buckets[bucketKey{communityID: communityID, day: DayBucket(day).Format(store.BucketLayout)}]
	if !ok {
		return Counts{}, false
	}
	return *c, true
}

// Len returns the number of buckets.
func (a *Aggregator) Len() int { return len(a.buckets) }

// Communities returns the ids of every community with at least one bucket,
// sorted.
func (a *Aggregator) Communities() []string {
	ids := make([]string, 0, len(a.communities))
	for id := range a.communities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rows converts the buckets into aggregate rows tagged with timeframe,
// ordered by community then day.
func (a *Aggregator) Rows(timeframe Timeframe) []store.DailyAggregate {
	rows := make([]store.DailyAggregate, 0, len(a.buckets))
	for key, c := range a.buckets {
		rows = append(rows, store.DailyAggregate{
			CommunityID:   key.communityID,
			Timeframe:     string(timeframe),
			BucketStart:   key.day,
			Positive:      c.Positive,
			Neutral:       c.Neutral,
			Negative:      c.Negative,
			ActivityCount: c.ActivityCount,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CommunityID != rows[j].CommunityID {
			return rows[i].CommunityID < rows[j].CommunityID
		}
		return rows[i].BucketStart < rows[j].BucketStart
	})
	return rows
}
