package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/sentiradar/internal/store"
)

// ErrInvalidTransition is returned when a run is moved out of order.
var ErrInvalidTransition = errors.New("invalid run transition")

// RunCounts are the rows a run persisted.
type RunCounts struct {
	Posts      int `json:"posts"`
	Comments   int `json:"comments"`
	Sentiments int `json:"sentiments"`
}

// Lifecycle records a run's progress in the store:
// queued -> processing -> completed | completed_with_warnings | failed.
type Lifecycle struct {
	store store.Store
	now   func() time.Time
}

// NewLifecycle creates a lifecycle over st.
func NewLifecycle(st store.Store) *Lifecycle {
	return &Lifecycle{store: st, now: time.Now}
}

// Create inserts a queued run. keyword is stored as given; empty means none.
func (l *Lifecycle) Create(ctx context.Context, timeframe Timeframe, keyword string) (*store.RefreshRun, error) {
	run := &store.RefreshRun{
		Timeframe:   string(timeframe),
		Status:      store.RunQueued,
		TriggeredAt: l.now().UTC(),
	}
	if keyword != "" {
		run.Keyword = &keyword
	}
	if err := l.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Start moves a queued run to processing and stamps started_at.
func (l *Lifecycle) Start(ctx context.Context, run *store.RefreshRun) error {
	if run.Status != store.RunQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, store.RunProcessing)
	}
	now := l.now().UTC()
	next := *run
	next.Status = store.RunProcessing
	next.StartedAt = &now
	return l.save(ctx, run, &next)
}

// Complete finishes a processing run. The status is completed_with_warnings
// iff warnings is non-empty, in which case the joined warnings are kept in
// the run's error field.
func (l *Lifecycle) Complete(ctx context.Context, run *store.RefreshRun, counts RunCounts, warnings []string) error {
	status := store.RunCompleted
	var msg *string
	if len(warnings) > 0 {
		status = store.RunCompletedWithWarnings
		joined := strings.Join(warnings, "; ")
		msg = &joined
	}
	return l.finish(ctx, run, status, counts, msg)
}

// Fail finishes a run with a fatal error. Queued runs may fail directly.
func (l *Lifecycle) Fail(ctx context.Context, run *store.RefreshRun, counts RunCounts, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return l.finish(ctx, run, store.RunFailed, counts, &msg)
}

func (l *Lifecycle) finish(ctx context.Context, run *store.RefreshRun, status store.RunStatus, counts RunCounts, msg *string) error {
	if run.Status.Terminal() || (run.Status == store.RunQueued && status != store.RunFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, status)
	}
	now := l.now().UTC()
	start := run.TriggeredAt
	if run.StartedAt != nil {
		start = *run.StartedAt
	}
	next := *run
	next.Status = status
	next.FinishedAt = &now
	next.DurationMS = now.Sub(start).Milliseconds()
	next.PostsProcessed = counts.Posts
	next.CommentsProcessed = counts.Comments
	next.SentimentsProcessed = counts.Sentiments
	next.Error = msg
	return l.save(ctx, run, &next)
}

// save writes next and, only once stored, copies it into run.
func (l *Lifecycle) save(ctx context.Context, run, next *store.RefreshRun) error {
	if err := l.store.UpdateRun(ctx, next); err != nil {
		return err
	}
	*run = *next
	return nil
}
