// Package refresh runs the sentiment refresh pipeline: it acquires a token,
// walks every community sequentially, scores what the filter keeps, and
// flushes drafts and aggregate snapshots once the whole run is fetched.
package refresh

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/elonfeng/sentiradar/internal/logging"
	"github.com/elonfeng/sentiradar/internal/metrics"
	"github.com/elonfeng/sentiradar/internal/store"
	"github.com/elonfeng/sentiradar/pkg/source"
)

// Request triggers one run.
type Request struct {
	Timeframe string `json:"timeframe" validate:"required,oneof=24h 7d 30d"`
	Keyword   string `json:"keyword,omitempty" validate:"max=100"`
}

// Result is what a trigger returns once the run is terminal.
type Result struct {
	RunID    string          `json:"run_id"`
	Status   store.RunStatus `json:"status"`
	Counts   RunCounts       `json:"counts"`
	Warnings []string        `json:"warnings"`
	Error    string          `json:"error,omitempty"`

	Timeframe Timeframe     `json:"timeframe"`
	Keyword   string        `json:"keyword,omitempty"`
	Duration  time.Duration `json:"-"`
}

// Notifier is told about every terminal run.
type Notifier interface {
	NotifyRun(ctx context.Context, res *Result) error
}

// Runner executes refresh runs end to end.
type Runner struct {
	store     store.Store
	tokens    source.TokenSource
	processor *Processor
	persister *Persister
	lifecycle *Lifecycle
	notifier  Notifier

	now func() time.Time
}

// NewRunner wires a runner. notifier may be nil.
func NewRunner(st store.Store, tokens source.TokenSource, processor *Processor, notifier Notifier) *Runner {
	return &Runner{
		store:     st,
		tokens:    tokens,
		processor: processor,
		persister: NewPersister(st),
		lifecycle: NewLifecycle(st),
		notifier:  notifier,
		now:       time.Now,
	}
}

// NormalizeKeyword is the single place a trigger keyword is cleaned: outer
// whitespace is dropped, and a blank keyword means no keyword filter. The
// result is what the run record, the filter and the Result all carry.
func NormalizeKeyword(keyword string) string {
	return strings.TrimSpace(keyword)
}

// Run executes one run synchronously. An invalid timeframe fails with a
// *config.Error before any run record exists. A run that reaches a fatal
// error is marked failed and both its Result and the error are returned.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	tf, err := ParseTimeframe(req.Timeframe)
	if err != nil {
		return nil, err
	}

	keyword := NormalizeKeyword(req.Keyword)

	run, err := r.lifecycle.Create(ctx, tf, keyword)
	if err != nil {
		return nil, err
	}
	log := logging.With().Str("run_id", run.ID).Str("timeframe", string(tf)).Logger()
	res := &Result{RunID: run.ID, Status: run.Status, Timeframe: tf, Keyword: keyword, Warnings: []string{}}

	if err := r.lifecycle.Start(ctx, run); err != nil {
		return r.fail(ctx, run, res, RunCounts{}, err)
	}
	log.Info().Msg("refresh run started")

	batch, counts, err := r.execute(ctx, tf, keyword)
	if batch != nil {
		res.Warnings = append(res.Warnings, batch.Warnings...)
		for _, w := range batch.Warnings {
			log.Warn().Msg(w)
		}
	}
	if err != nil {
		return r.fail(ctx, run, res, counts, err)
	}

	if err := r.lifecycle.Complete(ctx, run, counts, res.Warnings); err != nil {
		return r.fail(ctx, run, res, counts, err)
	}
	res.Status = run.Status
	r.finish(ctx, run, res, counts)
	log.Info().Str("status", string(run.Status)).
		Int("posts", counts.Posts).Int("comments", counts.Comments).Int("sentiments", counts.Sentiments).
		Int("warnings", len(res.Warnings)).Msg("refresh run finished")
	return res, nil
}

// execute is the fetch-score-flush body of a run.
func (r *Runner) execute(ctx context.Context, tf Timeframe, keyword string) (*Batch, RunCounts, error) {
	if _, err := r.tokens.Refresh(ctx); err != nil {
		return nil, RunCounts{}, err
	}

	communities, err := r.store.ListCommunities(ctx)
	if err != nil {
		return nil, RunCounts{}, &PersistenceError{Op: "list communities", Err: err}
	}

	filter := source.NewFilter(tf.Cutoff(r.now()), keyword)
	agg := NewAggregator()
	batch := &Batch{}
	for _, c := range communities {
		if err := r.processor.Process(ctx, c, filter, agg, batch); err != nil {
			return batch, RunCounts{}, err
		}
	}

	stats, err := r.persister.Flush(ctx, tf, batch, agg)
	counts := RunCounts{Posts: stats.Posts, Comments: stats.Comments, Sentiments: stats.Sentiments}
	return batch, counts, err
}

func (r *Runner) fail(ctx context.Context, run *store.RefreshRun, res *Result, counts RunCounts, cause error) (*Result, error) {
	// Record the failure even if the caller's context is already done.
	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := r.lifecycle.Fail(writeCtx, run, counts, cause); err != nil && !errors.Is(err, ErrInvalidTransition) {
		logging.Error().Err(err).Str("run_id", run.ID).Msg("record failed run")
	}
	res.Status = store.RunFailed
	res.Error = cause.Error()
	r.finish(writeCtx, run, res, counts)
	logging.Error().Err(cause).Str("run_id", run.ID).Msg("refresh run failed")
	return res, cause
}

func (r *Runner) finish(ctx context.Context, run *store.RefreshRun, res *Result, counts RunCounts) {
	res.Counts = counts
	res.Duration = time.Duration(run.DurationMS) * time.Millisecond
	if res.Status == store.RunCompletedWithWarnings && run.Error != nil {
		res.Error = *run.Error
	}

	metrics.RefreshRuns.WithLabelValues(string(res.Status)).Inc()
	metrics.RefreshRunDuration.Observe(res.Duration.Seconds())

	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyRun(ctx, res); err != nil {
		logging.Warn().Err(err).Str("run_id", run.ID).Msg("run notification failed")
	}
}
