package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/sentiradar/internal/store"
	"github.com/elonfeng/sentiradar/pkg/refresh"
)

// Notification is the run summary sent to alert destinations.
type Notification struct {
	RunID      string          `json:"run_id"`
	Status     store.RunStatus `json:"status"`
	Timeframe  string          `json:"timeframe"`
	Keyword    string          `json:"keyword,omitempty"`
	Posts      int             `json:"posts"`
	Comments   int             `json:"comments"`
	Sentiments int             `json:"sentiments"`
	Warnings   []string        `json:"warnings,omitempty"`
	Error      string          `json:"error,omitempty"`
	Duration   string          `json:"duration"`
	SentAt     time.Time       `json:"sent_at"`
}

// Title is a one-line headline for chat destinations.
func (n *Notification) Title() string {
	scope := n.window()
	switch n.Status {
	case store.RunFailed:
		return fmt.Sprintf("Refresh %s failed", scope)
	case store.RunCompletedWithWarnings:
		return fmt.Sprintf("Refresh %s completed with %d warning(s)", scope, len(n.Warnings))
	default:
		return fmt.Sprintf("Refresh %s completed", scope)
	}
}

// Summary is the counts line shared by every destination.
func (n *Notification) Summary() string {
	return fmt.Sprintf("%d posts, %d comments, %d sentiments", n.Posts, n.Comments, n.Sentiments)
}

func (n *Notification) window() string {
	if n.Keyword == "" {
		return n.Timeframe
	}
	return fmt.Sprintf("%s %q", n.Timeframe, n.Keyword)
}

// Details returns the error or the first few warnings, one per line.
func (n *Notification) Details(max int) string {
	if n.Status == store.RunFailed {
		return n.Error
	}
	warnings := n.Warnings
	more := 0
	if max > 0 && len(warnings) > max {
		more = len(warnings) - max
		warnings = warnings[:max]
	}
	out := strings.Join(warnings, "\n")
	if more > 0 {
		out += fmt.Sprintf("\n(+%d more)", more)
	}
	return out
}

// FromResult builds a notification from a finished run.
func FromResult(res *refresh.Result) *Notification {
	return &Notification{
		RunID:      res.RunID,
		Status:     res.Status,
		Timeframe:  string(res.Timeframe),
		Keyword:    res.Keyword,
		Posts:      res.Counts.Posts,
		Comments:   res.Counts.Comments,
		Sentiments: res.Counts.Sentiments,
		Warnings:   res.Warnings,
		Error:      res.Error,
		Duration:   res.Duration.Round(time.Millisecond).String(),
		SentAt:     time.Now().UTC(),
	}
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers     []Notifier
	notifySuccess bool
}

// NewManager creates a new alert manager. Clean runs are only announced when
// notifySuccess is set.
func NewManager(notifiers []Notifier, notifySuccess bool) *Manager {
	return &Manager{notifiers: notifiers, notifySuccess: notifySuccess}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// ShouldNotify reports whether a run with status is announced.
func (m *Manager) ShouldNotify(status store.RunStatus) bool {
	switch status {
	case store.RunFailed, store.RunCompletedWithWarnings:
		return true
	case store.RunCompleted:
		return m.notifySuccess
	}
	return false
}

// NotifyRun implements refresh.Notifier.
func (m *Manager) NotifyRun(ctx context.Context, res *refresh.Result) error {
	if !m.HasNotifiers() || !m.ShouldNotify(res.Status) {
		return nil
	}
	return m.Broadcast(ctx, FromResult(res))
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
