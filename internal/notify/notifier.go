// Package notify delivers pipeline job alerts to chat channels. Alerts are
// dispatched to all registered senders (Telegram, Discord) and filtered by
// event type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// Event types accepted in the notify.events config list.
const (
	EventJobFailed    = "job_failed"
	EventJobSucceeded = "job_succeeded"
)

// Message is one alert, rendered by each sender in its own markup.
type Message struct {
	Title   string
	Body    string
	Failure bool
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches job alerts to one or more Senders.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in events are sent; an empty list allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// JobFinished alerts on a completed job run. Delivery failures are logged and
// never reach the pipeline.
func (n *Notifier) JobFinished(ctx context.Context, run domain.JobRun) {
	event := EventJobSucceeded
	if !run.Succeeded() {
		event = EventJobFailed
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return
	}
	if err := n.dispatch(ctx, jobMessage(run)); err != nil {
		n.logger.WarnContext(ctx, "alert not delivered",
			slog.String("job", run.Job),
			slog.String("error", err.Error()),
		)
	}
}

func jobMessage(run domain.JobRun) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", run.RunID)
	fmt.Fprintf(&b, "processed %d, updated %d, skipped %d, failed %d\n",
		run.Processed, run.Updated, run.Skipped, run.Failed)
	fmt.Fprintf(&b, "took %s", run.Elapsed.Round(time.Millisecond))
	if run.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s", run.Error)
	}

	title := fmt.Sprintf("polyrec: %s succeeded", run.Job)
	if !run.Succeeded() {
		title = fmt.Sprintf("polyrec: %s failed", run.Job)
	}
	return Message{Title: title, Body: b.String(), Failure: !run.Succeeded()}
}

// dispatch sends msg to every sender. A single sender failure does not
// prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}
	return errors.Join(errs...)
}
