package subscriptions

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stormwatch/internal/types"
)

// SubscriptionStore is the subscription persistence surface the runner
// needs. Implemented by db.SubscriptionRepo.
type SubscriptionStore interface {
	ListDue(ctx context.Context, now time.Time) ([]types.Subscription, error)
	UpdateLastRunAt(ctx context.Context, id string, runAt time.Time) error
}

// EventSource lists recent violation events with facilities hydrated.
// Implemented by db.ViolationRepo.
type EventSource interface {
	ListEventsSince(ctx context.Context, since time.Time) ([]types.ViolationEvent, error)
}

// AlertLedger records dispatched pairs idempotently. Implemented by
// db.AlertRepo.
type AlertLedger interface {
	Exists(ctx context.Context, subscriptionID, violationEventID string) (bool, error)
	Record(ctx context.Context, subscriptionID, violationEventID, facilityID string, sentAt time.Time) (bool, error)
}

// Dispatcher hands a dispatch message to the external notifier.
// Implemented by queue.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg types.AlertDispatchMessage) error
}

// RunnerConfig tunes the alert run.
type RunnerConfig struct {
	// MaxViolationsPerMessage caps alert items per dispatch message;
	// larger match sets are split across messages.
	MaxViolationsPerMessage int
}

// RunResult summarizes one alert run.
type RunResult struct {
	RunID                  string
	SubscriptionsEvaluated int
	SubscriptionsWithMatch int
	AlertsRecorded         int
	MessagesDispatched     int
}

// Runner executes the scheduled alert run: for every due subscription it
// matches events that changed since the subscription's last run,
// dispatches the not-yet-alerted matches, and records each dispatched
// (subscription, event) pair.
type Runner struct {
	cfg     RunnerConfig
	subs    SubscriptionStore
	events  EventSource
	alerts  AlertLedger
	matcher *Matcher
	queue   Dispatcher
	logger  *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, subs SubscriptionStore, events EventSource, alerts AlertLedger, matcher *Matcher, queue Dispatcher, logger *slog.Logger) *Runner {
	if cfg.MaxViolationsPerMessage <= 0 {
		cfg.MaxViolationsPerMessage = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg,
		subs:    subs,
		events:  events,
		alerts:  alerts,
		matcher: matcher,
		queue:   queue,
		logger:  logger,
	}
}

// Run evaluates all due subscriptions at now. The run cursor advances for
// every evaluated subscription, matches or not, so each window is
// processed exactly once. A failure inside one subscription aborts before
// its cursor moves; already-processed subscriptions stay advanced.
func (r *Runner) Run(ctx context.Context, now time.Time) (*RunResult, error) {
	res := &RunResult{RunID: "run_" + uuid.New().String()}

	due, err := r.subs.ListDue(ctx, now)
	if err != nil {
		return res, err
	}

	for i := range due {
		sub := &due[i]
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.SubscriptionsEvaluated++
		if err := r.runOne(ctx, res, sub, now); err != nil {
			return res, err
		}
		if err := r.subs.UpdateLastRunAt(ctx, sub.ID, now); err != nil {
			return res, err
		}
	}

	r.logger.Info("alert run complete",
		slog.String("run_id", res.RunID),
		slog.Int("subscriptions", res.SubscriptionsEvaluated),
		slog.Int("alerts", res.AlertsRecorded),
		slog.Int("messages", res.MessagesDispatched),
	)
	return res, nil
}

func (r *Runner) runOne(ctx context.Context, res *RunResult, sub *types.Subscription, now time.Time) error {
	var since time.Time
	if sub.LastRunAt != nil {
		since = *sub.LastRunAt
	}

	events, err := r.events.ListEventsSince(ctx, since)
	if err != nil {
		return err
	}

	var (
		items       []types.AlertItem
		facilityIDs []string
	)
	for i := range events {
		event := &events[i]
		if match := r.matcher.Matches(sub, event); !match.Matched {
			continue
		}

		alerted, err := r.alerts.Exists(ctx, sub.ID, event.ID)
		if err != nil {
			return err
		}
		if alerted {
			// Pair already alerted in an earlier run.
			continue
		}

		items = append(items, types.AlertItem{
			ViolationEventID: event.ID,
			FacilityName:     event.Facility.Name,
			PollutantKey:     event.PollutantKey,
			Count:            event.Count,
			MaxRatio:         event.MaxRatio,
			MaxSeverity:      event.MaxSeverity,
		})
		facilityIDs = append(facilityIDs, event.FacilityID)
	}

	if len(items) == 0 {
		return nil
	}
	res.SubscriptionsWithMatch++

	for start := 0; start < len(items); start += r.cfg.MaxViolationsPerMessage {
		end := min(start+r.cfg.MaxViolationsPerMessage, len(items))
		msg := types.AlertDispatchMessage{
			RunID:          res.RunID,
			SubscriptionID: sub.ID,
			Delivery:       sub.Delivery,
			UserID:         sub.UserID,
			Violations:     items[start:end],
			QueuedAt:       now,
		}
		if err := r.queue.Dispatch(ctx, msg); err != nil {
			return err
		}
		res.MessagesDispatched++

		// Ledger rows are written only once the chunk is on the queue.
		// A failure between the two re-sends the chunk on the next run.
		for i := start; i < end; i++ {
			recorded, err := r.alerts.Record(ctx, sub.ID, items[i].ViolationEventID, facilityIDs[i], now)
			if err != nil {
				return err
			}
			if recorded {
				res.AlertsRecorded++
			}
		}
	}
	return nil
}
