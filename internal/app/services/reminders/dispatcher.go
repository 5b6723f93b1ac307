package reminders

import (
	"context"
	"time"

	"github.com/moodtrail/tracker/internal/app/domain/reminder"
	"github.com/moodtrail/tracker/internal/app/metrics"
	"github.com/moodtrail/tracker/internal/app/scheduler"
	"github.com/moodtrail/tracker/internal/app/storage"
	"github.com/moodtrail/tracker/pkg/logger"
)

// DefaultBatchSize bounds how many reminders one dispatch pass handles.
const DefaultBatchSize = 100

// Dispatcher delivers due reminders and schedules the next occurrence of
// repeating ones. Failed deliveries stay pending and are retried on the next
// pass.
type Dispatcher struct {
	store       storage.ReminderStore
	notifier    Notifier
	invalidator Invalidator
	log         *logger.Logger
	batch       int
	now         func() time.Time
}

// NewDispatcher builds a dispatcher. A nil notifier logs deliveries.
func NewDispatcher(store storage.ReminderStore, notifier Notifier, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("reminder-dispatcher")
	}
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &Dispatcher{store: store, notifier: notifier, log: log, batch: DefaultBatchSize, now: time.Now}
}

// WithInvalidator registers a cache to clear when reminders change.
func (d *Dispatcher) WithInvalidator(i Invalidator) { d.invalidator = i }

// Dispatch runs one delivery pass and returns how many reminders were
// delivered.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	now := d.now().UTC()
	due, err := d.store.ListDueReminders(ctx, now, d.batch)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, r := range due {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		// Claim before notifying so a failed write cannot cause a second
		// delivery on the next pass.
		deliveredAt := now
		claimed := r
		claimed.DeliveredAt = &deliveredAt
		if _, err := d.store.UpdateReminder(ctx, claimed); err != nil {
			d.log.WithError(err).WithField("reminder_id", r.ID).Error("mark reminder delivered; delivery skipped")
			continue
		}
		if err := d.notifier.Notify(ctx, claimed); err != nil {
			metrics.RecordReminderDelivery(false)
			d.log.WithError(err).WithField("reminder_id", r.ID).Warn("reminder delivery failed; will retry")
			if _, err := d.store.UpdateReminder(ctx, r); err != nil {
				d.log.WithError(err).WithField("reminder_id", r.ID).Error("release reminder after failed delivery")
			}
			continue
		}
		delivered++
		metrics.RecordReminderDelivery(true)

		if next, ok := nextOccurrence(r, now); ok {
			d.spawn(ctx, r, next)
		}
		if d.invalidator != nil {
			d.invalidator.Invalidate(ctx, r.UserID)
		}
	}

	if delivered > 0 {
		d.log.WithField("delivered", delivered).WithField("due", len(due)).Info("reminders dispatched")
	}
	return delivered, nil
}

// nextOccurrence returns the first repeat of r after now. Occurrences missed
// while the dispatcher was down are skipped rather than delivered in a burst.
func nextOccurrence(r reminder.Reminder, now time.Time) (time.Time, bool) {
	next, ok := r.Repeat.Next(r.SentAt)
	if !ok {
		return time.Time{}, false
	}
	for !next.After(now) {
		next, _ = r.Repeat.Next(next)
	}
	return next, true
}

func (d *Dispatcher) spawn(ctx context.Context, r reminder.Reminder, next time.Time) {
	follow := r
	follow.ID = ""
	follow.SentAt = next
	follow.DeliveredAt = nil
	follow.CreatedAt = time.Time{}
	follow.UpdatedAt = time.Time{}

	created, err := d.store.CreateReminder(ctx, follow)
	if err != nil {
		d.log.WithError(err).WithField("reminder_id", r.ID).Warn("schedule next occurrence")
		return
	}
	d.log.WithField("reminder_id", created.ID).
		WithField("repeat", r.Repeat).
		WithField("sent_at", next.Format(time.RFC3339)).
		Debug("next occurrence scheduled")
}

// Job wraps Dispatch in a cron job running on spec.
func (d *Dispatcher) Job(spec string) *scheduler.Job {
	return scheduler.NewJob("reminder-dispatcher", spec, func(ctx context.Context) error {
		_, err := d.Dispatch(ctx)
		return err
	}, d.log)
}
