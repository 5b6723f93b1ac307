package auth

import (
	"context"
	"time"

	"github.com/moodtrail/tracker/internal/app/scheduler"
	"github.com/moodtrail/tracker/internal/app/storage"
	"github.com/moodtrail/tracker/pkg/logger"
)

// Janitor removes expired sessions.
type Janitor struct {
	sessions storage.SessionStore
	log      *logger.Logger
	now      func() time.Time
}

// NewJanitor builds a janitor over sessions.
func NewJanitor(sessions storage.SessionStore, log *logger.Logger) *Janitor {
	if log == nil {
		log = logger.NewDefault("session-janitor")
	}
	return &Janitor{sessions: sessions, log: log, now: time.Now}
}

// Sweep deletes expired sessions and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	n, err := j.sessions.DeleteExpiredSessions(ctx, j.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.log.WithField("removed", n).Info("expired sessions removed")
	}
	return n, nil
}

// Job wraps Sweep in a cron job running on spec.
func (j *Janitor) Job(spec string) *scheduler.Job {
	return scheduler.NewJob("session-janitor", spec, func(ctx context.Context) error {
		_, err := j.Sweep(ctx)
		return err
	}, j.log)
}
