// Package scheduler runs periodic work on cron schedules as lifecycle-managed
// services.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/moodtrail/tracker/internal/app/metrics"
	"github.com/moodtrail/tracker/internal/app/system"
	"github.com/moodtrail/tracker/pkg/logger"
)

// RunFunc is one unit of scheduled work.
type RunFunc func(ctx context.Context) error

var _ system.Service = (*Job)(nil)

// Job runs a RunFunc on a cron spec. Overlapping runs are skipped and panics
// are recovered and logged.
type Job struct {
	name    string
	spec    string
	run     RunFunc
	log     *logger.Logger
	timeout time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewJob builds a job. spec accepts five-field cron expressions and the
// @every/@hourly style descriptors.
func NewJob(name, spec string, run RunFunc, log *logger.Logger) *Job {
	if log == nil {
		log = logger.NewDefault(name)
	}
	return &Job{name: name, spec: spec, run: run, log: log, timeout: 5 * time.Minute}
}

// WithTimeout bounds each run. Zero disables the bound.
func (j *Job) WithTimeout(d time.Duration) *Job {
	j.timeout = d
	return j
}

func (j *Job) Name() string { return j.name }

// Spec returns the cron expression.
func (j *Job) Spec() string { return j.spec }

func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}

	cronLog := cron.PrintfLogger(j.log)
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cron.DiscardLogger),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	runCtx, cancel := context.WithCancel(ctx)
	if _, err := c.AddFunc(j.spec, func() { _ = j.Trigger(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
	}
	c.Start()

	j.cron = c
	j.cancel = cancel
	j.running = true
	j.log.WithField("spec", j.spec).Infof("%s started", j.name)
	return nil
}

func (j *Job) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	c, cancel := j.cron, j.cancel
	j.cron, j.cancel, j.running = nil, nil, false
	j.mu.Unlock()

	cancel()
	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	j.log.Infof("%s stopped", j.name)
	return nil
}

// Trigger runs the job once immediately, outside the schedule.
func (j *Job) Trigger(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	start := time.Now()
	err := j.run(ctx)
	elapsed := time.Since(start)
	metrics.RecordJobRun(j.name, elapsed, err == nil)
	entry := j.log.WithField("job", j.name).WithField("duration", elapsed.String())
	if err != nil {
		entry.WithError(err).Warn("scheduled run failed")
		return err
	}
	entry.Debug("scheduled run finished")
	return nil
}
