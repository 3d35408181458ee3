// Package cleanup purges expired, unused redemption codes. Codes are never
// deleted by the normal redemption flow; this job is the explicit
// maintenance operation that removes them.
package cleanup

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/littlewriters/credits-service/internal/storage"
	"github.com/littlewriters/credits-service/pkg/logger"
)

// DefaultSchedule runs the purge once a day at 03:30.
const DefaultSchedule = "30 3 * * *"

// jobTimeout bounds one purge run.
const jobTimeout = 2 * time.Minute

// Job deletes expired unused codes, on demand or on a cron schedule.
type Job struct {
	codes    storage.CodeStore
	schedule string
	log      *logger.Logger
	cron     *cron.Cron
}

// NewJob creates a cleanup job. An empty schedule falls back to
// DefaultSchedule.
func NewJob(codes storage.CodeStore, schedule string, log *logger.Logger) *Job {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if log == nil {
		log = logger.NewDefault("cleanup")
	}
	return &Job{codes: codes, schedule: schedule, log: log}
}

// RunOnce purges expired unused codes and returns how many were removed.
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	removed, err := j.codes.DeleteExpiredCodes(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		j.log.Infof("purged %d expired redemption codes", removed)
	}
	return removed, nil
}

// Start schedules the purge. It returns immediately; runs happen on the cron
// schedule until Stop is called.
func (j *Job) Start() error {
	c := cron.New()
	_, err := c.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			j.log.WithError(err).Warn("scheduled cleanup failed")
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	j.cron = c
	j.log.Infof("cleanup scheduled: %s", j.schedule)
	return nil
}

// Stop cancels the schedule and waits for a running purge to finish.
func (j *Job) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.cron = nil
}
