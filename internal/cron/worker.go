// Package cron runs the scheduled EOP table refresh.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bher20/gmeter/internal/alerting"
	"github.com/bher20/gmeter/internal/eop"
	"github.com/bher20/gmeter/internal/metrics"
	"github.com/bher20/gmeter/internal/storage"
	"github.com/cenkalti/backoff/v5"
)

const (
	// JobName identifies the refresh job in metrics and scheduled_jobs.
	JobName = "eop_refresh"

	// SettingRefreshSchedule overrides the configured schedule at runtime.
	SettingRefreshSchedule = "eop_refresh_schedule"

	lockKey int64 = 42
)

// ErrLockHeld is returned by RunOnce when another worker holds the job lock.
var ErrLockHeld = errors.New("cron: lock held by another worker")

// Refresher is the part of *eop.Provider the worker drives.
type Refresher interface {
	Refresh(ctx context.Context) (*eop.Table, error)
	Status() eop.Status
}

type Config struct {
	// Schedule is an interval in seconds or a cron expression.
	Schedule string
	// MaxAttempts bounds the fetches per run.
	MaxAttempts int
	// RetryInitialInterval and RetryMaxInterval shape the backoff between
	// attempts of one run.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// TickInterval is how often the control loop checks settings and the
	// next run time.
	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Schedule:             DefaultSchedule,
		MaxAttempts:          3,
		RetryInitialInterval: 5 * time.Second,
		RetryMaxInterval:     time.Minute,
		TickInterval:         10 * time.Second,
	}
}

// Worker refreshes the EOP table on a schedule. Storage advisory locks make
// sure only one replica refreshes at a time.
type Worker struct {
	store   storage.Storage
	ref     Refresher
	alerter *alerting.Alerter
	cfg     Config
	now     func() time.Time

	failures int
}

func NewWorker(st storage.Storage, ref Refresher, alerter *alerting.Alerter, cfg Config) *Worker {
	def := DefaultConfig()
	if cfg.Schedule == "" {
		cfg.Schedule = def.Schedule
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = def.RetryInitialInterval
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = def.RetryMaxInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if alerter == nil {
		alerter = alerting.NewAlerter(alerting.Config{})
	}
	return &Worker{store: st, ref: ref, alerter: alerter, cfg: cfg, now: time.Now}
}

// ConsecutiveFailures is the number of failed runs since the last success.
func (w *Worker) ConsecutiveFailures() int { return w.failures }

// schedule returns the stored override when present.
func (w *Worker) schedule(ctx context.Context) string {
	val, err := w.store.GetSetting(ctx, SettingRefreshSchedule)
	if err != nil {
		log.Printf("cron: read %s failed: %v", SettingRefreshSchedule, err)
		return w.cfg.Schedule
	}
	if val == "" {
		return w.cfg.Schedule
	}
	if err := ValidateSchedule(val); err != nil {
		log.Printf("cron: ignoring stored schedule: %v", err)
		return w.cfg.Schedule
	}
	return val
}

// Run executes the refresh job immediately and then on schedule until ctx is
// done.
func (w *Worker) Run(ctx context.Context) error {
	setting := w.schedule(ctx)
	nextRun := w.now()

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	log.Printf("cron: worker starting, schedule=%q source=%s", setting, w.ref.Status().SourceID)

	for {
		if val := w.schedule(ctx); val != setting {
			log.Printf("cron: schedule updated from %q to %q", setting, val)
			setting = val
			nextRun = NextRun(setting, w.now())
		}

		if !w.now().Before(nextRun) {
			if err := w.RunOnce(ctx); err != nil && !errors.Is(err, ErrLockHeld) {
				log.Printf("cron: job %s failed: %v", JobName, err)
			}
			nextRun = NextRun(setting, w.now())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs one locked refresh run and records its outcome.
func (w *Worker) RunOnce(ctx context.Context) error {
	started := w.now()

	ok, err := w.store.AcquireAdvisoryLock(ctx, lockKey)
	if err != nil {
		metrics.UpdateJobMetrics(JobName, started, err)
		return fmt.Errorf("cron: acquire advisory lock: %w", err)
	}
	if !ok {
		log.Printf("cron: advisory lock held by another worker, skipping run")
		return ErrLockHeld
	}

	var attempts int
	var runErr error
	func() {
		defer func() {
			if _, err := w.store.ReleaseAdvisoryLock(ctx, lockKey); err != nil {
				log.Printf("cron: release advisory lock failed: %v", err)
			}
		}()
		attempts, runErr = w.refreshWithRetry(ctx)
	}()

	metrics.UpdateJobMetrics(JobName, started, runErr)
	dur := w.now().Sub(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := w.store.UpdateScheduledJob(ctx, JobName, started, dur, runErr == nil, errMsg); err != nil {
		log.Printf("cron: update scheduled_jobs failed: %v", err)
	}

	if runErr == nil {
		if w.failures > 0 {
			log.Printf("cron: job %s recovered after %d failed runs", JobName, w.failures)
		}
		w.failures = 0
		log.Printf("cron: job %s completed successfully (attempts=%d duration=%s)", JobName, attempts, dur)
		return nil
	}

	w.failures++
	log.Printf("cron: job %s completed with error: %v (attempts=%d duration=%s)", JobName, runErr, attempts, dur)
	w.maybeAlert(ctx, attempts, runErr)
	return runErr
}

func (w *Worker) refreshWithRetry(ctx context.Context) (int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.cfg.RetryInitialInterval
	bo.MaxInterval = w.cfg.RetryMaxInterval

	for attempt := 1; ; attempt++ {
		_, err := w.ref.Refresh(ctx)
		if err == nil {
			return attempt, nil
		}
		// A malformed bulletin will not fix itself within one run.
		if errors.Is(err, eop.ErrParse) || attempt >= w.cfg.MaxAttempts {
			return attempt, err
		}

		sleep := bo.NextBackOff()
		if sleep == backoff.Stop {
			return attempt, err
		}
		log.Printf("cron: refresh attempt %d failed: %v; retrying in %s", attempt, err, sleep)
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// maybeAlert fires when the failure streak reaches the threshold and then
// every threshold further failures.
func (w *Worker) maybeAlert(ctx context.Context, attempts int, runErr error) {
	n := w.alerter.Threshold()
	if w.failures < n || (w.failures-n)%n != 0 {
		return
	}
	st := w.ref.Status()
	alert := alerting.RefreshAlert{
		Job:                 JobName,
		Source:              st.SourceID,
		ConsecutiveFailures: w.failures,
		Attempts:            attempts,
		LastError:           runErr.Error(),
		LastSuccess:         st.FetchedAt,
		TableAge:            st.Age,
		Stale:               !st.Loaded || st.Stale,
		Timestamp:           w.now().UTC(),
	}
	if err := w.alerter.SendRefreshAlert(ctx, alert); err != nil {
		log.Printf("cron: send alert failed: %v", err)
	}
}
