package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"leasebook/internal/logger"
	"leasebook/internal/metrics"
)

// ErrGone marks a job whose target no longer exists. The job is closed
// without a retry or a follow-up.
var ErrGone = errors.New("job target no longer exists")

// Sweeper runs the periodic checks of one lease group.
type Sweeper interface {
	Sweep(ctx context.Context, leaseGroupID string) error
}

type Worker struct {
	ID      string
	Repo    *Repo
	Sweeper Sweeper
	Log     *logger.Logger
	Metrics *metrics.JobMetrics

	PollInterval  time.Duration
	SweepInterval time.Duration
}

func (w *Worker) Run(ctx context.Context) {
	poll := w.PollInterval
	if poll <= 0 {
		poll = 800 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logError(ctx, "worker.claim_failed", err)
			}
		}
	}
}

// RunOnce claims and handles at most one due job. It reports whether a job
// was handled.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.Repo.Claim(ctx, w.ID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.handle(ctx, job)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	start := time.Now()
	defer func() { w.Metrics.ObserveDuration(job.Type, time.Since(start)) }()

	if w.Log != nil {
		ctx = w.Log.WithFields(ctx, map[string]any{"job_id": job.ID, "job_type": job.Type, "worker_id": w.ID})
	}

	switch job.Type {
	case TypeLeaseSweep:
		w.handleSweep(ctx, job)
	default:
		w.Metrics.IncFailure(job.Type)
		_ = w.Repo.MarkFailed(ctx, job.ID, "unknown job type")
	}
}

func (w *Worker) handleSweep(ctx context.Context, job *Job) {
	var p sweepPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil || p.LeaseGroupID == "" {
		w.Metrics.IncFailure(job.Type)
		_ = w.Repo.MarkFailed(ctx, job.ID, "bad payload")
		return
	}
	if w.Log != nil {
		ctx = w.Log.WithLeaseGroup(ctx, p.LeaseGroupID)
	}

	err := w.Sweeper.Sweep(ctx, p.LeaseGroupID)
	switch {
	case errors.Is(err, ErrGone):
		w.Metrics.IncSuccess(job.Type)
		_ = w.Repo.MarkDone(ctx, job.ID)
		return
	case err != nil:
		w.Metrics.IncFailure(job.Type)
		w.logError(ctx, "worker.sweep_failed", err)
		w.retry(ctx, job, err.Error())
		return
	}

	w.Metrics.IncSuccess(job.Type)
	if err := w.Repo.MarkDone(ctx, job.ID); err != nil {
		w.logError(ctx, "worker.mark_done_failed", err)
		return
	}
	if w.SweepInterval > 0 {
		if err := w.Repo.EnqueueSweep(ctx, p.LeaseGroupID, w.Repo.now().Add(w.SweepInterval)); err != nil {
			w.logError(ctx, "worker.reschedule_failed", err)
		}
	}
}

func (w *Worker) retry(ctx context.Context, job *Job, errMsg string) {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		_ = w.Repo.MarkFailed(ctx, job.ID, errMsg)
		return
	}

	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	next := w.Repo.now().Add(time.Duration(sec) * time.Second)

	_ = w.Repo.RetryLater(ctx, job.ID, attempts, next, errMsg)
}

func (w *Worker) logError(ctx context.Context, msg string, err error) {
	if w.Log == nil {
		return
	}
	w.Log.Error(ctx, msg, err)
}
