package jobs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StaleAfter is how long a RUNNING job may hold its lock before it is handed
// out again.
const StaleAfter = 5 * time.Minute

type Repo struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (r *Repo) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// EnqueueSweep schedules a sweep of the lease group. A group has at most one
// pending sweep; an earlier runAt pulls the existing one forward.
func (r *Repo) EnqueueSweep(ctx context.Context, leaseGroupID string, runAt time.Time) error {
	runAt = runAt.UTC()
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending Job
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("lease_group_id = ? AND type = ? AND status = ?", leaseGroupID, TypeLeaseSweep, StatusPending).
			Order("run_at asc").
			First(&pending).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			j := NewSweepJob(leaseGroupID, runAt)
			now := r.now()
			j.CreatedAt, j.UpdatedAt = now, now
			return tx.Create(&j).Error
		}
		if err != nil {
			return err
		}
		if !runAt.Before(pending.RunAt) {
			return nil
		}
		return tx.Model(&Job{}).Where("id = ?", pending.ID).
			Updates(map[string]any{"run_at": runAt, "updated_at": r.now()}).Error
	})
}

// EnsureScheduled gives every listed group a pending sweep due now unless
// one is already queued.
func (r *Repo) EnsureScheduled(ctx context.Context, leaseGroupIDs []string) error {
	now := r.now()
	for _, id := range leaseGroupIDs {
		if err := r.EnqueueSweep(ctx, id, now); err != nil {
			return err
		}
	}
	return nil
}

// Claim hands one due job to workerID, or returns nil when none is due.
// Postgres skips rows other workers hold; the conditional update keeps the
// claim exclusive on any backend.
func (r *Repo) Claim(ctx context.Context, workerID string) (*Job, error) {
	now := r.now()
	db := r.DB.WithContext(ctx)

	if err := db.Model(&Job{}).
		Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", StatusRunning, now.Add(-StaleAfter)).
		Updates(map[string]any{"status": StatusPending, "locked_by": nil, "locked_at": nil, "updated_at": now}).Error; err != nil {
		return nil, err
	}

	var job Job
	err := db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ? AND run_at <= ?", StatusPending, now).Order("run_at asc, id asc")
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Limit(1).Find(&job).Error; err != nil {
			return err
		}
		if job.ID == 0 {
			return gorm.ErrRecordNotFound
		}

		res := tx.Model(&Job{}).
			Where("id = ? AND status = ?", job.ID, StatusPending).
			Updates(map[string]any{"status": StatusRunning, "locked_by": workerID, "locked_at": now, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		job.Status = StatusRunning
		job.LockedBy = &workerID
		job.LockedAt = &now
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *Repo) MarkDone(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).
		Updates(map[string]any{"status": StatusDone, "locked_by": nil, "locked_at": nil, "updated_at": r.now()}).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).
		Updates(map[string]any{"status": StatusFailed, "last_error": errMsg, "locked_by": nil, "locked_at": nil, "updated_at": r.now()}).Error
}

func (r *Repo) RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error {
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":     StatusPending,
			"attempts":   attempts,
			"run_at":     runAt.UTC(),
			"locked_by":  nil,
			"locked_at":  nil,
			"last_error": errMsg,
			"updated_at": r.now(),
		}).Error
}

func (r *Repo) Get(ctx context.Context, id uint64) (*Job, error) {
	var j Job
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// Pending lists the pending jobs of a lease group, soonest first.
func (r *Repo) Pending(ctx context.Context, leaseGroupID string) ([]Job, error) {
	var out []Job
	err := r.DB.WithContext(ctx).
		Where("lease_group_id = ? AND status = ?", leaseGroupID, StatusPending).
		Order("run_at asc").
		Find(&out).Error
	return out, err
}
