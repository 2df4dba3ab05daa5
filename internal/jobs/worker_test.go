package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"leasebook/internal/db/dbtest"
	"leasebook/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweepFunc func(ctx context.Context, group string) error

func (f sweepFunc) Sweep(ctx context.Context, group string) error { return f(ctx, group) }

var now = time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) *jobs.Repo {
	t.Helper()
	return &jobs.Repo{DB: dbtest.Open(t), Now: func() time.Time { return now }}
}

func TestEnqueueSweepKeepsOnePending(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.EnqueueSweep(ctx, "lg-1", now.Add(time.Hour)))
	require.NoError(t, repo.EnqueueSweep(ctx, "lg-1", now.Add(2*time.Hour)))
	pending, err := repo.Pending(ctx, "lg-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].RunAt.Equal(now.Add(time.Hour)))

	require.NoError(t, repo.EnsureScheduled(ctx, []string{"lg-1", "lg-2"}))
	pending, err = repo.Pending(ctx, "lg-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].RunAt.Equal(now), "an earlier run pulls the sweep forward")

	pending, err = repo.Pending(ctx, "lg-2")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestClaimOnlyDueJobsOnce(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.EnqueueSweep(ctx, "later", now.Add(time.Minute)))

	job, err := repo.Claim(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, job)

	require.NoError(t, repo.EnqueueSweep(ctx, "due", now.Add(-time.Minute)))
	job, err = repo.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "due", job.LeaseGroupID)
	assert.Equal(t, jobs.StatusRunning, job.Status)

	again, err := repo.Claim(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestWorkerSweepsAndReschedules(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.EnqueueSweep(ctx, "lg-1", now))

	var swept []string
	w := &jobs.Worker{
		ID:            "w1",
		Repo:          repo,
		SweepInterval: 24 * time.Hour,
		Sweeper: sweepFunc(func(_ context.Context, group string) error {
			swept = append(swept, group)
			return nil
		}),
	}

	handled, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"lg-1"}, swept)

	pending, err := repo.Pending(ctx, "lg-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].RunAt.Equal(now.Add(24*time.Hour)))

	handled, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestWorkerRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.EnqueueSweep(ctx, "lg-1", now))

	w := &jobs.Worker{
		ID:   "w1",
		Repo: repo,
		Sweeper: sweepFunc(func(context.Context, string) error {
			return errors.New("db unavailable")
		}),
	}
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)

	pending, err := repo.Pending(ctx, "lg-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.True(t, pending[0].RunAt.Equal(now.Add(2*time.Second)))
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "db unavailable", *pending[0].LastError)
}

func TestWorkerClosesJobsForMissingGroups(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.EnqueueSweep(ctx, "gone", now))

	w := &jobs.Worker{
		ID:            "w1",
		Repo:          repo,
		SweepInterval: time.Hour,
		Sweeper: sweepFunc(func(context.Context, string) error {
			return jobs.ErrGone
		}),
	}
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)

	pending, err := repo.Pending(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
