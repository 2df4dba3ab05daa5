package thread_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"leasebook/internal/db/dbtest"
	"leasebook/internal/enums"
	"leasebook/internal/payment"
	"leasebook/internal/period"
	"leasebook/internal/thread"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPayments []payment.Confirmation

func (s stubPayments) ListForLeaseGroup(_ context.Context, group string) ([]payment.Confirmation, error) {
	var out []payment.Confirmation
	for _, c := range s {
		if c.LeaseGroupID == group {
			out = append(out, c)
		}
	}
	return out, nil
}

// tick returns a clock that advances one second per call.
func tick(start time.Time) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func newEngine(t *testing.T, payments ...payment.Confirmation) *thread.Engine {
	t.Helper()
	return &thread.Engine{
		DB:       dbtest.Open(t),
		Payments: stubPayments(payments),
		Now:      tick(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)),
	}
}

func confirmation(id string, c enums.Category, year, month int) payment.Confirmation {
	return payment.Confirmation{
		ID:               id,
		LeaseGroupID:     "lg-1",
		ConfirmationType: c,
		PeriodYear:       year,
		PeriodMonth:      month,
		AmountDeclared:   decimal.NewFromInt(1000),
		SubmittedVia:     enums.ViaTenantLink,
	}
}

var jan = period.New(2026, 1)

func countThreads(t *testing.T, e *thread.Engine) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.DB.Model(&thread.Thread{}).Count(&n).Error)
	return n
}

func TestEnsureThreadExistsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	ref := thread.PeriodRef(enums.CategoryRent, jan)

	first, err := e.EnsureThreadExists(ctx, "lg-1", enums.TopicPaymentReview, ref, enums.PartyNone)
	require.NoError(t, err)
	second, err := e.EnsureThreadExists(ctx, "lg-1", enums.TopicPaymentReview, ref, enums.PartyTenant)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, enums.PartyLandlord, second.WaitingOn)
	assert.Equal(t, int64(1), countThreads(t, e))

	stored, err := e.GetThread(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "rent:2026-01", stored.TopicRef.String())
	assert.Equal(t, enums.ThreadOpen, stored.Status)
}

func TestEnsureThreadExistsOpensNewCycleAfterResolve(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	first, err := e.EnsureThreadExists(ctx, "lg-1", enums.TopicGeneral, thread.TopicRef{}, enums.PartyLandlord)
	require.NoError(t, err)
	_, err = e.ResolveThread(ctx, first.ID)
	require.NoError(t, err)

	second, err := e.EnsureThreadExists(ctx, "lg-1", enums.TopicGeneral, thread.TopicRef{}, enums.PartyLandlord)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	open, err := e.FindOpenThread(ctx, "lg-1", enums.TopicGeneral, thread.TopicRef{})
	require.NoError(t, err)
	assert.Equal(t, second.ID, open.ID)
}

func TestEnsureThreadExistsValidates(t *testing.T) {
	e := newEngine(t)
	_, err := e.EnsureThreadExists(context.Background(), "lg-1", "bogus", thread.TopicRef{}, enums.PartyLandlord)
	assert.ErrorIs(t, err, thread.ErrInvalidThread)
	_, err = e.EnsureThreadExists(context.Background(), "lg-1", enums.TopicGeneral, thread.TopicRef{}, enums.PartySystem)
	assert.ErrorIs(t, err, thread.ErrInvalidThread)
}

func TestAddMessageMovesThread(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	var changes atomic.Int32
	e.OnChange = func(context.Context, string) { changes.Add(1) }

	th, err := e.EnsureThreadExists(ctx, "lg-1", enums.TopicPaymentReview, thread.PeriodRef(enums.CategoryRent, jan), enums.PartyLandlord)
	require.NoError(t, err)

	steps := []struct {
		typ     enums.MessageType
		actor   enums.Party
		waiting enums.Party
		status  enums.ThreadStatus
	}{
		{enums.MessageFlag, enums.PartyLandlord, enums.PartyTenant, enums.ThreadOpen},
		{enums.MessageReminder, enums.PartySystem, enums.PartyTenant, enums.ThreadOpen},
		{enums.MessageReply, enums.PartyTenant, enums.PartyLandlord, enums.ThreadOpen},
		{enums.MessageReply, enums.PartyLandlord, enums.PartyTenant, enums.ThreadOpen},
		{enums.MessageSubmission, enums.PartyTenant, enums.PartyLandlord, enums.ThreadOpen},
		{enums.MessageAcknowledge, enums.PartyLandlord, enums.PartyNone, enums.ThreadResolved},
	}
	for _, s := range steps {
		_, err := e.AddMessageToThread(ctx, thread.NewMessage{ThreadID: th.ID, Actor: s.actor, Type: s.typ, Body: "x"})
		require.NoError(t, err)
		got, err := e.GetThread(ctx, th.ID)
		require.NoError(t, err)
		assert.Equal(t, s.waiting, got.WaitingOn, "after %s by %s", s.typ, s.actor)
		assert.Equal(t, s.status, got.Status, "after %s by %s", s.typ, s.actor)
	}

	msgs, err := e.GetMessagesForThread(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, msgs, len(steps))
	assert.Equal(t, enums.MessageFlag, msgs[0].MessageType)
	assert.Equal(t, enums.MessageAcknowledge, msgs[len(msgs)-1].MessageType)
	assert.Equal(t, int32(len(steps)+1), changes.Load())
}

func TestTransitionTable(t *testing.T) {
	actors := []enums.Party{enums.PartyLandlord, enums.PartyTenant, enums.PartySystem}
	types := []enums.MessageType{
		enums.MessageSubmission, enums.MessageFlag, enums.MessageReply,
		enums.MessageReminder, enums.MessageAcknowledge, enums.MessageNudge,
	}
	for _, mt := range types {
		for _, actor := range actors {
			waiting, status := thread.Transition(mt, actor, enums.PartyTenant, enums.ThreadOpen)
			wantWaiting, wantStatus := enums.PartyTenant, enums.ThreadOpen
			switch {
			case mt == enums.MessageSubmission:
				wantWaiting = enums.PartyLandlord
			case mt == enums.MessageAcknowledge:
				wantWaiting, wantStatus = enums.PartyNone, enums.ThreadResolved
			case mt == enums.MessageReply && actor == enums.PartyTenant:
				wantWaiting = enums.PartyLandlord
			}
			assert.Equal(t, wantWaiting, waiting, "%s by %s", mt, actor)
			assert.Equal(t, wantStatus, status, "%s by %s", mt, actor)
		}
	}
}

func TestResolvedThreadStateIsFrozen(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	th, err := e.EnsureThreadExists(ctx, "lg-1", enums.TopicGeneral, thread.TopicRef{}, enums.PartyLandlord)
	require.NoError(t, err)
	_, err = e.AddMessageToThread(ctx, thread.NewMessage{ThreadID: th.ID, Actor: enums.PartyLandlord, Type: enums.MessageAcknowledge})
	require.NoError(t, err)
	resolved, err := e.GetThread(ctx, th.ID)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = e.AddMessageToThread(ctx, thread.NewMessage{ThreadID: th.ID, Actor: enums.PartyTenant, Type: enums.MessageReply, Body: "late"})
	require.NoError(t, err)
	_, err = e.AddMessageToThread(ctx, thread.NewMessage{ThreadID: th.ID, Actor: enums.PartyLandlord, Type: enums.MessageFlag})
	require.NoError(t, err)

	after, err := e.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ThreadResolved, after.Status)
	assert.Equal(t, enums.PartyNone, after.WaitingOn)
	assert.True(t, resolved.ResolvedAt.Equal(*after.ResolvedAt))
	assert.True(t, after.LastActivityAt.After(resolved.LastActivityAt))

	again, err := e.ResolveThread(ctx, th.ID)
	require.NoError(t, err)
	assert.True(t, resolved.ResolvedAt.Equal(*again.ResolvedAt))

	msgs, err := e.GetMessagesForThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestUnknownThread(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.AddMessageToThread(ctx, thread.NewMessage{ThreadID: "nope", Actor: enums.PartyTenant, Type: enums.MessageReply})
	assert.ErrorIs(t, err, thread.ErrNotFound)
	_, err = e.ResolveThread(ctx, "nope")
	assert.ErrorIs(t, err, thread.ErrNotFound)
	_, err = e.GetThread(ctx, "nope")
	assert.ErrorIs(t, err, thread.ErrNotFound)

	_, err = e.AddMessageToThread(ctx, thread.NewMessage{ThreadID: "nope", Actor: enums.PartyTenant, Type: "shout"})
	assert.ErrorIs(t, err, thread.ErrInvalidMessage)
}

func TestMaterialiseNeverReopensReviewedMonths(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t,
		confirmation("p1", enums.CategoryRent, 2026, 1),
		confirmation("p2", enums.CategoryRent, 2026, 1),
		confirmation("p3", enums.CategoryMaintenance, 2026, 1),
	)

	created, err := e.MaterialiseSystemThreads(ctx, "lg-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(2), countThreads(t, e))

	rent, err := e.FindOpenThread(ctx, "lg-1", enums.TopicPaymentReview, thread.PeriodRef(enums.CategoryRent, jan))
	require.NoError(t, err)
	assert.Equal(t, enums.PartyLandlord, rent.WaitingOn)
	_, err = e.ResolveThread(ctx, rent.ID)
	require.NoError(t, err)

	created, err = e.MaterialiseSystemThreads(ctx, "lg-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(2), countThreads(t, e))

	// An explicit ensure is free to start a new cycle.
	reopened, err := e.EnsureThreadExists(ctx, "lg-1", enums.TopicPaymentReview, thread.PeriodRef(enums.CategoryRent, jan), enums.PartyLandlord)
	require.NoError(t, err)
	assert.NotEqual(t, rent.ID, reopened.ID)
	assert.Equal(t, int64(3), countThreads(t, e))
}

func TestMaterialiseWithoutPayments(t *testing.T) {
	e := newEngine(t)
	created, err := e.MaterialiseSystemThreads(context.Background(), "lg-1")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureThreadOnceCountsResolved(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	ref := thread.PeriodRef(enums.CategoryUtilities, jan)

	th, created, err := e.EnsureThreadOnce(ctx, "lg-1", enums.TopicMissingPayment, ref, enums.PartyTenant)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, enums.PartyTenant, th.WaitingOn)

	_, err = e.ResolveThread(ctx, th.ID)
	require.NoError(t, err)

	again, created, err := e.EnsureThreadOnce(ctx, "lg-1", enums.TopicMissingPayment, ref, enums.PartyTenant)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, th.ID, again.ID)
	assert.Equal(t, enums.ThreadResolved, again.Status)
}

func TestConcurrentMessagesAreAllPersisted(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	th, err := e.EnsureThreadExists(ctx, "lg-1", enums.TopicGeneral, thread.TopicRef{}, enums.PartyLandlord)
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.AddMessageToThread(ctx, thread.NewMessage{ThreadID: th.ID, Actor: enums.PartyTenant, Type: enums.MessageNudge})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := e.GetMessagesForThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, writers)
}

func TestSnapshotRelevantPrefersOpen(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	ref := thread.PeriodRef(enums.CategoryRent, jan)

	old, err := e.EnsureThreadExists(ctx, "lg-1", enums.TopicPaymentReview, ref, enums.PartyLandlord)
	require.NoError(t, err)
	_, err = e.AddMessageToThread(ctx, thread.NewMessage{ThreadID: old.ID, Actor: enums.PartyLandlord, Type: enums.MessageAcknowledge})
	require.NoError(t, err)

	snap, err := e.LoadSnapshot(ctx, "lg-1")
	require.NoError(t, err)
	assert.Equal(t, old.ID, snap.Relevant(enums.TopicPaymentReview, ref).ID)
	assert.Nil(t, snap.FindOpen(enums.TopicPaymentReview, ref))
	assert.Len(t, snap.MessagesFor(old.ID), 1)

	current, err := e.EnsureThreadExists(ctx, "lg-1", enums.TopicPaymentReview, ref, enums.PartyLandlord)
	require.NoError(t, err)
	snap, err = e.LoadSnapshot(ctx, "lg-1")
	require.NoError(t, err)
	assert.Equal(t, current.ID, snap.Relevant(enums.TopicPaymentReview, ref).ID)
	assert.Nil(t, snap.Relevant(enums.TopicPaymentReview, thread.PeriodRef(enums.CategoryRent, jan.AddMonths(1))))

	threads, err := e.GetThreadsForLeaseGroup(ctx, "lg-1")
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, old.ID, threads[0].ID)
}

func TestEngineUsableAfterPanicInWrite(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	clock := e.Now
	e.Now = func() time.Time { panic("clock failure") }

	assert.Panics(t, func() {
		_, _ = e.EnsureThreadExists(ctx, "lg-1", enums.TopicGeneral, thread.RawRef("note"), enums.PartyLandlord)
	})

	e.Now = clock
	done := make(chan error, 1)
	go func() {
		_, err := e.EnsureThreadExists(ctx, "lg-1", enums.TopicGeneral, thread.RawRef("note"), enums.PartyLandlord)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine lock still held after a panicking write")
	}
	assert.EqualValues(t, 1, countThreads(t, e))
}
