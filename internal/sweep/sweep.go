// Package sweep opens the system threads nobody asks for explicitly: missing
// payments and upcoming renewals.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leasebook/internal/enums"
	"leasebook/internal/jobs"
	"leasebook/internal/lease"
	"leasebook/internal/logger"
	"leasebook/internal/payment"
	"leasebook/internal/period"
	"leasebook/internal/thread"

	"go.uber.org/multierr"
)

type Leases interface {
	GetCurrent(ctx context.Context, leaseGroupID string) (*lease.Lease, error)
	GoverningLeaseForMonth(ctx context.Context, leaseGroupID string, p period.Period) (lease.Governing, error)
	TerminationFor(ctx context.Context, leaseID string) (*lease.Termination, error)
}

type Payments interface {
	ListForLeaseGroup(ctx context.Context, leaseGroupID string) ([]payment.Confirmation, error)
}

type Threads interface {
	EnsureThreadOnce(ctx context.Context, leaseGroupID string, topic enums.TopicType, ref thread.TopicRef, waitingOn enums.Party) (*thread.Thread, bool, error)
	FindOpenThread(ctx context.Context, leaseGroupID string, topic enums.TopicType, ref thread.TopicRef) (*thread.Thread, error)
	ResolveThread(ctx context.Context, threadID string) (*thread.Thread, error)
}

type Sweeper struct {
	Leases   Leases
	Payments Payments
	Threads  Threads
	Log      *logger.Logger
	Now      func() time.Time

	// LookbackMonths is how many finished months are checked for missing
	// payments. The current month is never checked.
	LookbackMonths    int
	RenewalNoticeDays int
}

type Result struct {
	MissingOpened   int  `json:"missing_opened"`
	MissingResolved int  `json:"missing_resolved"`
	RenewalOpened   bool `json:"renewal_opened"`
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// RenewalRef is the topic reference of a lease version's renewal thread.
func RenewalRef(leaseID string) thread.TopicRef {
	return thread.RawRef("lease:" + leaseID)
}

// Sweep implements jobs.Sweeper.
func (s *Sweeper) Sweep(ctx context.Context, leaseGroupID string) error {
	res, err := s.Run(ctx, leaseGroupID)
	if err != nil {
		return err
	}
	if s.Log != nil && (res.MissingOpened > 0 || res.MissingResolved > 0 || res.RenewalOpened) {
		ctx = s.Log.WithFields(ctx, map[string]any{
			"missing_opened":   res.MissingOpened,
			"missing_resolved": res.MissingResolved,
			"renewal_opened":   res.RenewalOpened,
		})
		s.Log.Info(ctx, "sweep.completed")
	}
	return nil
}

// Run checks one lease group. Months are checked independently; a failure in
// one does not stop the others, and all failures are returned together.
func (s *Sweeper) Run(ctx context.Context, leaseGroupID string) (Result, error) {
	var res Result

	current, err := s.Leases.GetCurrent(ctx, leaseGroupID)
	if errors.Is(err, lease.ErrNotFound) {
		return res, fmt.Errorf("sweep %s: %w", leaseGroupID, jobs.ErrGone)
	}
	if err != nil {
		return res, fmt.Errorf("sweep %s: %w", leaseGroupID, err)
	}
	payments, err := s.Payments.ListForLeaseGroup(ctx, leaseGroupID)
	if err != nil {
		return res, fmt.Errorf("sweep %s: %w", leaseGroupID, err)
	}

	now := s.now()
	this := period.Of(now)
	var errs error
	for i := 1; i <= s.LookbackMonths; i++ {
		p := this.AddMonths(-i)
		opened, resolved, err := s.sweepMonth(ctx, leaseGroupID, p, payment.InPeriod(payments, p))
		res.MissingOpened += opened
		res.MissingResolved += resolved
		errs = multierr.Append(errs, err)
	}

	opened, err := s.sweepRenewal(ctx, current, now)
	res.RenewalOpened = opened
	errs = multierr.Append(errs, err)

	return res, errs
}

func (s *Sweeper) sweepMonth(ctx context.Context, leaseGroupID string, p period.Period, monthPayments []payment.Confirmation) (opened, resolved int, err error) {
	gov, err := s.Leases.GoverningLeaseForMonth(ctx, leaseGroupID, p)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: governing lease: %w", p, err)
	}
	if gov.Status != lease.InLease || gov.Lease == nil {
		return 0, 0, nil
	}

	declared := map[enums.Category]bool{}
	for _, pc := range monthPayments {
		declared[pc.ConfirmationType] = true
	}

	var errs error
	for _, ep := range gov.Lease.Expected() {
		if !ep.Expected {
			continue
		}
		ref := thread.PeriodRef(ep.Type, p)
		if !declared[ep.Type] {
			_, created, err := s.Threads.EnsureThreadOnce(ctx, leaseGroupID, enums.TopicMissingPayment, ref, enums.PartyLandlord)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", ref, err))
				continue
			}
			if created {
				opened++
			}
			continue
		}

		open, err := s.Threads.FindOpenThread(ctx, leaseGroupID, enums.TopicMissingPayment, ref)
		if errors.Is(err, thread.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ref, err))
			continue
		}
		if _, err := s.Threads.ResolveThread(ctx, open.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ref, err))
			continue
		}
		resolved++
	}
	return opened, resolved, errs
}

func (s *Sweeper) sweepRenewal(ctx context.Context, current *lease.Lease, now time.Time) (bool, error) {
	exp := lease.ExpiryStatus(current, now)
	if exp == nil || exp.DaysRemaining > s.RenewalNoticeDays {
		return false, nil
	}
	if _, err := s.Leases.TerminationFor(ctx, current.ID); err == nil {
		return false, nil
	} else if !errors.Is(err, lease.ErrNotFound) {
		return false, fmt.Errorf("renewal: %w", err)
	}

	_, created, err := s.Threads.EnsureThreadOnce(ctx, current.LeaseGroupID, enums.TopicRenewal, RenewalRef(current.ID), enums.PartyLandlord)
	if err != nil {
		return false, fmt.Errorf("renewal: %w", err)
	}
	return created, nil
}
