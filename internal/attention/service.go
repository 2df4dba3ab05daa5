package attention

import (
	"context"
	"fmt"
	"time"

	"leasebook/internal/lease"
	"leasebook/internal/logger"
	"leasebook/internal/payment"
	"leasebook/internal/period"
	"leasebook/internal/thread"
)

type Threads interface {
	LoadSnapshot(ctx context.Context, leaseGroupID string) (*thread.Snapshot, error)
	MaterialiseSystemThreads(ctx context.Context, leaseGroupID string) (bool, error)
}

type Leases interface {
	GetCurrent(ctx context.Context, leaseGroupID string) (*lease.Lease, error)
	ListCurrent(ctx context.Context) ([]lease.Lease, error)
}

type Payments interface {
	ListForLeaseGroup(ctx context.Context, leaseGroupID string) ([]payment.Confirmation, error)
}

// Cache holds attention counts between thread writes.
type Cache interface {
	GetCount(ctx context.Context, leaseGroupID string) (int, bool, error)
	SetCount(ctx context.Context, leaseGroupID string, n int) error
	Invalidate(ctx context.Context, leaseGroupID string) error
}

// Service reads threads, payments and leases and derives the landlord's
// view of them. It never writes domain records; LeaseView only asks the
// thread engine to materialise review threads first.
type Service struct {
	Threads       Threads
	Leases        Leases
	Payments      Payments
	Cache         Cache
	Log           *logger.Logger
	Now           func() time.Time
	VisibleMonths int
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) warn(ctx context.Context, leaseGroupID, msg string, err error) {
	if s.Log == nil {
		return
	}
	ctx = s.Log.WithLeaseGroup(ctx, leaseGroupID)
	ctx = s.Log.WithField(ctx, "error", err.Error())
	s.Log.Warn(ctx, msg)
}

// Count returns the group's landlord attention count, from the cache when
// possible.
func (s *Service) Count(ctx context.Context, leaseGroupID string) (int, error) {
	if s.Cache != nil {
		n, ok, err := s.Cache.GetCount(ctx, leaseGroupID)
		if err != nil {
			s.warn(ctx, leaseGroupID, "attention.cache_read_failed", err)
		} else if ok {
			return n, nil
		}
	}

	snap, err := s.Threads.LoadSnapshot(ctx, leaseGroupID)
	if err != nil {
		return 0, fmt.Errorf("attention count: %w", err)
	}
	n := CountLandlordAttention(snap.Threads)
	s.remember(ctx, leaseGroupID, n)
	return n, nil
}

func (s *Service) remember(ctx context.Context, leaseGroupID string, n int) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.SetCount(ctx, leaseGroupID, n); err != nil {
		s.warn(ctx, leaseGroupID, "attention.cache_write_failed", err)
	}
}

// Invalidate drops the cached count. It is the thread engine's OnChange hook.
func (s *Service) Invalidate(ctx context.Context, leaseGroupID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, leaseGroupID); err != nil {
		s.warn(ctx, leaseGroupID, "attention.cache_invalidate_failed", err)
	}
}

func (s *Service) Items(ctx context.Context, leaseGroupID string) ([]Item, error) {
	snap, err := s.Threads.LoadSnapshot(ctx, leaseGroupID)
	if err != nil {
		return nil, fmt.Errorf("attention items: %w", err)
	}
	return Summary(snap), nil
}

// LeaseView is everything the landlord's lease page shows about review state.
type LeaseView struct {
	Lease          *lease.Lease    `json:"lease"`
	AttentionCount int             `json:"attention_count"`
	AttentionItems []Item          `json:"attention_items"`
	MonthlySummary []MonthSummary  `json:"monthly_summary"`
	Threads        []thread.Thread `json:"threads"`
	Expiry         *lease.Expiry   `json:"expiry"`
}

// LeaseView materialises review threads for any unthreaded declarations,
// then derives the view from one snapshot.
func (s *Service) LeaseView(ctx context.Context, leaseGroupID string) (*LeaseView, error) {
	l, err := s.Leases.GetCurrent(ctx, leaseGroupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Threads.MaterialiseSystemThreads(ctx, leaseGroupID); err != nil {
		return nil, err
	}
	payments, err := s.Payments.ListForLeaseGroup(ctx, leaseGroupID)
	if err != nil {
		return nil, err
	}
	snap, err := s.Threads.LoadSnapshot(ctx, leaseGroupID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	v := &LeaseView{
		Lease:          l,
		AttentionCount: CountLandlordAttention(snap.Threads),
		AttentionItems: Summary(snap),
		MonthlySummary: BuildMonthlySummary(MonthlyInput{
			Lease:         l,
			Payments:      payments,
			Snapshot:      snap,
			Now:           now,
			VisibleMonths: s.VisibleMonths,
		}),
		Threads: snap.Threads,
		Expiry:  lease.ExpiryStatus(l, now),
	}
	s.remember(ctx, leaseGroupID, v.AttentionCount)
	return v, nil
}

// MonthThreads returns the review cards of one month.
func (s *Service) MonthThreads(ctx context.Context, leaseGroupID string, p period.Period) ([]MonthThread, error) {
	payments, err := s.Payments.ListForLeaseGroup(ctx, leaseGroupID)
	if err != nil {
		return nil, err
	}
	snap, err := s.Threads.LoadSnapshot(ctx, leaseGroupID)
	if err != nil {
		return nil, err
	}
	return BuildMonthThreads(snap, payments, p), nil
}

type DashboardEntry struct {
	Lease          lease.Lease   `json:"lease"`
	AttentionCount int           `json:"attention_count"`
	AttentionItems []Item        `json:"attention_items"`
	Expiry         *lease.Expiry `json:"expiry"`
}

// Dashboard lists every current lease with its attention state.
func (s *Service) Dashboard(ctx context.Context) ([]DashboardEntry, error) {
	leases, err := s.Leases.ListCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	now := s.now()
	out := make([]DashboardEntry, 0, len(leases))
	for i := range leases {
		l := leases[i]
		n, err := s.Count(ctx, l.LeaseGroupID)
		if err != nil {
			return nil, err
		}
		e := DashboardEntry{Lease: l, AttentionCount: n, AttentionItems: []Item{}, Expiry: lease.ExpiryStatus(&l, now)}
		if n > 0 {
			if e.AttentionItems, err = s.Items(ctx, l.LeaseGroupID); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, nil
}
