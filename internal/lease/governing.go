package lease

import (
	"context"
	"sort"

	"leasebook/internal/period"
)

type GoverningStatus string

const (
	InLease    GoverningStatus = "IN_LEASE"
	OutOfLease GoverningStatus = "OUT_OF_LEASE"
)

type OutOfLeaseReason string

const (
	ReasonPreLease   OutOfLeaseReason = "pre_lease"
	ReasonPostLease  OutOfLeaseReason = "post_lease"
	ReasonGap        OutOfLeaseReason = "gap"
	ReasonTerminated OutOfLeaseReason = "terminated"
)

// Governing names the version whose term covers a month, or why none does.
type Governing struct {
	Status GoverningStatus  `json:"status"`
	Reason OutOfLeaseReason `json:"reason,omitempty"`
	Lease  *Lease           `json:"lease,omitempty"`
}

// GoverningLeaseForMonth picks the lease version covering p by its dates, not
// by is_current. A termination cuts a version's term short.
func (s *Service) GoverningLeaseForMonth(ctx context.Context, leaseGroupID string, p period.Period) (Governing, error) {
	versions, err := s.Versions(ctx, leaseGroupID)
	if err != nil {
		return Governing{}, err
	}
	terms, err := s.terminationsFor(ctx, versions)
	if err != nil {
		return Governing{}, err
	}
	return Govern(versions, terms, p), nil
}

// Govern is the pure selection behind GoverningLeaseForMonth. Among eligible
// versions the latest start wins, then the highest version.
func Govern(versions []Lease, terminations map[string]Termination, p period.Period) Governing {
	type candidate struct {
		lease *Lease
		start period.Period
	}

	var (
		eligible      []candidate
		terminatedHit bool
		starts, ends  []period.Period
	)
	for i := range versions {
		l := &versions[i]
		if l.Values.StartDate == nil || l.Values.EndDate == nil {
			continue
		}
		start := period.Of(*l.Values.StartDate)
		end := period.Of(*l.Values.EndDate)
		starts = append(starts, start)
		ends = append(ends, end)

		effectiveEnd := end
		t, terminated := terminations[l.ID]
		if terminated {
			effectiveEnd = period.Of(t.TerminationDate)
		}

		switch {
		case !p.Before(start) && !p.After(effectiveEnd):
			eligible = append(eligible, candidate{lease: l, start: start})
		case terminated && !p.Before(start) && !p.After(end):
			terminatedHit = true
		}
	}

	if len(eligible) > 0 {
		sort.SliceStable(eligible, func(i, j int) bool {
			if eligible[i].start != eligible[j].start {
				return eligible[j].start.Before(eligible[i].start)
			}
			return eligible[i].lease.Version > eligible[j].lease.Version
		})
		return Governing{Status: InLease, Lease: eligible[0].lease}
	}
	if terminatedHit {
		return Governing{Status: OutOfLease, Reason: ReasonTerminated}
	}
	if len(starts) == 0 {
		return Governing{Status: OutOfLease, Reason: ReasonPreLease}
	}

	earliest, latest := starts[0], ends[0]
	for _, s := range starts[1:] {
		if s.Before(earliest) {
			earliest = s
		}
	}
	for _, e := range ends[1:] {
		if e.After(latest) {
			latest = e
		}
	}
	switch {
	case p.Before(earliest):
		return Governing{Status: OutOfLease, Reason: ReasonPreLease}
	case p.After(latest):
		return Governing{Status: OutOfLease, Reason: ReasonPostLease}
	default:
		return Governing{Status: OutOfLease, Reason: ReasonGap}
	}
}
