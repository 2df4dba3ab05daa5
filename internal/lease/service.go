package lease

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leasebook/internal/enums"
	"leasebook/internal/jobs"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound           = errors.New("lease not found")
	ErrValidation         = errors.New("invalid lease")
	ErrNotCurrent         = errors.New("only the current lease version can be terminated")
	ErrAlreadyTerminated  = errors.New("lease already terminated")
	ErrInvalidTermination = errors.New("invalid termination")
)

type Service struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create starts a new lease group at version 1 and schedules its first sweep.
func (s *Service) Create(ctx context.Context, v Values) (*Lease, error) {
	if err := validateValues(v); err != nil {
		return nil, err
	}
	now := s.now()
	l := Lease{
		ID:               uuid.NewString(),
		LeaseGroupID:     uuid.NewString(),
		Version:          1,
		IsCurrent:        true,
		Values:           normalizeValues(v),
		ExpectedPayments: DefaultExpectedPayments(v.MonthlyRent),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&l).Error; err != nil {
			return err
		}
		j := jobs.NewSweepJob(l.LeaseGroupID, now)
		return tx.Create(&j).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create lease: %w", err)
	}
	return &l, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Lease, error) {
	var l Lease
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&l).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// GetCurrent returns the current version of a lease group.
func (s *Service) GetCurrent(ctx context.Context, leaseGroupID string) (*Lease, error) {
	var l Lease
	err := s.DB.WithContext(ctx).
		Where("lease_group_id = ? AND is_current = ?", leaseGroupID, true).
		First(&l).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// ListCurrent returns the current version of every group, most recently updated first.
func (s *Service) ListCurrent(ctx context.Context) ([]Lease, error) {
	var rows []Lease
	err := s.DB.WithContext(ctx).
		Where("is_current = ?", true).
		Order("updated_at desc").
		Find(&rows).Error
	return rows, err
}

// Versions returns every version in a group, newest first.
func (s *Service) Versions(ctx context.Context, leaseGroupID string) ([]Lease, error) {
	var rows []Lease
	err := s.DB.WithContext(ctx).
		Where("lease_group_id = ?", leaseGroupID).
		Order("version desc").
		Find(&rows).Error
	return rows, err
}

func (s *Service) GroupExists(ctx context.Context, leaseGroupID string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&Lease{}).Where("lease_group_id = ?", leaseGroupID).Count(&n).Error
	return n > 0, err
}

// MonthlyRent reports the agreed rent of the group's current version.
func (s *Service) MonthlyRent(ctx context.Context, leaseGroupID string) (decimal.NullDecimal, error) {
	l, err := s.GetCurrent(ctx, leaseGroupID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return decimal.NullDecimal{}, nil
		}
		return decimal.NullDecimal{}, err
	}
	return l.Values.MonthlyRent, nil
}

// Update replaces the terms of one version.
func (s *Service) Update(ctx context.Context, id string, v Values) (*Lease, error) {
	if err := validateValues(v); err != nil {
		return nil, err
	}
	var out Lease
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		out.Values = normalizeValues(v)
		out.UpdatedAt = s.now()
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetExpectedPayments stores which categories are due monthly and clears the
// confirmation prompt left by a renewal.
func (s *Service) SetExpectedPayments(ctx context.Context, id string, eps []ExpectedPayment) (*Lease, error) {
	normalized, err := normalizeExpected(eps)
	if err != nil {
		return nil, err
	}
	var out Lease
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		out.ExpectedPayments = normalized
		out.NeedsExpectedPaymentConfirmation = false
		out.UpdatedAt = s.now()
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Renew creates the next version of the group the given lease belongs to.
// Names, rent, deposit, due day and expected payments carry over; dates do not.
func (s *Service) Renew(ctx context.Context, leaseID string) (*Lease, error) {
	var renewed Lease
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orig Lease
		if err := tx.Where("id = ?", leaseID).First(&orig).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var versions []Lease
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("lease_group_id = ?", orig.LeaseGroupID).
			Find(&versions).Error; err != nil {
			return err
		}
		maxVersion := 0
		for _, v := range versions {
			if v.Version > maxVersion {
				maxVersion = v.Version
			}
		}

		if err := tx.Model(&Lease{}).
			Where("lease_group_id = ?", orig.LeaseGroupID).
			Update("is_current", false).Error; err != nil {
			return err
		}

		expected := orig.Expected()
		if len(expected) == 0 {
			expected = DefaultExpectedPayments(orig.Values.MonthlyRent)
		}

		now := s.now()
		renewed = Lease{
			ID:           uuid.NewString(),
			LeaseGroupID: orig.LeaseGroupID,
			Version:      maxVersion + 1,
			IsCurrent:    true,
			Values: Values{
				Nickname:        orig.Values.Nickname,
				LessorName:      orig.Values.LessorName,
				LesseeName:      orig.Values.LesseeName,
				MonthlyRent:     orig.Values.MonthlyRent,
				SecurityDeposit: orig.Values.SecurityDeposit,
				RentDueDay:      orig.Values.RentDueDay,
			},
			ExpectedPayments:                 expected,
			NeedsExpectedPaymentConfirmation: true,
			CreatedAt:                        now,
			UpdatedAt:                        now,
		}
		return tx.Create(&renewed).Error
	})
	if err != nil {
		return nil, err
	}
	return &renewed, nil
}

// Terminate records an early end for the current version of a lease. The
// effective date must fall inside the lease term.
func (s *Service) Terminate(ctx context.Context, leaseID string, date time.Time, note string) (*Termination, error) {
	var rec Termination
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l Lease
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", leaseID).First(&l).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !l.IsCurrent {
			return ErrNotCurrent
		}

		var n int64
		if err := tx.Model(&Termination{}).Where("lease_id = ?", leaseID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyTerminated
		}

		if l.Values.StartDate == nil || l.Values.EndDate == nil {
			return fmt.Errorf("%w: lease is missing start or end date", ErrInvalidTermination)
		}
		d := dateOnly(date)
		if d.Before(dateOnly(*l.Values.StartDate)) || d.After(dateOnly(*l.Values.EndDate)) {
			return fmt.Errorf("%w: date must be between the lease start and end dates", ErrInvalidTermination)
		}

		rec = Termination{
			ID:              uuid.NewString(),
			LeaseID:         leaseID,
			TerminationDate: d,
			TerminatedAt:    s.now(),
			TerminatedBy:    "landlord",
		}
		if n := strings.TrimSpace(note); n != "" {
			rec.Note = &n
		}
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyTerminated
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Service) TerminationFor(ctx context.Context, leaseID string) (*Termination, error) {
	var t Termination
	if err := s.DB.WithContext(ctx).Where("lease_id = ?", leaseID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Service) terminationsFor(ctx context.Context, versions []Lease) (map[string]Termination, error) {
	out := map[string]Termination{}
	if len(versions) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(versions))
	for _, v := range versions {
		ids = append(ids, v.ID)
	}
	var rows []Termination
	if err := s.DB.WithContext(ctx).Where("lease_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, t := range rows {
		out[t.LeaseID] = t
	}
	return out, nil
}

func validateValues(v Values) error {
	var problems []string
	if v.StartDate != nil && v.EndDate != nil && dateOnly(*v.EndDate).Before(dateOnly(*v.StartDate)) {
		problems = append(problems, "end date must not be before start date")
	}
	if v.RentDueDay != nil && (*v.RentDueDay < 1 || *v.RentDueDay > 31) {
		problems = append(problems, "rent due day must be between 1 and 31")
	}
	if v.LockInMonths != nil && *v.LockInMonths < 0 {
		problems = append(problems, "lock-in months cannot be negative")
	}
	if v.MonthlyRent.Valid && v.MonthlyRent.Decimal.IsNegative() {
		problems = append(problems, "monthly rent cannot be negative")
	}
	if v.SecurityDeposit.Valid && v.SecurityDeposit.Decimal.IsNegative() {
		problems = append(problems, "security deposit cannot be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func normalizeValues(v Values) Values {
	v.Nickname = strings.TrimSpace(v.Nickname)
	v.LessorName = strings.TrimSpace(v.LessorName)
	v.LesseeName = strings.TrimSpace(v.LesseeName)
	if v.StartDate != nil {
		d := dateOnly(*v.StartDate)
		v.StartDate = &d
	}
	if v.EndDate != nil {
		d := dateOnly(*v.EndDate)
		v.EndDate = &d
	}
	return v
}

// normalizeExpected returns one entry per category in display order.
func normalizeExpected(eps []ExpectedPayment) ([]ExpectedPayment, error) {
	byType := map[enums.Category]ExpectedPayment{}
	for _, ep := range eps {
		if !ep.Type.IsValid() {
			return nil, fmt.Errorf("%w: unknown payment category %q", ErrValidation, ep.Type)
		}
		if ep.TypicalAmount.Valid && ep.TypicalAmount.Decimal.IsNegative() {
			return nil, fmt.Errorf("%w: typical amount for %s cannot be negative", ErrValidation, ep.Type)
		}
		byType[ep.Type] = ep
	}
	out := make([]ExpectedPayment, 0, len(enums.Categories))
	for _, c := range enums.Categories {
		ep, ok := byType[c]
		if !ok {
			ep = ExpectedPayment{Type: c}
		}
		out = append(out, ep)
	}
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
