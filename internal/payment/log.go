package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leasebook/internal/enums"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("payment confirmation not found")
	ErrValidation = errors.New("invalid payment submission")
)

// ValidationError carries every problem found in one submission.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "invalid payment submission: " + strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RentSource reports the agreed monthly rent for a lease group.
type RentSource interface {
	MonthlyRent(ctx context.Context, leaseGroupID string) (decimal.NullDecimal, error)
}

type Log struct {
	DB   *gorm.DB
	Rent RentSource
	Now  func() time.Time
}

func (l *Log) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// Section is one category within a submission.
type Section struct {
	// ID may be preassigned so proof files can be stored under it first.
	ID         string
	Category   enums.Category
	Amount     decimal.NullDecimal
	TDS        decimal.NullDecimal
	DatePaid   *time.Time
	ProofFiles []string
}

type SubmitInput struct {
	LeaseGroupID           string
	Via                    enums.SubmissionChannel
	Year                   int
	Month                  int
	DisclaimerAcknowledged bool
	Notes                  string
	Sections               []Section
}

// ListForLeaseGroup returns every confirmation for the group, newest first.
func (l *Log) ListForLeaseGroup(ctx context.Context, leaseGroupID string) ([]Confirmation, error) {
	var rows []Confirmation
	err := l.DB.WithContext(ctx).
		Where("lease_group_id = ?", leaseGroupID).
		Order("submitted_at desc").
		Find(&rows).Error
	return rows, err
}

func (l *Log) Get(ctx context.Context, id string) (*Confirmation, error) {
	var c Confirmation
	if err := l.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetForLeaseGroup is Get restricted to one owner.
func (l *Log) GetForLeaseGroup(ctx context.Context, leaseGroupID, id string) (*Confirmation, error) {
	c, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.LeaseGroupID != leaseGroupID {
		return nil, ErrNotFound
	}
	return c, nil
}

// Submit validates a submission and appends one record per section. Either
// every record is written or none is.
func (l *Log) Submit(ctx context.Context, in SubmitInput) ([]Confirmation, error) {
	now := l.now()
	if err := Validate(in, now); err != nil {
		return nil, err
	}

	agreed := decimal.NullDecimal{}
	if l.Rent != nil {
		rent, err := l.Rent.MonthlyRent(ctx, in.LeaseGroupID)
		if err != nil {
			return nil, fmt.Errorf("submit payment: monthly rent: %w", err)
		}
		agreed = rent
	}

	var notes *string
	if n := strings.TrimSpace(in.Notes); n != "" {
		notes = &n
	}
	var disclaimer *time.Time
	if in.DisclaimerAcknowledged {
		disclaimer = &now
	}

	records := make([]Confirmation, 0, len(in.Sections))
	for _, s := range in.Sections {
		id := s.ID
		if id == "" {
			id = uuid.NewString()
		}
		proofs := pq.StringArray{}
		proofs = append(proofs, s.ProofFiles...)

		rec := Confirmation{
			ID:                     id,
			LeaseGroupID:           in.LeaseGroupID,
			ConfirmationType:       s.Category,
			PeriodYear:             in.Year,
			PeriodMonth:            in.Month,
			AmountDeclared:         s.Amount.Decimal,
			DatePaid:               s.DatePaid,
			ProofFiles:             proofs,
			VerificationStatus:     VerificationUnverified,
			DisclaimerAcknowledged: disclaimer,
			SubmittedAt:            now,
			SubmittedVia:           in.Via,
			Notes:                  notes,
		}
		if s.Category == enums.CategoryRent {
			rec.AmountAgreed = agreed
			rec.TDSDeducted = s.TDS
		}
		records = append(records, rec)
	}

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
	if err != nil {
		return nil, fmt.Errorf("submit payment: %w", err)
	}
	return records, nil
}

// Validate applies the submission rules. Year may run up to one past the
// current year; TDS applies to rent only and null is distinct from zero.
func Validate(in SubmitInput, now time.Time) error {
	var msgs []string

	if in.Month < 1 || in.Month > 12 {
		msgs = append(msgs, "Month must be between 1 and 12.")
	}
	maxYear := now.Year() + 1
	if in.Year < 2020 || in.Year > maxYear {
		msgs = append(msgs, fmt.Sprintf("Year must be between 2020 and %d.", maxYear))
	}
	if !in.Via.IsValid() {
		msgs = append(msgs, "Unknown submission channel.")
	}
	if in.Via == enums.ViaTenantLink && !in.DisclaimerAcknowledged {
		msgs = append(msgs, "You must acknowledge the disclaimer to submit.")
	}
	if len(in.Sections) == 0 {
		msgs = append(msgs, "Please select at least one payment type.")
	}

	seen := map[enums.Category]bool{}
	for _, s := range in.Sections {
		label := s.Category.Label()
		if !s.Category.IsValid() {
			msgs = append(msgs, fmt.Sprintf("Unknown payment type %q.", s.Category))
			continue
		}
		if seen[s.Category] {
			msgs = append(msgs, fmt.Sprintf("%s: selected more than once.", label))
			continue
		}
		seen[s.Category] = true

		switch {
		case !s.Amount.Valid:
			msgs = append(msgs, label+": Amount paid is required.")
		case !s.Amount.Decimal.IsPositive():
			msgs = append(msgs, label+": Amount paid must be greater than zero.")
		}

		if !s.TDS.Valid {
			continue
		}
		if s.Category != enums.CategoryRent {
			msgs = append(msgs, label+": TDS applies to rent only.")
			continue
		}
		if s.TDS.Decimal.IsNegative() {
			msgs = append(msgs, label+": TDS deducted cannot be negative.")
		} else if s.Amount.Valid && s.TDS.Decimal.GreaterThan(s.Amount.Decimal) {
			msgs = append(msgs, label+": TDS deducted cannot exceed amount paid.")
		}
	}

	if len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return nil
}
