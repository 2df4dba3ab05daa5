package lease

import (
	"time"

	"leasebook/internal/enums"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Values are the editable terms of one lease version.
type Values struct {
	Nickname              string              `gorm:"type:text;not null;default:''" json:"lease_nickname"`
	LessorName            string              `gorm:"type:text;not null;default:''" json:"lessor_name"`
	LesseeName            string              `gorm:"type:text;not null;default:''" json:"lessee_name"`
	StartDate             *time.Time          `gorm:"type:date" json:"lease_start_date"`
	EndDate               *time.Time          `gorm:"type:date" json:"lease_end_date"`
	MonthlyRent           decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"monthly_rent"`
	SecurityDeposit       decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"security_deposit"`
	RentDueDay            *int                `json:"rent_due_day"`
	LockInMonths          *int                `json:"lock_in_months"`
	RentEscalationPercent decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"rent_escalation_percent"`
}

// ExpectedPayment declares whether a category is due every month.
type ExpectedPayment struct {
	Type          enums.Category      `json:"type"`
	Expected      bool                `json:"expected"`
	TypicalAmount decimal.NullDecimal `json:"typical_amount"`
}

// Lease is one version of a tenancy. Versions share a LeaseGroupID and exactly
// one of them is current.
type Lease struct {
	ID           string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LeaseGroupID string `gorm:"type:varchar(36);index;not null" json:"lease_group_id"`
	Version      int    `gorm:"not null" json:"version"`
	IsCurrent    bool   `gorm:"index;not null;default:false" json:"is_current"`

	Values Values `gorm:"embedded" json:"current_values"`

	ExpectedPayments                 datatypes.JSONSlice[ExpectedPayment] `gorm:"not null" json:"expected_payments"`
	NeedsExpectedPaymentConfirmation bool                                 `gorm:"not null;default:false" json:"needs_expected_payment_confirmation"`

	SourceFilename *string `gorm:"type:text" json:"source_filename"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// Expected returns the categories marked as expected, in declaration order.
func (l *Lease) Expected() []ExpectedPayment {
	if l == nil {
		return nil
	}
	return []ExpectedPayment(l.ExpectedPayments)
}

// Termination records the early end of one lease version. At most one per lease.
type Termination struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LeaseID         string    `gorm:"type:varchar(36);not null" json:"lease_id"`
	TerminationDate time.Time `gorm:"type:date;not null" json:"termination_date"`
	TerminatedAt    time.Time `gorm:"not null" json:"terminated_at"`
	TerminatedBy    string    `gorm:"type:text;not null;default:'landlord'" json:"terminated_by"`
	Note            *string   `gorm:"type:text" json:"note"`
}

// DefaultExpectedPayments marks rent as expected at the monthly rent and the
// other categories as not expected.
func DefaultExpectedPayments(monthlyRent decimal.NullDecimal) []ExpectedPayment {
	return []ExpectedPayment{
		{Type: enums.CategoryRent, Expected: true, TypicalAmount: monthlyRent},
		{Type: enums.CategoryMaintenance, Expected: false},
		{Type: enums.CategoryUtilities, Expected: false},
	}
}
