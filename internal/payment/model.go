package payment

import (
	"time"

	"leasebook/internal/enums"
	"leasebook/internal/period"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const VerificationUnverified = "unverified"

// Confirmation is a tenant's declaration that a payment was made. Records are
// append-only: corrections are new records, and nothing updates or deletes them.
type Confirmation struct {
	ID               string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LeaseGroupID     string         `gorm:"type:varchar(36);index;not null" json:"lease_group_id"`
	ConfirmationType enums.Category `gorm:"type:text;not null" json:"confirmation_type"`
	PeriodYear       int            `gorm:"not null" json:"period_year"`
	PeriodMonth      int            `gorm:"not null" json:"period_month"`

	AmountAgreed   decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"amount_agreed"`
	AmountDeclared decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"amount_declared"`
	TDSDeducted    decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"tds_deducted"`
	DatePaid       *time.Time          `gorm:"type:date" json:"date_paid"`

	ProofFiles         pq.StringArray `gorm:"type:text;not null" json:"proof_files"`
	VerificationStatus string         `gorm:"type:text;not null;default:'unverified'" json:"verification_status"`

	DisclaimerAcknowledged *time.Time              `json:"disclaimer_acknowledged"`
	SubmittedAt            time.Time               `gorm:"index;not null" json:"submitted_at"`
	SubmittedVia           enums.SubmissionChannel `gorm:"type:text;not null" json:"submitted_via"`
	Notes                  *string                 `gorm:"type:text" json:"notes"`
}

func (Confirmation) TableName() string { return "payment_confirmations" }

func (c Confirmation) Period() period.Period {
	return period.New(c.PeriodYear, c.PeriodMonth)
}

// InPeriod filters confirmations to one month.
func InPeriod(all []Confirmation, p period.Period) []Confirmation {
	var out []Confirmation
	for _, c := range all {
		if c.Period() == p {
			out = append(out, c)
		}
	}
	return out
}
