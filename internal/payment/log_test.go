package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"leasebook/internal/db/dbtest"
	"leasebook/internal/enums"
	"leasebook/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRent decimal.NullDecimal

func (f fixedRent) MonthlyRent(context.Context, string) (decimal.NullDecimal, error) {
	return decimal.NullDecimal(f), nil
}

func amount(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromInt(v)) }

var now = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

func newLog(t *testing.T) *payment.Log {
	t.Helper()
	return &payment.Log{
		DB:   dbtest.Open(t),
		Rent: fixedRent(amount(20000)),
		Now:  func() time.Time { return now },
	}
}

func validInput() payment.SubmitInput {
	return payment.SubmitInput{
		LeaseGroupID:           "lg-1",
		Via:                    enums.ViaTenantLink,
		Year:                   2026,
		Month:                  1,
		DisclaimerAcknowledged: true,
		Notes:                  " paid by transfer ",
		Sections: []payment.Section{
			{Category: enums.CategoryRent, Amount: amount(18000), TDS: amount(2000), ProofFiles: []string{"lg-1/p_1.pdf"}},
			{Category: enums.CategoryMaintenance, Amount: amount(1500)},
		},
	}
}

func TestSubmitAppendsOneRecordPerSection(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	recs, err := log.Submit(ctx, validInput())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	rent, err := log.GetForLeaseGroup(ctx, "lg-1", recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CategoryRent, rent.ConfirmationType)
	assert.True(t, rent.AmountAgreed.Decimal.Equal(decimal.NewFromInt(20000)))
	assert.True(t, rent.TDSDeducted.Valid)
	assert.Equal(t, []string{"lg-1/p_1.pdf"}, []string(rent.ProofFiles))
	assert.Equal(t, payment.VerificationUnverified, rent.VerificationStatus)
	require.NotNil(t, rent.Notes)
	assert.Equal(t, "paid by transfer", *rent.Notes)

	maint, err := log.Get(ctx, recs[1].ID)
	require.NoError(t, err)
	assert.False(t, maint.AmountAgreed.Valid)
	assert.False(t, maint.TDSDeducted.Valid)
	assert.Empty(t, maint.ProofFiles)

	_, err = log.GetForLeaseGroup(ctx, "other", recs[0].ID)
	assert.ErrorIs(t, err, payment.ErrNotFound)
}

func TestSubmitRejectsWholeSubmission(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	in := validInput()
	in.Sections[1].Amount = amount(0)
	_, err := log.Submit(ctx, in)
	require.ErrorIs(t, err, payment.ErrValidation)

	all, err := log.ListForLeaseGroup(ctx, "lg-1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*payment.SubmitInput)
		want   string
	}{
		{"month", func(in *payment.SubmitInput) { in.Month = 13 }, "Month must be between 1 and 12."},
		{"year", func(in *payment.SubmitInput) { in.Year = 2028 }, "Year must be between 2020 and 2027."},
		{"disclaimer", func(in *payment.SubmitInput) { in.DisclaimerAcknowledged = false }, "You must acknowledge the disclaimer to submit."},
		{"no sections", func(in *payment.SubmitInput) { in.Sections = nil }, "Please select at least one payment type."},
		{"missing amount", func(in *payment.SubmitInput) { in.Sections[0].Amount = decimal.NullDecimal{} }, "Rent: Amount paid is required."},
		{"tds too big", func(in *payment.SubmitInput) { in.Sections[0].TDS = amount(19000) }, "Rent: TDS deducted cannot exceed amount paid."},
		{"negative tds", func(in *payment.SubmitInput) { in.Sections[0].TDS = amount(-1) }, "Rent: TDS deducted cannot be negative."},
		{"tds on maintenance", func(in *payment.SubmitInput) { in.Sections[1].TDS = amount(10) }, "Maintenance: TDS applies to rent only."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			err := payment.Validate(in, now)
			var verr *payment.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Messages, tc.want)
		})
	}

	assert.NoError(t, payment.Validate(validInput(), now))

	zeroTDS := validInput()
	zeroTDS.Sections[0].TDS = amount(0)
	assert.NoError(t, payment.Validate(zeroTDS, now))

	manual := validInput()
	manual.Via = enums.ViaLandlordManual
	manual.DisclaimerAcknowledged = false
	assert.NoError(t, payment.Validate(manual, now))
}
