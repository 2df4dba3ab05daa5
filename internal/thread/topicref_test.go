package thread_test

import (
	"encoding/json"
	"testing"
	"time"

	"leasebook/internal/enums"
	"leasebook/internal/payment"
	"leasebook/internal/period"
	"leasebook/internal/thread"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicRefLabels(t *testing.T) {
	cases := []struct {
		raw   string
		topic enums.TopicType
		want  string
	}{
		{"rent:2026-01", enums.TopicPaymentReview, "Rent — January 2026"},
		{"utilities:2025-12", enums.TopicMissingPayment, "Utilities — December 2025"},
		{"rent:garbage", enums.TopicPaymentReview, "Rent — garbage"},
		{"lease-1234", enums.TopicRenewal, "Renewal"},
		{"lease:8f14e45f", enums.TopicRenewal, "Renewal"},
		{"", enums.TopicGeneral, "General"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, thread.ParseTopicRef(tc.raw).Label(tc.topic), tc.raw)
	}
}

func TestTopicRefParts(t *testing.T) {
	ref := thread.PeriodRef(enums.CategoryMaintenance, period.New(2026, 3))
	assert.Equal(t, "maintenance:2026-03", ref.String())
	assert.Equal(t, enums.CategoryMaintenance, ref.Category())
	assert.Equal(t, "2026-03", ref.OpenMonth())
	p, ok := ref.Period()
	require.True(t, ok)
	assert.Equal(t, period.New(2026, 3), p)

	bad := thread.ParseTopicRef("rent:13-2026")
	_, ok = bad.Period()
	assert.False(t, ok)
	assert.Equal(t, "13-2026", bad.OpenMonth())

	assert.True(t, thread.ParseTopicRef("  ").IsZero())
}

func TestTopicRefJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Ref thread.TopicRef `json:"ref"`
	}{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ref":null}`, string(b))

	var got thread.TopicRef
	require.NoError(t, json.Unmarshal([]byte(`"rent:2026-01"`), &got))
	assert.Equal(t, thread.RawRef("rent:2026-01"), got)
}

func TestBuildThreadTimeline(t *testing.T) {
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	pid := "p1"
	missing := "gone"
	body := "please resend"
	msgs := []thread.Message{
		{ID: "m1", CreatedAt: at, Actor: enums.PartyTenant, MessageType: enums.MessageSubmission, PaymentID: &pid},
		{ID: "m2", CreatedAt: at.Add(time.Minute), Actor: enums.PartyLandlord, MessageType: enums.MessageFlag, Body: &body, Attachments: []string{"lg-1/l_1.png"}},
		{ID: "m3", CreatedAt: at.Add(2 * time.Minute), Actor: enums.PartyTenant, MessageType: enums.MessageSubmission, PaymentID: &missing},
	}
	lookup := thread.PaymentLookup([]payment.Confirmation{{ID: "p1", ConfirmationType: enums.CategoryRent}})

	tl := thread.BuildThreadTimeline(msgs, lookup)
	require.Len(t, tl, 3)

	assert.Equal(t, thread.EntrySubmission, tl[0].EntryType)
	require.NotNil(t, tl[0].Payment)
	assert.Equal(t, enums.CategoryRent, tl[0].Payment.ConfirmationType)

	assert.Equal(t, thread.EntryEvent, tl[1].EntryType)
	assert.Equal(t, enums.MessageFlag, tl[1].MessageType)
	assert.Equal(t, "please resend", *tl[1].Body)
	assert.Equal(t, []string{"lg-1/l_1.png"}, tl[1].Attachments)

	assert.Equal(t, thread.EntrySubmission, tl[2].EntryType)
	assert.Nil(t, tl[2].Payment)
	assert.Equal(t, "gone", *tl[2].PaymentID)
}
