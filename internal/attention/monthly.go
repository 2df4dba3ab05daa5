package attention

import (
	"sort"
	"time"

	"leasebook/internal/enums"
	"leasebook/internal/lease"
	"leasebook/internal/payment"
	"leasebook/internal/period"
	"leasebook/internal/thread"
)

// DefaultVisibleMonths is the trailing window, current month included, that
// is always shown.
const DefaultVisibleMonths = 6

type CategoryState string

const (
	StatePendingReview CategoryState = "pending_review"
	StateAcknowledged  CategoryState = "acknowledged"
	StateFlagged       CategoryState = "flagged"
	StateTenantReplied CategoryState = "tenant_replied"
)

// CategoryDetail is the review state of one category in one month.
type CategoryDetail struct {
	State    CategoryState `json:"state"`
	Date     *time.Time    `json:"date"`
	Actor    enums.Party   `json:"actor"`
	FlagDate *time.Time    `json:"flag_date"`
}

// CategoryStateFor derives the review state of a category's month from its
// most relevant payment_review thread.
func CategoryStateFor(snap *thread.Snapshot, c enums.Category, p period.Period) CategoryDetail {
	t := snap.Relevant(enums.TopicPaymentReview, thread.PeriodRef(c, p))
	if t == nil {
		return CategoryDetail{State: StatePendingReview}
	}
	if !t.IsOpen() {
		return CategoryDetail{State: StateAcknowledged, Date: t.ResolvedAt}
	}

	msgs := snap.MessagesFor(t.ID)
	var last *thread.Message
	if len(msgs) > 0 {
		last = &msgs[len(msgs)-1]
	}
	var flagDate *time.Time
	for i := range msgs {
		if msgs[i].MessageType == enums.MessageFlag {
			flagDate = &msgs[i].CreatedAt
			break
		}
	}

	if t.WaitingOn == enums.PartyTenant {
		d := CategoryDetail{State: StateFlagged, Actor: enums.PartyLandlord, FlagDate: flagDate}
		if last != nil {
			d.Date = &last.CreatedAt
		}
		return d
	}
	if reply := lastReply(msgs); reply != nil && reply.Actor == enums.PartyTenant {
		return CategoryDetail{State: StateTenantReplied, Date: &reply.CreatedAt, Actor: enums.PartyTenant, FlagDate: flagDate}
	}
	return CategoryDetail{State: StatePendingReview}
}

type ReviewStatus string

const (
	ReviewNotSubmitted ReviewStatus = "not_submitted"
	ReviewPending      ReviewStatus = "pending"
	ReviewFlagged      ReviewStatus = "flagged"
	ReviewAcknowledged ReviewStatus = "acknowledged"
)

// MonthSummary is one row of a lease group's month-by-month history.
// Coverage and CategoryDetails stay nil for the current month, which is
// still in progress.
type MonthSummary struct {
	Year            int                               `json:"year"`
	Month           int                               `json:"month"`
	MonthName       string                            `json:"month_name"`
	Count           int                               `json:"count"`
	ReviewStatus    ReviewStatus                      `json:"review_status"`
	ReviewDate      *time.Time                        `json:"review_date"`
	Coverage        *Coverage                         `json:"coverage"`
	CategoryDetails map[enums.Category]CategoryDetail `json:"category_details"`
	Visible         bool                              `json:"visible"`
}

func (m MonthSummary) Period() period.Period { return period.New(m.Year, m.Month) }

type MonthlyInput struct {
	Lease         *lease.Lease
	Payments      []payment.Confirmation
	Snapshot      *thread.Snapshot
	Now           time.Time
	VisibleMonths int
}

// BuildMonthlySummary walks from the lease start (or, without one, the
// earliest declared period) to the current month and returns the rows newest
// first.
func BuildMonthlySummary(in MonthlyInput) []MonthSummary {
	start, ok := summaryStart(in.Lease, in.Payments)
	if !ok {
		return []MonthSummary{}
	}
	current := period.Of(in.Now)
	window := in.VisibleMonths
	if window <= 0 {
		window = DefaultVisibleMonths
	}
	cutoff := current.AddMonths(-(window - 1))

	var expected []lease.ExpectedPayment
	if in.Lease != nil {
		expected = in.Lease.Expected()
	}

	out := []MonthSummary{}
	for _, p := range period.Range(start, current) {
		monthPayments := payment.InPeriod(in.Payments, p)
		row := MonthSummary{
			Year:         p.Year,
			Month:        p.Month,
			MonthName:    p.MonthName(),
			Count:        len(monthPayments),
			ReviewStatus: ReviewNotSubmitted,
		}
		if row.Count > 0 {
			row.ReviewStatus, row.ReviewDate = reviewStatus(in.Snapshot, p)
		}

		if p != current {
			cov := ComputeMonthlyCoverage(expected, monthPayments)
			row.Coverage = &cov
			row.CategoryDetails = map[enums.Category]CategoryDetail{}
			if row.Count > 0 {
				for _, c := range cov.CoveredCategories {
					row.CategoryDetails[c] = CategoryStateFor(in.Snapshot, c, p)
				}
			}
		}

		row.Visible = !p.Before(cutoff) || unresolved(row)
		out = append(out, row)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func summaryStart(l *lease.Lease, payments []payment.Confirmation) (period.Period, bool) {
	if l != nil && l.Values.StartDate != nil {
		return period.Of(*l.Values.StartDate), true
	}
	var earliest period.Period
	for _, pc := range payments {
		p := pc.Period()
		if !p.Valid() {
			continue
		}
		if earliest.IsZero() || p.Before(earliest) {
			earliest = p
		}
	}
	return earliest, !earliest.IsZero()
}

// reviewStatus is the worst state across the month's payment_review threads:
// anything waiting on the landlord beats anything waiting on the tenant, which
// beats fully acknowledged. A month with payments but no thread is pending.
func reviewStatus(snap *thread.Snapshot, p period.Period) (ReviewStatus, *time.Time) {
	var monthThreads []thread.Thread
	if snap != nil {
		for _, t := range snap.Threads {
			if t.TopicType != enums.TopicPaymentReview {
				continue
			}
			if tp, ok := t.TopicRef.Period(); ok && tp == p {
				monthThreads = append(monthThreads, t)
			}
		}
	}
	if len(monthThreads) == 0 {
		return ReviewPending, nil
	}

	var flagged *thread.Thread
	for i := range monthThreads {
		t := &monthThreads[i]
		if t.NeedsLandlord() {
			return ReviewPending, &t.CreatedAt
		}
		if flagged == nil && t.IsOpen() && t.WaitingOn == enums.PartyTenant {
			flagged = t
		}
	}
	if flagged != nil {
		return ReviewFlagged, &flagged.CreatedAt
	}
	return ReviewAcknowledged, nil
}

func unresolved(row MonthSummary) bool {
	if row.Coverage != nil && len(row.Coverage.MissingCategories) > 0 {
		return true
	}
	for _, d := range row.CategoryDetails {
		if d.State != StateAcknowledged {
			return true
		}
	}
	return false
}

// MonthThread is the review card of one category in one month: its thread,
// its declarations, and which declaration an action should target.
type MonthThread struct {
	PaymentType        enums.Category         `json:"payment_type"`
	PaymentTypeDisplay string                 `json:"payment_type_display"`
	ThreadID           string                 `json:"thread_id"`
	Status             enums.ThreadStatus     `json:"status"`
	WaitingOn          enums.Party            `json:"waiting_on"`
	SubmissionCount    int                    `json:"submission_count"`
	LatestSubmission   payment.Confirmation   `json:"latest_submission"`
	ActionPaymentID    string                 `json:"action_payment_id"`
	ConversationOpen   bool                   `json:"conversation_open"`
	Timeline           []thread.TimelineEntry `json:"timeline"`
}

// BuildMonthThreads returns the review cards of a month in category order.
// Categories without a thread or without declarations are skipped.
func BuildMonthThreads(snap *thread.Snapshot, payments []payment.Confirmation, p period.Period) []MonthThread {
	lookup := thread.PaymentLookup(payments)
	monthPayments := payment.InPeriod(payments, p)

	out := []MonthThread{}
	for _, c := range enums.Categories {
		t := snap.Relevant(enums.TopicPaymentReview, thread.PeriodRef(c, p))
		if t == nil {
			continue
		}
		var subs []payment.Confirmation
		for _, pc := range monthPayments {
			if pc.ConfirmationType == c {
				subs = append(subs, pc)
			}
		}
		if len(subs) == 0 {
			continue
		}
		sort.SliceStable(subs, func(i, j int) bool { return subs[i].SubmittedAt.Before(subs[j].SubmittedAt) })
		latest := subs[len(subs)-1]

		msgs := snap.MessagesFor(t.ID)
		action := latest.ID
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].PaymentID != nil {
				action = *msgs[i].PaymentID
				break
			}
		}

		out = append(out, MonthThread{
			PaymentType:        c,
			PaymentTypeDisplay: c.Label(),
			ThreadID:           t.ID,
			Status:             t.Status,
			WaitingOn:          t.WaitingOn,
			SubmissionCount:    len(subs),
			LatestSubmission:   latest,
			ActionPaymentID:    action,
			ConversationOpen:   t.IsOpen() && t.WaitingOn == enums.PartyTenant,
			Timeline:           thread.BuildThreadTimeline(msgs, lookup),
		})
	}
	return out
}
