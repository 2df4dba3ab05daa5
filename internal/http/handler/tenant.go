package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leasebook/internal/attention"
	"leasebook/internal/enums"
	"leasebook/internal/http/middleware"
	"leasebook/internal/lease"
	"leasebook/internal/logger"
	"leasebook/internal/payment"
	"leasebook/internal/review"
	"leasebook/internal/thread"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// TenantHandler serves the token-authenticated tenant link. Every route runs
// behind middleware.TenantToken.
type TenantHandler struct {
	Leases         *lease.Service
	Payments       *payment.Log
	Threads        *thread.Engine
	Review         *review.Service
	VisibleMonths  int
	MaxUploadBytes int64
	Now            func() time.Time
	Log            *logger.Logger
}

func (h *TenantHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

type tenantLease struct {
	Nickname   string              `json:"lease_nickname"`
	AgreedRent decimal.NullDecimal `json:"agreed_rent"`
	StartDate  *time.Time          `json:"lease_start_date"`
	EndDate    *time.Time          `json:"lease_end_date"`
}

type conversation struct {
	Thread       thread.Thread          `json:"thread"`
	Label        string                 `json:"label"`
	WaitingOnYou bool                   `json:"waiting_on_you"`
	Timeline     []thread.TimelineEntry `json:"timeline"`
}

type tenantPage struct {
	LeaseGroupID   string                   `json:"lease_group_id"`
	Lease          *tenantLease             `json:"lease"`
	Payments       []payment.Confirmation   `json:"payment_confirmations"`
	MonthlySummary []attention.MonthSummary `json:"monthly_summary"`
	Conversations  []conversation           `json:"conversations"`
}

func (h *TenantHandler) Page(w http.ResponseWriter, r *http.Request) {
	group, _ := middleware.TenantLeaseGroup(r.Context())
	ctx := r.Context()

	page := tenantPage{LeaseGroupID: group, Conversations: []conversation{}}
	l, err := h.Leases.GetCurrent(ctx, group)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	nickname := l.Values.Nickname
	if nickname == "" {
		nickname = "Untitled Lease"
	}
	page.Lease = &tenantLease{
		Nickname:   nickname,
		AgreedRent: l.Values.MonthlyRent,
		StartDate:  l.Values.StartDate,
		EndDate:    l.Values.EndDate,
	}

	if page.Payments, err = h.Payments.ListForLeaseGroup(ctx, group); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if page.Payments == nil {
		page.Payments = []payment.Confirmation{}
	}
	snap, err := h.Threads.LoadSnapshot(ctx, group)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	page.MonthlySummary = attention.BuildMonthlySummary(attention.MonthlyInput{
		Lease:         l,
		Payments:      page.Payments,
		Snapshot:      snap,
		Now:           h.now(),
		VisibleMonths: h.VisibleMonths,
	})

	lookup := thread.PaymentLookup(page.Payments)
	for _, t := range snap.Threads {
		if !t.IsOpen() || t.TopicType != enums.TopicPaymentReview {
			continue
		}
		page.Conversations = append(page.Conversations, conversation{
			Thread:       t,
			Label:        t.TopicRef.Label(t.TopicType),
			WaitingOnYou: t.WaitingOn == enums.PartyTenant,
			Timeline:     thread.BuildThreadTimeline(snap.MessagesFor(t.ID), lookup),
		})
	}
	writeJSON(w, http.StatusOK, page)
}

// Confirm accepts the tenant's payment form: one section per selected
// category, each with an optional "<category>_proof" file.
func (h *TenantHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	group, _ := middleware.TenantLeaseGroup(r.Context())
	if !parseForm(w, r, h.MaxUploadBytes) {
		return
	}

	in, msgs := tenantSubmission(r, group)
	if len(msgs) > 0 {
		writeValidation(w, msgs)
		return
	}

	proofs := map[enums.Category]review.Upload{}
	for _, s := range in.Sections {
		up, closeUpload, err := formUpload(r, string(s.Category)+"_proof")
		if err != nil {
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		defer closeUpload()
		if up != nil {
			proofs[s.Category] = *up
		}
	}

	records, err := h.Review.Submit(r.Context(), in, proofs)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, records)
}

// tenantSubmission reads the form fields. Range checks are left to
// payment.Validate; this only reports fields that do not parse.
func tenantSubmission(r *http.Request, group string) (payment.SubmitInput, []string) {
	var msgs []string
	in := payment.SubmitInput{
		LeaseGroupID:           group,
		Via:                    enums.ViaTenantLink,
		DisclaimerAcknowledged: r.FormValue("disclaimer_acknowledged") != "",
		Notes:                  r.FormValue("notes"),
	}

	var err error
	if in.Month, err = strconv.Atoi(strings.TrimSpace(r.FormValue("period_month"))); err != nil {
		msgs = append(msgs, "Month is required.")
	}
	if in.Year, err = strconv.Atoi(strings.TrimSpace(r.FormValue("period_year"))); err != nil {
		msgs = append(msgs, "Year is required.")
	}

	for _, c := range enums.Categories {
		key := string(c)
		if r.FormValue(key+"_selected") == "" {
			continue
		}
		s := payment.Section{Category: c}
		amount, err := decimal.NewFromString(strings.TrimSpace(r.FormValue(key + "_amount")))
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: Amount paid is required.", c.Label()))
		} else {
			s.Amount = decimal.NewNullDecimal(amount)
		}
		if c == enums.CategoryRent {
			if raw := strings.TrimSpace(r.FormValue("rent_tds")); raw != "" {
				tds, err := decimal.NewFromString(raw)
				if err != nil {
					msgs = append(msgs, "Rent: TDS deducted must be a number.")
				} else {
					s.TDS = decimal.NewNullDecimal(tds)
				}
			}
		}
		raw := strings.TrimSpace(r.FormValue(key + "_date_paid"))
		if raw != "" {
			d := parseDate(&raw)
			if d == nil {
				msgs = append(msgs, fmt.Sprintf("%s: Date paid must be YYYY-MM-DD.", c.Label()))
			}
			s.DatePaid = d
		}
		in.Sections = append(in.Sections, s)
	}
	return in, msgs
}

// Reply answers an open conversation about one of the tenant's payments.
func (h *TenantHandler) Reply(w http.ResponseWriter, r *http.Request) {
	group, _ := middleware.TenantLeaseGroup(r.Context())
	if !parseForm(w, r, h.MaxUploadBytes) {
		return
	}
	up, closeUpload, err := formUpload(r, "attachment")
	if err != nil {
		http.Error(w, "bad upload", http.StatusBadRequest)
		return
	}
	defer closeUpload()

	res, err := h.Review.TenantReply(r.Context(), group, chi.URLParam(r, "paymentID"), r.FormValue("message"), up)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
