package handler

import (
	"net/http"
	"strings"
	"time"

	"leasebook/internal/enums"
	"leasebook/internal/jobs"
	"leasebook/internal/lease"
	"leasebook/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type LeaseHandler struct {
	Leases *lease.Service
	// Jobs is optional; when set, lease changes pull the group's sweep forward.
	Jobs *jobs.Repo
	Log  *logger.Logger
}

type leaseValuesReq struct {
	Nickname              string              `json:"lease_nickname" validate:"max=200"`
	LessorName            string              `json:"lessor_name" validate:"max=200"`
	LesseeName            string              `json:"lessee_name" validate:"max=200"`
	StartDate             *string             `json:"lease_start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate               *string             `json:"lease_end_date" validate:"omitempty,datetime=2006-01-02"`
	MonthlyRent           decimal.NullDecimal `json:"monthly_rent"`
	SecurityDeposit       decimal.NullDecimal `json:"security_deposit"`
	RentDueDay            *int                `json:"rent_due_day" validate:"omitempty,min=1,max=31"`
	LockInMonths          *int                `json:"lock_in_months" validate:"omitempty,min=0"`
	RentEscalationPercent decimal.NullDecimal `json:"rent_escalation_percent"`
}

func parseDate(s *string) *time.Time {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(*s), time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

func (req leaseValuesReq) values() lease.Values {
	return lease.Values{
		Nickname:              req.Nickname,
		LessorName:            req.LessorName,
		LesseeName:            req.LesseeName,
		StartDate:             parseDate(req.StartDate),
		EndDate:               parseDate(req.EndDate),
		MonthlyRent:           req.MonthlyRent,
		SecurityDeposit:       req.SecurityDeposit,
		RentDueDay:            req.RentDueDay,
		LockInMonths:          req.LockInMonths,
		RentEscalationPercent: req.RentEscalationPercent,
	}
}

func (h *LeaseHandler) scheduleSweep(r *http.Request, leaseGroupID string) {
	if h.Jobs == nil {
		return
	}
	if err := h.Jobs.EnqueueSweep(r.Context(), leaseGroupID, time.Now()); err != nil {
		h.Log.Error(r.Context(), "lease.sweep_enqueue_failed", err)
	}
}

func (h *LeaseHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Leases.ListCurrent(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if rows == nil {
		rows = []lease.Lease{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *LeaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req leaseValuesReq
	if !decode(w, r, &req) {
		return
	}
	l, err := h.Leases.Create(r.Context(), req.values())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.scheduleSweep(r, l.LeaseGroupID)
	writeJSON(w, http.StatusCreated, l)
}

func (h *LeaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.Leases.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *LeaseHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req leaseValuesReq
	if !decode(w, r, &req) {
		return
	}
	l, err := h.Leases.Update(r.Context(), chi.URLParam(r, "id"), req.values())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.scheduleSweep(r, l.LeaseGroupID)
	writeJSON(w, http.StatusOK, l)
}

type expectedPaymentReq struct {
	Type          string              `json:"type" validate:"required,oneof=rent maintenance utilities"`
	Expected      bool                `json:"expected"`
	TypicalAmount decimal.NullDecimal `json:"typical_amount"`
}

type expectedPaymentsReq struct {
	ExpectedPayments []expectedPaymentReq `json:"expected_payments" validate:"required,min=1,dive"`
}

func (h *LeaseHandler) SetExpectedPayments(w http.ResponseWriter, r *http.Request) {
	var req expectedPaymentsReq
	if !decode(w, r, &req) {
		return
	}
	eps := make([]lease.ExpectedPayment, 0, len(req.ExpectedPayments))
	for _, ep := range req.ExpectedPayments {
		eps = append(eps, lease.ExpectedPayment{
			Type:          enums.Category(ep.Type),
			Expected:      ep.Expected,
			TypicalAmount: ep.TypicalAmount,
		})
	}
	l, err := h.Leases.SetExpectedPayments(r.Context(), chi.URLParam(r, "id"), eps)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.scheduleSweep(r, l.LeaseGroupID)
	writeJSON(w, http.StatusOK, l)
}

func (h *LeaseHandler) Renew(w http.ResponseWriter, r *http.Request) {
	l, err := h.Leases.Renew(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

type terminateReq struct {
	TerminationDate string `json:"termination_date" validate:"required,datetime=2006-01-02"`
	Note            string `json:"note" validate:"max=2000"`
}

func (h *LeaseHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	var req terminateReq
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	t, err := h.Leases.Terminate(r.Context(), id, *parseDate(&req.TerminationDate), req.Note)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if l, err := h.Leases.Get(r.Context(), id); err == nil {
		h.scheduleSweep(r, l.LeaseGroupID)
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *LeaseHandler) Termination(w http.ResponseWriter, r *http.Request) {
	t, err := h.Leases.TerminationFor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *LeaseHandler) Versions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Leases.Versions(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if len(rows) == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
