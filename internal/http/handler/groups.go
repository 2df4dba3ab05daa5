package handler

import (
	"net/http"

	"leasebook/internal/attention"
	"leasebook/internal/logger"
	"leasebook/internal/payment"
	"leasebook/internal/period"
	"leasebook/internal/thread"

	"github.com/go-chi/chi/v5"
)

// GroupHandler serves the landlord's read views of a lease group.
type GroupHandler struct {
	Attention *attention.Service
	Threads   *thread.Engine
	Payments  *payment.Log
	Log       *logger.Logger
}

func (h *GroupHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Attention.Dashboard(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *GroupHandler) View(w http.ResponseWriter, r *http.Request) {
	v, err := h.Attention.LeaseView(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *GroupHandler) AttentionSummary(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	n, err := h.Attention.Count(r.Context(), group)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	items, err := h.Attention.Items(r.Context(), group)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if items == nil {
		items = []attention.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attention_count": n,
		"attention_items": items,
	})
}

func (h *GroupHandler) Month(w http.ResponseWriter, r *http.Request) {
	p, err := period.Parse(chi.URLParam(r, "period"))
	if err != nil {
		http.Error(w, "invalid period (YYYY-MM)", http.StatusBadRequest)
		return
	}
	cards, err := h.Attention.MonthThreads(r.Context(), chi.URLParam(r, "group"), p)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if cards == nil {
		cards = []attention.MonthThread{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period":  p.String(),
		"label":   p.Label(),
		"threads": cards,
	})
}

func (h *GroupHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Threads.GetThreadsForLeaseGroup(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if rows == nil {
		rows = []thread.Thread{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *GroupHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	th, err := h.Threads.GetThread(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if th.LeaseGroupID != group {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeTimeline(w, r, h.Log, h.Threads, h.Payments, th)
}

func writeTimeline(w http.ResponseWriter, r *http.Request, logg *logger.Logger, threads *thread.Engine, payments *payment.Log, th *thread.Thread) {
	msgs, err := threads.GetMessagesForThread(r.Context(), th.ID)
	if err != nil {
		writeError(w, r, logg, err)
		return
	}
	confirmations, err := payments.ListForLeaseGroup(r.Context(), th.LeaseGroupID)
	if err != nil {
		writeError(w, r, logg, err)
		return
	}
	timeline := thread.BuildThreadTimeline(msgs, thread.PaymentLookup(confirmations))
	if timeline == nil {
		timeline = []thread.TimelineEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread":   th,
		"label":    th.TopicRef.Label(th.TopicType),
		"timeline": timeline,
	})
}
