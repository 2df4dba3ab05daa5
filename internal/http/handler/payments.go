package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"leasebook/internal/enums"
	"leasebook/internal/logger"
	"leasebook/internal/payment"
	"leasebook/internal/review"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// multipartMemory is how much of a form is held in memory before spilling
// uploads to temp files.
const multipartMemory = 8 << 20

type PaymentHandler struct {
	Payments *payment.Log
	Review   *review.Service
	// MaxUploadBytes bounds the request body of form posts.
	MaxUploadBytes int64
	Log            *logger.Logger
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Payments.ListForLeaseGroup(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if rows == nil {
		rows = []payment.Confirmation{}
	}
	writeJSON(w, http.StatusOK, rows)
}

type sectionReq struct {
	Category string              `json:"category" validate:"required,oneof=rent maintenance utilities"`
	Amount   decimal.NullDecimal `json:"amount"`
	TDS      decimal.NullDecimal `json:"tds_deducted"`
	DatePaid *string             `json:"date_paid" validate:"omitempty,datetime=2006-01-02"`
}

type manualPaymentReq struct {
	Year     int          `json:"period_year" validate:"required"`
	Month    int          `json:"period_month" validate:"required"`
	Notes    string       `json:"notes" validate:"max=2000"`
	Sections []sectionReq `json:"sections" validate:"required,min=1,dive"`
}

// CreateManual records payments the landlord enters on the tenant's behalf.
func (h *PaymentHandler) CreateManual(w http.ResponseWriter, r *http.Request) {
	var req manualPaymentReq
	if !decode(w, r, &req) {
		return
	}
	in := payment.SubmitInput{
		LeaseGroupID: chi.URLParam(r, "group"),
		Via:          enums.ViaLandlordManual,
		Year:         req.Year,
		Month:        req.Month,
		Notes:        req.Notes,
	}
	for _, s := range req.Sections {
		in.Sections = append(in.Sections, payment.Section{
			Category: enums.Category(s.Category),
			Amount:   s.Amount,
			TDS:      s.TDS,
			DatePaid: parseDate(s.DatePaid),
		})
	}
	records, err := h.Review.Submit(r.Context(), in, nil)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, records)
}

// Review takes the landlord's flag, reply or acknowledgement on a payment as
// a form post with an optional "attachment" file.
func (h *PaymentHandler) ReviewPayment(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r, h.MaxUploadBytes) {
		return
	}
	up, closeUpload, err := formUpload(r, "attachment")
	if err != nil {
		http.Error(w, "bad upload", http.StatusBadRequest)
		return
	}
	defer closeUpload()

	res, err := h.Review.Review(r.Context(), review.ReviewInput{
		LeaseGroupID: chi.URLParam(r, "group"),
		PaymentID:    chi.URLParam(r, "paymentID"),
		Kind:         review.Kind(strings.TrimSpace(r.FormValue("review_type"))),
		Message:      r.FormValue("message"),
		Attachment:   up,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type remindReq struct {
	MessageType string `json:"message_type" validate:"required,oneof=reminder nudge"`
	Body        string `json:"body" validate:"max=2000"`
}

func (h *PaymentHandler) Remind(w http.ResponseWriter, r *http.Request) {
	var req remindReq
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.Review.Remind(r.Context(), chi.URLParam(r, "group"), chi.URLParam(r, "threadID"),
		enums.MessageType(req.MessageType), req.Body)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// parseForm reads a multipart or urlencoded body, answering 400 or 413 on
// failure.
func parseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) bool {
	if maxBytes > 0 {
		// Room for several files plus the text fields.
		r.Body = http.MaxBytesReader(w, r.Body, 4*maxBytes+multipartMemory)
	}
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return false
	}
	http.Error(w, "bad form", http.StatusBadRequest)
	return false
}

// formUpload returns the named file field, or nil when none was sent. The
// returned func closes the file.
func formUpload(r *http.Request, field string) (*review.Upload, func(), error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	if hdr.Filename == "" {
		f.Close()
		return nil, func() {}, nil
	}
	return &review.Upload{Filename: hdr.Filename, Body: f}, closer(f), nil
}

func closer(f multipart.File) func() {
	return func() { _ = f.Close() }
}
