package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"leasebook/internal/blob"
	"leasebook/internal/lease"
	"leasebook/internal/logger"
	"leasebook/internal/payment"
	"leasebook/internal/review"
	"leasebook/internal/tenantaccess"
	"leasebook/internal/thread"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeValidation answers 422 with the list of problems.
func writeValidation(w http.ResponseWriter, msgs []string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": msgs})
}

// writeError maps domain errors to status codes. Anything unrecognised is
// logged and reported as a server error.
func writeError(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	var ve *payment.ValidationError
	switch {
	case errors.As(err, &ve):
		writeValidation(w, ve.Messages)
	case errors.Is(err, lease.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, thread.ErrNotFound),
		errors.Is(err, tenantaccess.ErrNotFound),
		errors.Is(err, tenantaccess.ErrLeaseGroupNotFound),
		errors.Is(err, blob.ErrNotFound),
		errors.Is(err, review.ErrThreadNotInGroup):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, tenantaccess.ErrActiveTokenExists),
		errors.Is(err, tenantaccess.ErrAlreadyRevoked),
		errors.Is(err, lease.ErrNotCurrent),
		errors.Is(err, lease.ErrAlreadyTerminated),
		errors.Is(err, review.ErrNoOpenConversation):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lease.ErrValidation),
		errors.Is(err, lease.ErrInvalidTermination),
		errors.Is(err, review.ErrMessageRequired),
		errors.Is(err, blob.ErrNotAllowed),
		errors.Is(err, blob.ErrTooLarge),
		errors.Is(err, blob.ErrEmpty):
		writeValidation(w, []string{err.Error()})
	case errors.Is(err, review.ErrInvalidKind),
		errors.Is(err, review.ErrInvalidReminderType),
		errors.Is(err, thread.ErrInvalidMessage),
		errors.Is(err, thread.ErrInvalidThread),
		errors.Is(err, blob.ErrBadPath):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logg.Error(r.Context(), "http.server_error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}
