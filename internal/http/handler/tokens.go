package handler

import (
	"net/http"

	"leasebook/internal/logger"
	"leasebook/internal/tenantaccess"

	"github.com/go-chi/chi/v5"
)

type TokenHandler struct {
	Tokens *tenantaccess.Service
	Log    *logger.Logger
}

func (h *TokenHandler) Generate(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tokens.Generate(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Tokens.List(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if rows == nil {
		rows = []tenantaccess.Token{}
	}
	writeJSON(w, http.StatusOK, rows)
}

type revokeReq struct {
	Token  string `json:"token" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeReq
	if !decode(w, r, &req) {
		return
	}
	// Only tokens issued for this group can be revoked through it.
	issued, err := h.Tokens.List(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	found := false
	for _, t := range issued {
		if t.Token == req.Token {
			found = true
			break
		}
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	t, err := h.Tokens.Revoke(r.Context(), req.Token, req.Reason)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
