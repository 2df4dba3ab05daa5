package handler

import (
	"io"
	"net/http"
	"path"
	"strings"

	"leasebook/internal/blob"
	"leasebook/internal/http/middleware"
	"leasebook/internal/logger"

	"github.com/go-chi/chi/v5"
)

type FileHandler struct {
	Blobs *blob.Store
	Log   *logger.Logger
}

// Landlord serves any stored proof or attachment of the group.
func (h *FileHandler) Landlord(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, path.Join(chi.URLParam(r, "group"), chi.URLParam(r, "name")))
}

// Tenant serves files of the lease group the tenant link belongs to.
func (h *FileHandler) Tenant(w http.ResponseWriter, r *http.Request) {
	group, ok := middleware.TenantLeaseGroup(r.Context())
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	h.serve(w, r, path.Join(group, chi.URLParam(r, "name")))
}

func (h *FileHandler) serve(w http.ResponseWriter, r *http.Request, rel string) {
	if strings.Contains(chi.URLParam(r, "name"), "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	f, err := h.Blobs.Open(rel)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", blob.ContentType(rel))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}
