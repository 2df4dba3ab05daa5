package handler

import (
	"net/http"

	"leasebook/internal/auth"
	"leasebook/internal/logger"

	"gorm.io/gorm"
)

type MeHandler struct {
	DB  *gorm.DB
	Log *logger.Logger
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var u auth.User
	if err := h.DB.WithContext(r.Context()).Where("id = ?", uid).First(&u).Error; err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
