package handler

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/canteenhq/canteen-payments/internal/http/response"
)

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz reports process liveness plus database reachability.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	response.JSON(w, r, code, map[string]string{"status": status})
}
