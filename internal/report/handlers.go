package report

import (
	"net/http"
	"time"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes report read endpoints.
type Handler struct {
	Svc *Service
}

// Daily returns closed-bill count and takings for a calendar day. Defaults to
// today when no date parameter is given.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORT_NOT_CONFIGURED", "report service not configured", nil)
		return
	}
	day := h.Svc.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid date, expected YYYY-MM-DD", nil)
			return
		}
		day = parsed
	}
	summary, err := h.Svc.Daily(r.Context(), day)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORT_ERROR", err.Error(), nil)
		return
	}
	common.Data(w, http.StatusOK, summary)
}
