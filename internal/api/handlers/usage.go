package handlers

import (
	"context"
	"net/http"

	"github.com/martinvidela/chatforge/internal/domain/usage"
)

type UsageService interface {
	List(ctx context.Context, userID string, limit, offset int) ([]*usage.Record, int, error)
	TotalsByUser(ctx context.Context) ([]*usage.UserTotal, error)
}

// UsageHandler serves the admin usage reports.
type UsageHandler struct {
	service UsageService
}

func NewUsageHandler(service UsageService) *UsageHandler {
	return &UsageHandler{service: service}
}

// List handles GET /api/v1/admin/usage, optionally filtered with ?userId=.
func (h *UsageHandler) List(w http.ResponseWriter, r *http.Request) {
	p := parsePaginationParams(r)
	records, total, err := h.service.List(r.Context(), r.URL.Query().Get("userId"), p.Limit, p.Offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list usage")
		return
	}
	if records == nil {
		records = []*usage.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "total": total})
}

// Totals handles GET /api/v1/admin/usage/totals.
func (h *UsageHandler) Totals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.TotalsByUser(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to aggregate usage")
		return
	}
	if totals == nil {
		totals = []*usage.UserTotal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": totals})
}
