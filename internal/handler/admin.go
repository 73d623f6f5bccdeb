package handler

import (
	"context"
	"net/http"

	"github.com/generatororacle/backend/internal/service"
)

// StatsProvider builds the admin dashboard summary.
type StatsProvider interface {
	Summary(ctx context.Context) (*service.AdminStats, error)
}

type AdminHandler struct {
	stats StatsProvider
}

func NewAdminHandler(stats StatsProvider) *AdminHandler {
	return &AdminHandler{stats: stats}
}

// GetStats handles GET /admin/stats.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Summary(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}
