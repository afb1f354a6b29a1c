package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/sweeper"
)

type SweepHandler struct {
	Sweeper *sweeper.Sweeper
	Admin   gin.HandlerFunc
}

func (h *SweepHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/sweep", guard(h.Admin), h.sweep)
}

// @Summary Run one expiry sweep pass
// @Tags sweep
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/sweep [post]
func (h *SweepHandler) sweep(c *gin.Context) {
	if h.Sweeper == nil {
		Error(c, http.StatusInternalServerError, "sweeper unavailable", nil)
		return
	}
	items, err := h.Sweeper.Sweep(c.Request.Context())
	if items == nil {
		items = []sweeper.Transition{}
	}
	if err != nil {
		// Transitions made before the failure are committed; report both.
		Error(c, http.StatusBadGateway, err.Error(), map[string]any{"transitions": items})
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}
