package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/apperr"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/reputation"
)

type ReputationHandler struct {
	Repo   repository.Repository
	Ledger reputation.Ledger
}

func (h *ReputationHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/reputation")
	g.GET("", h.list)
	g.GET("/:provider", h.get)
}

// @Summary List provider reputations with derived scores
// @Tags reputation
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param order_by query string false "total_orders|successful_orders|no_shows|total_volume|last_updated"
// @Param ascending query bool false "ascending"
// @Success 200 {object} apiResponse
// @Router /api/v1/reputation [get]
func (h *ReputationHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListReputations(c.Request.Context(), repository.ListReputationsParams{
		Limit:   limit,
		Offset:  offset,
		OrderBy: c.DefaultQuery("order_by", "total_orders"),
		Asc:     boolQueryPtr(c, "ascending"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	views := make([]reputation.View, 0, len(items))
	for _, item := range items {
		views = append(views, h.Ledger.View(item))
	}
	Ok(c, views, map[string]any{"limit": limit, "offset": offset, "cold_start_score": h.Ledger.ColdStartScore})
}

// @Summary Get one provider's reputation
// @Tags reputation
// @Param provider path string true "provider address"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/reputation/{provider} [get]
func (h *ReputationHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	rec, err := h.Repo.GetReputation(c.Request.Context(), provider)
	if err != nil {
		Fail(c, lookupErr(err, apperr.CodeProviderNotFound, "provider "+provider))
		return
	}
	Ok(c, h.Ledger.View(*rec), nil)
}
