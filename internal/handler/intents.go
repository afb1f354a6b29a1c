package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/auth"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/service"
)

type IntentHandler struct {
	Repo      repository.Repository
	Admission *service.Admission
	// Provider authenticates the caller; nil leaves the route open.
	Provider gin.HandlerFunc
}

func (h *IntentHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/intents")
	g.GET("", h.list)
	g.PUT("", guard(h.Provider), h.upsert)
}

// @Summary Declare or update the caller's intent for one currency
// @Tags intents
// @Accept json
// @Param body body service.IntentInput true "intent"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Router /api/v1/intents [put]
func (h *IntentHandler) upsert(c *gin.Context) {
	if h.Admission == nil {
		Error(c, http.StatusInternalServerError, "admission unavailable", nil)
		return
	}
	var req service.IntentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if provider := auth.Provider(c); provider != "" {
		if req.Provider != "" && !strings.EqualFold(req.Provider, provider) {
			Error(c, http.StatusForbidden, "token is not valid for this provider", nil)
			return
		}
		req.Provider = provider
	}
	item, err := h.Admission.UpsertIntent(c.Request.Context(), req)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary List provider intents
// @Tags intents
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param currency query string false "currency"
// @Param provider query string false "provider address"
// @Param active query bool false "active only"
// @Success 200 {object} apiResponse
// @Router /api/v1/intents [get]
func (h *IntentHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var provider *string
	if v := stringQueryPtr(c, "provider"); v != nil {
		lower := strings.ToLower(*v)
		provider = &lower
	}
	items, err := h.Repo.ListIntents(c.Request.Context(), repository.ListIntentsParams{
		Limit:    limit,
		Offset:   offset,
		Currency: upperQueryPtr(c, "currency"),
		Provider: provider,
		Active:   boolQueryPtr(c, "active"),
		OrderBy:  c.DefaultQuery("order_by", "updated_at"),
		Asc:      boolQueryPtr(c, "ascending"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "offset": offset, "count": len(items)})
}
