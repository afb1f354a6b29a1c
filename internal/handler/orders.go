package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/apperr"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/lifecycle"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/service"
)

type OrderHandler struct {
	Repo      repository.Repository
	Admission *service.Admission
	Lifecycle *lifecycle.Manager
	Queue     service.Enqueuer
	// Admin guards the write routes; nil leaves them open.
	Admin gin.HandlerFunc
}

func (h *OrderHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/orders")
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("", guard(h.Admin), h.admit)
	g.POST("/:id/match", guard(h.Admin), h.match)
	g.POST("/:id/refund", guard(h.Admin), h.refund)
}

type orderDetail struct {
	Order     *models.Order     `json:"order"`
	Proposals []models.Proposal `json:"proposals"`
}

// @Summary Admit an order observed on-chain
// @Tags orders
// @Accept json
// @Param body body service.OrderInput true "order"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/orders [post]
func (h *OrderHandler) admit(c *gin.Context) {
	if h.Admission == nil {
		Error(c, http.StatusInternalServerError, "admission unavailable", nil)
		return
	}
	var req service.OrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	order, err := h.Admission.AdmitOrder(c.Request.Context(), req)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, order, nil)
}

// @Summary List orders
// @Tags orders
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param status query string false "PENDING|ACCEPTED|FULFILLED|EXPIRED|REFUNDED"
// @Param currency query string false "currency"
// @Param order_by query string false "created_at|expires_at|amount"
// @Param ascending query bool false "ascending"
// @Success 200 {object} apiResponse
// @Router /api/v1/orders [get]
func (h *OrderHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListOrdersParams{
		Limit:    limit,
		Offset:   offset,
		Status:   upperQueryPtr(c, "status"),
		Currency: upperQueryPtr(c, "currency"),
		OrderBy:  c.DefaultQuery("order_by", "created_at"),
		Asc:      boolQueryPtr(c, "ascending"),
	}
	items, err := h.Repo.ListOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get an order with its proposals
// @Tags orders
// @Param id path string true "order id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/orders/{id} [get]
func (h *OrderHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := orderIDParam(c)
	order, err := h.Repo.LoadOrder(c.Request.Context(), id)
	if err != nil {
		Fail(c, lookupErr(err, apperr.CodeOrderNotFound, "order "+id))
		return
	}
	proposals, err := h.Repo.ListProposalsByOrder(c.Request.Context(), id)
	if err != nil {
		Fail(c, lookupErr(err, apperr.CodeOrderNotFound, "proposals of "+id))
		return
	}
	Ok(c, orderDetail{Order: order, Proposals: proposals}, nil)
}

// @Summary Queue a matching run for a pending order
// @Tags orders
// @Param id path string true "order id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/orders/{id}/match [post]
func (h *OrderHandler) match(c *gin.Context) {
	if h.Repo == nil || h.Queue == nil {
		Error(c, http.StatusInternalServerError, "matching unavailable", nil)
		return
	}
	id := orderIDParam(c)
	order, err := h.Repo.LoadOrder(c.Request.Context(), id)
	if err != nil {
		Fail(c, lookupErr(err, apperr.CodeOrderNotFound, "order "+id))
		return
	}
	if order.Status != models.OrderPending {
		Fail(c, apperr.AlreadyDecided("order %s is %s", id, order.Status))
		return
	}
	Ok(c, gin.H{"order_id": id, "queued": h.Queue.Enqueue(id)}, nil)
}

type refundRequest struct {
	RefundTxHash string `json:"refund_tx_hash"`
}

// @Summary Record the on-chain refund of an expired order
// @Tags orders
// @Param id path string true "order id"
// @Param body body refundRequest true "refund"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/orders/{id}/refund [post]
func (h *OrderHandler) refund(c *gin.Context) {
	if h.Lifecycle == nil {
		Error(c, http.StatusInternalServerError, "lifecycle unavailable", nil)
		return
	}
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	order, err := h.Lifecycle.MarkRefunded(c.Request.Context(), orderIDParam(c), req.RefundTxHash)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, order, nil)
}

func orderIDParam(c *gin.Context) string {
	return strings.ToLower(strings.TrimSpace(c.Param("id")))
}

func upperQueryPtr(c *gin.Context, key string) *string {
	v := stringQueryPtr(c, key)
	if v != nil {
		up := strings.ToUpper(*v)
		return &up
	}
	return nil
}
