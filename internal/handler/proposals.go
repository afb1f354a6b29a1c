package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/auth"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/service"
)

type ProposalHandler struct {
	Proposals *service.ProposalService
	// Provider authenticates the caller; nil leaves the routes open.
	Provider gin.HandlerFunc
}

func (h *ProposalHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/proposals")
	g.GET("/:id", h.get)
	w := g.Group("", guard(h.Provider))
	w.POST("/:id/accept", h.accept)
	w.POST("/:id/reject", h.reject)
	w.POST("/:id/execute", h.execute)
	w.POST("/:id/fail", h.fail)
}

// @Summary Get a proposal
// @Tags proposals
// @Param id path string true "proposal id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/proposals/{id} [get]
func (h *ProposalHandler) get(c *gin.Context) {
	if h.Proposals == nil {
		Error(c, http.StatusInternalServerError, "proposals unavailable", nil)
		return
	}
	p, err := h.Proposals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, p, nil)
}

// @Summary Accept a pending proposal before its deadline
// @Tags proposals
// @Param id path string true "proposal id"
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Failure 410 {object} apiResponse
// @Router /api/v1/proposals/{id}/accept [post]
func (h *ProposalHandler) accept(c *gin.Context) {
	if h.Proposals == nil {
		Error(c, http.StatusInternalServerError, "proposals unavailable", nil)
		return
	}
	p, err := h.Proposals.Accept(c.Request.Context(), c.Param("id"), auth.Provider(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, p, nil)
}

// @Summary Reject a pending proposal
// @Tags proposals
// @Param id path string true "proposal id"
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/proposals/{id}/reject [post]
func (h *ProposalHandler) reject(c *gin.Context) {
	if h.Proposals == nil {
		Error(c, http.StatusInternalServerError, "proposals unavailable", nil)
		return
	}
	p, err := h.Proposals.Reject(c.Request.Context(), c.Param("id"), auth.Provider(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, p, nil)
}

// @Summary Submit the payment proof for an accepted proposal
// @Tags proposals
// @Accept json
// @Param id path string true "proposal id"
// @Param body body service.PaymentProof true "payment proof"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/proposals/{id}/execute [post]
func (h *ProposalHandler) execute(c *gin.Context) {
	if h.Proposals == nil {
		Error(c, http.StatusInternalServerError, "proposals unavailable", nil)
		return
	}
	var proof service.PaymentProof
	if err := c.ShouldBindJSON(&proof); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	p, err := h.Proposals.Execute(c.Request.Context(), c.Param("id"), auth.Provider(c), proof)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, p, nil)
}

type failRequest struct {
	Reason string `json:"reason"`
}

// @Summary Report that an accepted proposal could not be paid out
// @Tags proposals
// @Param id path string true "proposal id"
// @Param body body failRequest false "reason"
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/proposals/{id}/fail [post]
func (h *ProposalHandler) fail(c *gin.Context) {
	if h.Proposals == nil {
		Error(c, http.StatusInternalServerError, "proposals unavailable", nil)
		return
	}
	var req failRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
	}
	p, err := h.Proposals.Fail(c.Request.Context(), c.Param("id"), auth.Provider(c), strings.TrimSpace(req.Reason))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, p, nil)
}
