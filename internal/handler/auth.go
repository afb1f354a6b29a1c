package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/auth"
)

type AuthHandler struct {
	JWT   auth.JWT
	Admin gin.HandlerFunc
}

func (h *AuthHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/auth/token", guard(h.Admin), h.token)
}

type tokenRequest struct {
	Provider string `json:"provider"`
	Role     string `json:"role"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// @Summary Issue a provider or admin token
// @Tags auth
// @Param body body tokenRequest true "subject"
// @Success 200 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Router /api/v1/auth/token [post]
func (h *AuthHandler) token(c *gin.Context) {
	if !h.JWT.Enabled() {
		Error(c, http.StatusServiceUnavailable, "token issuing disabled", nil)
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = auth.RoleProvider
	}
	claims := auth.Claims{Role: role}
	switch role {
	case auth.RoleProvider:
		provider := strings.ToLower(strings.TrimSpace(req.Provider))
		if !strings.HasPrefix(provider, "0x") || len(provider) != 42 {
			Error(c, http.StatusBadRequest, "provider must be a 0x address", nil)
			return
		}
		claims.Provider = provider
	case auth.RoleAdmin:
	default:
		Error(c, http.StatusBadRequest, "role must be provider or admin", nil)
		return
	}
	tok, exp, err := h.JWT.Sign(claims)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to sign token", nil)
		return
	}
	Ok(c, tokenResponse{Token: tok, ExpiresAt: exp.UTC().Format(time.RFC3339)}, nil)
}
