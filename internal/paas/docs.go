package paas

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, routeDocs)
	})
}

const routeDocs = `# Paynode Aggregator

Matches off-ramp orders to liquidity providers and drives each proposal to
settlement, expiry or refund.

## Access via PaaS

Base path (through gateway):
- /api/v1/services/paynode/

## Auth

Provider routes take a bearer token issued by POST /api/v1/auth/token.
Health endpoints are public.

## Routes

- GET /healthz
- GET /readyz
- GET /swagger/index.html
- POST /api/v1/orders
- GET /api/v1/orders
- GET /api/v1/orders/:id
- POST /api/v1/orders/:id/match
- POST /api/v1/orders/:id/refund
- PUT /api/v1/intents
- GET /api/v1/intents
- GET /api/v1/proposals/:id
- POST /api/v1/proposals/:id/accept
- POST /api/v1/proposals/:id/reject
- POST /api/v1/proposals/:id/execute
- POST /api/v1/proposals/:id/fail
- GET /api/v1/reputation
- GET /api/v1/reputation/:provider
- GET /api/v1/events
- GET /api/v1/events/stream (websocket)
- GET /api/v1/system-settings/switches
- PUT /api/v1/system-settings/switches/:name
- POST /api/v1/sweep
- POST /api/v1/auth/token
`
