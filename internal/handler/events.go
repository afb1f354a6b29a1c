package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/events"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/logger"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/service"
)

const streamWriteTimeout = 5 * time.Second

type EventHandler struct {
	Repo     repository.Repository
	Hub      *events.Hub
	Settings *service.SystemSettingsService
	Logger   *zap.Logger
	// OriginPatterns are the browser origins allowed to open the stream.
	OriginPatterns []string
}

func (h *EventHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/events")
	g.GET("", h.list)
	g.GET("/stream", h.stream)
}

// @Summary List outbox events
// @Tags events
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param type query string false "event type"
// @Param order_id query string false "order id"
// @Param provider query string false "provider address"
// @Param since query string false "RFC3339 lower bound"
// @Param ascending query bool false "oldest first"
// @Success 200 {object} apiResponse
// @Router /api/v1/events [get]
func (h *EventHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	params := repository.ListEventsParams{
		Limit:    limit,
		Offset:   offset,
		Type:     stringQueryPtr(c, "type"),
		OrderID:  stringQueryPtr(c, "order_id"),
		Provider: stringQueryPtr(c, "provider"),
		Asc:      boolQueryPtr(c, "ascending"),
	}
	if v := stringQueryPtr(c, "since"); v != nil {
		since, err := time.Parse(time.RFC3339, *v)
		if err != nil {
			Error(c, http.StatusBadRequest, "since must be RFC3339", nil)
			return
		}
		params.Since = &since
	}
	items, err := h.Repo.ListEvents(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "offset": offset, "count": len(items)})
}

type streamFilter struct {
	eventType string
	orderID   string
	provider  string
}

func (f streamFilter) match(evt models.DomainEvent) bool {
	return (f.eventType == "" || evt.Type == f.eventType) &&
		(f.orderID == "" || evt.OrderID == f.orderID) &&
		(f.provider == "" || evt.Provider == f.provider)
}

// @Summary Stream domain events over a websocket
// @Tags events
// @Param type query string false "event type"
// @Param order_id query string false "order id"
// @Param provider query string false "provider address"
// @Success 101
// @Failure 503 {object} apiResponse
// @Router /api/v1/events/stream [get]
func (h *EventHandler) stream(c *gin.Context) {
	if h.Hub == nil || !h.Settings.IsEnabled(c.Request.Context(), service.FeatureEventStream, true) {
		Error(c, http.StatusServiceUnavailable, "event stream disabled", nil)
		return
	}
	filter := streamFilter{
		eventType: c.Query("type"),
		orderID:   c.Query("order_id"),
		provider:  c.Query("provider"),
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the error response.
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	log := logger.OrNop(h.Logger)
	items, cancel := h.Hub.Subscribe()
	defer cancel()
	// Clients only listen; CloseRead handles their close frames.
	ctx := conn.CloseRead(c.Request.Context())
	log.Debug("event stream opened", zap.String("remote", c.ClientIP()))

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case evt, ok := <-items:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if !filter.match(evt) {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				log.Debug("event stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt models.DomainEvent) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, evt)
}
