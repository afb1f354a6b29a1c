// Package events builds outbox rows for state changes and delivers them,
// after commit, to any number of sinks.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

// New builds an event. payload is marshalled to JSON; a payload that cannot
// be encoded is dropped rather than failing the transition that emits it.
func New(eventType, entityID, orderID, provider, status string, payload any, at time.Time) models.DomainEvent {
	evt := models.DomainEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		EntityID:  entityID,
		OrderID:   orderID,
		Provider:  provider,
		Status:    status,
		CreatedAt: at,
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			evt.Payload = datatypes.JSON(raw)
		}
	}
	return evt
}

type Publisher interface {
	Publish(ctx context.Context, evt models.DomainEvent) error
}

type PublisherFunc func(ctx context.Context, evt models.DomainEvent) error

func (f PublisherFunc) Publish(ctx context.Context, evt models.DomainEvent) error {
	return f(ctx, evt)
}

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt models.DomainEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, evt models.DomainEvent) error {
	if p.Logger == nil {
		return nil
	}
	p.Logger.Info("domain event",
		zap.String("event_id", evt.ID),
		zap.String("type", evt.Type),
		zap.String("entity_id", evt.EntityID),
		zap.String("order_id", evt.OrderID),
		zap.String("provider", evt.Provider),
		zap.String("status", evt.Status),
	)
	return nil
}

// PublishAll delivers committed events. Delivery failures are logged and
// never undo the state change.
func PublishAll(ctx context.Context, p Publisher, logger *zap.Logger, items []models.DomainEvent) {
	if p == nil {
		return
	}
	for _, evt := range items {
		if err := p.Publish(ctx, evt); err != nil && logger != nil {
			logger.Warn("event publish failed",
				zap.String("event_id", evt.ID),
				zap.String("type", evt.Type),
				zap.Error(err),
			)
		}
	}
}
