package events

import (
	"context"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/paas"
)

// PaaSPublisher mirrors events into the platform audit log.
type PaaSPublisher struct {
	Client *paas.Client
}

func (p PaaSPublisher) Publish(ctx context.Context, evt models.DomainEvent) error {
	if p.Client == nil {
		return nil
	}
	details := map[string]any{
		"event_id":  evt.ID,
		"entity_id": evt.EntityID,
		"status":    evt.Status,
	}
	if evt.OrderID != "" {
		details["order_id"] = evt.OrderID
	}
	if evt.Provider != "" {
		details["provider"] = evt.Provider
	}
	if len(evt.Payload) > 0 {
		details["payload"] = string(evt.Payload)
	}
	return p.Client.CreateLog(ctx, paas.LogEntry{
		Action:  evt.Type,
		Level:   levelFor(evt.Type),
		Details: details,
	})
}

func levelFor(eventType string) string {
	switch eventType {
	case models.EventExecutionFailed, models.EventProposalTimedOut, models.EventOrderExpired:
		return "warn"
	default:
		return "info"
	}
}
