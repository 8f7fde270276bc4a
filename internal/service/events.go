package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/storehub-api/internal/model"
)

// EventPublisher delivers domain events after the change they describe has
// committed. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event model.Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, model.Event) error { return nil }

// NoopPublisher is used when no broker is configured.
var NoopPublisher EventPublisher = noopPublisher{}

func newEvent(eventType string, orderID, userID uuid.UUID) model.Event {
	return model.Event{
		ID:         uuid.New(),
		Type:       eventType,
		OrderID:    orderID,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

func publish(ctx context.Context, publisher EventPublisher, logger *slog.Logger, event model.Event) {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish event",
			"type", event.Type, "event_id", event.ID, "error", err)
	}
}
