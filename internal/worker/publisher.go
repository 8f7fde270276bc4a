package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/flicky/storehub-api/internal/model"
)

var publisherTracer = otel.Tracer("storehub/worker/publisher")

// AMQPChannel is the subset of *amqp.Channel used for publishing.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends domain events to the event queue as persistent JSON
// messages.
type Publisher struct {
	mu sync.Mutex
	ch AMQPChannel
}

func NewPublisher(ch AMQPChannel) *Publisher {
	return &Publisher{ch: ch}
}

func (p *Publisher) Publish(ctx context.Context, event model.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, span := publisherTracer.Start(ctx, "send "+EventQueueName,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemRabbitmq,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(EventQueueName),
			semconv.MessagingMessageID(event.ID.String()),
			attribute.String("storehub.event.type", event.Type),
		),
	)
	defer span.End()

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Type:         event.Type,
		Timestamp:    event.OccurredAt,
		Headers:      headers,
		Body:         body,
	}

	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx, "", EventQueueName, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
