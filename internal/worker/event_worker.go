// Package worker moves domain events through RabbitMQ. The API publishes
// events after commit; EventWorker consumes them and drops the cached
// product reads they affect.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/flicky/storehub-api/internal/model"
	"github.com/flicky/storehub-api/internal/service"
)

const idempotencyTTL = 24 * time.Hour

var (
	workerTracer = otel.Tracer("storehub/worker")

	errUnknownEvent = errors.New("unknown event type")
)

type EventWorker struct {
	channel     *amqp.Channel
	cache       service.ProductCache
	redisClient *redis.Client
	log         *slog.Logger
	processed   metric.Int64Counter
	done        chan struct{}
	stopOnce    sync.Once
}

func NewEventWorker(
	ch *amqp.Channel,
	cache service.ProductCache,
	redisClient *redis.Client,
	log *slog.Logger,
) *EventWorker {
	processed, _ := otel.Meter("storehub/worker").Int64Counter("storehub.events.processed",
		metric.WithDescription("Consumed events by type and outcome"))

	return &EventWorker{
		channel:     ch,
		cache:       cache,
		redisClient: redisClient,
		log:         log,
		processed:   processed,
		done:        make(chan struct{}),
	}
}

func (w *EventWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(EventQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("event worker started", "queue", EventQueueName)
	return nil
}

// Stop ends consumption. It is safe to call more than once.
func (w *EventWorker) Stop() { w.stopOnce.Do(func() { close(w.done) }) }

func idempotencyKey(id uuid.UUID) string { return "event_processed:" + id.String() }

func (w *EventWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	if msg.Headers != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers))
	}
	ctx, span := workerTracer.Start(ctx, "process "+EventQueueName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemRabbitmq,
			semconv.MessagingOperationName("process"),
			semconv.MessagingOperationTypeDeliver,
			semconv.MessagingDestinationName(EventQueueName),
		),
	)
	defer span.End()

	var event model.Event
	if err := json.Unmarshal(msg.Body, &event); err != nil || event.ID == uuid.Nil {
		w.log.ErrorContext(ctx, "unmarshal event", "error", err)
		span.SetStatus(codes.Error, "malformed event")
		w.count(ctx, "malformed", "dead_lettered")
		_ = msg.Nack(false, false)
		return
	}
	span.SetAttributes(
		semconv.MessagingMessageID(event.ID.String()),
		attribute.String("storehub.event.type", event.Type),
	)

	log := w.log.With("event_id", event.ID, "type", event.Type, "order_id", event.OrderID)

	key := idempotencyKey(event.ID)
	exists, err := w.redisClient.Exists(ctx, key).Result()
	if err != nil {
		log.ErrorContext(ctx, "check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if exists > 0 {
		log.InfoContext(ctx, "event already processed, skipping")
		w.count(ctx, event.Type, "duplicate")
		_ = msg.Ack(false)
		return
	}

	if err := w.handle(ctx, event); err != nil {
		log.ErrorContext(ctx, "process event failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.count(ctx, event.Type, "dead_lettered")
		_ = msg.Nack(false, false)
		return
	}

	if err := w.redisClient.Set(ctx, key, "1", idempotencyTTL).Err(); err != nil {
		log.ErrorContext(ctx, "set idempotency key", "error", err)
	}

	_ = msg.Ack(false)
	w.count(ctx, event.Type, "processed")
	log.InfoContext(ctx, "event processed")
}

// handle drops the cached reads of products whose stock or rating the event
// changed. A status change touches neither, so it is only acknowledged.
func (w *EventWorker) handle(ctx context.Context, event model.Event) error {
	switch event.Type {
	case model.EventOrderCreated, model.EventReviewSubmitted:
		w.cache.InvalidateProducts(ctx, event.ProductIDs...)
		return nil
	case model.EventOrderStatusChanged:
		return nil
	}
	return fmt.Errorf("%w: %q", errUnknownEvent, event.Type)
}

func (w *EventWorker) count(ctx context.Context, eventType, outcome string) {
	w.processed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("outcome", outcome),
	))
}
