package notify

import (
	"context"
	"time"

	"carpool/pkg/kafka"
	"carpool/pkg/logger"
)

const publishTimeout = 5 * time.Second

// KafkaNotifier publishes notification events keyed by recipient user ID.
// Publishing is best-effort: errors are logged and swallowed so a broker
// outage never fails or rolls back a lifecycle transition.
type KafkaNotifier struct {
	producer *kafka.Producer
	source   string
	log      *logger.Logger
}

func NewKafkaNotifier(producer *kafka.Producer, source string, log *logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		source:   source,
		log:      log,
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, userID string, event Event) {
	if userID == "" {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	msg := kafka.NewMessage().
		WithKey(userID).
		WithValue(event).
		WithEventType(event.Type).
		WithSource(n.source).
		Build()

	// The request context may already be cancelled by the time the
	// cascade commits; publish on its own deadline.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := n.producer.Publish(publishCtx, msg); err != nil {
		n.log.Error("Failed to publish notification",
			"user_id", userID,
			"event_type", event.Type,
			"ride_id", event.RideID,
			"booking_id", event.BookingID,
			"error", err,
		)
	}
}

func (n *KafkaNotifier) NotifyMany(ctx context.Context, userIDs []string, event Event) {
	if len(userIDs) == 0 {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	messages := make([]kafka.Message, 0, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" {
			continue
		}
		messages = append(messages, kafka.NewMessage().
			WithKey(userID).
			WithValue(event).
			WithEventType(event.Type).
			WithSource(n.source).
			Build())
	}
	if len(messages) == 0 {
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := n.producer.PublishBatch(publishCtx, messages); err != nil {
		n.log.Error("Failed to publish notification batch",
			"event_type", event.Type,
			"ride_id", event.RideID,
			"recipients", len(userIDs),
			"error", err,
		)
	}
}
