package notify

import (
	"context"
	"time"

	"carpool/pkg/logger"
)

// Event types fanned out by ride and booking lifecycle transitions.
const (
	EventRideCancelled    = "ride_cancelled"
	EventRideStarted      = "ride_started"
	EventRideCompleted    = "ride_completed"
	EventBookingRequested = "booking_requested"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingRejected  = "booking_rejected"
	EventBookingCancelled = "booking_cancelled"
)

type Event struct {
	Type      string    `json:"type"`
	RideID    string    `json:"ride_id,omitempty"`
	BookingID string    `json:"booking_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier is the fire-and-forget notification collaborator. Lifecycle
// operations never learn about delivery failures; implementations log them.
type Notifier interface {
	Notify(ctx context.Context, userID string, event Event)
	NotifyMany(ctx context.Context, userIDs []string, event Event)
}

// LogNotifier records events in the log only. It backs development and
// tests when no broker is running.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, userID string, event Event) {
	n.log.Info("Notification",
		"user_id", userID,
		"event_type", event.Type,
		"ride_id", event.RideID,
		"booking_id", event.BookingID,
	)
}

func (n *LogNotifier) NotifyMany(ctx context.Context, userIDs []string, event Event) {
	for _, userID := range userIDs {
		n.Notify(ctx, userID, event)
	}
}
