package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	bookingserrors "carpool/internal/bookings/errors"
	rideserrors "carpool/internal/rides/errors"
	"carpool/pkg/config"
	apperrors "carpool/pkg/errors"
	"carpool/pkg/logger"
	"carpool/pkg/model"
)

const (
	driverID    = "64b0c5f2e1a4d3b2c1a4d3b3"
	passengerID = "64b0c5f2e1a4d3b2c1a4d3a1"
	strangerID  = "64b0c5f2e1a4d3b2c1a4d3b9"
	rideID      = "64b0c5f2e1a4d3b2c1a4d3b2"
)

type mockMessageRepository struct {
	messages []*model.ChatMessage
}

func (m *mockMessageRepository) Insert(ctx context.Context, message *model.ChatMessage) error {
	message.ID = "msg-1"
	message.CreatedAt = time.Now().UTC()
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockMessageRepository) FindConversation(ctx context.Context, rideID string, userA string, userB string, limit int) ([]*model.ChatMessage, error) {
	var out []*model.ChatMessage
	for _, msg := range m.messages {
		if msg.RideID != rideID {
			continue
		}
		if (msg.SenderID == userA && msg.ReceiverID == userB) || (msg.SenderID == userB && msg.ReceiverID == userA) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockMessageRepository) Threads(ctx context.Context, userID string) ([]*model.ChatThread, error) {
	return nil, nil
}

type mockRideDirectory struct {
	ride *model.Ride
}

func (m *mockRideDirectory) FindByID(ctx context.Context, id string) (*model.Ride, error) {
	if m.ride == nil || m.ride.ID != id {
		return nil, rideserrors.ErrNotFound
	}
	return m.ride, nil
}

type mockBookingLink struct {
	booking *model.Booking
}

func (m *mockBookingLink) FindLink(ctx context.Context, rideID string, userA string, userB string) (*model.Booking, error) {
	if m.booking == nil {
		return nil, bookingserrors.ErrNotFound
	}
	linked := func(a, b string) bool {
		return (m.booking.PassengerID == a && m.booking.DriverID == b) ||
			(m.booking.PassengerID == b && m.booking.DriverID == a)
	}
	if m.booking.RideID == rideID && linked(userA, userB) {
		return m.booking, nil
	}
	return nil, bookingserrors.ErrNotFound
}

func testConfig() *config.Config {
	return &config.Config{
		Log:              logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard}),
		ChatHistoryLimit: 200,
	}
}

func chatRide(status string) *model.Ride {
	return &model.Ride{
		ID:       rideID,
		DriverID: driverID,
		FromCity: "Austin",
		ToCity:   "Dallas",
		Status:   status,
	}
}

func linkBooking(status string) *model.Booking {
	return &model.Booking{
		ID:          "b1",
		RideID:      rideID,
		PassengerID: passengerID,
		DriverID:    driverID,
		SeatsBooked: 1,
		Status:      status,
	}
}

func TestSendMessageGate(t *testing.T) {
	tests := []struct {
		name     string
		ride     *model.Ride
		booking  *model.Booking
		sender   string
		receiver string
		body     string
		wantCode string
	}{
		{
			name:     "passenger to driver on active ride",
			ride:     chatRide(model.RideStatusActive),
			booking:  linkBooking(model.BookingStatusConfirmed),
			sender:   passengerID,
			receiver: driverID,
			body:     "See you at the north entrance",
		},
		{
			name:     "driver to passenger on paused ride",
			ride:     chatRide(model.RideStatusPaused),
			booking:  linkBooking(model.BookingStatusPending),
			sender:   driverID,
			receiver: passengerID,
			body:     "Running ten minutes late",
		},
		{
			name:     "no booking link",
			ride:     chatRide(model.RideStatusActive),
			booking:  nil,
			sender:   strangerID,
			receiver: driverID,
			body:     "hello",
			wantCode: apperrors.CodeForbidden,
		},
		{
			name:     "cancelled ride closes messaging",
			ride:     chatRide(model.RideStatusCancelled),
			booking:  linkBooking(model.BookingStatusCancelled),
			sender:   passengerID,
			receiver: driverID,
			body:     "hello",
			wantCode: apperrors.CodeInvalidState,
		},
		{
			name:     "cancelled booking closes messaging even on active ride",
			ride:     chatRide(model.RideStatusActive),
			booking:  linkBooking(model.BookingStatusCancelled),
			sender:   passengerID,
			receiver: driverID,
			body:     "hello",
			wantCode: apperrors.CodeInvalidState,
		},
		{
			name:     "empty body after normalization",
			ride:     chatRide(model.RideStatusActive),
			booking:  linkBooking(model.BookingStatusConfirmed),
			sender:   passengerID,
			receiver: driverID,
			body:     "   \t  ",
			wantCode: apperrors.CodeValidation,
		},
		{
			name:     "body too long",
			ride:     chatRide(model.RideStatusActive),
			booking:  linkBooking(model.BookingStatusConfirmed),
			sender:   passengerID,
			receiver: driverID,
			body:     strings.Repeat("a", 2001),
			wantCode: apperrors.CodeValidation,
		},
		{
			name:     "message to self",
			ride:     chatRide(model.RideStatusActive),
			booking:  linkBooking(model.BookingStatusConfirmed),
			sender:   passengerID,
			receiver: passengerID,
			body:     "hello",
			wantCode: apperrors.CodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockMessageRepository{}
			svc := NewChatService(repo, &mockRideDirectory{ride: tt.ride}, &mockBookingLink{booking: tt.booking}, testConfig())

			message, err := svc.Send(context.Background(), tt.sender, rideID, tt.receiver, tt.body)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Send() unexpected error: %v", err)
				}
				if message.Body == "" || message.SenderID != tt.sender {
					t.Errorf("unexpected stored message: %+v", message)
				}
				return
			}

			appErr := apperrors.AsAppError(err)
			if appErr.Code != tt.wantCode {
				t.Errorf("Send() error code = %q, want %q", appErr.Code, tt.wantCode)
			}
			if len(repo.messages) != 0 {
				t.Errorf("rejected send stored %d message(s)", len(repo.messages))
			}
		})
	}
}

// Reading stays open after cancellation even though writing is closed.
func TestHistorySurvivesCancellation(t *testing.T) {
	repo := &mockMessageRepository{
		messages: []*model.ChatMessage{
			{ID: "m1", RideID: rideID, SenderID: passengerID, ReceiverID: driverID, Body: "where do we meet?"},
			{ID: "m2", RideID: rideID, SenderID: driverID, ReceiverID: passengerID, Body: "north entrance"},
		},
	}
	svc := NewChatService(
		repo,
		&mockRideDirectory{ride: chatRide(model.RideStatusCancelled)},
		&mockBookingLink{booking: linkBooking(model.BookingStatusCancelled)},
		testConfig(),
	)

	messages, err := svc.History(context.Background(), passengerID, rideID, driverID)
	if err != nil {
		t.Fatalf("History() unexpected error: %v", err)
	}
	if len(messages) != 2 {
		t.Errorf("len(messages) = %d, want 2", len(messages))
	}

	_, err = svc.Send(context.Background(), passengerID, rideID, driverID, "one more thing")
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeInvalidState {
		t.Errorf("Send() after cancellation error code = %q, want %q", appErr.Code, apperrors.CodeInvalidState)
	}
}

func TestHistoryRequiresLink(t *testing.T) {
	svc := NewChatService(
		&mockMessageRepository{},
		&mockRideDirectory{ride: chatRide(model.RideStatusActive)},
		&mockBookingLink{booking: nil},
		testConfig(),
	)

	_, err := svc.History(context.Background(), strangerID, rideID, driverID)
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeForbidden {
		t.Errorf("History() without link error code = %q, want %q", appErr.Code, apperrors.CodeForbidden)
	}
}
