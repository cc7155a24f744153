package service

import (
	"context"
	"errors"
	"fmt"

	bookingserrors "carpool/internal/bookings/errors"
	"carpool/internal/chat/repository"
	rideserrors "carpool/internal/rides/errors"
	"carpool/pkg/config"
	apperrors "carpool/pkg/errors"
	"carpool/pkg/model"
	"carpool/pkg/sanitizer"
)

// RideDirectory resolves rides for the communication gate. The rides
// repository implements it.
type RideDirectory interface {
	FindByID(ctx context.Context, id string) (*model.Ride, error)
}

// BookingLink proves two users are connected through a ride. The bookings
// repository implements it.
type BookingLink interface {
	FindLink(ctx context.Context, rideID string, userA string, userB string) (*model.Booking, error)
}

type ChatService interface {
	Send(ctx context.Context, senderID string, rideID string, receiverID string, body string) (*model.ChatMessage, error)
	History(ctx context.Context, callerID string, rideID string, otherID string) ([]*model.ChatMessage, error)
	Threads(ctx context.Context, callerID string) ([]*model.ChatThread, error)
}

type chatService struct {
	repo     repository.MessageRepository
	rides    RideDirectory
	bookings BookingLink
	cfg      *config.Config
}

func NewChatService(
	repo repository.MessageRepository,
	rides RideDirectory,
	bookings BookingLink,
	cfg *config.Config,
) ChatService {
	return &chatService{
		repo:     repo,
		rides:    rides,
		bookings: bookings,
		cfg:      cfg,
	}
}

// Send delivers a message between a ride's driver and one of its
// passengers. Writing requires a live conversation: the ride must still be
// open for communication and the booking linking the pair must not be
// cancelled. Reading history has no such restriction.
func (s *chatService) Send(ctx context.Context, senderID string, rideID string, receiverID string, body string) (*model.ChatMessage, error) {
	if senderID == receiverID {
		return nil, apperrors.InvalidInput("Cannot send a message to yourself")
	}

	body = sanitizer.NormalizeMessage(body)
	if body == "" {
		return nil, apperrors.Validation("Message body cannot be empty", nil)
	}
	if len(body) > 2000 {
		return nil, apperrors.Validation("Message body exceeds 2000 characters", map[string]any{"length": len(body)})
	}

	ride, err := s.rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, s.translateRideLookupError(err, rideID)
	}

	link, err := s.findLink(ctx, rideID, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	if !ride.IsCommunicable() {
		return nil, apperrors.InvalidState(fmt.Sprintf("Messaging is closed for a ride in %q state", ride.Status))
	}
	if link.Status == model.BookingStatusCancelled {
		return nil, apperrors.InvalidState("Messaging is closed for a cancelled booking")
	}

	message := &model.ChatMessage{
		RideID:     rideID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
	}

	if err := s.repo.Insert(ctx, message); err != nil {
		s.cfg.Log.Error("Failed to insert message", "ride_id", rideID, "error", err)
		return nil, apperrors.Internal("Failed to send message", err)
	}

	s.cfg.Log.Debug("Message sent",
		"id", message.ID,
		"ride_id", rideID,
		"sender_id", senderID,
		"receiver_id", receiverID,
	)
	return message, nil
}

// History returns the conversation between the caller and the other user
// about the ride. Any booking linking the pair grants read access, a
// cancelled one included, so passengers keep their records after a
// cancellation.
func (s *chatService) History(ctx context.Context, callerID string, rideID string, otherID string) ([]*model.ChatMessage, error) {
	if rideID == "" || otherID == "" {
		return nil, apperrors.InvalidInput("Ride ID and user ID are required")
	}

	if _, err := s.findLink(ctx, rideID, callerID, otherID); err != nil {
		return nil, err
	}

	messages, err := s.repo.FindConversation(ctx, rideID, callerID, otherID, s.cfg.ChatHistoryLimit)
	if err != nil {
		s.cfg.Log.Error("Failed to load conversation", "ride_id", rideID, "error", err)
		return nil, apperrors.Internal("Failed to load conversation", err)
	}

	return messages, nil
}

func (s *chatService) Threads(ctx context.Context, callerID string) ([]*model.ChatThread, error) {
	threads, err := s.repo.Threads(ctx, callerID)
	if err != nil {
		s.cfg.Log.Error("Failed to load threads", "user_id", callerID, "error", err)
		return nil, apperrors.Internal("Failed to load conversations", err)
	}

	return threads, nil
}

// --- Helpers ---

func (s *chatService) findLink(ctx context.Context, rideID string, userA string, userB string) (*model.Booking, error) {
	link, err := s.bookings.FindLink(ctx, rideID, userA, userB)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.Forbidden("No booking connects you to this user on this ride")
		}
		return nil, apperrors.Internal("Failed to check booking link", err)
	}
	return link, nil
}

func (s *chatService) translateRideLookupError(err error, rideID string) error {
	if errors.Is(err, rideserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Ride", rideID)
	}
	if errors.Is(err, rideserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid ride ID format")
	}
	return apperrors.Internal("Failed to retrieve ride", err)
}
