package service

import (
	"context"
	"errors"
	"fmt"

	bookingserrors "carpool/internal/bookings/errors"
	"carpool/internal/bookings/repository"
	"carpool/internal/notify"
	rideserrors "carpool/internal/rides/errors"
	"carpool/pkg/config"
	apperrors "carpool/pkg/errors"
	"carpool/pkg/model"
)

// RideStore is the slice of the rides store the booking flow needs: the
// lookup plus the two atomic seat-ledger operations. The rides repository
// implements it.
type RideStore interface {
	FindByID(ctx context.Context, id string) (*model.Ride, error)
	ReserveSeats(ctx context.Context, rideID string, seats int, bookingID string) error
	ReleaseSeats(ctx context.Context, rideID string, seats int) error
}

type BookingService interface {
	Create(ctx context.Context, passengerID string, rideID string, seats int) (*model.Booking, error)
	GetByID(ctx context.Context, callerID string, id string) (*model.Booking, error)
	ListByPassenger(ctx context.Context, passengerID string, limit int, offset int64) ([]*model.Booking, int64, error)
	Confirm(ctx context.Context, callerID string, id string) error
	Reject(ctx context.Context, callerID string, id string) error
	Cancel(ctx context.Context, callerID string, id string) error
}

type bookingService struct {
	repo     repository.BookingRepository
	rides    RideStore
	notifier notify.Notifier
	cfg      *config.Config
}

func NewBookingService(
	repo repository.BookingRepository,
	rides RideStore,
	notifier notify.Notifier,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:     repo,
		rides:    rides,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Create claims seats on a ride. The booking record is inserted first, then
// the seats are taken through the ledger's atomic reserve; if the reserve
// loses, the provisional record is removed so no orphan ever holds seats.
// Two racing requests for the last seat can both pass the preliminary
// checks, but only one reserve will match.
func (s *bookingService) Create(ctx context.Context, passengerID string, rideID string, seats int) (*model.Booking, error) {
	if rideID == "" {
		return nil, apperrors.InvalidInput("Ride ID cannot be empty")
	}
	if seats < 1 || seats > s.cfg.MaxSeatsPerBooking {
		return nil, apperrors.Validation(
			fmt.Sprintf("Seats must be between 1 and %d", s.cfg.MaxSeatsPerBooking),
			map[string]any{"seats": seats},
		)
	}

	ride, err := s.rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, s.translateRideLookupError(err, rideID)
	}
	if ride.DriverID == passengerID {
		return nil, apperrors.Forbidden("Drivers cannot book their own ride")
	}
	if ride.Status != model.RideStatusActive {
		return nil, apperrors.InvalidState(fmt.Sprintf("Ride is not open for booking in %q state", ride.Status))
	}

	if _, err := s.repo.FindActiveByRideAndPassenger(ctx, rideID, passengerID); err == nil {
		return nil, apperrors.Conflict("You already hold a booking on this ride")
	} else if !errors.Is(err, bookingserrors.ErrNotFound) {
		return nil, apperrors.Internal("Failed to check existing bookings", err)
	}

	status := model.BookingStatusPending
	if ride.BookingMode == model.BookingModeDirect {
		status = model.BookingStatusConfirmed
	}

	booking := &model.Booking{
		RideID:        rideID,
		PassengerID:   passengerID,
		DriverID:      ride.DriverID,
		SeatsBooked:   seats,
		Status:        status,
		PaymentStatus: model.PaymentStatusPending,
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		s.cfg.Log.Error("Failed to create booking", "ride_id", rideID, "error", err)
		return nil, apperrors.Internal("Failed to create booking", err)
	}

	if err := s.rides.ReserveSeats(ctx, rideID, seats, booking.ID); err != nil {
		if deleteErr := s.repo.Delete(ctx, booking.ID); deleteErr != nil {
			s.cfg.Log.Error("Failed to roll back provisional booking",
				"booking_id", booking.ID,
				"ride_id", rideID,
				"error", deleteErr,
			)
		}
		return nil, s.translateReserveError(ctx, err, rideID, seats)
	}

	event := notify.Event{
		Type:      notify.EventBookingRequested,
		RideID:    rideID,
		BookingID: booking.ID,
		Message:   fmt.Sprintf("New booking request for %d seat(s) on your ride", seats),
	}
	if status == model.BookingStatusConfirmed {
		event.Type = notify.EventBookingConfirmed
		event.Message = fmt.Sprintf("%d seat(s) on your ride were booked", seats)
	}
	s.notifier.Notify(ctx, ride.DriverID, event)

	s.cfg.Log.Info("Booking created successfully",
		"id", booking.ID,
		"ride_id", rideID,
		"passenger_id", passengerID,
		"seats", seats,
		"status", status,
	)
	return booking, nil
}

func (s *bookingService) GetByID(ctx context.Context, callerID string, id string) (*model.Booking, error) {
	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if booking.PassengerID != callerID && booking.DriverID != callerID {
		return nil, apperrors.Forbidden("Only the booking's passenger or driver can view it")
	}

	return booking, nil
}

func (s *bookingService) ListByPassenger(ctx context.Context, passengerID string, limit int, offset int64) ([]*model.Booking, int64, error) {
	count, err := s.repo.CountByPassenger(ctx, passengerID)
	if err != nil {
		s.cfg.Log.Error("Failed to count bookings", "passenger_id", passengerID, "error", err)
		return nil, 0, apperrors.Internal("Failed to count bookings", err)
	}

	bookings, err := s.repo.FindByPassenger(ctx, passengerID, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list bookings", "passenger_id", passengerID, "error", err)
		return nil, 0, apperrors.Internal("Failed to retrieve bookings", err)
	}

	return bookings, count, nil
}

// Confirm accepts a pending request. Seats were already taken at creation,
// so only the status moves.
func (s *bookingService) Confirm(ctx context.Context, callerID string, id string) error {
	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return err
	}
	if booking.DriverID != callerID {
		return apperrors.Forbidden("Only the ride's driver can confirm a booking")
	}

	err = s.repo.UpdateStatus(ctx, id, []string{model.BookingStatusPending}, model.BookingStatusConfirmed)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrStateConflict) {
			return apperrors.InvalidState("Only pending bookings can be confirmed")
		}
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Booking", id)
		}
		s.cfg.Log.Error("Failed to confirm booking", "id", id, "error", err)
		return apperrors.Internal("Failed to confirm booking", err)
	}

	s.notifier.Notify(ctx, booking.PassengerID, notify.Event{
		Type:      notify.EventBookingConfirmed,
		RideID:    booking.RideID,
		BookingID: id,
		Message:   "Your booking request was confirmed",
	})

	s.cfg.Log.Info("Booking confirmed", "id", id, "ride_id", booking.RideID)
	return nil
}

// Reject declines a booking that still holds seats and returns them to the
// pool. Both pending requests and already-confirmed bookings can be
// rejected; only terminal bookings cannot.
func (s *bookingService) Reject(ctx context.Context, callerID string, id string) error {
	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return err
	}
	if booking.DriverID != callerID {
		return apperrors.Forbidden("Only the ride's driver can reject a booking")
	}

	err = s.repo.UpdateStatus(ctx, id, model.SeatHoldingStatuses(), model.BookingStatusCancelled)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrStateConflict) {
			return apperrors.InvalidState("Booking can no longer be rejected")
		}
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Booking", id)
		}
		s.cfg.Log.Error("Failed to reject booking", "id", id, "error", err)
		return apperrors.Internal("Failed to reject booking", err)
	}

	if err := s.releaseSeats(ctx, booking); err != nil {
		return err
	}

	s.notifier.Notify(ctx, booking.PassengerID, notify.Event{
		Type:      notify.EventBookingRejected,
		RideID:    booking.RideID,
		BookingID: id,
		Message:   "Your booking request was declined by the driver",
	})

	s.cfg.Log.Info("Booking rejected", "id", id, "ride_id", booking.RideID)
	return nil
}

// Cancel withdraws the passenger's own booking and releases its seats.
// Seats are released exactly once: cancelling an already-cancelled booking
// reports not-found instead of releasing again.
func (s *bookingService) Cancel(ctx context.Context, callerID string, id string) error {
	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return err
	}
	if booking.PassengerID != callerID {
		return apperrors.Forbidden("Only the booking's passenger can cancel it")
	}

	if booking.Status == model.BookingStatusCancelled {
		return apperrors.NotFoundWithID("Booking", id)
	}
	if booking.Status == model.BookingStatusCompleted {
		return apperrors.InvalidState("Completed bookings cannot be cancelled")
	}

	err = s.repo.UpdateStatus(ctx, id, model.SeatHoldingStatuses(), model.BookingStatusCancelled)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrStateConflict) {
			// Lost a race with another transition; re-read to decide.
			current, findErr := s.repo.FindByID(ctx, id)
			if findErr == nil && current.Status == model.BookingStatusCancelled {
				return apperrors.NotFoundWithID("Booking", id)
			}
			return apperrors.InvalidState("Booking can no longer be cancelled")
		}
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Booking", id)
		}
		s.cfg.Log.Error("Failed to cancel booking", "id", id, "error", err)
		return apperrors.Internal("Failed to cancel booking", err)
	}

	if err := s.releaseSeats(ctx, booking); err != nil {
		return err
	}

	s.notifier.Notify(ctx, booking.DriverID, notify.Event{
		Type:      notify.EventBookingCancelled,
		RideID:    booking.RideID,
		BookingID: id,
		Message:   fmt.Sprintf("A passenger released %d seat(s) on your ride", booking.SeatsBooked),
	})

	s.cfg.Log.Info("Booking cancelled", "id", id, "ride_id", booking.RideID, "seats_released", booking.SeatsBooked)
	return nil
}

// --- Helpers ---

func (s *bookingService) findBooking(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	return booking, nil
}

func (s *bookingService) releaseSeats(ctx context.Context, booking *model.Booking) error {
	err := s.rides.ReleaseSeats(ctx, booking.RideID, booking.SeatsBooked)
	if err == nil {
		return nil
	}

	if errors.Is(err, rideserrors.ErrSeatOverflow) {
		consistency := apperrors.Consistency(
			fmt.Sprintf("Releasing %d seat(s) would exceed the ride's capacity", booking.SeatsBooked), err)
		s.cfg.Log.Error("Seat ledger inconsistency detected",
			"booking_id", booking.ID,
			"ride_id", booking.RideID,
			"seats", booking.SeatsBooked,
			"error", err,
		)
		return consistency
	}
	if errors.Is(err, rideserrors.ErrNotFound) {
		// The ride is gone but its booking survived. The booking's own
		// transition already succeeded, so just log the broken reference.
		s.cfg.Log.Error("Booking references a missing ride",
			"booking_id", booking.ID,
			"ride_id", booking.RideID,
		)
		return nil
	}

	s.cfg.Log.Error("Failed to release seats", "booking_id", booking.ID, "ride_id", booking.RideID, "error", err)
	return apperrors.Internal("Failed to release seats", err)
}

func (s *bookingService) translateRideLookupError(err error, rideID string) error {
	if errors.Is(err, rideserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Ride", rideID)
	}
	if errors.Is(err, rideserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid ride ID format")
	}
	return apperrors.Internal("Failed to retrieve ride", err)
}

// translateReserveError turns a lost reserve into the precise client error
// by re-reading the ride after the fact.
func (s *bookingService) translateReserveError(ctx context.Context, err error, rideID string, seats int) error {
	if !errors.Is(err, rideserrors.ErrSeatConflict) {
		s.cfg.Log.Error("Failed to reserve seats", "ride_id", rideID, "error", err)
		return apperrors.Internal("Failed to reserve seats", err)
	}

	ride, findErr := s.rides.FindByID(ctx, rideID)
	if findErr != nil {
		return s.translateRideLookupError(findErr, rideID)
	}
	if ride.Status != model.RideStatusActive {
		return apperrors.InvalidState(fmt.Sprintf("Ride is not open for booking in %q state", ride.Status))
	}
	return apperrors.Capacity(fmt.Sprintf(
		"Ride has %d seat(s) left, cannot book %d", ride.SeatsAvailable, seats,
	))
}
