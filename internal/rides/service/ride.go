package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"carpool/internal/notify"
	rideserrors "carpool/internal/rides/errors"
	"carpool/internal/rides/repository"
	"carpool/internal/rides/validator"
	vehicleserrors "carpool/internal/vehicles/errors"
	"carpool/pkg/config"
	apperrors "carpool/pkg/errors"
	"carpool/pkg/model"
	"carpool/pkg/sanitizer"

	"go.mongodb.org/mongo-driver/mongo"
)

// BookingLedger is the slice of the bookings store the ride lifecycle
// needs: who holds seats, and the bulk transitions the cascades perform.
// The bookings repository implements it.
type BookingLedger interface {
	SumSeatsHeld(ctx context.Context, rideID string) (int, error)
	FindByRide(ctx context.Context, rideID string, statuses []string) ([]*model.Booking, error)
	CancelAllForRide(ctx context.Context, rideID string) ([]*model.Booking, error)
	CompleteAllForRide(ctx context.Context, rideID string) ([]*model.Booking, error)
}

// VehicleDirectory resolves vehicles for ownership and capacity checks at
// ride creation. The vehicles repository implements it.
type VehicleDirectory interface {
	FindByID(ctx context.Context, id string) (*model.Vehicle, error)
}

type RideService interface {
	Create(ctx context.Context, driverID string, ride *model.Ride) error
	GetByID(ctx context.Context, viewerID string, id string) (*model.Ride, string, error)
	Update(ctx context.Context, callerID string, id string, updates *model.RideUpdate) (*model.Ride, error)
	Cancel(ctx context.Context, callerID string, id string) (int, error)
	Start(ctx context.Context, callerID string, id string) error
	Complete(ctx context.Context, callerID string, id string) error
	Pause(ctx context.Context, callerID string, id string) error
	Resume(ctx context.Context, callerID string, id string) error
	Search(ctx context.Context, filter *repository.SearchFilter, limit int, offset int64) ([]*model.Ride, int64, error)
	ListByDriver(ctx context.Context, driverID string, limit int, offset int64) ([]*model.Ride, int64, error)
	ListPassengers(ctx context.Context, callerID string, rideID string) ([]*model.Booking, error)
}

type rideService struct {
	repo      repository.RideRepository
	bookings  BookingLedger
	vehicles  VehicleDirectory
	notifier  notify.Notifier
	validator *validator.RideValidator
	cfg       *config.Config
}

func NewRideService(
	repo repository.RideRepository,
	bookings BookingLedger,
	vehicles VehicleDirectory,
	notifier notify.Notifier,
	validator *validator.RideValidator,
	cfg *config.Config,
) RideService {
	return &rideService{
		repo:      repo,
		bookings:  bookings,
		vehicles:  vehicles,
		notifier:  notifier,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *rideService) Create(ctx context.Context, driverID string, ride *model.Ride) error {
	ride.DriverID = driverID

	if ride.VehicleID != "" {
		vehicle, err := s.vehicles.FindByID(ctx, ride.VehicleID)
		if err != nil {
			if errors.Is(err, vehicleserrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Vehicle", ride.VehicleID)
			}
			if errors.Is(err, vehicleserrors.ErrInvalidID) {
				return apperrors.InvalidInput("Invalid vehicle ID format")
			}
			return apperrors.Internal("Failed to resolve vehicle", err)
		}
		if vehicle.OwnerID != driverID {
			return apperrors.Forbidden("Vehicle belongs to another driver")
		}
		// Seat capacity defaults to the vehicle's when the driver does not
		// set it explicitly.
		if ride.TotalSeats == 0 {
			ride.TotalSeats = vehicle.Seats
		}
		if ride.TotalSeats > vehicle.Seats {
			return apperrors.Validation(
				fmt.Sprintf("Ride offers %d seats but the vehicle has only %d",
					ride.TotalSeats, vehicle.Seats),
				map[string]any{"total_seats": ride.TotalSeats, "vehicle_seats": vehicle.Seats},
			)
		}
	}

	s.applyDefaults(ride)
	s.sanitize(ride)

	if err := s.validate(ride); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, ride); err != nil {
		s.cfg.Log.Error("Failed to create ride", "driver_id", driverID, "error", err)
		return apperrors.Internal("Failed to create ride", err)
	}

	s.cfg.Log.Info("Ride created successfully",
		"id", ride.ID,
		"driver_id", driverID,
		"from_city", ride.FromCity,
		"to_city", ride.ToCity,
		"total_seats", ride.TotalSeats,
	)
	return nil
}

// GetByID returns the ride plus the viewer's role towards it, which the
// handler uses to pick a projection. A viewer holding a non-cancelled
// booking sees the passenger view.
func (s *rideService) GetByID(ctx context.Context, viewerID string, id string) (*model.Ride, string, error) {
	if id == "" {
		return nil, "", apperrors.InvalidInput("Ride ID cannot be empty")
	}

	ride, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, "", s.translateLookupError(err, id)
	}

	role := model.ViewerPublic
	switch {
	case viewerID == ride.DriverID:
		role = model.ViewerOwner
	case viewerID != "":
		holders, err := s.bookings.FindByRide(ctx, id, []string{
			model.BookingStatusPending,
			model.BookingStatusConfirmed,
			model.BookingStatusCompleted,
		})
		if err != nil {
			s.cfg.Log.Warn("Failed to resolve viewer bookings", "ride_id", id, "error", err)
			break
		}
		for _, b := range holders {
			if b.PassengerID == viewerID {
				role = model.ViewerPassenger
				break
			}
		}
	}

	return ride, role, nil
}

func (s *rideService) Update(ctx context.Context, callerID string, id string, updates *model.RideUpdate) (*model.Ride, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Ride ID cannot be empty")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateLookupError(err, id)
	}
	if existing.DriverID != callerID {
		return nil, apperrors.Forbidden("Only the ride's driver can modify it")
	}
	if !existing.IsEditable() {
		return nil, apperrors.InvalidState(fmt.Sprintf("Ride cannot be edited in %q state", existing.Status))
	}

	if err := s.validator.ValidateUpdate(updates); err != nil {
		s.cfg.Log.Warn("Ride update validation failed", "id", id, "error", err)
		return nil, apperrors.Validation("Invalid update input", map[string]any{"error": err.Error()})
	}

	if updates.SeatsAvailable != nil {
		if err := s.applySeatPatch(ctx, existing, *updates.SeatsAvailable); err != nil {
			return nil, err
		}
		existing.SeatsAvailable = *updates.SeatsAvailable
	}

	merged := s.mergeRideUpdates(existing, updates)
	s.sanitize(merged)
	if err := s.validate(merged); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, id, merged); err != nil {
		if errors.Is(err, rideserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Ride", id)
		}
		s.cfg.Log.Error("Failed to update ride", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to update ride", err)
	}

	s.cfg.Log.Info("Ride updated successfully", "id", id)
	return merged, nil
}

// applySeatPatch lets the driver shrink or grow the open seat pool, but
// never below zero and never so far that held seats plus the new pool
// exceed total capacity.
func (s *rideService) applySeatPatch(ctx context.Context, ride *model.Ride, seats int) error {
	held, err := s.bookings.SumSeatsHeld(ctx, ride.ID)
	if err != nil {
		return apperrors.Internal("Failed to audit booked seats", err)
	}

	if seats < 0 || seats+held > ride.TotalSeats {
		return apperrors.Capacity(fmt.Sprintf(
			"Cannot set %d open seats: %d seats are held and the ride has %d in total",
			seats, held, ride.TotalSeats,
		))
	}

	if err := s.repo.SetSeatsAvailable(ctx, ride.ID, seats); err != nil {
		if errors.Is(err, rideserrors.ErrStateConflict) {
			return apperrors.InvalidState("Ride is no longer editable")
		}
		if errors.Is(err, rideserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Ride", ride.ID)
		}
		return apperrors.Internal("Failed to set open seats", err)
	}

	return nil
}

// Cancel tears the whole ride down: the status write and the bulk booking
// cancellation commit in one transaction, then every affected passenger is
// notified. Returns the number of bookings that were cancelled.
func (s *rideService) Cancel(ctx context.Context, callerID string, id string) (int, error) {
	ride, err := s.authorizeLifecycle(ctx, callerID, id)
	if err != nil {
		return 0, err
	}

	var cancelled []*model.Booking
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.repo.UpdateStatus(sessCtx, id,
			[]string{model.RideStatusActive, model.RideStatusPaused}, model.RideStatusCancelled); err != nil {
			return s.translateTransitionError(err, id, "cancelled")
		}

		var txErr error
		cancelled, txErr = s.bookings.CancelAllForRide(sessCtx, id)
		if txErr != nil {
			return apperrors.Internal("Failed to cancel dependent bookings", txErr)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to cancel ride", "id", id, "error", err)
		return 0, err
	}

	event := notify.Event{
		Type:    notify.EventRideCancelled,
		RideID:  id,
		Message: fmt.Sprintf("Your ride from %s to %s was cancelled by the driver", ride.FromCity, ride.ToCity),
	}
	s.notifier.NotifyMany(ctx, passengerIDs(cancelled), event)

	s.cfg.Log.Info("Ride cancelled",
		"id", id,
		"driver_id", callerID,
		"bookings_cancelled", len(cancelled),
	)
	return len(cancelled), nil
}

func (s *rideService) Start(ctx context.Context, callerID string, id string) error {
	ride, err := s.authorizeLifecycle(ctx, callerID, id)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, []string{model.RideStatusActive}, model.RideStatusOngoing); err != nil {
		return s.translateTransitionError(err, id, "started")
	}

	holders, err := s.bookings.FindByRide(ctx, id, model.SeatHoldingStatuses())
	if err != nil {
		s.cfg.Log.Warn("Failed to resolve passengers for start notification", "ride_id", id, "error", err)
	} else {
		s.notifier.NotifyMany(ctx, passengerIDs(holders), notify.Event{
			Type:    notify.EventRideStarted,
			RideID:  id,
			Message: fmt.Sprintf("Your ride from %s to %s has started", ride.FromCity, ride.ToCity),
		})
	}

	s.cfg.Log.Info("Ride started", "id", id, "driver_id", callerID)
	return nil
}

// Complete finishes an ongoing ride and settles its confirmed bookings in
// the same transaction.
func (s *rideService) Complete(ctx context.Context, callerID string, id string) error {
	ride, err := s.authorizeLifecycle(ctx, callerID, id)
	if err != nil {
		return err
	}

	var completed []*model.Booking
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.repo.UpdateStatus(sessCtx, id,
			[]string{model.RideStatusOngoing}, model.RideStatusCompleted); err != nil {
			return s.translateTransitionError(err, id, "completed")
		}

		var txErr error
		completed, txErr = s.bookings.CompleteAllForRide(sessCtx, id)
		if txErr != nil {
			return apperrors.Internal("Failed to settle bookings", txErr)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to complete ride", "id", id, "error", err)
		return err
	}

	s.notifier.NotifyMany(ctx, passengerIDs(completed), notify.Event{
		Type:    notify.EventRideCompleted,
		RideID:  id,
		Message: fmt.Sprintf("Your ride from %s to %s is complete", ride.FromCity, ride.ToCity),
	})

	s.cfg.Log.Info("Ride completed", "id", id, "bookings_settled", len(completed))
	return nil
}

func (s *rideService) Pause(ctx context.Context, callerID string, id string) error {
	if _, err := s.authorizeLifecycle(ctx, callerID, id); err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, []string{model.RideStatusActive}, model.RideStatusPaused); err != nil {
		return s.translateTransitionError(err, id, "paused")
	}

	s.cfg.Log.Info("Ride paused", "id", id)
	return nil
}

func (s *rideService) Resume(ctx context.Context, callerID string, id string) error {
	if _, err := s.authorizeLifecycle(ctx, callerID, id); err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, []string{model.RideStatusPaused}, model.RideStatusActive); err != nil {
		return s.translateTransitionError(err, id, "resumed")
	}

	s.cfg.Log.Info("Ride resumed", "id", id)
	return nil
}

func (s *rideService) Search(ctx context.Context, filter *repository.SearchFilter, limit int, offset int64) ([]*model.Ride, int64, error) {
	var count int64
	var rides []*model.Ride
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.CountSearch(ctx, filter)
		if err != nil {
			s.cfg.Log.Error("Failed to count rides by search", "error", err)
			errCount = apperrors.Internal("Failed to count rides", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		rides, err = s.repo.Search(ctx, filter, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to search rides", "limit", limit, "offset", offset, "error", err)
			errFind = apperrors.Internal("Failed to search rides", err)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return rides, count, nil
}

func (s *rideService) ListByDriver(ctx context.Context, driverID string, limit int, offset int64) ([]*model.Ride, int64, error) {
	count, err := s.repo.CountByDriver(ctx, driverID)
	if err != nil {
		s.cfg.Log.Error("Failed to count rides by driver", "driver_id", driverID, "error", err)
		return nil, 0, apperrors.Internal("Failed to count rides", err)
	}

	rides, err := s.repo.FindByDriver(ctx, driverID, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list rides by driver", "driver_id", driverID, "error", err)
		return nil, 0, apperrors.Internal("Failed to retrieve rides", err)
	}

	return rides, count, nil
}

func (s *rideService) ListPassengers(ctx context.Context, callerID string, rideID string) ([]*model.Booking, error) {
	ride, err := s.repo.FindByID(ctx, rideID)
	if err != nil {
		return nil, s.translateLookupError(err, rideID)
	}
	if ride.DriverID != callerID {
		return nil, apperrors.Forbidden("Only the ride's driver can list its passengers")
	}

	bookings, err := s.bookings.FindByRide(ctx, rideID, nil)
	if err != nil {
		s.cfg.Log.Error("Failed to list passengers", "ride_id", rideID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve passengers", err)
	}

	return bookings, nil
}

// --- Helpers ---

func (s *rideService) applyDefaults(ride *model.Ride) {
	if ride.Status == "" {
		ride.Status = model.RideStatusActive
	}
	if ride.BookingMode == "" {
		ride.BookingMode = model.BookingModeDirect
	}
	// The open pool always starts at full capacity; clients cannot seed it.
	ride.SeatsAvailable = ride.TotalSeats
	ride.BookingIDs = nil
	ride.CancelledAt = nil
}

func (s *rideService) sanitize(ride *model.Ride) {
	ride.FromCity = sanitizer.NormalizeCity(ride.FromCity)
	ride.ToCity = sanitizer.NormalizeCity(ride.ToCity)
	ride.PickupLocation.Address = sanitizer.NormalizeAddress(ride.PickupLocation.Address)
	if ride.DropoffLocation != nil {
		ride.DropoffLocation.Address = sanitizer.NormalizeAddress(ride.DropoffLocation.Address)
	}
	for i := range ride.Stops {
		ride.Stops[i].Address = sanitizer.NormalizeAddress(ride.Stops[i].Address)
	}
	ride.Luggage = sanitizer.TrimAndNormalize(ride.Luggage)
	ride.Instructions = sanitizer.TrimAndNormalize(ride.Instructions)
}

func (s *rideService) mergeRideUpdates(existing *model.Ride, updates *model.RideUpdate) *model.Ride {
	merged := *existing

	if updates.PickupTime != nil {
		merged.PickupTime = *updates.PickupTime
	}
	if updates.ReachTime != nil {
		merged.ReachTime = updates.ReachTime
	}
	if updates.PickupLocation != nil {
		merged.PickupLocation = *updates.PickupLocation
	}
	if updates.DropoffLocation != nil {
		merged.DropoffLocation = updates.DropoffLocation
	}
	if updates.Stops != nil {
		merged.Stops = *updates.Stops
	}
	if updates.PricePerSeat != nil {
		merged.PricePerSeat = *updates.PricePerSeat
	}
	if updates.Luggage != "" {
		merged.Luggage = updates.Luggage
	}
	if updates.Instructions != "" {
		merged.Instructions = updates.Instructions
	}
	if updates.Preferences != nil {
		merged.Preferences = *updates.Preferences
	}
	if updates.BookingMode != "" {
		merged.BookingMode = updates.BookingMode
	}

	return &merged
}

func (s *rideService) validate(ride *model.Ride) error {
	if err := s.validator.Validate(ride); err != nil {
		s.cfg.Log.Warn("Ride validation failed", "error", err)
		return apperrors.Validation("Ride validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

func (s *rideService) authorizeLifecycle(ctx context.Context, callerID string, id string) (*model.Ride, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Ride ID cannot be empty")
	}

	ride, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateLookupError(err, id)
	}
	if ride.DriverID != callerID {
		return nil, apperrors.Forbidden("Only the ride's driver can change its lifecycle")
	}

	return ride, nil
}

func (s *rideService) translateLookupError(err error, id string) error {
	if errors.Is(err, rideserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Ride", id)
	}
	if errors.Is(err, rideserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid ride ID format")
	}
	return apperrors.Internal("Failed to retrieve ride", err)
}

func (s *rideService) translateTransitionError(err error, id string, verb string) error {
	if errors.Is(err, rideserrors.ErrStateConflict) {
		return apperrors.InvalidState(fmt.Sprintf("Ride cannot be %s from its current state", verb))
	}
	if errors.Is(err, rideserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Ride", id)
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal("Failed to update ride status", err)
}

func passengerIDs(bookings []*model.Booking) []string {
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.PassengerID)
	}
	return ids
}
