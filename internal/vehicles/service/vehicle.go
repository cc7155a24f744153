package service

import (
	"context"
	"errors"

	vehicleserrors "carpool/internal/vehicles/errors"
	"carpool/internal/vehicles/repository"
	"carpool/internal/vehicles/validator"
	"carpool/pkg/config"
	apperrors "carpool/pkg/errors"
	"carpool/pkg/model"
	"carpool/pkg/sanitizer"
)

type VehicleService interface {
	Create(ctx context.Context, ownerID string, vehicle *model.Vehicle) error
	GetByID(ctx context.Context, viewerID string, id string) (*model.Vehicle, error)
	ListByOwner(ctx context.Context, ownerID string, limit int, offset int64) ([]*model.Vehicle, int64, error)
	Update(ctx context.Context, callerID string, id string, updates *model.VehicleUpdate) (*model.Vehicle, error)
	Delete(ctx context.Context, callerID string, id string) error
}

type vehicleService struct {
	repo      repository.VehicleRepository
	validator *validator.VehicleValidator
	cfg       *config.Config
}

func NewVehicleService(
	repo repository.VehicleRepository,
	validator *validator.VehicleValidator,
	cfg *config.Config,
) VehicleService {
	return &vehicleService{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *vehicleService) Create(ctx context.Context, ownerID string, vehicle *model.Vehicle) error {
	vehicle.OwnerID = ownerID
	s.sanitize(vehicle)

	if err := s.validate(vehicle); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, vehicle); err != nil {
		if errors.Is(err, vehicleserrors.ErrDuplicatePlate) {
			return apperrors.Conflict("A vehicle with this plate number is already registered")
		}
		s.cfg.Log.Error("Failed to create vehicle", "owner_id", ownerID, "error", err)
		return apperrors.Internal("Failed to create vehicle", err)
	}

	s.cfg.Log.Info("Vehicle created successfully",
		"id", vehicle.ID,
		"owner_id", ownerID,
		"seats", vehicle.Seats,
	)
	return nil
}

func (s *vehicleService) GetByID(ctx context.Context, viewerID string, id string) (*model.Vehicle, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Vehicle ID cannot be empty")
	}

	vehicle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateLookupError(err, id)
	}

	return vehicle, nil
}

func (s *vehicleService) ListByOwner(ctx context.Context, ownerID string, limit int, offset int64) ([]*model.Vehicle, int64, error) {
	count, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		s.cfg.Log.Error("Failed to count vehicles", "owner_id", ownerID, "error", err)
		return nil, 0, apperrors.Internal("Failed to count vehicles", err)
	}

	vehicles, err := s.repo.FindByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list vehicles", "owner_id", ownerID, "error", err)
		return nil, 0, apperrors.Internal("Failed to retrieve vehicles", err)
	}

	return vehicles, count, nil
}

func (s *vehicleService) Update(ctx context.Context, callerID string, id string, updates *model.VehicleUpdate) (*model.Vehicle, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Vehicle ID cannot be empty")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.translateLookupError(err, id)
	}
	if existing.OwnerID != callerID {
		return nil, apperrors.Forbidden("Only the vehicle owner can modify it")
	}

	if err := s.validator.ValidateUpdate(updates); err != nil {
		s.cfg.Log.Warn("Vehicle update validation failed", "id", id, "error", err)
		return nil, apperrors.Validation("Invalid update input", map[string]any{"error": err.Error()})
	}

	merged := s.mergeVehicleUpdates(existing, updates)
	s.sanitize(merged)
	if err := s.validate(merged); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, id, merged); err != nil {
		if errors.Is(err, vehicleserrors.ErrDuplicatePlate) {
			return nil, apperrors.Conflict("A vehicle with this plate number is already registered")
		}
		if errors.Is(err, vehicleserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Vehicle", id)
		}
		s.cfg.Log.Error("Failed to update vehicle", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to update vehicle", err)
	}

	s.cfg.Log.Info("Vehicle updated successfully", "id", id)
	return merged, nil
}

func (s *vehicleService) Delete(ctx context.Context, callerID string, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Vehicle ID cannot be empty")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return s.translateLookupError(err, id)
	}
	if existing.OwnerID != callerID {
		return apperrors.Forbidden("Only the vehicle owner can delete it")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, vehicleserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Vehicle", id)
		}
		s.cfg.Log.Error("Failed to delete vehicle", "id", id, "error", err)
		return apperrors.Internal("Failed to delete vehicle", err)
	}

	s.cfg.Log.Info("Vehicle deleted successfully", "id", id, "owner_id", callerID)
	return nil
}

// --- Helpers ---

func (s *vehicleService) sanitize(v *model.Vehicle) {
	v.Make = sanitizer.TrimAndNormalize(v.Make)
	v.Model = sanitizer.TrimAndNormalize(v.Model)
	v.Color = sanitizer.TrimAndNormalize(v.Color)
	v.PlateNumber = sanitizer.NormalizePlate(v.PlateNumber)
}

func (s *vehicleService) mergeVehicleUpdates(existing *model.Vehicle, updates *model.VehicleUpdate) *model.Vehicle {
	merged := *existing

	if updates.Make != "" {
		merged.Make = updates.Make
	}
	if updates.Model != "" {
		merged.Model = updates.Model
	}
	if updates.Year != nil {
		merged.Year = *updates.Year
	}
	if updates.PlateNumber != "" {
		merged.PlateNumber = updates.PlateNumber
	}
	if updates.Seats != nil {
		merged.Seats = *updates.Seats
	}
	if updates.Color != "" {
		merged.Color = updates.Color
	}
	if updates.AC != nil {
		merged.AC = *updates.AC
	}

	return &merged
}

func (s *vehicleService) validate(vehicle *model.Vehicle) error {
	if err := s.validator.Validate(vehicle); err != nil {
		s.cfg.Log.Warn("Vehicle validation failed", "error", err)
		return apperrors.Validation("Vehicle validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

func (s *vehicleService) translateLookupError(err error, id string) error {
	if errors.Is(err, vehicleserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Vehicle", id)
	}
	if errors.Is(err, vehicleserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid vehicle ID format")
	}
	return apperrors.Internal("Failed to retrieve vehicle", err)
}
