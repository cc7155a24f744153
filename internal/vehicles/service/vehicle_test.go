package service

import (
	"context"
	"io"
	"testing"

	vehicleserrors "carpool/internal/vehicles/errors"
	"carpool/internal/vehicles/validator"
	"carpool/pkg/config"
	apperrors "carpool/pkg/errors"
	"carpool/pkg/logger"
	"carpool/pkg/model"
)

type mockVehicleRepository struct {
	createFn       func(ctx context.Context, vehicle *model.Vehicle) error
	findByIDFn     func(ctx context.Context, id string) (*model.Vehicle, error)
	findByOwnerFn  func(ctx context.Context, ownerID string, limit int, offset int64) ([]*model.Vehicle, error)
	countByOwnerFn func(ctx context.Context, ownerID string) (int64, error)
	updateFn       func(ctx context.Context, id string, vehicle *model.Vehicle) error
	deleteFn       func(ctx context.Context, id string) error
}

func (m *mockVehicleRepository) Create(ctx context.Context, vehicle *model.Vehicle) error {
	return m.createFn(ctx, vehicle)
}

func (m *mockVehicleRepository) FindByID(ctx context.Context, id string) (*model.Vehicle, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockVehicleRepository) FindByOwner(ctx context.Context, ownerID string, limit int, offset int64) ([]*model.Vehicle, error) {
	return m.findByOwnerFn(ctx, ownerID, limit, offset)
}

func (m *mockVehicleRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	return m.countByOwnerFn(ctx, ownerID)
}

func (m *mockVehicleRepository) Update(ctx context.Context, id string, vehicle *model.Vehicle) error {
	return m.updateFn(ctx, id, vehicle)
}

func (m *mockVehicleRepository) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func testConfig() *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard}),
	}
}

const (
	ownerID    = "64b0c5f2e1a4d3b2c1a4d3b3"
	strangerID = "64b0c5f2e1a4d3b2c1a4d3b9"
	vehicleID  = "64b0c5f2e1a4d3b2c1a4d3b6"
)

func newTestService(repo *mockVehicleRepository) VehicleService {
	cfg := testConfig()
	return NewVehicleService(repo, validator.NewVehicleValidator(cfg.Log), cfg)
}

func TestCreateVehicle(t *testing.T) {
	tests := []struct {
		name     string
		vehicle  *model.Vehicle
		createFn func(ctx context.Context, v *model.Vehicle) error
		wantCode string
	}{
		{
			name:    "valid vehicle",
			vehicle: &model.Vehicle{Make: "Toyota", Model: "Corolla", Seats: 4, PlateNumber: "abc-123"},
			createFn: func(ctx context.Context, v *model.Vehicle) error {
				v.ID = vehicleID
				return nil
			},
		},
		{
			name:     "seats out of range",
			vehicle:  &model.Vehicle{Make: "Toyota", Seats: 0},
			wantCode: apperrors.CodeValidation,
		},
		{
			name:    "duplicate plate",
			vehicle: &model.Vehicle{Make: "Toyota", Seats: 4, PlateNumber: "ABC-123"},
			createFn: func(ctx context.Context, v *model.Vehicle) error {
				return vehicleserrors.ErrDuplicatePlate
			},
			wantCode: apperrors.CodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&mockVehicleRepository{createFn: tt.createFn})

			err := svc.Create(context.Background(), ownerID, tt.vehicle)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Create() unexpected error: %v", err)
				}
				if tt.vehicle.OwnerID != ownerID {
					t.Errorf("OwnerID = %q, want %q", tt.vehicle.OwnerID, ownerID)
				}
				if tt.vehicle.PlateNumber != "ABC-123" {
					t.Errorf("PlateNumber = %q, want normalized ABC-123", tt.vehicle.PlateNumber)
				}
				return
			}

			appErr := apperrors.AsAppError(err)
			if appErr.Code != tt.wantCode {
				t.Errorf("Create() error code = %q, want %q", appErr.Code, tt.wantCode)
			}
		})
	}
}

func TestUpdateVehicleAuthorization(t *testing.T) {
	existing := &model.Vehicle{ID: vehicleID, OwnerID: ownerID, Make: "Toyota", Seats: 4}
	repo := &mockVehicleRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Vehicle, error) {
			return existing, nil
		},
		updateFn: func(ctx context.Context, id string, v *model.Vehicle) error {
			return nil
		},
	}
	svc := newTestService(repo)

	newSeats := 5
	_, err := svc.Update(context.Background(), strangerID, vehicleID, &model.VehicleUpdate{Seats: &newSeats})
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeForbidden {
		t.Fatalf("Update() by non-owner error code = %q, want %q", appErr.Code, apperrors.CodeForbidden)
	}

	updated, err := svc.Update(context.Background(), ownerID, vehicleID, &model.VehicleUpdate{Seats: &newSeats})
	if err != nil {
		t.Fatalf("Update() by owner unexpected error: %v", err)
	}
	if updated.Seats != 5 {
		t.Errorf("Seats = %d, want 5", updated.Seats)
	}
}

func TestDeleteVehicleNotFound(t *testing.T) {
	repo := &mockVehicleRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Vehicle, error) {
			return nil, vehicleserrors.ErrNotFound
		},
	}
	svc := newTestService(repo)

	err := svc.Delete(context.Background(), ownerID, vehicleID)
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeNotFound {
		t.Errorf("Delete() error code = %q, want %q", appErr.Code, apperrors.CodeNotFound)
	}
}
