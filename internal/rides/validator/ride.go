package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"carpool/pkg/logger"
	"carpool/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type RideValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewRideValidator(log *logger.Logger) *RideValidator {
	return &RideValidator{
		validate: validator.New(),
		logger:   log,
	}
}

func (v *RideValidator) Validate(ride *model.Ride) error {
	if err := v.validate.Struct(ride); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	if ride.SeatsAvailable > ride.TotalSeats {
		return ValidationErrors{
			ValidationError{
				Field:   "SeatsAvailable",
				Message: fmt.Sprintf("seats_available (%d) cannot exceed total_seats (%d)", ride.SeatsAvailable, ride.TotalSeats),
			},
		}
	}

	if ride.PickupTime.Before(time.Now()) && !ride.IsTerminal() && ride.Status != model.RideStatusOngoing {
		return ValidationErrors{
			ValidationError{
				Field:   "PickupTime",
				Message: "pickup_time cannot be in the past",
			},
		}
	}

	if ride.ReachTime != nil && !ride.ReachTime.After(ride.PickupTime) {
		return ValidationErrors{
			ValidationError{
				Field:   "ReachTime",
				Message: "reach_time must be after pickup_time",
			},
		}
	}

	return nil
}

func (v *RideValidator) ValidateUpdate(update *model.RideUpdate) error {
	if err := v.validate.Struct(update); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	if update.PickupTime != nil && update.ReachTime != nil {
		if !update.ReachTime.After(*update.PickupTime) {
			return ValidationErrors{
				ValidationError{
					Field:   "ReachTime",
					Message: "reach_time must be after pickup_time",
				},
			}
		}
	}

	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
