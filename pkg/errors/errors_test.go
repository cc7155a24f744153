package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without cause",
			err:  Capacity("not enough seats"),
			want: "CAPACITY_EXCEEDED: not enough seats",
		},
		{
			name: "with cause",
			err:  Consistency("seat counter above total", fmt.Errorf("seats_available=6 total=4")),
			want: "CONSISTENCY_ERROR: seat counter above total (caused by: seats_available=6 total=4)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConstructorStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"not found", NotFound("Ride"), CodeNotFound, http.StatusNotFound},
		{"validation", Validation("bad payload", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"invalid input", InvalidInput("empty id"), CodeInvalidInput, http.StatusBadRequest},
		{"forbidden", Forbidden("not the ride owner"), CodeForbidden, http.StatusForbidden},
		{"invalid state", InvalidState("ride is not active"), CodeInvalidState, http.StatusConflict},
		{"capacity", Capacity("not enough seats"), CodeCapacity, http.StatusConflict},
		{"consistency", Consistency("invariant violated", nil), CodeConsistency, http.StatusInternalServerError},
		{"internal", Internal("boom", errors.New("db down")), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.StatusCode() != tt.wantStatus {
				t.Errorf("StatusCode() = %d, want %d", tt.err.StatusCode(), tt.wantStatus)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("write conflict")
	err := Internal("transaction failed", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestAsAppError(t *testing.T) {
	appErr := NotFoundWithID("Booking", "abc")
	if got := AsAppError(appErr); got != appErr {
		t.Error("expected AsAppError to return the same *AppError")
	}

	plain := errors.New("plain failure")
	got := AsAppError(plain)
	if got.Code != CodeInternal {
		t.Errorf("Code = %q, want %q", got.Code, CodeInternal)
	}
	if !errors.Is(got, plain) {
		t.Error("expected wrapped plain error to be preserved")
	}
}
