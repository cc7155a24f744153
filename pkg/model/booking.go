package model

import "time"

// Booking lifecycle: pending → {confirmed, cancelled},
// confirmed → {cancelled, completed}. Cancelled and completed are terminal.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Booking is a passenger's claim on a subset of a ride's seats.
// SeatsBooked is the single authoritative seat count and is fixed at
// creation. DriverID is denormalized from the ride so chat authorization
// can resolve both roles from the booking alone.
type Booking struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	RideID        string    `json:"ride_id" bson:"ride_id" validate:"required,mongodb"`
	PassengerID   string    `json:"passenger_id" bson:"passenger_id" validate:"required,mongodb"`
	DriverID      string    `json:"driver_id" bson:"driver_id" validate:"required,mongodb"`
	SeatsBooked   int       `json:"seats_booked" bson:"seats_booked" validate:"required,min=1"`
	Status        string    `json:"status" bson:"status" validate:"required,oneof=pending confirmed cancelled completed"`
	PaymentStatus string    `json:"payment_status" bson:"payment_status" validate:"omitempty,oneof=pending paid failed"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

// HoldsSeats reports whether the booking currently counts against the
// ride's seat inventory.
func (b *Booking) HoldsSeats() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

func (b *Booking) IsTerminal() bool {
	return b.Status == BookingStatusCancelled || b.Status == BookingStatusCompleted
}

// SeatHoldingStatuses are the booking states that count against a ride's
// seat inventory.
func SeatHoldingStatuses() []string {
	return []string{BookingStatusPending, BookingStatusConfirmed}
}
