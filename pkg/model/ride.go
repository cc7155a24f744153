package model

import "time"

// Ride lifecycle. Active is initial; completed and cancelled are terminal.
// Paused is an editable-but-not-bookable detour reachable only from active.
const (
	RideStatusActive    = "active"
	RideStatusPaused    = "paused"
	RideStatusOngoing   = "ongoing"
	RideStatusCompleted = "completed"
	RideStatusCancelled = "cancelled"
)

// Booking mode fixed at ride creation: direct bookings auto-confirm,
// request bookings wait for the driver.
const (
	BookingModeDirect  = "direct"
	BookingModeRequest = "request"
)

type Location struct {
	Lat     float64 `json:"lat" bson:"lat" validate:"min=-90,max=90"`
	Lon     float64 `json:"lon" bson:"lon" validate:"min=-180,max=180"`
	Address string  `json:"address" bson:"address" validate:"required,max=200"`
}

type Stop struct {
	Lat     float64    `json:"lat" bson:"lat" validate:"min=-90,max=90"`
	Lon     float64    `json:"lon" bson:"lon" validate:"min=-180,max=180"`
	Address string     `json:"address" bson:"address" validate:"required,max=200"`
	ETA     *time.Time `json:"eta,omitempty" bson:"eta,omitempty"`
}

type Preferences struct {
	PetFriendly    bool   `json:"pet_friendly" bson:"pet_friendly"`
	SmokingAllowed bool   `json:"smoking_allowed" bson:"smoking_allowed"`
	Music          string `json:"music,omitempty" bson:"music,omitempty" validate:"omitempty,oneof=silent light any"`
	Talkativeness  string `json:"talkativeness,omitempty" bson:"talkativeness,omitempty" validate:"omitempty,oneof=quiet neutral chatty"`
}

// Ride owns its seat counter. SeatsAvailable moves only through the seat
// ledger's atomic operations; TotalSeats is set once at creation and never
// changes. BookingIDs keeps creation order for enumeration only.
type Ride struct {
	ID              string      `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	DriverID        string      `json:"driver_id" bson:"driver_id" validate:"required,mongodb"`
	VehicleID       string      `json:"vehicle_id,omitempty" bson:"vehicle_id,omitempty" validate:"omitempty,mongodb"`
	FromCity        string      `json:"from_city" bson:"from_city" validate:"required,min=2,max=100"`
	ToCity          string      `json:"to_city" bson:"to_city" validate:"required,min=2,max=100"`
	PickupLocation  Location    `json:"pickup_location" bson:"pickup_location" validate:"required"`
	DropoffLocation *Location   `json:"dropoff_location,omitempty" bson:"dropoff_location,omitempty" validate:"omitempty"`
	PickupTime      time.Time   `json:"pickup_time" bson:"pickup_time" validate:"required"`
	ReachTime       *time.Time  `json:"reach_time,omitempty" bson:"reach_time,omitempty"`
	Stops           []Stop      `json:"stops,omitempty" bson:"stops,omitempty" validate:"omitempty,dive"`
	SeatsAvailable  int         `json:"seats_available" bson:"seats_available" validate:"min=0"`
	TotalSeats      int         `json:"total_seats" bson:"total_seats" validate:"required,min=1,max=50"`
	PricePerSeat    float64     `json:"price_per_seat" bson:"price_per_seat" validate:"required,gt=0"`
	Luggage         string      `json:"luggage,omitempty" bson:"luggage,omitempty" validate:"omitempty,max=100"`
	Instructions    string      `json:"instructions,omitempty" bson:"instructions,omitempty" validate:"omitempty,max=500"`
	Preferences     Preferences `json:"preferences" bson:"preferences"`
	BookingMode     string      `json:"booking_mode" bson:"booking_mode" validate:"required,oneof=direct request"`
	Status          string      `json:"status" bson:"status" validate:"required,oneof=active paused ongoing completed cancelled"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	BookingIDs      []string    `json:"booking_ids,omitempty" bson:"booking_ids,omitempty"`
	CreatedAt       time.Time   `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt       time.Time   `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

// RideUpdate carries the driver-editable fields. Status is deliberately
// absent: lifecycle transitions go through the dedicated operations so
// their cascades cannot be bypassed by a generic patch.
type RideUpdate struct {
	PickupTime      *time.Time   `json:"pickup_time,omitempty"`
	ReachTime       *time.Time   `json:"reach_time,omitempty"`
	PickupLocation  *Location    `json:"pickup_location,omitempty" validate:"omitempty"`
	DropoffLocation *Location    `json:"dropoff_location,omitempty" validate:"omitempty"`
	Stops           *[]Stop      `json:"stops,omitempty" validate:"omitempty,dive"`
	PricePerSeat    *float64     `json:"price_per_seat,omitempty" validate:"omitempty,gt=0"`
	SeatsAvailable  *int         `json:"seats_available,omitempty"`
	Luggage         string       `json:"luggage,omitempty" validate:"omitempty,max=100"`
	Instructions    string       `json:"instructions,omitempty" validate:"omitempty,max=500"`
	Preferences     *Preferences `json:"preferences,omitempty"`
	BookingMode     string       `json:"booking_mode,omitempty" validate:"omitempty,oneof=direct request"`
}

// IsTerminal reports whether the ride can no longer transition.
func (r *Ride) IsTerminal() bool {
	return r.Status == RideStatusCompleted || r.Status == RideStatusCancelled
}

// IsCommunicable reports whether new chat messages may be exchanged
// about this ride.
func (r *Ride) IsCommunicable() bool {
	return r.Status == RideStatusActive || r.Status == RideStatusPaused
}

func (r *Ride) IsEditable() bool {
	return r.Status == RideStatusActive || r.Status == RideStatusPaused
}
