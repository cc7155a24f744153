package model

import "encoding/json"

// Viewer roles for field-level visibility.
const (
	ViewerOwner     = "owner"
	ViewerPassenger = "passenger"
	ViewerPublic    = "public"
)

// Field visibility is a static projection policy: each (entity, viewer
// role) pair maps to a fixed allowed field set. Keeping the policy in one
// table avoids visibility conditionals scattered through handlers.
var (
	rideViewFields = map[string][]string{
		ViewerOwner: {
			"id", "driver_id", "vehicle_id", "from_city", "to_city",
			"pickup_location", "dropoff_location", "pickup_time", "reach_time",
			"stops", "seats_available", "total_seats", "price_per_seat",
			"luggage", "instructions", "preferences", "booking_mode",
			"status", "cancelled_at", "booking_ids", "created_at", "updated_at",
		},
		ViewerPassenger: {
			"id", "driver_id", "from_city", "to_city",
			"pickup_location", "dropoff_location", "pickup_time", "reach_time",
			"stops", "seats_available", "total_seats", "price_per_seat",
			"luggage", "instructions", "preferences", "booking_mode", "status",
		},
		ViewerPublic: {
			"id", "from_city", "to_city", "pickup_time", "reach_time",
			"seats_available", "total_seats", "price_per_seat", "status",
		},
	}

	bookingViewFields = map[string][]string{
		ViewerOwner: {
			"id", "ride_id", "passenger_id", "driver_id", "seats_booked",
			"status", "payment_status", "created_at", "updated_at",
		},
		ViewerPassenger: {
			"id", "ride_id", "passenger_id", "driver_id", "seats_booked",
			"status", "payment_status", "created_at", "updated_at",
		},
		ViewerPublic: {
			"id", "ride_id", "seats_booked", "status",
		},
	}

	vehicleViewFields = map[string][]string{
		ViewerOwner: {
			"id", "owner_id", "make", "model", "year", "plate_number",
			"seats", "color", "ac", "created_at",
		},
		ViewerPassenger: {
			"id", "make", "model", "year", "seats", "color", "ac",
		},
		ViewerPublic: {
			"id", "make", "model", "seats",
		},
	}
)

func ProjectRide(ride *Ride, viewerRole string) map[string]any {
	return project(ride, allowedFields(rideViewFields, viewerRole))
}

func ProjectBooking(booking *Booking, viewerRole string) map[string]any {
	return project(booking, allowedFields(bookingViewFields, viewerRole))
}

func ProjectVehicle(vehicle *Vehicle, viewerRole string) map[string]any {
	return project(vehicle, allowedFields(vehicleViewFields, viewerRole))
}

func allowedFields(policy map[string][]string, viewerRole string) []string {
	if fields, ok := policy[viewerRole]; ok {
		return fields
	}
	return policy[ViewerPublic]
}

func project(entity any, fields []string) map[string]any {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil
	}

	var full map[string]any
	if err := json.Unmarshal(data, &full); err != nil {
		return nil
	}

	view := make(map[string]any, len(fields))
	for _, field := range fields {
		if value, ok := full[field]; ok {
			view[field] = value
		}
	}
	return view
}
