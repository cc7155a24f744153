package model

import "time"

type Vehicle struct {
	ID          string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	OwnerID     string    `json:"owner_id" bson:"owner_id" validate:"required,mongodb"`
	Make        string    `json:"make,omitempty" bson:"make,omitempty" validate:"omitempty,max=50"`
	Model       string    `json:"model,omitempty" bson:"model,omitempty" validate:"omitempty,max=50"`
	Year        int       `json:"year,omitempty" bson:"year,omitempty" validate:"omitempty,min=1950,max=2100"`
	PlateNumber string    `json:"plate_number,omitempty" bson:"plate_number,omitempty" validate:"omitempty,max=20"`
	Seats       int       `json:"seats" bson:"seats" validate:"required,min=1,max=50"`
	Color       string    `json:"color,omitempty" bson:"color,omitempty" validate:"omitempty,max=30"`
	AC          bool      `json:"ac" bson:"ac"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

type VehicleUpdate struct {
	Make        string `json:"make,omitempty" validate:"omitempty,max=50"`
	Model       string `json:"model,omitempty" validate:"omitempty,max=50"`
	Year        *int   `json:"year,omitempty" validate:"omitempty,min=1950,max=2100"`
	PlateNumber string `json:"plate_number,omitempty" validate:"omitempty,max=20"`
	Seats       *int   `json:"seats,omitempty" validate:"omitempty,min=1,max=50"`
	Color       string `json:"color,omitempty" validate:"omitempty,max=30"`
	AC          *bool  `json:"ac,omitempty"`
}
