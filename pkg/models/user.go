package models

import (
	"time"

	"github.com/google/uuid"
)

// User owns logged records and analysis results. Every other entity belongs
// to a user.
type User struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Email     string    `db:"email"      json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Profile holds the demographic and goal attributes embedded in prompts.
// Every field is optional; absent fields are simply omitted from the prompt.
type Profile struct {
	Age      *int     `json:"age,omitempty"`
	Sex      *string  `json:"sex,omitempty"`
	HeightCm *float64 `json:"height_cm,omitempty"`
	WeightKg *float64 `json:"weight_kg,omitempty"`
	Goal     *string  `json:"goal,omitempty"`
}
