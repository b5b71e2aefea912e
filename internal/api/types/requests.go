package types

import "github.com/foundernet/engine/internal/models"

type SignUpRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	// Profile seeds the founder row created with the identity.
	Profile *models.FounderFields `json:"profile,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ProfileRequest is the body of provision and update calls.
type ProfileRequest struct {
	models.FounderFields
}
