package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an authenticated actor issued by the identity service. Its id
// is the primary key of the actor's founder profile.
type Identity struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Email            string     `gorm:"not null" json:"email" validate:"required,email"`
	PasswordHash     string     `gorm:"not null" json:"-"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName places identities in the auth schema, out of reach of the
// anon and authenticated roles.
func (Identity) TableName() string { return "auth.users" }

// Confirmed reports whether the email address has been confirmed.
func (i Identity) Confirmed() bool { return i.EmailConfirmedAt != nil }
