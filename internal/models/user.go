package models

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

const (
	RoleClient       = "client"
	RoleCoach        = "coach"
	RoleOwner        = "owner"
	RoleUnauthorized = "unauthorized"
)

// UserSchemaVersion is bumped whenever a field is added to User. Older
// records are upgraded in Normalize when they are read.
const UserSchemaVersion = 2

var (
	ErrInvalidEmail = errors.New("invalid email")
	ErrInvalidRole  = errors.New("invalid role")
	ErrInvalidPhase = errors.New("invalid phase")
)

type User struct {
	Email              string    `json:"email" bson:"_id"`
	DisplayName        string    `json:"display_name" bson:"display_name"`
	Role               string    `json:"role" bson:"role"`
	CoachEmail         string    `json:"coach_email,omitempty" bson:"coach_email,omitempty"`
	CurrentPhase       int       `json:"current_phase" bson:"current_phase"`
	HasUnreadMsg       bool      `json:"has_unread_msg" bson:"has_unread_msg"`
	CelebratePromotion bool      `json:"celebrate_promotion" bson:"celebrate_promotion"`
	SchemaVersion      int       `json:"schema_version" bson:"schema_version"`
	CreatedAt          time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" bson:"updated_at"`
}

// Normalize fills defaults for fields that older records never stored.
func (u *User) Normalize() {
	u.Email = NormalizeEmail(u.Email)
	if !IsKnownRole(u.Role) {
		u.Role = RoleUnauthorized
	}
	if u.CurrentPhase == 0 {
		u.CurrentPhase = MinPhase
	}
	if u.SchemaVersion < UserSchemaVersion {
		u.SchemaVersion = UserSchemaVersion
	}
}

func (u *User) Validate() error {
	if _, err := mail.ParseAddress(u.Email); err != nil || u.Email != NormalizeEmail(u.Email) {
		return ErrInvalidEmail
	}
	if !IsKnownRole(u.Role) || u.Role == RoleUnauthorized {
		return ErrInvalidRole
	}
	if !ValidPhase(u.CurrentPhase) {
		return ErrInvalidPhase
	}
	if u.CoachEmail != "" {
		if _, err := mail.ParseAddress(u.CoachEmail); err != nil {
			return ErrInvalidEmail
		}
	}
	return nil
}

func (u *User) IsStaff() bool {
	return IsStaffRole(u.Role)
}

func IsKnownRole(role string) bool {
	switch role {
	case RoleClient, RoleCoach, RoleOwner, RoleUnauthorized:
		return true
	default:
		return false
	}
}

// IsStaffRole reports whether the role sees the coach side of the app.
func IsStaffRole(role string) bool {
	return role == RoleCoach || role == RoleOwner
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
