// Package models defines server-side data models persisted in the database
// and the projections that are allowed to leave the service.
package models

import "time"

// RegisterMethod records how an identity was first created.
type RegisterMethod string

const (
	MethodPassword  RegisterMethod = "password"
	MethodFederated RegisterMethod = "federated"
)

// Role is the authorization role of an identity.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the full stored account record. It carries credential and
// proof hashes and must never be serialized to a caller; use Public.
type Identity struct {
	ID                   string
	Email                string
	Name                 string
	PasswordHash         string
	RegisterMethod       RegisterMethod
	EmailVerified        bool
	PasswordMethodLinked bool
	Role                 Role
	Profile              string
	LastLoginAt          *time.Time

	// Pending email verification code, hashed. Both fields are set and
	// cleared together.
	VerifyCodeHash      string
	VerifyCodeExpiresAt *time.Time

	// Pending password reset token, hashed. Same pairing rule.
	ResetTokenHash      string
	ResetTokenExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanUsePassword reports whether password login is allowed for the identity.
func (i *Identity) CanUsePassword() bool {
	return i.RegisterMethod == MethodPassword || i.PasswordMethodLinked
}

// IsAdmin reports whether the identity holds the admin role.
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// PublicIdentity is the allow-listed view of an Identity returned across the
// service boundary.
type PublicIdentity struct {
	ID                   string         `json:"id"`
	Email                string         `json:"email"`
	Name                 string         `json:"name"`
	RegisterMethod       RegisterMethod `json:"registerMethod"`
	EmailVerified        bool           `json:"isEmailVerified"`
	PasswordMethodLinked bool           `json:"isPasswordMethodLinked"`
	Role                 Role           `json:"role"`
	Profile              string         `json:"profile,omitempty"`
	LastLoginAt          *time.Time     `json:"lastLogin,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// Public builds the allow-listed view.
func (i *Identity) Public() *PublicIdentity {
	return &PublicIdentity{
		ID:                   i.ID,
		Email:                i.Email,
		Name:                 i.Name,
		RegisterMethod:       i.RegisterMethod,
		EmailVerified:        i.EmailVerified,
		PasswordMethodLinked: i.PasswordMethodLinked,
		Role:                 i.Role,
		Profile:              i.Profile,
		LastLoginAt:          i.LastLoginAt,
		CreatedAt:            i.CreatedAt,
		UpdatedAt:            i.UpdatedAt,
	}
}
