package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload issued by the host platform.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Identity is the acting user resolved for a request.
type Identity struct {
	UserID   string
	Role     UserRole
	Email    string
	FullName string
}

// Identity projects the claims onto the acting identity.
func (c *JWTClaims) Identity() Identity {
	if c == nil {
		return Identity{}
	}
	return Identity{UserID: c.UserID, Role: c.Role, Email: c.Email, FullName: c.FullName}
}

// IsZero reports whether no user is attached.
func (i Identity) IsZero() bool {
	return i.UserID == ""
}
