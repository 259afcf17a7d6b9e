package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims carries the identity attached to admin requests. Issuing tokens
// (login, password checks) belongs to the surrounding portal; this service
// only verifies them.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
