package jwttoken

import (
	"github.com/google/uuid"

	"kerbdash/internal/platform/middleware"
)

func ToMiddlewareClaims(claims *Claims) *middleware.SessionClaims {
	return &middleware.SessionClaims{
		SessionID: uuid.MustParse(claims.SessionID),
		Principal: claims.Principal,
		JTI:       claims.ID,
	}
}

// JWTServiceAdapter lets the session middleware validate tokens without
// depending on the jwt library.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.SessionClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
