// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package auth turns the bearer token issued by the marketplace's identity
// service into a models.Viewer.
//
// Tokens are HS256 JWTs whose sub claim is the viewer id and whose role
// claim is agency or student.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/roomlink/internal/config"
	"github.com/tomtom215/roomlink/internal/models"
)

// ErrInvalidToken is returned for any token that cannot identify a viewer.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims the service reads.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Viewer converts validated claims into a viewer.
func (c *Claims) Viewer() models.Viewer {
	return models.Viewer{ID: c.Subject, Role: c.Role}
}

// TokenValidator validates bearer tokens.
type TokenValidator struct {
	secret []byte
	issuer string
}

// NewTokenValidator creates a validator from the security config.
func NewTokenValidator(cfg *config.SecurityConfig) (*TokenValidator, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}
	return &TokenValidator{secret: []byte(cfg.JWTSecret), issuer: cfg.JWTIssuer}, nil
}

// GenerateToken signs a token for viewer. The service itself never issues
// tokens to browsers; this serves local development and tests.
func (v *TokenValidator) GenerateToken(viewer models.Viewer, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: viewer.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewer.ID,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, algorithm, expiry and issuer, and that
// the claims name a valid viewer.
func (v *TokenValidator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !claims.Viewer().Valid() {
		return nil, fmt.Errorf("%w: missing subject or unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}
