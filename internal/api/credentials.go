package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("feed api: no access token")
	ErrTokenExpired = errors.New("feed api: access token expired")
)

// Credentials carry the access token explicitly to every call.
type Credentials struct {
	Token string
}

// Claims is what the client reads from the token. The signature is not
// verified here; the server does that.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Claims decodes the JWT payload without verifying it.
func (c Credentials) Claims() (Claims, error) {
	if c.Token == "" {
		return Claims{}, ErrNoToken
	}
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.Token, &rc); err != nil {
		return Claims{}, fmt.Errorf("parse access token: %w", err)
	}
	out := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		out.ExpiresAt = rc.ExpiresAt.Time
	}
	return out, nil
}

// check fails fast on an expired JWT. Opaque (non-JWT) tokens pass through.
func (c Credentials) check(now time.Time) error {
	if c.Token == "" {
		return ErrNoToken
	}
	claims, err := c.Claims()
	if err != nil {
		return nil
	}
	if !claims.ExpiresAt.IsZero() && now.After(claims.ExpiresAt) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, claims.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}
