// Package identity signs admins in and turns access tokens back into callers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pclub/main_backend/applications"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrUserNotFound       = errors.New("user not found")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// MinPasswordLength is the shortest password accepted on reset.
const MinPasswordLength = 6

// Session is what a successful sign-in hands back to the client.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
}

// UserRecord is an auth user as seen by provisioning.
type UserRecord struct {
	ID    string
	Email string
}

// Provider authenticates callers. Role decisions are not made here; they come
// from the caller's profile in the store.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	Resolve(ctx context.Context, accessToken string) (applications.Caller, error)
	UpdatePassword(ctx context.Context, accessToken, password string) error
	SendPasswordReset(ctx context.Context, email, redirectTo string) error
	LookupUserByEmail(ctx context.Context, email string) (UserRecord, error)
}

// CheckNewPassword validates a password change request.
func CheckNewPassword(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// tokenClaims matches the claims Supabase puts in its access tokens.
type tokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func parseToken(token string, secret []byte) (*tokenClaims, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidSession
	}
	// anon and service_role tokens are API keys, not sessions.
	if claims.Role != "" && claims.Role != "authenticated" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

func signToken(claims tokenClaims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
