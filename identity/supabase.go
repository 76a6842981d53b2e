package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pclub/main_backend/applications"
	"pclub/main_backend/supabase"
)

// Supabase authenticates against Supabase Auth. With a JWT secret configured,
// Resolve verifies access tokens locally and only falls back to the API when
// that fails.
type Supabase struct {
	auth      *supabase.AuthClient
	jwtSecret []byte
	log       *logrus.Logger
}

var _ Provider = (*Supabase)(nil)

// NewSupabase wraps a Supabase client. jwtSecret may be empty.
func NewSupabase(client *supabase.Client, jwtSecret string, log *logrus.Logger) *Supabase {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Supabase{auth: client.Auth(), log: log}
	if jwtSecret != "" {
		s.jwtSecret = []byte(jwtSecret)
	}
	return s
}

func (s *Supabase) SignIn(ctx context.Context, email, password string) (*Session, error) {
	session, err := s.auth.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, mapAuthError(err, ErrInvalidCredentials)
	}
	out := &Session{
		AccessToken: session.AccessToken,
		TokenType:   session.TokenType,
		UserID:      session.User.ID,
		Email:       session.User.Email,
	}
	switch {
	case session.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	case session.ExpiresIn > 0:
		out.ExpiresAt = time.Now().UTC().Add(time.Duration(session.ExpiresIn) * time.Second)
	}
	return out, nil
}

func (s *Supabase) SignOut(ctx context.Context, accessToken string) error {
	return mapAuthError(s.auth.SignOut(ctx, accessToken), ErrInvalidSession)
}

func (s *Supabase) Resolve(ctx context.Context, accessToken string) (applications.Caller, error) {
	if strings.TrimSpace(accessToken) == "" {
		return applications.Caller{}, ErrInvalidSession
	}
	if s.jwtSecret != nil {
		claims, err := parseToken(accessToken, s.jwtSecret)
		if err == nil {
			return applications.Caller{UserID: claims.Subject, Email: claims.Email, AccessToken: accessToken}, nil
		}
		s.log.WithError(err).Debug("local token verification failed, asking auth server")
	}
	user, err := s.auth.GetUser(ctx, accessToken)
	if err != nil {
		return applications.Caller{}, mapAuthError(err, ErrInvalidSession)
	}
	return applications.Caller{UserID: user.ID, Email: user.Email, AccessToken: accessToken}, nil
}

func (s *Supabase) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return mapAuthError(s.auth.UpdatePassword(ctx, accessToken, password), ErrInvalidSession)
}

func (s *Supabase) SendPasswordReset(ctx context.Context, email, redirectTo string) error {
	return s.auth.ResetPasswordForEmail(ctx, strings.TrimSpace(email), redirectTo)
}

func (s *Supabase) LookupUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	user, err := s.auth.AdminFindUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return UserRecord{}, mapAuthError(err, ErrUserNotFound)
	}
	return UserRecord{ID: user.ID, Email: user.Email}, nil
}

// mapAuthError turns 4xx auth responses into authFailure and leaves
// transport and server errors as they are.
func mapAuthError(err error, authFailure error) error {
	if err == nil {
		return nil
	}
	var apiErr *supabase.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError {
		return authFailure
	}
	return err
}
