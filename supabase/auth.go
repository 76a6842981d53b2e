package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthClient handles Supabase Auth (GoTrue) operations.
type AuthClient struct {
	client *Client
}

// User is the GoTrue user object.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	CreatedAt    time.Time      `json:"created_at"`
	LastSignInAt *time.Time     `json:"last_sign_in_at,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
}

// Session is returned by a successful sign-in.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// SignInWithPassword authenticates a user with email/password.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	req := map[string]string{
		"email":    email,
		"password": password,
	}
	respBody, _, err := a.client.request(ctx, http.MethodPost, a.client.authURL+"/token?grant_type=password", req, nil, a.client.anon())
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &session, nil
}

// GetUser retrieves the current user using an access token.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	respBody, _, err := a.client.request(ctx, http.MethodGet, a.client.authURL+"/user", nil, nil, a.client.user(accessToken))
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &user, nil
}

// UpdatePassword sets a new password for the user owning accessToken.
func (a *AuthClient) UpdatePassword(ctx context.Context, accessToken, password string) error {
	req := map[string]string{"password": password}
	_, _, err := a.client.request(ctx, http.MethodPut, a.client.authURL+"/user", req, nil, a.client.user(accessToken))
	return err
}

// ResetPasswordForEmail sends a recovery e-mail; the link lands on redirectTo.
func (a *AuthClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	endpoint := a.client.authURL + "/recover"
	if redirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	_, _, err := a.client.request(ctx, http.MethodPost, endpoint, map[string]string{"email": email}, nil, a.client.anon())
	return err
}

// SignOut revokes the session behind accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	_, _, err := a.client.request(ctx, http.MethodPost, a.client.authURL+"/logout", nil, nil, a.client.user(accessToken))
	return err
}

// AdminListUsers returns one page of auth users. Requires the service key.
func (a *AuthClient) AdminListUsers(ctx context.Context, page, perPage int) ([]User, error) {
	cred, err := a.client.service()
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	endpoint := fmt.Sprintf("%s/admin/users?page=%d&per_page=%d", a.client.authURL, page, perPage)
	respBody, _, err := a.client.request(ctx, http.MethodGet, endpoint, nil, nil, cred)
	if err != nil {
		return nil, err
	}

	var out struct {
		Users []User `json:"users"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return out.Users, nil
}

// AdminFindUserByEmail pages through the user list until email matches.
func (a *AuthClient) AdminFindUserByEmail(ctx context.Context, email string) (*User, error) {
	const perPage = 100
	for page := 1; ; page++ {
		users, err := a.AdminListUsers(ctx, page, perPage)
		if err != nil {
			return nil, err
		}
		for i := range users {
			if strings.EqualFold(users[i].Email, email) {
				return &users[i], nil
			}
		}
		if len(users) < perPage {
			return nil, &Error{Code: "user_not_found", Message: "no user with email " + email, StatusCode: http.StatusNotFound}
		}
	}
}
