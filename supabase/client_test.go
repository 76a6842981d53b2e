package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL + "/", AnonKey: "anon", ServiceKey: "service"})
	require.NoError(t, err)
	return c
}

func TestNewRequiresURLAndKey(t *testing.T) {
	_, err := New(Config{AnonKey: "anon"})
	assert.Error(t, err)
	_, err = New(Config{URL: "http://localhost"})
	assert.Error(t, err)
}

func TestQueryBuilderURL(t *testing.T) {
	c, err := New(Config{URL: "https://proj.supabase.co", AnonKey: "anon"})
	require.NoError(t, err)

	q := c.From("core_applications").Eq("status", "pending").Order("created_at", false).Limit(5)
	assert.Equal(t,
		"https://proj.supabase.co/rest/v1/core_applications?select=%2A&status=eq.pending&order=created_at.desc&limit=5",
		q.buildURL())
}

func TestRequestHeadersPerCredential(t *testing.T) {
	var seen []http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Clone())
		_, _ = w.Write([]byte(`[]`))
	})
	ctx := context.Background()

	_, err := c.From("t").Execute(ctx)
	require.NoError(t, err)
	_, err = c.From("t").WithToken("user-jwt").Execute(ctx)
	require.NoError(t, err)
	_, err = c.From("t").WithServiceRole().Execute(ctx)
	require.NoError(t, err)

	require.Len(t, seen, 3)
	assert.Equal(t, "anon", seen[0].Get("apikey"))
	assert.Equal(t, "Bearer anon", seen[0].Get("Authorization"))
	assert.Equal(t, "anon", seen[1].Get("apikey"))
	assert.Equal(t, "Bearer user-jwt", seen[1].Get("Authorization"))
	assert.Equal(t, "service", seen[2].Get("apikey"))
	assert.Equal(t, "Bearer service", seen[2].Get("Authorization"))
}

func TestServiceRoleWithoutKey(t *testing.T) {
	c, err := New(Config{URL: "http://localhost", AnonKey: "anon"})
	require.NoError(t, err)
	_, err = c.From("t").WithServiceRole().Execute(context.Background())
	assert.Error(t, err)
	_, err = c.Auth().AdminListUsers(context.Background(), 1, 10)
	assert.Error(t, err)
}

func TestErrorParsing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	})

	_, err := c.Auth().SignInWithPassword(context.Background(), "a@b.c", "nope")
	require.Error(t, err)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid login credentials", apiErr.Message)
}

func TestErrorParsingNonJSON(t *testing.T) {
	err := parseError([]byte("gateway down"), http.StatusBadGateway)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "gateway down", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "502")
}

func TestSignInAndGetUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
			_, _ = w.Write([]byte(`{"access_token":"jwt","token_type":"bearer","expires_in":3600,"user":{"id":"u1","email":"lead@mpgi.edu.in"}}`))
		case "/auth/v1/user":
			assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"id":"u1","email":"lead@mpgi.edu.in"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	session, err := c.Auth().SignInWithPassword(context.Background(), "lead@mpgi.edu.in", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt", session.AccessToken)
	assert.Equal(t, "u1", session.User.ID)

	user, err := c.Auth().GetUser(context.Background(), session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "lead@mpgi.edu.in", user.Email)
}

func TestResetPasswordForEmailRedirect(t *testing.T) {
	var redirect string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/recover", r.URL.Path)
		redirect = r.URL.Query().Get("redirect_to")
		_, _ = w.Write([]byte(`{}`))
	})

	err := c.Auth().ResetPasswordForEmail(context.Background(), "lead@mpgi.edu.in", "https://club.example/admin/reset-password")
	require.NoError(t, err)
	assert.Equal(t, "https://club.example/admin/reset-password", redirect)
}

func TestAdminFindUserByEmailPages(t *testing.T) {
	pages := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		pages++
		page := r.URL.Query().Get("page")
		if page == "1" {
			users := `{"users":[`
			for i := 0; i < 100; i++ {
				if i > 0 {
					users += ","
				}
				users += fmt.Sprintf(`{"id":"u%d","email":"user%d@mpgi.edu.in"}`, i, i)
			}
			_, _ = w.Write([]byte(users + `]}`))
			return
		}
		_, _ = w.Write([]byte(`{"users":[{"id":"target","email":"Lead@MPGI.edu.in"}]}`))
	})

	user, err := c.Auth().AdminFindUserByEmail(context.Background(), "lead@mpgi.edu.in")
	require.NoError(t, err)
	assert.Equal(t, "target", user.ID)
	assert.Equal(t, 2, pages)

	_, err = c.Auth().AdminFindUserByEmail(context.Background(), "ghost@mpgi.edu.in")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestQueryBuilderOffset(t *testing.T) {
	c, err := New(Config{URL: "https://proj.supabase.co", AnonKey: "anon"})
	require.NoError(t, err)

	q := c.From("core_applications").Eq("email", "a_b@mpgi.edu.in").Limit(10).Offset(20)
	assert.Equal(t,
		"https://proj.supabase.co/rest/v1/core_applications?select=%2A&email=eq.a_b%40mpgi.edu.in&limit=10&offset=20",
		q.buildURL())

	assert.NotContains(t, c.From("core_applications").Offset(0).buildURL(), "offset=")
}
