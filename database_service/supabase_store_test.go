package database_service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pclub/main_backend/applications"
	"pclub/main_backend/supabase"
)

const testAppID = "5b1f6a3e-0c4e-4c53-9f0e-8b8f5b6c2d11"

func newTestSupabaseStore(t *testing.T, h http.HandlerFunc) *SupabaseStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client, err := supabase.New(supabase.Config{URL: srv.URL, AnonKey: "anon", ServiceKey: "service"})
	require.NoError(t, err)
	store, err := NewSupabaseStore(client)
	require.NoError(t, err)
	return store
}

func TestNewSupabaseStoreNeedsServiceKey(t *testing.T) {
	client, err := supabase.New(supabase.Config{URL: "http://localhost", AnonKey: "anon"})
	require.NoError(t, err)
	_, err = NewSupabaseStore(client)
	assert.Error(t, err)
}

func TestSupabaseStoreInsertUsesServiceKey(t *testing.T) {
	var body map[string]any
	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/core_applications", r.URL.Path)
		assert.Equal(t, "Bearer service", r.Header.Get("Authorization"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte(`[{"id":"` + testAppID + `","name":"Asha Rao","status":"pending","created_at":"2024-01-02T03:04:05Z"}]`))
	})

	created, err := store.InsertApplication(context.Background(), applications.Application{Name: "Asha Rao", Status: applications.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, testAppID, created.ID)
	assert.Equal(t, applications.StatusPending, created.Status)
	_, hasStatus := body["status"]
	assert.False(t, hasStatus)
}

func TestSupabaseStoreUpdateDeniedForNonAdmin(t *testing.T) {
	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/rest/v1/core_applications":
			assert.Equal(t, http.MethodPatch, r.Method)
			_, _ = w.Write([]byte(`[]`))
		case "/rest/v1/rpc/is_admin":
			_, _ = w.Write([]byte(`false`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	caller := applications.Caller{UserID: "u1", Email: "x@mpgi.edu.in", AccessToken: "user-token"}
	_, err := store.UpdateReview(context.Background(), caller, testAppID, applications.Review{
		Status: applications.StatusApproved, ReviewedBy: caller.Email, ReviewedAt: time.Now(),
	})
	assert.ErrorIs(t, err, applications.ErrForbidden)
}

func TestSupabaseStoreListMapsErrors(t *testing.T) {
	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"JWT expired"}`))
	})

	caller := applications.Caller{UserID: "u1", AccessToken: "stale"}
	_, err := store.ListApplications(context.Background(), caller)
	assert.ErrorIs(t, err, applications.ErrUnauthenticated)

	_, err = store.ListApplications(context.Background(), applications.Caller{UserID: "u1"})
	assert.ErrorIs(t, err, applications.ErrUnauthenticated)
}

func TestSupabaseStoreGetApplicationRejectsBadID(t *testing.T) {
	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL.Path)
	})
	_, err := store.GetApplication(context.Background(), applications.Caller{UserID: "u1", AccessToken: "t"}, "not-a-uuid")
	assert.ErrorIs(t, err, applications.ErrNotFound)
}

// rlsServer answers like PostgREST under the installed policies: the
// applicant may select their own row, is_admin is false for them and
// updates match no rows.
type rlsServer struct {
	patches int
	reads   int
}

func (r *rlsServer) handle(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer owner-token", req.Header.Get("Authorization"))
		switch req.URL.Path {
		case "/rest/v1/rpc/is_admin":
			_, _ = w.Write([]byte(`false`))
		case "/rest/v1/core_applications":
			switch req.Method {
			case http.MethodGet:
				r.reads++
				_, _ = w.Write([]byte(`[{"id":"` + testAppID + `","email":"owner@mpgi.edu.in","status":"approved","reviewed_by":"lead@mpgi.edu.in","reviewed_at":"2024-01-02T03:04:05Z","created_at":"2024-01-01T00:00:00Z"}]`))
			case http.MethodPatch:
				r.patches++
				_, _ = w.Write([]byte(`[]`))
			default:
				t.Errorf("unexpected method %s", req.Method)
			}
		default:
			t.Errorf("unexpected path %s", req.URL.Path)
		}
	}
}

func TestSupabaseStoreOwnerCannotRedecideApproved(t *testing.T) {
	srv := &rlsServer{}
	store := newTestSupabaseStore(t, srv.handle(t))
	owner := applications.Caller{UserID: "u-owner", Email: "owner@mpgi.edu.in", AccessToken: "owner-token"}

	_, err := store.GetApplication(context.Background(), owner, testAppID)
	assert.ErrorIs(t, err, applications.ErrForbidden)

	svc := applications.NewService(store, applications.DefaultRules(), nil)
	app, wrote, err := svc.SetStatus(context.Background(), owner, testAppID, applications.StatusApproved)
	assert.ErrorIs(t, err, applications.ErrForbidden)
	assert.False(t, wrote)
	assert.Empty(t, app.ID)
	assert.Zero(t, srv.patches)
	assert.Zero(t, srv.reads)
}

func TestSupabaseStoreFindApplicationsQuery(t *testing.T) {
	var query string
	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer service", r.Header.Get("Authorization"))
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	})

	email := " A_B@mpgi.edu.in "
	_, err := store.FindApplications(context.Background(), ApplicationFilter{Email: &email}, 10, 20)
	require.NoError(t, err)
	assert.Contains(t, query, "email=eq.a_b%40mpgi.edu.in")
	assert.NotContains(t, query, "ilike")
	assert.Contains(t, query, "limit=10")
	assert.Contains(t, query, "offset=20")
}
