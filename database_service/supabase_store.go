package database_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"pclub/main_backend/applications"
	"pclub/main_backend/supabase"
)

// SupabaseStore implements applications.Store over PostgREST. Reads and
// updates carry the caller's access token, so the project's row-level
// security policies (installed by Migrate) decide what is visible.
type SupabaseStore struct {
	client *supabase.Client
}

var _ applications.Store = (*SupabaseStore)(nil)

// NewSupabaseStore wraps client. Inserts need the service key because the
// submitter is anonymous and cannot read back the stored row.
func NewSupabaseStore(client *supabase.Client) (*SupabaseStore, error) {
	if !client.HasServiceKey() {
		return nil, fmt.Errorf("supabase store requires a service key")
	}
	return &SupabaseStore{client: client}, nil
}

type applicationInsert struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	RollNumber string  `json:"roll_number"`
	Skills     string  `json:"skills"`
	GithubLink *string `json:"github_link"`
	Reason     string  `json:"reason"`
	Role       string  `json:"role"`
}

func (s *SupabaseStore) InsertApplication(ctx context.Context, app applications.Application) (applications.Application, error) {
	row := applicationInsert{
		Name:       app.Name,
		Email:      app.Email,
		RollNumber: app.RollNumber,
		Skills:     app.Skills,
		GithubLink: app.GithubLink,
		Reason:     app.Reason,
		Role:       app.Role,
	}
	var out []applications.Application
	err := s.client.From(applicationsTable).Insert(row).WithServiceRole().ExecuteInto(ctx, &out)
	if err != nil {
		return applications.Application{}, mapSupabaseError(err)
	}
	if len(out) == 0 {
		return applications.Application{}, fmt.Errorf("insert returned no rows")
	}
	return out[0], nil
}

func (s *SupabaseStore) ListApplications(ctx context.Context, caller applications.Caller) ([]applications.Application, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	out := []applications.Application{}
	err := s.client.From(applicationsTable).
		Order("created_at", false).
		WithToken(caller.AccessToken).
		ExecuteInto(ctx, &out)
	if err != nil {
		return nil, mapSupabaseError(err)
	}
	return out, nil
}

func (s *SupabaseStore) GetApplication(ctx context.Context, caller applications.Caller, id string) (applications.Application, error) {
	if err := requireToken(caller); err != nil {
		return applications.Application{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return applications.Application{}, applications.ErrNotFound
	}
	// Owners may read their own row under the select policy; review reads are admin-only.
	if err := s.requireAdmin(ctx, caller); err != nil {
		return applications.Application{}, err
	}
	var out []applications.Application
	err := s.client.From(applicationsTable).Eq("id", id).WithToken(caller.AccessToken).ExecuteInto(ctx, &out)
	if err != nil {
		return applications.Application{}, mapSupabaseError(err)
	}
	if len(out) == 0 {
		return applications.Application{}, applications.ErrNotFound
	}
	return out[0], nil
}

func (s *SupabaseStore) UpdateReview(ctx context.Context, caller applications.Caller, id string, review applications.Review) (applications.Application, error) {
	if !review.Status.Valid() {
		return applications.Application{}, applications.ErrInvalidTransition
	}
	return s.update(ctx, caller, id, map[string]any{
		"status":      review.Status,
		"reviewed_by": review.ReviewedBy,
		"reviewed_at": review.ReviewedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *SupabaseStore) UpdateNotes(ctx context.Context, caller applications.Caller, id string, notes *string) (applications.Application, error) {
	return s.update(ctx, caller, id, map[string]any{"notes": notes})
}

func (s *SupabaseStore) update(ctx context.Context, caller applications.Caller, id string, patch map[string]any) (applications.Application, error) {
	if err := requireToken(caller); err != nil {
		return applications.Application{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return applications.Application{}, applications.ErrNotFound
	}
	var out []applications.Application
	err := s.client.From(applicationsTable).Update(patch).Eq("id", id).WithToken(caller.AccessToken).ExecuteInto(ctx, &out)
	if err != nil {
		return applications.Application{}, mapSupabaseError(err)
	}
	return s.single(ctx, caller, out)
}

// single returns the only row, or decides between forbidden and not found
// when row-level security filtered everything out.
func (s *SupabaseStore) single(ctx context.Context, caller applications.Caller, rows []applications.Application) (applications.Application, error) {
	if len(rows) > 0 {
		return rows[0], nil
	}
	admin, err := s.isAdmin(ctx, caller)
	if err != nil {
		return applications.Application{}, err
	}
	if !admin {
		return applications.Application{}, applications.ErrForbidden
	}
	return applications.Application{}, applications.ErrNotFound
}

func (s *SupabaseStore) GetProfile(ctx context.Context, caller applications.Caller) (applications.Profile, error) {
	if err := requireToken(caller); err != nil {
		return applications.Profile{}, err
	}
	var out []applications.Profile
	err := s.client.From(profilesTable).
		Select("id,email,role,created_at,updated_at").
		Eq("id", caller.UserID).
		WithToken(caller.AccessToken).
		ExecuteInto(ctx, &out)
	if err != nil {
		return applications.Profile{}, mapSupabaseError(err)
	}
	if len(out) == 0 {
		return applications.Profile{}, applications.ErrNotFound
	}
	return out[0], nil
}

func (s *SupabaseStore) requireAdmin(ctx context.Context, caller applications.Caller) error {
	if err := requireToken(caller); err != nil {
		return err
	}
	admin, err := s.isAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if !admin {
		return applications.ErrForbidden
	}
	return nil
}

func (s *SupabaseStore) isAdmin(ctx context.Context, caller applications.Caller) (bool, error) {
	raw, err := s.client.RPC(ctx, "is_admin", nil, caller.AccessToken)
	if err != nil {
		return false, mapSupabaseError(err)
	}
	var admin bool
	if err := json.Unmarshal(raw, &admin); err != nil {
		return false, fmt.Errorf("decode is_admin: %w", err)
	}
	return admin, nil
}

// UpsertProfile creates or updates a profile with the service key.
func (s *SupabaseStore) UpsertProfile(ctx context.Context, _ string, userID, email string, role applications.Role) (applications.Profile, error) {
	row := map[string]any{"id": userID, "email": strings.ToLower(email), "role": role}
	var out []applications.Profile
	err := s.client.From(profilesTable).Upsert(row, "id").WithServiceRole().ExecuteInto(ctx, &out)
	if err != nil {
		return applications.Profile{}, mapSupabaseError(err)
	}
	if len(out) == 0 {
		return applications.Profile{}, fmt.Errorf("upsert returned no rows")
	}
	return out[0], nil
}

// SetProfileRole changes the role of the profile with the given email.
func (s *SupabaseStore) SetProfileRole(ctx context.Context, email string, role applications.Role) error {
	var out []applications.Profile
	err := s.client.From(profilesTable).
		Update(map[string]any{"role": role, "updated_at": time.Now().UTC().Format(time.RFC3339Nano)}).
		Eq("email", strings.ToLower(email)).
		WithServiceRole().
		ExecuteInto(ctx, &out)
	if err != nil {
		return mapSupabaseError(err)
	}
	if len(out) == 0 {
		return applications.ErrNotFound
	}
	return nil
}

// DeleteApplication removes one application with the service key.
func (s *SupabaseStore) DeleteApplication(ctx context.Context, _ string, id string) error {
	var out []applications.Application
	if err := s.client.From(applicationsTable).Delete().Eq("id", id).WithServiceRole().ExecuteInto(ctx, &out); err != nil {
		return mapSupabaseError(err)
	}
	if len(out) == 0 {
		return applications.ErrNotFound
	}
	return nil
}

// FindApplications mirrors DB.FindApplications with the service key.
func (s *SupabaseStore) FindApplications(ctx context.Context, f ApplicationFilter, limit int, offset int) ([]applications.Application, error) {
	q := s.client.From(applicationsTable).WithServiceRole()
	if f.Email != nil {
		// Stored emails are lower-cased on submit.
		q = q.Eq("email", strings.ToLower(strings.TrimSpace(*f.Email)))
	}
	if f.StatusEquals != nil {
		q = q.Eq("status", *f.StatusEquals)
	}
	if f.CreatedAfter != nil {
		q = q.Gte("created_at", f.CreatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if f.CreatedBefore != nil {
		q = q.Lte("created_at", f.CreatedBefore.UTC().Format(time.RFC3339Nano))
	}
	if limit <= 0 {
		limit = 100
	}
	out := []applications.Application{}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Order("created_at", false).Limit(limit).ExecuteInto(ctx, &out); err != nil {
		return nil, mapSupabaseError(err)
	}
	return out, nil
}

func requireToken(caller applications.Caller) error {
	if caller.Anonymous() || caller.AccessToken == "" {
		return applications.ErrUnauthenticated
	}
	return nil
}

// mapSupabaseError turns API failures into domain errors.
func mapSupabaseError(err error) error {
	var apiErr *supabase.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", applications.ErrUnauthenticated, apiErr.Message)
	case apiErr.StatusCode == http.StatusForbidden || apiErr.Code == "42501":
		return fmt.Errorf("%w: %s", applications.ErrForbidden, apiErr.Message)
	case apiErr.StatusCode == http.StatusNotFound || apiErr.Code == "22P02":
		return applications.ErrNotFound
	}
	return err
}
