package main

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pclub/main_backend/applications"
	ds "pclub/main_backend/database_service"
	"pclub/main_backend/identity"
)

type fakeMaintenance struct {
	apps     map[string]applications.Application
	profiles map[string]applications.Profile
	deleted  []string
	hideFind bool
}

func newFakeMaintenance() *fakeMaintenance {
	return &fakeMaintenance{apps: map[string]applications.Application{}, profiles: map[string]applications.Profile{}}
}

func (f *fakeMaintenance) InsertApplication(_ context.Context, app applications.Application) (applications.Application, error) {
	app.ID = uuid.NewString()
	f.apps[app.ID] = app
	return app, nil
}

func (f *fakeMaintenance) FindApplications(_ context.Context, filter ds.ApplicationFilter, _ int, _ int) ([]applications.Application, error) {
	var out []applications.Application
	if f.hideFind {
		return out, nil
	}
	for _, app := range f.apps {
		if filter.Email == nil || strings.EqualFold(app.Email, *filter.Email) {
			out = append(out, app)
		}
	}
	return out, nil
}

func (f *fakeMaintenance) DeleteApplication(_ context.Context, _ string, id string) error {
	if _, ok := f.apps[id]; !ok {
		return applications.ErrNotFound
	}
	delete(f.apps, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMaintenance) UpsertProfile(_ context.Context, _ string, userID, email string, role applications.Role) (applications.Profile, error) {
	p := applications.Profile{ID: userID, Email: email, Role: role}
	f.profiles[strings.ToLower(email)] = p
	return p, nil
}

func (f *fakeMaintenance) SetProfileRole(_ context.Context, email string, role applications.Role) error {
	p, ok := f.profiles[strings.ToLower(email)]
	if !ok {
		return applications.ErrNotFound
	}
	p.Role = role
	f.profiles[strings.ToLower(email)] = p
	return nil
}

func newTestTool(t *testing.T) (*tool, *fakeMaintenance, *identity.Local) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	idp := identity.NewLocal("secret", 0, log)
	store := newFakeMaintenance()
	return &tool{store: store, idp: idp, log: log, resetURL: "http://localhost:8081/admin/reset-password"}, store, idp
}

func TestParseCommand(t *testing.T) {
	cmd, err := parseCommand([]string{"grant-admin", "-email", " Lead@MPGI.edu.in "}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, command{name: "grant-admin", email: "lead@mpgi.edu.in"}, cmd)

	cmd, err = parseCommand([]string{"check"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "check", cmd.name)

	for _, args := range [][]string{nil, {"drop-everything"}, {"revoke-admin"}, {"reset-password", "-bogus"}} {
		_, err := parseCommand(args, io.Discard)
		assert.Error(t, err, args)
	}
}

func TestGrantAndRevokeAdmin(t *testing.T) {
	tl, store, idp := newTestTool(t)
	user, err := idp.AddUser("lead@mpgi.edu.in", "secret123")
	require.NoError(t, err)

	require.NoError(t, tl.run(context.Background(), command{name: "grant-admin", email: "lead@mpgi.edu.in"}))
	p := store.profiles["lead@mpgi.edu.in"]
	assert.Equal(t, user.ID, p.ID)
	assert.True(t, p.IsAdmin())

	require.NoError(t, tl.run(context.Background(), command{name: "revoke-admin", email: "lead@mpgi.edu.in"}))
	assert.Equal(t, applications.RoleUser, store.profiles["lead@mpgi.edu.in"].Role)
}

func TestGrantAdminUnknownUser(t *testing.T) {
	tl, store, _ := newTestTool(t)
	err := tl.run(context.Background(), command{name: "grant-admin", email: "ghost@mpgi.edu.in"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign the user up first")
	assert.Empty(t, store.profiles)

	err = tl.run(context.Background(), command{name: "revoke-admin", email: "ghost@mpgi.edu.in"})
	assert.Error(t, err)
}

func TestGrantAdminNeedsIdentity(t *testing.T) {
	tl, _, _ := newTestTool(t)
	tl.idp = nil
	assert.Error(t, tl.run(context.Background(), command{name: "grant-admin", email: "lead@mpgi.edu.in"}))
	assert.Error(t, tl.run(context.Background(), command{name: "reset-password", email: "lead@mpgi.edu.in"}))
}

func TestResetPassword(t *testing.T) {
	tl, _, idp := newTestTool(t)
	_, err := idp.AddUser("lead@mpgi.edu.in", "secret123")
	require.NoError(t, err)

	assert.NoError(t, tl.run(context.Background(), command{name: "reset-password", email: "lead@mpgi.edu.in"}))
	assert.ErrorIs(t, tl.run(context.Background(), command{name: "reset-password", email: "ghost@mpgi.edu.in"}), identity.ErrUserNotFound)
}

func TestCheckRoundTrip(t *testing.T) {
	tl, store, _ := newTestTool(t)
	require.NoError(t, tl.run(context.Background(), command{name: "check"}))
	assert.Len(t, store.deleted, 1)
	assert.Empty(t, store.apps)
}

func TestCheckCleansUpWhenQueryMisses(t *testing.T) {
	tl, store, _ := newTestTool(t)
	store.hideFind = true
	err := tl.run(context.Background(), command{name: "check"})
	require.Error(t, err)
	assert.Empty(t, store.apps)
}
