// Command setup provisions the recruitment backend: schema and policies,
// admin roles, password recovery and a connectivity check.
//
//	setup migrate
//	setup grant-admin -email lead@mpgi.edu.in
//	setup revoke-admin -email lead@mpgi.edu.in
//	setup reset-password -email lead@mpgi.edu.in
//	setup check
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"pclub/main_backend/applications"
	"pclub/main_backend/config"
	ds "pclub/main_backend/database_service"
	"pclub/main_backend/identity"
	"pclub/main_backend/supabase"
)

const actor = "setup"

// maintenance is the privileged store surface the tool needs. Both the
// Postgres and the Supabase stores provide it.
type maintenance interface {
	InsertApplication(ctx context.Context, app applications.Application) (applications.Application, error)
	FindApplications(ctx context.Context, f ds.ApplicationFilter, limit int, offset int) ([]applications.Application, error)
	DeleteApplication(ctx context.Context, actor string, id string) error
	UpsertProfile(ctx context.Context, actor string, userID, email string, role applications.Role) (applications.Profile, error)
	SetProfileRole(ctx context.Context, email string, role applications.Role) error
}

type command struct {
	name  string
	email string
}

var commands = map[string]bool{
	"migrate":        false,
	"grant-admin":    true,
	"revoke-admin":   true,
	"reset-password": true,
	"check":          false,
}

func parseCommand(args []string, stderr io.Writer) (command, error) {
	if len(args) == 0 {
		return command{}, errors.New("missing command")
	}
	name := args[0]
	needsEmail, ok := commands[name]
	if !ok {
		return command{}, fmt.Errorf("unknown command %q", name)
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "account e-mail")
	if err := fs.Parse(args[1:]); err != nil {
		return command{}, err
	}
	cmd := command{name: name, email: strings.ToLower(strings.TrimSpace(*email))}
	if needsEmail && cmd.email == "" {
		return command{}, fmt.Errorf("%s needs -email", name)
	}
	return cmd, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: setup <migrate|grant-admin|revoke-admin|reset-password|check> [-email address]")
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cmd, err := parseCommand(os.Args[1:], os.Stderr)
	if err != nil {
		usage(os.Stderr)
		log.WithError(err).Fatal("❌ invalid arguments")
	}
	cfg, err := config.Load(".env")
	if err != nil {
		log.WithError(err).Fatal("❌ invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.name == "migrate" {
		if cfg.Database.URL == "" {
			log.Fatal("❌ migrate needs DATABASE_URL (the Supabase Postgres connection string works too)")
		}
		if err := ds.Migrate(cfg.Database.URL, log); err != nil {
			log.WithError(err).Fatal("❌ migrate failed")
		}
		return
	}

	t, closeFn, err := newTool(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("❌ setup failed")
	}
	defer closeFn()
	if err := t.run(ctx, cmd); err != nil {
		log.WithError(err).Fatal("❌ " + cmd.name + " failed")
	}
}

type tool struct {
	store    maintenance
	idp      identity.Provider
	log      logrus.FieldLogger
	resetURL string
}

func newTool(ctx context.Context, cfg config.Config, log *logrus.Logger) (*tool, func(), error) {
	t := &tool{log: log, resetURL: cfg.ResetRedirectURL()}
	var client *supabase.Client
	if cfg.Supabase.URL != "" {
		c, err := supabase.New(supabase.Config{
			URL:        cfg.Supabase.URL,
			AnonKey:    cfg.Supabase.AnonKey,
			ServiceKey: cfg.Supabase.ServiceKey,
		})
		if err != nil {
			return nil, nil, err
		}
		client = c
		t.idp = identity.NewSupabase(client, cfg.Supabase.JWTSecret, log)
	}

	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := ds.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		t.store = db
		return t, db.Close, nil
	case config.BackendSupabase:
		store, err := ds.NewSupabaseStore(client)
		if err != nil {
			return nil, nil, err
		}
		t.store = store
		return t, func() {}, nil
	}
	return nil, nil, fmt.Errorf("backend %q has nothing to provision", cfg.Backend)
}

func (t *tool) run(ctx context.Context, cmd command) error {
	switch cmd.name {
	case "grant-admin":
		return t.grantAdmin(ctx, cmd.email)
	case "revoke-admin":
		return t.revokeAdmin(ctx, cmd.email)
	case "reset-password":
		return t.resetPassword(ctx, cmd.email)
	case "check":
		return t.check(ctx)
	}
	return fmt.Errorf("unknown command %q", cmd.name)
}

func (t *tool) requireIdentity() error {
	if t.idp == nil {
		return errors.New("SUPABASE_URL is required to look up auth users")
	}
	return nil
}

// grantAdmin finds the auth user and makes their profile an admin one.
func (t *tool) grantAdmin(ctx context.Context, email string) error {
	if err := t.requireIdentity(); err != nil {
		return err
	}
	user, err := t.idp.LookupUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return fmt.Errorf("no auth user for %s; sign the user up first", email)
		}
		return err
	}
	p, err := t.store.UpsertProfile(ctx, actor, user.ID, user.Email, applications.RoleAdmin)
	if err != nil {
		return err
	}
	t.log.WithFields(logrus.Fields{"email": p.Email, "user_id": p.ID}).Info("✅ admin role granted")
	return nil
}

func (t *tool) revokeAdmin(ctx context.Context, email string) error {
	if err := t.store.SetProfileRole(ctx, email, applications.RoleUser); err != nil {
		if errors.Is(err, applications.ErrNotFound) {
			return fmt.Errorf("no profile for %s", email)
		}
		return err
	}
	t.log.WithField("email", email).Info("admin role revoked")
	return nil
}

func (t *tool) resetPassword(ctx context.Context, email string) error {
	if err := t.requireIdentity(); err != nil {
		return err
	}
	if err := t.idp.SendPasswordReset(ctx, email, t.resetURL); err != nil {
		return err
	}
	t.log.WithFields(logrus.Fields{"email": email, "redirect_to": t.resetURL}).Info("📧 password reset e-mail sent")
	return nil
}

// check inserts a throwaway application, reads it back by e-mail and deletes it.
func (t *tool) check(ctx context.Context) error {
	checkEmail := "setup-check@invalid.local"
	created, err := t.store.InsertApplication(ctx, applications.Application{
		Name:       "Setup Check",
		Email:      checkEmail,
		RollNumber: "CHECK",
		Skills:     "connectivity",
		Reason:     "setup check",
		Role:       "developer",
		Status:     applications.StatusPending,
	})
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	t.log.WithField("application_id", created.ID).Info("inserted check application")

	found, err := t.store.FindApplications(ctx, ds.ApplicationFilter{Email: &checkEmail}, 10, 0)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	seen := false
	for _, app := range found {
		if app.ID == created.ID {
			seen = true
		}
	}

	if err := t.store.DeleteApplication(ctx, actor, created.ID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if !seen {
		return fmt.Errorf("check application %s not returned by query", created.ID)
	}
	t.log.Info("✅ store round trip ok")
	return nil
}
