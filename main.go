package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"pclub/main_backend/applications"
	"pclub/main_backend/config"
	ds "pclub/main_backend/database_service"
	"pclub/main_backend/discordbot"
	"pclub/main_backend/identity"
	"pclub/main_backend/ratelimit"
	"pclub/main_backend/supabase"
)

func main() {
	log := logrus.New()
	cfg, err := config.Load(".env")
	if err != nil {
		log.WithError(err).Fatal("❌ invalid configuration")
	}
	configureLogger(log, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("❌ startup failed")
	}
	defer d.close()

	limiter := newLimiter(cfg, log)
	clientKey, err := ratelimit.TrustedClientIP(cfg.TrustedProxies)
	if err != nil {
		log.WithError(err).Fatal("❌ invalid TRUSTED_PROXIES")
	}
	a := &api{
		svc:          applications.NewService(d.store, cfg.SubmissionRules(), log),
		idp:          d.idp,
		log:          log,
		timeout:      cfg.RequestTimeout,
		cookieSecure: cfg.CookieSecure,
		health:       d.health,
		now:          time.Now,
		clientKey:    clientKey,
	}

	if cfg.Discord.Token != "" {
		startNotifier(ctx, cfg, d.store, log)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(a, limiter, cfg.CORSOrigins, cfg.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "backend": cfg.Backend}).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("❌ server error")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	log.Info("api stopped")
}

func configureLogger(log *logrus.Logger, cfg config.Config) {
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
	}
	if cfg.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
}

type deps struct {
	store  applications.Store
	idp    identity.Provider
	health func(context.Context) error
	close  func()
}

// buildDeps creates the process-wide store and identity provider for the
// configured backend.
func buildDeps(ctx context.Context, cfg config.Config, log *logrus.Logger) (*deps, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		store := ds.NewMemoryStore()
		local := identity.NewLocal(cfg.Local.JWTSecret, cfg.Local.SessionTTL, log)
		if cfg.Local.AdminEmail != "" {
			rec, err := local.AddUser(cfg.Local.AdminEmail, cfg.Local.AdminPassword)
			if err != nil {
				return nil, fmt.Errorf("seed admin: %w", err)
			}
			store.PutProfile(applications.Profile{ID: rec.ID, Email: rec.Email, Role: applications.RoleAdmin})
			log.WithField("email", rec.Email).Info("seeded local admin")
		}
		return &deps{store: store, idp: local, close: func() {}}, nil

	case config.BackendPostgres:
		if cfg.Database.AutoMigrate {
			if err := ds.Migrate(cfg.Database.URL, log); err != nil {
				return nil, err
			}
		}
		db, err := ds.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		d := &deps{store: db, health: db.Ping, close: db.Close}
		if cfg.UsesSupabaseAuth() {
			client, err := newSupabaseClient(cfg)
			if err != nil {
				db.Close()
				return nil, err
			}
			d.idp = identity.NewSupabase(client, cfg.Supabase.JWTSecret, log)
			return d, nil
		}
		local := identity.NewLocal(cfg.Local.JWTSecret, cfg.Local.SessionTTL, log)
		if cfg.Local.AdminEmail != "" {
			rec, err := local.AddUser(cfg.Local.AdminEmail, cfg.Local.AdminPassword)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("seed admin: %w", err)
			}
			if _, err := db.UpsertProfile(ctx, "api:startup", rec.ID, rec.Email, applications.RoleAdmin); err != nil {
				db.Close()
				return nil, fmt.Errorf("seed admin profile: %w", err)
			}
		}
		d.idp = local
		return d, nil

	case config.BackendSupabase:
		client, err := newSupabaseClient(cfg)
		if err != nil {
			return nil, err
		}
		store, err := ds.NewSupabaseStore(client)
		if err != nil {
			return nil, err
		}
		return &deps{
			store: store,
			idp:   identity.NewSupabase(client, cfg.Supabase.JWTSecret, log),
			close: func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func newSupabaseClient(cfg config.Config) (*supabase.Client, error) {
	return supabase.New(supabase.Config{
		URL:        cfg.Supabase.URL,
		AnonKey:    cfg.Supabase.AnonKey,
		ServiceKey: cfg.Supabase.ServiceKey,
	})
}

// newLimiter prefers Redis so every instance shares one budget per client.
func newLimiter(cfg config.Config, log *logrus.Logger) ratelimit.Limiter {
	if cfg.RateLimit.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
		if err == nil {
			return ratelimit.NewRedis(redis.NewClient(opts), cfg.RateLimit.Limit, cfg.RateLimit.Window, "submit", log)
		}
		log.WithError(err).Warn("invalid REDIS_URL, using in-process rate limiter")
	}
	if l := ratelimit.NewLocal(cfg.RateLimit.Limit, cfg.RateLimit.Window); l != nil {
		return l
	}
	return nil
}

func startNotifier(ctx context.Context, cfg config.Config, store applications.Store, log *logrus.Logger) {
	source, ok := store.(ds.EventSource)
	if !ok {
		log.WithField("backend", cfg.Backend).Warn("backend has no event stream, discord notifications disabled")
		return
	}
	notifier, err := discordbot.New(cfg.Discord.Token, cfg.Discord.ChannelID, cfg.SiteURL, log)
	if err != nil {
		log.WithError(err).Error("discord notifier disabled")
		return
	}
	events, errs, err := source.ListenAppEvents(ctx)
	if err != nil {
		log.WithError(err).Error("listen for application events failed")
		_ = notifier.Close()
		return
	}
	go func() {
		defer notifier.Close()
		notifier.Relay(ctx, events, errs)
	}()
	log.Info("Discord notifier relaying application events ✨")
}
