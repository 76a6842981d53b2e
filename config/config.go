// Package config loads process configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"pclub/main_backend/applications"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
	BackendMemory   = "memory"
)

type Config struct {
	Port            string        `env:"PORT,default=8081"`
	Backend         string        `env:"STORE_BACKEND,default=postgres"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	LogFormat       string        `env:"LOG_FORMAT,default=json"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
	StaticDir       string        `env:"STATIC_DIR,default=./public"`
	SiteURL         string        `env:"SITE_URL,default=http://localhost:8081"`
	CORSOrigins     []string      `env:"CORS_ORIGINS,default=http://localhost:3000"`
	CookieSecure    bool          `env:"COOKIE_SECURE,default=false"`
	// TrustedProxies are addresses or CIDRs whose X-Forwarded-For is believed.
	TrustedProxies  []string      `env:"TRUSTED_PROXIES"`

	Database   Database
	Supabase   Supabase
	Local      Local
	RateLimit  RateLimit
	Discord    Discord
	Submission Submission
}

type Database struct {
	URL         string `env:"DATABASE_URL"`
	MaxConns    int32  `env:"DATABASE_MAX_CONNS,default=6"`
	AutoMigrate bool   `env:"DATABASE_AUTO_MIGRATE,default=false"`
}

type Supabase struct {
	URL        string `env:"SUPABASE_URL"`
	AnonKey    string `env:"SUPABASE_ANON_KEY"`
	ServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret  string `env:"SUPABASE_JWT_SECRET"`
}

// Local configures the in-process identity provider used with the memory
// backend and plain Postgres.
type Local struct {
	JWTSecret     string        `env:"LOCAL_JWT_SECRET"`
	SessionTTL    time.Duration `env:"LOCAL_SESSION_TTL,default=1h"`
	AdminEmail    string        `env:"LOCAL_ADMIN_EMAIL"`
	AdminPassword string        `env:"LOCAL_ADMIN_PASSWORD"`
}

type RateLimit struct {
	RedisURL string        `env:"REDIS_URL"`
	Limit    int           `env:"SUBMIT_RATE_LIMIT,default=5"`
	Window   time.Duration `env:"SUBMIT_RATE_WINDOW,default=1h"`
}

type Discord struct {
	Token     string `env:"DISCORD_BOT_TOKEN"`
	ChannelID string `env:"DISCORD_CHANNEL_ID"`
}

type Submission struct {
	EmailDomain string   `env:"INSTITUTION_EMAIL_DOMAIN,default=mpgi.edu.in"`
	Roles       []string `env:"APPLICATION_ROLES,default=developer;designer;management;content;marketing"`
}

// Load reads files (missing files are fine) and then the environment.
// Variables already set in the environment win over file values.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	return cfg, cfg.Validate()
}

// Validate checks the settings the selected backend depends on.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
		if c.Supabase.URL == "" && c.Local.JWTSecret == "" {
			errs = append(errs, errors.New("postgres backend needs SUPABASE_URL or LOCAL_JWT_SECRET for sign-in"))
		}
	case BackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" || c.Supabase.ServiceKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL, SUPABASE_ANON_KEY and SUPABASE_SERVICE_ROLE_KEY are required for the supabase backend"))
		}
	case BackendMemory:
		if c.Local.JWTSecret == "" {
			errs = append(errs, errors.New("LOCAL_JWT_SECRET is required for the memory backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Backend))
	}
	if (c.Discord.Token == "") != (c.Discord.ChannelID == "") {
		errs = append(errs, errors.New("DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together"))
	}
	if len(c.Submission.Roles) == 0 {
		errs = append(errs, errors.New("APPLICATION_ROLES must list at least one role"))
	}
	return errors.Join(errs...)
}

// UsesSupabaseAuth reports whether sign-in goes through Supabase Auth.
func (c Config) UsesSupabaseAuth() bool {
	return c.Backend == BackendSupabase || (c.Backend == BackendPostgres && c.Supabase.URL != "")
}

// SubmissionRules turns the submission settings into validation rules.
func (c Config) SubmissionRules() applications.Rules {
	rules := applications.DefaultRules()
	if d := strings.TrimPrefix(strings.TrimSpace(c.Submission.EmailDomain), "@"); d != "" {
		rules.EmailDomain = strings.ToLower(d)
	}
	roles := make([]string, 0, len(c.Submission.Roles))
	for _, r := range c.Submission.Roles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			roles = append(roles, r)
		}
	}
	if len(roles) > 0 {
		rules.Roles = roles
	}
	return rules
}

// ResetRedirectURL is where password recovery links land.
func (c Config) ResetRedirectURL() string {
	return strings.TrimRight(c.SiteURL, "/") + "/admin/reset-password"
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
