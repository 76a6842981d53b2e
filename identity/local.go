package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"pclub/main_backend/applications"
)

// Local keeps users in memory with bcrypt password hashes and issues HS256
// access tokens shaped like Supabase's. Used with the memory store.
type Local struct {
	mu      sync.RWMutex
	users   map[string]localUser // by lower-cased email
	revoked map[string]time.Time // token id -> expiry
	secret  []byte
	ttl     time.Duration
	log     *logrus.Logger
	now     func() time.Time
}

type localUser struct {
	id    string
	email string
	hash  []byte
}

var _ Provider = (*Local)(nil)

// NewLocal creates an empty provider. ttl <= 0 means one hour.
func NewLocal(secret string, ttl time.Duration, log *logrus.Logger) *Local {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Local{
		users:   make(map[string]localUser),
		revoked: make(map[string]time.Time),
		secret:  []byte(secret),
		ttl:     ttl,
		log:     log,
		now:     time.Now,
	}
}

// LocalUserID is the id AddUser gives email. It is derived from the address
// so a restart maps the same user onto the same profile row.
func LocalUserID(email string) string {
	key := strings.ToLower(strings.TrimSpace(email))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+key)).String()
}

// AddUser registers email with password, replacing the password of an
// existing user.
func (l *Local) AddUser(email, password string) (UserRecord, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return UserRecord{}, err
	}
	key := strings.ToLower(strings.TrimSpace(email))
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[key]
	if !ok {
		u = localUser{id: LocalUserID(key), email: key}
	}
	u.hash = hash
	l.users[key] = u
	return UserRecord{ID: u.id, Email: u.email}, nil
}

func (l *Local) SignIn(_ context.Context, email, password string) (*Session, error) {
	l.mu.RLock()
	u, ok := l.users[strings.ToLower(strings.TrimSpace(email))]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := l.now().UTC()
	expires := now.Add(l.ttl)
	token, err := signToken(tokenClaims{
		Email: u.email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.id,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}, l.secret)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: token, TokenType: "bearer", ExpiresAt: expires, UserID: u.id, Email: u.email}, nil
}

func (l *Local) SignOut(_ context.Context, accessToken string) error {
	claims, err := parseToken(accessToken, l.secret)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, exp := range l.revoked {
		if now.After(exp) {
			delete(l.revoked, id)
		}
	}
	if claims.ExpiresAt != nil {
		l.revoked[claims.ID] = claims.ExpiresAt.Time
	}
	return nil
}

func (l *Local) Resolve(_ context.Context, accessToken string) (applications.Caller, error) {
	claims, err := parseToken(accessToken, l.secret)
	if err != nil {
		return applications.Caller{}, err
	}
	l.mu.RLock()
	_, revoked := l.revoked[claims.ID]
	l.mu.RUnlock()
	if revoked {
		return applications.Caller{}, ErrInvalidSession
	}
	return applications.Caller{UserID: claims.Subject, Email: claims.Email, AccessToken: accessToken}, nil
}

func (l *Local) UpdatePassword(ctx context.Context, accessToken, password string) error {
	caller, err := l.Resolve(ctx, accessToken)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[strings.ToLower(caller.Email)]
	if !ok || u.id != caller.UserID {
		return ErrUserNotFound
	}
	u.hash = hash
	l.users[u.email] = u
	return nil
}

// SendPasswordReset has no mail transport locally; it logs the request.
func (l *Local) SendPasswordReset(_ context.Context, email, redirectTo string) error {
	if _, err := l.LookupUserByEmail(context.Background(), email); err != nil {
		return err
	}
	l.log.WithFields(logrus.Fields{"email": email, "redirect_to": redirectTo}).Info("password reset requested")
	return nil
}

func (l *Local) LookupUserByEmail(_ context.Context, email string) (UserRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return UserRecord{ID: u.id, Email: u.email}, nil
}
