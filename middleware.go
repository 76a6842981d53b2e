package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pclub/main_backend/applications"
)

const (
	adminPrefix    = "/admin"
	adminLoginPath = "/admin/login"
	adminResetPath = "/admin/reset-password"
)

type callerKey struct{}

func callerFrom(ctx context.Context) applications.Caller {
	c, _ := ctx.Value(callerKey{}).(applications.Caller)
	return c
}

// tokenFromRequest prefers the Authorization header over the session cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// cors allows the configured front-end origins, with credentials.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[o] = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowed["*"] || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type loggingWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(lw, r)
			entry := log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   lw.status,
				"duration": time.Since(start).String(),
			})
			if lw.status >= 500 {
				entry.Warn("request")
				return
			}
			entry.Debug("request")
		})
	}
}

// resolveCaller attaches the caller for a valid session token. Requests
// without one continue as anonymous; the store decides what they may do.
func (a *api) resolveCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		caller, err := a.idp.Resolve(r.Context(), token)
		if err != nil {
			a.log.WithError(err).Debug("session not resolved")
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

// requireCaller answers 401 for anonymous requests.
func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if callerFrom(r.Context()).Anonymous() {
			writeJSONError(w, http.StatusUnauthorized, applications.ErrUnauthenticated.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminGate guards the admin pages. It only decides where a browser lands;
// the data behind the pages is protected by the store.
func (a *api) adminGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimRight(r.URL.Path, "/")
		if !strings.HasPrefix(path+"/", adminPrefix+"/") || path == adminLoginPath || path == adminResetPath {
			next.ServeHTTP(w, r)
			return
		}
		caller := callerFrom(r.Context())
		if caller.Anonymous() {
			http.Redirect(w, r, adminLoginPath, http.StatusFound)
			return
		}
		cctx, cancel := a.ctx(r)
		defer cancel()
		profile, err := a.svc.Profile(cctx, caller)
		if err != nil {
			a.log.WithError(err).Warn("admin gate: profile lookup failed")
			http.Redirect(w, r, adminLoginPath, http.StatusFound)
			return
		}
		if !profile.IsAdmin() {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
