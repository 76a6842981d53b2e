package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"pclub/main_backend/applications"
	"pclub/main_backend/identity"
	"pclub/main_backend/metrics"
	"pclub/main_backend/supabase"
)

const (
	sessionCookie   = "sb-access-token"
	maxBodyBytes    = 64 << 10
	updateFailedMsg = "failed to update application"
)

// api holds the handlers' shared dependencies.
type api struct {
	svc          *applications.Service
	idp          identity.Provider
	log          *logrus.Logger
	timeout      time.Duration
	cookieSecure bool
	health       func(context.Context) error
	now          func() time.Time
	// clientKey buckets public submissions; nil means the connection address.
	clientKey    func(*http.Request) string
}

type submitResponse struct {
	ID string `json:"id"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type meResponse struct {
	ID      string            `json:"id"`
	Email   string            `json:"email"`
	Role    applications.Role `json:"role"`
	IsAdmin bool              `json:"is_admin"`
}

func (a *api) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), a.timeout)
}

// POST /api/applications
func (a *api) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub applications.Submission
	if !decodeBody(w, r, &sub) {
		return
	}
	cctx, cancel := a.ctx(r)
	defer cancel()
	app, err := a.svc.Submit(cctx, sub)
	if err != nil {
		var ve *applications.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": ve.Fields})
			return
		}
		a.writeError(w, r, err, "failed to submit application")
		return
	}
	metrics.RecordSubmission()
	writeJSON(w, http.StatusCreated, submitResponse{ID: app.ID})
}

// POST /api/auth/login
func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	cctx, cancel := a.ctx(r)
	defer cancel()
	session, err := a.idp.SignIn(cctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}
		a.writeError(w, r, err, "sign-in failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, session)
}

// POST /api/auth/logout
func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := tokenFromRequest(r); token != "" {
		cctx, cancel := a.ctx(r)
		defer cancel()
		if err := a.idp.SignOut(cctx, token); err != nil && !errors.Is(err, identity.ErrInvalidSession) {
			a.log.WithError(err).Warn("sign-out failed")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/auth/password
func (a *api) handlePassword(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	var req passwordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := identity.CheckNewPassword(req.Password, req.ConfirmPassword); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	cctx, cancel := a.ctx(r)
	defer cancel()
	if err := a.idp.UpdatePassword(cctx, caller.AccessToken, req.Password); err != nil {
		a.writeError(w, r, err, "failed to update password")
		return
	}
	a.log.WithField("user_id", caller.UserID).Info("password updated")
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/me
func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	cctx, cancel := a.ctx(r)
	defer cancel()
	p, err := a.svc.Profile(cctx, callerFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{ID: p.ID, Email: p.Email, Role: p.Role, IsAdmin: p.IsAdmin()})
}

// GET /api/admin/applications
func (a *api) handleList(w http.ResponseWriter, r *http.Request) {
	apps, ok := a.search(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

// GET /api/admin/applications/export
func (a *api) handleExport(w http.ResponseWriter, r *http.Request) {
	apps, ok := a.search(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+applications.ExportFilename(a.now())+`"`)
	if err := applications.WriteCSV(w, apps); err != nil {
		a.log.WithError(err).Warn("write csv export")
	}
}

func (a *api) search(w http.ResponseWriter, r *http.Request) ([]applications.Application, bool) {
	q := r.URL.Query()
	status, err := applications.ParseStatusFilter(q.Get("status"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	cctx, cancel := a.ctx(r)
	defer cancel()
	apps, err := a.svc.Search(cctx, callerFrom(r.Context()), q.Get("search"), status)
	if err != nil {
		a.writeError(w, r, err, "failed to load applications")
		return nil, false
	}
	return apps, true
}

// PATCH /api/admin/applications/{id}/status
func (a *api) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status, ok := applications.ParseStatus(req.Status)
	if !ok || status == applications.StatusPending {
		writeJSONError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}
	cctx, cancel := a.ctx(r)
	defer cancel()
	app, wrote, err := a.svc.SetStatus(cctx, callerFrom(r.Context()), mux.Vars(r)["id"], status)
	if err != nil {
		writeJSONError(w, statusFor(err), updateFailedMsg)
		return
	}
	if wrote {
		metrics.RecordReview(string(app.Status))
	}
	writeJSON(w, http.StatusOK, app)
}

// PATCH /api/admin/applications/{id}/notes
func (a *api) handleSetNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cctx, cancel := a.ctx(r)
	defer cancel()
	app, err := a.svc.SetNotes(cctx, callerFrom(r.Context()), mux.Vars(r)["id"], req.Notes)
	if err != nil {
		writeJSONError(w, statusFor(err), updateFailedMsg)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// GET /healthz
func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		cctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := a.health(cctx); err != nil {
			a.log.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps domain errors onto HTTP statuses. Server-side failures
// answer with msg and keep the detail in the log. Updates always answer with
// updateFailedMsg; the service has already logged them.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	entry := a.log.WithError(err).WithFields(logrus.Fields{"path": r.URL.Path, "status": status})
	switch {
	case status >= 500:
		entry.Error(msg)
	case status == http.StatusBadRequest:
		msg = err.Error()
	case status == http.StatusUnauthorized:
		msg = applications.ErrUnauthenticated.Error()
	case status == http.StatusForbidden:
		entry.Warn("request denied")
		msg = applications.ErrForbidden.Error()
	case status == http.StatusNotFound:
		msg = applications.ErrNotFound.Error()
	}
	writeJSONError(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case applications.IsValidation(err), errors.Is(err, applications.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, applications.ErrUnauthenticated), errors.Is(err, identity.ErrInvalidSession):
		return http.StatusUnauthorized
	case errors.Is(err, applications.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, applications.ErrNotFound), errors.Is(err, identity.ErrUserNotFound):
		return http.StatusNotFound
	case storeUnavailable(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// storeUnavailable reports transport-level failures talking to the store.
func storeUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var sbErr *supabase.Error
	return errors.As(err, &sbErr) && sbErr.StatusCode >= 500
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad request")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
