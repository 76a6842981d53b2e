package applications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Store is the record store contract. Implementations are the enforcement
// point for access control: only admins may list, read or update
// applications, anyone may insert.
type Store interface {
	InsertApplication(ctx context.Context, app Application) (Application, error)
	ListApplications(ctx context.Context, caller Caller) ([]Application, error)
	GetApplication(ctx context.Context, caller Caller, id string) (Application, error)
	UpdateReview(ctx context.Context, caller Caller, id string, review Review) (Application, error)
	UpdateNotes(ctx context.Context, caller Caller, id string, notes *string) (Application, error)
	GetProfile(ctx context.Context, caller Caller) (Profile, error)
}

// Service runs the submission flow and the review lifecycle against a Store.
type Service struct {
	store Store
	rules Rules
	log   *logrus.Logger
	now   func() time.Time
}

// NewService wires a Service. A nil logger falls back to logrus' standard logger.
func NewService(store Store, rules Rules, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, rules: rules, log: log, now: time.Now}
}

// Submit validates s and stores it as a new pending application.
func (s *Service) Submit(ctx context.Context, sub Submission) (Application, error) {
	if fields := ValidateSubmission(sub, s.rules); fields != nil {
		return Application{}, &ValidationError{Fields: fields}
	}
	created, err := s.store.InsertApplication(ctx, newApplication(sub))
	if err != nil {
		s.log.WithError(err).Error("insert application failed")
		return Application{}, err
	}
	s.log.WithFields(logrus.Fields{
		"application_id": created.ID,
		"role":           created.Role,
	}).Info("application submitted")
	return created, nil
}

// List returns every application visible to caller, newest first.
func (s *Service) List(ctx context.Context, caller Caller) ([]Application, error) {
	return s.store.ListApplications(ctx, caller)
}

// Search lists and then filters in memory.
func (s *Service) Search(ctx context.Context, caller Caller, search string, status StatusFilter) ([]Application, error) {
	all, err := s.store.ListApplications(ctx, caller)
	if err != nil {
		return nil, err
	}
	return Filter(all, search, status), nil
}

// SetStatus records an admin decision. Repeating the current decision does
// not write, so reviewer fields keep their first values; wrote reports
// whether the store was updated.
func (s *Service) SetStatus(ctx context.Context, caller Caller, id string, target Status) (app Application, wrote bool, err error) {
	action, err := ActionFor(target)
	if err != nil {
		return Application{}, false, err
	}
	current, err := s.store.GetApplication(ctx, caller, id)
	if err != nil {
		return Application{}, false, err
	}
	next, err := Transition(current.Status, action)
	if err != nil {
		return Application{}, false, err
	}
	if next == current.Status && current.Reviewed() {
		return current, false, nil
	}

	reviewer := strings.TrimSpace(caller.Email)
	if reviewer == "" {
		reviewer = caller.UserID
	}
	updated, err := s.store.UpdateReview(ctx, caller, id, Review{
		Status:     next,
		ReviewedBy: reviewer,
		ReviewedAt: s.now().UTC(),
	})
	if err != nil {
		s.logUpdateFailure(err, id, "status")
		return Application{}, false, err
	}
	s.log.WithFields(logrus.Fields{
		"application_id": id,
		"from":           current.Status,
		"to":             updated.Status,
		"reviewer":       reviewer,
	}).Info("application reviewed")
	return updated, true, nil
}

// SetNotes overwrites the admin notes. Blank text clears them.
func (s *Service) SetNotes(ctx context.Context, caller Caller, id string, notes string) (Application, error) {
	updated, err := s.store.UpdateNotes(ctx, caller, id, optionalString(notes))
	if err != nil {
		s.logUpdateFailure(err, id, "notes")
		return Application{}, err
	}
	return updated, nil
}

// Profile resolves the caller's role. A caller without a profile is a plain user.
func (s *Service) Profile(ctx context.Context, caller Caller) (Profile, error) {
	if caller.Anonymous() {
		return Profile{}, ErrUnauthenticated
	}
	p, err := s.store.GetProfile(ctx, caller)
	if errors.Is(err, ErrNotFound) {
		return Profile{ID: caller.UserID, Email: caller.Email, Role: RoleUser}, nil
	}
	return p, err
}

func (s *Service) logUpdateFailure(err error, id, field string) {
	entry := s.log.WithError(err).WithFields(logrus.Fields{"application_id": id, "field": field})
	if errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthenticated) {
		entry.Warn("application update denied")
		return
	}
	entry.Error("application update failed")
}
