package database_service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pclub/main_backend/applications"
)

// MemoryStore is an in-process applications.Store. It applies the same access
// rules the Postgres policies do: anyone inserts (always as pending), only
// admins read or update. Used for local development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	apps     map[string]applications.Application
	profiles map[string]applications.Profile
	subs     map[int]chan AppEvent
	subSeq   int
	now      func() time.Time
}

var (
	_ applications.Store = (*MemoryStore)(nil)
	_ EventSource        = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:     make(map[string]applications.Application),
		profiles: make(map[string]applications.Profile),
		subs:     make(map[int]chan AppEvent),
		now:      time.Now,
	}
}

// PutProfile creates or replaces a profile, keyed by its id.
func (s *MemoryStore) PutProfile(p applications.Profile) applications.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if existing, ok := s.profiles[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.Email = strings.ToLower(p.Email)
	p.UpdatedAt = now
	s.profiles[p.ID] = p
	return p
}

func (s *MemoryStore) InsertApplication(_ context.Context, app applications.Application) (applications.Application, error) {
	s.mu.Lock()
	app.ID = uuid.NewString()
	app.CreatedAt = s.now().UTC()
	app.Status = applications.StatusPending
	app.Notes = nil
	app.ReviewedBy = nil
	app.ReviewedAt = nil
	s.apps[app.ID] = app
	s.mu.Unlock()

	s.publish(eventFor("insert", app, nil, app.Email))
	return app, nil
}

func (s *MemoryStore) ListApplications(_ context.Context, caller applications.Caller) ([]applications.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.authorize(caller); err != nil {
		return nil, err
	}
	out := make([]applications.Application, 0, len(s.apps))
	for _, a := range s.apps {
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetApplication(_ context.Context, caller applications.Caller, id string) (applications.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.authorize(caller); err != nil {
		return applications.Application{}, err
	}
	app, ok := s.apps[id]
	if !ok {
		return applications.Application{}, applications.ErrNotFound
	}
	return app, nil
}

func (s *MemoryStore) UpdateReview(_ context.Context, caller applications.Caller, id string, review applications.Review) (applications.Application, error) {
	if !review.Status.Valid() {
		return applications.Application{}, applications.ErrInvalidTransition
	}
	return s.update(caller, id, func(app *applications.Application) {
		reviewer := review.ReviewedBy
		at := review.ReviewedAt
		app.Status = review.Status
		app.ReviewedBy = &reviewer
		app.ReviewedAt = &at
	})
}

func (s *MemoryStore) UpdateNotes(_ context.Context, caller applications.Caller, id string, notes *string) (applications.Application, error) {
	return s.update(caller, id, func(app *applications.Application) {
		app.Notes = notes
	})
}

func (s *MemoryStore) update(caller applications.Caller, id string, apply func(*applications.Application)) (applications.Application, error) {
	s.mu.Lock()
	if err := s.authorize(caller); err != nil {
		s.mu.Unlock()
		return applications.Application{}, err
	}
	app, ok := s.apps[id]
	if !ok {
		s.mu.Unlock()
		return applications.Application{}, applications.ErrNotFound
	}
	previous := app.Status
	apply(&app)
	s.apps[id] = app
	s.mu.Unlock()

	s.publish(eventFor("update", app, &previous, caller.Email))
	return app, nil
}

func (s *MemoryStore) GetProfile(_ context.Context, caller applications.Caller) (applications.Profile, error) {
	if caller.Anonymous() {
		return applications.Profile{}, applications.ErrUnauthenticated
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[caller.UserID]
	if !ok {
		return applications.Profile{}, applications.ErrNotFound
	}
	return p, nil
}

// authorize must be called with mu held.
func (s *MemoryStore) authorize(caller applications.Caller) error {
	if caller.Anonymous() {
		return applications.ErrUnauthenticated
	}
	if p, ok := s.profiles[caller.UserID]; ok && p.IsAdmin() {
		return nil
	}
	return applications.ErrForbidden
}

// ListenAppEvents streams insert and update events until ctx is cancelled.
func (s *MemoryStore) ListenAppEvents(ctx context.Context) (<-chan AppEvent, <-chan error, error) {
	ch := make(chan AppEvent, 16)
	s.mu.Lock()
	s.subSeq++
	id := s.subSeq
	s.subs[id] = ch
	s.mu.Unlock()

	errs := make(chan error)
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
		close(errs)
	}()
	return ch, errs, nil
}

func (s *MemoryStore) publish(ev AppEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber; drop rather than block writers
		}
	}
}

func eventFor(action string, app applications.Application, previous *applications.Status, actor string) AppEvent {
	status := app.Status
	ev := AppEvent{
		Table:          applicationsTable,
		Action:         action,
		RowID:          app.ID,
		Name:           app.Name,
		Email:          app.Email,
		Role:           app.Role,
		Status:         &status,
		PreviousStatus: previous,
		At:             time.Now().UTC(),
	}
	if actor = strings.TrimSpace(actor); actor != "" {
		ev.Actor = &actor
	}
	return ev
}
