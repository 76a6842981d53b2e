package database_service

import (
	"context"
	"time"

	"pclub/main_backend/applications"
)

// Table names as provisioned by the migrations.
const (
	applicationsTable = "core_applications"
	profilesTable     = "profiles"
)

// AppEvent is emitted by triggers via LISTEN/NOTIFY on channel `app_events`.
// Only a subset of fields may be present depending on the action.
type AppEvent struct {
	Table          string               `json:"table"`
	Action         string               `json:"action"`
	RowID          string               `json:"row_id"`
	Name           string               `json:"name,omitempty"`
	Email          string               `json:"email,omitempty"`
	Role           string               `json:"role,omitempty"`
	Status         *applications.Status `json:"status,omitempty"`
	PreviousStatus *applications.Status `json:"previous_status,omitempty"`
	Actor          *string              `json:"actor,omitempty"`
	At             time.Time            `json:"at"`
}

// StatusChanged reports whether an update event moved the application to a
// different status.
func (e AppEvent) StatusChanged() bool {
	if e.Action != "update" || e.Status == nil || e.PreviousStatus == nil {
		return false
	}
	return *e.Status != *e.PreviousStatus
}

// EventSource is implemented by stores that can stream application events.
type EventSource interface {
	ListenAppEvents(ctx context.Context) (<-chan AppEvent, <-chan error, error)
}

// ApplicationFilter narrows maintenance queries that run with the backend's own
// privileges (the setup tool); request paths filter in memory instead.
type ApplicationFilter struct {
	Email         *string
	StatusEquals  *applications.Status
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
