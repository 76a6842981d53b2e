// Package applications holds the core-team recruitment domain: the application
// record, its review lifecycle, and the read path used by the admin dashboard.
package applications

import (
	"strings"
	"time"
)

// Status represents the application review lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the persisted statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// ParseStatus normalizes raw input into a Status.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// Role is the permission level held by a Profile.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Application mirrors the `core_applications` table.
type Application struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	RollNumber string     `json:"roll_number"`
	Skills     string     `json:"skills"`
	GithubLink *string    `json:"github_link"`
	Reason     string     `json:"reason"`
	Role       string     `json:"role"`
	Status     Status     `json:"status"`
	Notes      *string    `json:"notes"`
	ReviewedBy *string    `json:"reviewed_by"`
	ReviewedAt *time.Time `json:"reviewed_at"`
}

// Reviewed reports whether a status decision has ever been recorded.
func (a Application) Reviewed() bool {
	return a.ReviewedBy != nil && a.ReviewedAt != nil
}

// Submission is the candidate-supplied part of an application.
// Anything else the client sends (status, reviewer fields) is ignored.
type Submission struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	RollNumber string `json:"roll_number"`
	Skills     string `json:"skills"`
	GithubLink string `json:"github_link"`
	Reason     string `json:"reason"`
	Role       string `json:"role"`
}

// Review is the single write recorded when an admin changes a status.
type Review struct {
	Status     Status
	ReviewedBy string
	ReviewedAt time.Time
}

// Profile is the role-bearing record for an authenticated identity.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the profile holds the admin role.
func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Caller identifies who is performing a store operation. The zero value is
// an anonymous caller.
type Caller struct {
	UserID      string
	Email       string
	AccessToken string
}

// Anonymous reports whether the caller carries no identity.
func (c Caller) Anonymous() bool {
	return strings.TrimSpace(c.UserID) == ""
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
