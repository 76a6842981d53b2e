package database_service

import (
	"context"
	"strconv"

	"pclub/main_backend/applications"
)

// FindApplications returns applications filtered by basic fields. It runs with
// the backend's own privileges, so only maintenance tooling calls it.
func (db *DB) FindApplications(ctx context.Context, f ApplicationFilter, limit int, offset int) ([]applications.Application, error) {
	// Build WHERE clause in a very explicit way
	where := "WHERE 1=1"
	args := []any{}

	if f.Email != nil {
		args = append(args, *f.Email)
		where += " AND lower(email) = lower($" + strconv.Itoa(len(args)) + ")"
	}
	if f.StatusEquals != nil {
		args = append(args, string(*f.StatusEquals))
		where += " AND status = $" + strconv.Itoa(len(args))
	}
	if f.CreatedAfter != nil {
		args = append(args, *f.CreatedAfter)
		where += " AND created_at >= $" + strconv.Itoa(len(args))
	}
	if f.CreatedBefore != nil {
		args = append(args, *f.CreatedBefore)
		where += " AND created_at <= $" + strconv.Itoa(len(args))
	}

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sql := "SELECT " + applicationColumns + " FROM " + applicationsTable + " " + where +
		" ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectApplications(rows)
}
