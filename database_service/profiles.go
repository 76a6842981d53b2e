package database_service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pclub/main_backend/applications"
)

// UpsertProfile creates or updates the profile for an auth user. It runs with
// the backend's own privileges and is used by provisioning only.
func (db *DB) UpsertProfile(ctx context.Context, actor string, userID, email string, role applications.Role) (applications.Profile, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return applications.Profile{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := withActor(ctx, tx, actor); err != nil {
		return applications.Profile{}, err
	}
	row := tx.QueryRow(ctx, `
        INSERT INTO `+profilesTable+` (id, email, role)
        VALUES ($1, lower($2), $3)
        ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, role = EXCLUDED.role, updated_at = now()
        RETURNING id::text, email, role, created_at, updated_at
    `, userID, email, string(role))

	var out applications.Profile
	var r string
	if err := row.Scan(&out.ID, &out.Email, &r, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return applications.Profile{}, mapPgError(err)
	}
	out.Role = applications.Role(r)
	if err := tx.Commit(ctx); err != nil {
		return applications.Profile{}, err
	}
	return out, nil
}

// SetProfileRole changes the role of the profile with the given email.
func (db *DB) SetProfileRole(ctx context.Context, email string, role applications.Role) error {
	tag, err := db.pool.Exec(ctx, `
        UPDATE `+profilesTable+` SET role = $2, updated_at = now()
        WHERE lower(email) = lower($1)
    `, email, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return applications.ErrNotFound
	}
	return nil
}

// DeleteApplication removes one application. No request path deletes; the
// setup tool uses it to clean up its connectivity check row.
func (db *DB) DeleteApplication(ctx context.Context, actor string, id string) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := withActor(ctx, tx, actor); err != nil {
		return err
	}
	var deleted string
	err = tx.QueryRow(ctx, `DELETE FROM `+applicationsTable+` WHERE id = $1 RETURNING id::text`, id).Scan(&deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return applications.ErrNotFound
	}
	if err != nil {
		return mapPgError(err)
	}
	return tx.Commit(ctx)
}
