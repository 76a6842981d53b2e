package database_service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5"

	"pclub/main_backend/applications"
)

// withCaller switches the transaction to the database role and JWT claims of
// the caller, so the row-level security policies decide what the statement
// may see or change. application.actor feeds the event trigger.
func withCaller(ctx context.Context, tx pgx.Tx, caller applications.Caller) error {
	role := "anon"
	claims := map[string]string{"role": role}
	if !caller.Anonymous() {
		role = "authenticated"
		claims = map[string]string{
			"sub":   caller.UserID,
			"email": caller.Email,
			"role":  role,
		}
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "SELECT set_config('request.jwt.claims', $1, true)", string(raw)); err != nil {
		return err
	}
	if err := withActor(ctx, tx, caller.Email); err != nil {
		return err
	}
	// role is one of two constants, never caller input.
	_, err = tx.Exec(ctx, "SET LOCAL ROLE "+role)
	return err
}

// withActor sets application.actor for audit triggers inside a transaction.
func withActor(ctx context.Context, tx pgx.Tx, actor string) error {
	if strings.TrimSpace(actor) == "" {
		// leave as default NULL to avoid noisy logs
		return nil
	}
	_, err := tx.Exec(ctx, "SELECT set_config('application.actor', $1, true)", actor)
	return err
}
