package repo

import (
	"context"
	"database/sql"

	"brewboard/internal/domain"
)

// GetRole returns the stored role for an identity. Identities without an
// assignment are guests.
func (r Repo) GetRole(ctx context.Context, actorID string) (domain.Role, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT role FROM roles WHERE actor_id=?`, actorID)
	var role domain.Role
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return domain.RoleGuest, nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

func (r Repo) GetRoleTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.Role, error) {
	row := tx.QueryRowContext(ctx, `SELECT role FROM roles WHERE actor_id=?`, actorID)
	var role domain.Role
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return domain.RoleGuest, nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// UpsertRole assigns a role, replacing any previous assignment for the identity.
func (r Repo) UpsertRole(ctx context.Context, tx *sql.Tx, actorID string, role domain.Role) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO roles(actor_id, role, updated_at) VALUES (?,?,strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		ON CONFLICT(actor_id) DO UPDATE SET role=excluded.role, updated_at=excluded.updated_at`,
		actorID, role)
	return err
}

// ListRoles returns all explicit role assignments ordered by identity.
func (r Repo) ListRoles(ctx context.Context) (map[string]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor_id, role FROM roles ORDER BY actor_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]domain.Role{}
	for rows.Next() {
		var actorID string
		var role domain.Role
		if err := rows.Scan(&actorID, &role); err != nil {
			return nil, err
		}
		res[actorID] = role
	}
	return res, rows.Err()
}
