package repo

import (
	"context"
	"database/sql"

	"brewboard/internal/domain"
)

func scanProfile(row interface{ Scan(...any) error }) (domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(&p.ActorID, &p.Username, &p.Balance, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProfile(ctx context.Context, tx *sql.Tx, p domain.Profile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO profiles(actor_id,username,balance,created_at) VALUES (?,?,?,?)`,
		p.ActorID, p.Username, p.Balance, p.CreatedAt)
	return err
}

func (r Repo) GetProfile(ctx context.Context, actorID string) (domain.Profile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx, `SELECT actor_id,username,balance,created_at FROM profiles WHERE actor_id=?`, actorID))
}

func (r Repo) GetProfileTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.Profile, error) {
	return scanProfile(tx.QueryRowContext(ctx, `SELECT actor_id,username,balance,created_at FROM profiles WHERE actor_id=?`, actorID))
}

// HasProfile reports whether the identity has registered.
func (r Repo) HasProfile(ctx context.Context, actorID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE actor_id=? LIMIT 1`, actorID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// UpdateUsername changes the stored username. Balance is deliberately not
// writable here; the only balance mutation is CreditProfile.
func (r Repo) UpdateUsername(ctx context.Context, tx *sql.Tx, actorID, username string) error {
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET username=? WHERE actor_id=?`, username, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreditProfile adds amount to the balance inside the caller's transaction.
// Additive-only; the single in-place UPDATE keeps concurrent credits from
// losing an update.
func (r Repo) CreditProfile(ctx context.Context, tx *sql.Tx, actorID string, amount uint64) error {
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET balance=balance+? WHERE actor_id=?`, amount, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor_id,username,balance,created_at FROM profiles ORDER BY created_at ASC, actor_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ActorID, &p.Username, &p.Balance, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
