package repo

import (
	"context"
	"database/sql"

	"brewboard/internal/domain"
)

func (r Repo) InsertWithdrawal(ctx context.Context, tx *sql.Tx, w domain.Withdrawal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO withdrawals(id,user_id,amount,status,requested_at) VALUES (?,?,?,?,?)`,
		w.ID, w.UserID, w.Amount, w.Status, w.RequestedAt)
	return err
}

// ListWithdrawals returns the intake log, newest first, optionally filtered by
// the requesting identity.
func (r Repo) ListWithdrawals(ctx context.Context, userID string) ([]domain.Withdrawal, error) {
	query := `SELECT id,user_id,amount,status,requested_at FROM withdrawals`
	var args []any
	if userID != "" {
		query += ` WHERE user_id=?`
		args = append(args, userID)
	}
	query += ` ORDER BY requested_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Withdrawal
	for rows.Next() {
		var w domain.Withdrawal
		if err := rows.Scan(&w.ID, &w.UserID, &w.Amount, &w.Status, &w.RequestedAt); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}
