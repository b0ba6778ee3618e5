package repo

import (
	"context"
	"database/sql"

	"brewboard/internal/domain"
)

const completionColumns = `id,task_id,user_id,completed_at,approved,approved_by,approved_at`

func scanCompletion(row interface{ Scan(...any) error }) (domain.Completion, error) {
	var c domain.Completion
	var approvedBy, approvedAt sql.NullString
	err := row.Scan(&c.ID, &c.TaskID, &c.UserID, &c.CompletedAt, &c.Approved, &approvedBy, &approvedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if approvedBy.Valid {
		c.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		c.ApprovedAt = &approvedAt.String
	}
	return c, nil
}

func (r Repo) InsertCompletion(ctx context.Context, tx *sql.Tx, c domain.Completion) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO completions(id,task_id,user_id,completed_at,approved) VALUES (?,?,?,?,?)`,
		c.ID, c.TaskID, c.UserID, c.CompletedAt, c.Approved)
	return err
}

func (r Repo) GetCompletionTx(ctx context.Context, tx *sql.Tx, taskID uint64, userID string) (domain.Completion, error) {
	return scanCompletion(tx.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE task_id=? AND user_id=?`, taskID, userID))
}

// MarkCompletionApproved flips approved from false to true, guarded so the flip
// happens at most once even under concurrent approvals. Returns false when the
// row was already approved (or gone).
func (r Repo) MarkCompletionApproved(ctx context.Context, tx *sql.Tx, taskID uint64, userID, approvedBy, approvedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE completions SET approved=1, approved_by=?, approved_at=? WHERE task_id=? AND user_id=? AND approved=0`,
		approvedBy, approvedAt, taskID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListCompletionsByUser returns all completions for an identity, newest first.
func (r Repo) ListCompletionsByUser(ctx context.Context, userID string) ([]domain.Completion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+completionColumns+` FROM completions WHERE user_id=? ORDER BY completed_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCompletions(rows)
}

type CompletionFilters struct {
	TaskID   uint64
	Approved *bool
}

func (r Repo) ListCompletions(ctx context.Context, f CompletionFilters) ([]domain.Completion, error) {
	query := `SELECT ` + completionColumns + ` FROM completions WHERE 1=1`
	var args []any
	if f.TaskID != 0 {
		query += ` AND task_id=?`
		args = append(args, f.TaskID)
	}
	if f.Approved != nil {
		query += ` AND approved=?`
		args = append(args, *f.Approved)
	}
	query += ` ORDER BY completed_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCompletions(rows)
}

func collectCompletions(rows *sql.Rows) ([]domain.Completion, error) {
	var res []domain.Completion
	for rows.Next() {
		var c domain.Completion
		var approvedBy, approvedAt sql.NullString
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.CompletedAt, &c.Approved, &approvedBy, &approvedAt); err != nil {
			return nil, err
		}
		if approvedBy.Valid {
			c.ApprovedBy = &approvedBy.String
		}
		if approvedAt.Valid {
			c.ApprovedAt = &approvedAt.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
