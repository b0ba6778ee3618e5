package repo

import (
	"context"
	"database/sql"

	"brewboard/internal/domain"
)

func (r Repo) InsertContactMessage(ctx context.Context, tx *sql.Tx, m domain.ContactMessage) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO contact_messages(id,name,email,message,received_at) VALUES (?,?,?,?,?)`,
		m.ID, m.Name, m.Email, m.Message, m.ReceivedAt)
	return err
}

// ListUnnotifiedContactMessages returns messages the mail notifier has not yet
// delivered, oldest first.
func (r Repo) ListUnnotifiedContactMessages(ctx context.Context, limit int) ([]domain.ContactMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,email,message,received_at FROM contact_messages WHERE notified_at IS NULL ORDER BY received_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ContactMessage
	for rows.Next() {
		var m domain.ContactMessage
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Message, &m.ReceivedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) MarkContactMessageNotified(ctx context.Context, id, notifiedAt string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE contact_messages SET notified_at=? WHERE id=?`, notifiedAt, id)
	return err
}

func (r Repo) ListContactMessages(ctx context.Context) ([]domain.ContactMessage, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,email,message,received_at FROM contact_messages ORDER BY received_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ContactMessage
	for rows.Next() {
		var m domain.ContactMessage
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Message, &m.ReceivedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
