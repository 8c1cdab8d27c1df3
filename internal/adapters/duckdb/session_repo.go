package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

func (r *Repository) CreateSession(ctx context.Context, sess domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		string(sess.ID), sess.Title, sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?`, string(id))

	var sess domain.Session
	var idStr string
	if err := row.Scan(&idStr, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
		}
		return domain.Session{}, err
	}
	sess.ID = domain.SessionID(idStr)
	return sess, nil
}

// ListSessions returns all sessions, most recently updated first.
func (r *Repository) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		var sess domain.Session
		var idStr string
		if err := rows.Scan(&idStr, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sess.ID = domain.SessionID(idStr)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// AddMessage stores a message and bumps the session's updated_at.
func (r *Repository) AddMessage(ctx context.Context, msg domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UTC(), string(msg.SessionID))
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, msg.SessionID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(msg.ID), string(msg.SessionID), string(msg.Role), msg.Content, msg.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns the last limit messages oldest-first; limit=0 means all.
func (r *Repository) ListMessages(ctx context.Context, sessionID domain.SessionID, limit int) ([]domain.Message, error) {
	query := `SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY seq ASC`
	args := []interface{}{string(sessionID)}
	if limit > 0 {
		query = `SELECT id, session_id, role, content, created_at FROM (
			SELECT seq, id, session_id, role, content, created_at FROM messages
			WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var idStr, sessStr, roleStr string
		if err := rows.Scan(&idStr, &sessStr, &roleStr, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ID = domain.MessageID(idStr)
		m.SessionID = domain.SessionID(sessStr)
		m.Role = domain.MessageRole(roleStr)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
