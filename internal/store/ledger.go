package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/puzzlesync/internal/puzzle"
	"github.com/roach88/puzzlesync/internal/wire"
)

// Session is a ledger row for a session opened by this process.
type Session struct {
	SessionID   string
	BroadcastID string
	Title       string
	Definition  puzzle.Definition
	OpenedAt    time.Time
}

// Solve is a ledger row for one solved side effect.
type Solve struct {
	ID        int64
	SessionID string
	SolvedBy  string
	Title     string
	State     puzzle.State
	SolvedAt  time.Time
	// Error is the side effect's error text; empty on success.
	Error string
}

// RecordOpen inserts a session. Recording the same session again is a
// no-op.
func (s *Store) RecordOpen(ctx context.Context, sess Session) error {
	def, err := wire.MarshalCanonical(sess.Definition)
	if err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, broadcast_id, title, definition, opened_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`, sess.SessionID, sess.BroadcastID, sess.Title, string(def), sess.OpenedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	return nil
}

// RecordSolve inserts a solve. A second solve of the same session at the
// same millisecond is ignored.
func (s *Store) RecordSolve(ctx context.Context, sv Solve) error {
	state, err := wire.MarshalCanonical(sv.State)
	if err != nil {
		return fmt.Errorf("record solve: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO solves (session_id, solved_by, title, state, solved_at, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, sv.SessionID, sv.SolvedBy, sv.Title, string(state), sv.SolvedAt.UnixMilli(), sv.Error)
	if err != nil {
		return fmt.Errorf("record solve: %w", err)
	}
	return nil
}

// Session returns one opened session.
func (s *Store) Session(ctx context.Context, sessionID string) (Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, broadcast_id, title, definition, opened_at
		FROM sessions
		WHERE session_id = ?
	`, sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

// Sessions returns every opened session, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, broadcast_id, title, definition, opened_at
		FROM sessions
		ORDER BY opened_at ASC, session_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Solves returns recorded solves, oldest first. An empty sessionID lists
// every session.
func (s *Store) Solves(ctx context.Context, sessionID string) ([]Solve, error) {
	query := `
		SELECT id, session_id, solved_by, title, state, solved_at, error
		FROM solves`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY solved_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query solves: %w", err)
	}
	defer rows.Close()

	out := []Solve{}
	for rows.Next() {
		var (
			sv       Solve
			state    string
			solvedAt int64
		)
		if err := rows.Scan(&sv.ID, &sv.SessionID, &sv.SolvedBy, &sv.Title, &state, &solvedAt, &sv.Error); err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		if err := unmarshalJSON(state, &sv.State); err != nil {
			return nil, fmt.Errorf("solve %d state: %w", sv.ID, err)
		}
		sv.SolvedAt = time.UnixMilli(solvedAt).UTC()
		out = append(out, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solves: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess     Session
		def      string
		openedAt int64
	)
	if err := row.Scan(&sess.SessionID, &sess.BroadcastID, &sess.Title, &def, &openedAt); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	if err := unmarshalJSON(def, &sess.Definition); err != nil {
		return Session{}, fmt.Errorf("session %s definition: %w", sess.SessionID, err)
	}
	sess.OpenedAt = time.UnixMilli(openedAt).UTC()
	return sess, nil
}
