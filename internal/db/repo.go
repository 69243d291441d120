package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"medtriage/internal/core"
	"medtriage/pkg"
)

const sessionColumns = `id, owner, state, summary, is_read, nurse_joined, was_urgent, intake_data, created_at, last_activity`

// Repository is the Postgres implementation of core.Store. Each call opens
// its own transaction where more than one statement is involved, so a
// message is never persisted without its associated session update.
type Repository struct {
	DB *sql.DB
}

// NewRepository wraps an existing sql.DB. The caller manages the connection
// lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

var _ core.Store = (*Repository)(nil)

// CreateSession inserts the session and its first message atomically.
func (r *Repository) CreateSession(ctx context.Context, s *pkg.Session, first pkg.Message) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	intake, err := json.Marshal(s.Intake)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.Owner, s.State, s.Summary, s.IsRead, s.NurseJoined, s.WasUrgent, intake, s.CreatedAt, s.LastActivity,
	)
	if err != nil {
		return err
	}
	if err := insertMessage(ctx, tx, first); err != nil {
		return err
	}
	return tx.Commit()
}

// Session loads a session by id.
func (r *Repository) Session(ctx context.Context, id string) (*pkg.Session, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// Messages returns the transcript in persisted order.
func (r *Repository) Messages(ctx context.Context, id string) ([]pkg.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, session_id, role, content, ts, phase
         FROM messages WHERE session_id = $1 ORDER BY ts ASC, id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.Message
	for rows.Next() {
		var m pkg.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Timestamp, &m.Phase); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Mutate locks the session row, applies fn against the persisted state, and
// writes the session plus any returned messages in the same transaction. An
// error from fn rolls everything back and is returned unchanged.
func (r *Repository) Mutate(ctx context.Context, id string, fn func(s *pkg.Session) ([]pkg.Message, error)) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	row := tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
	sess, err := scanSession(row)
	if err != nil {
		return err
	}
	msgs, err := fn(sess)
	if err != nil {
		return err
	}
	intake, err := json.Marshal(sess.Intake)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions
         SET state = $2, summary = $3, is_read = $4, nurse_joined = $5,
             was_urgent = $6, intake_data = $7, last_activity = $8
         WHERE id = $1`,
		sess.ID, sess.State, sess.Summary, sess.IsRead, sess.NurseJoined, sess.WasUrgent, intake, sess.LastActivity,
	)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := insertMessage(ctx, tx, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListActionable returns every session a nurse can act on.
func (r *Repository) ListActionable(ctx context.Context) ([]pkg.Session, error) {
	states := []string{
		string(pkg.StateWaitingForNurse),
		string(pkg.StateNurseActive),
		string(pkg.StateUrgent),
		string(pkg.StateInactive),
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
         WHERE state = ANY($1) ORDER BY last_activity DESC`, pq.Array(states))
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// OwnerSessions returns a beneficiary's consultations, newest first.
func (r *Repository) OwnerSessions(ctx context.Context, owner string) ([]pkg.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
         WHERE owner = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// DemoteIdle is the soft timeout pass: a conditional batch update matching
// on the current state, so a session already transitioned by a concurrent
// sweep is simply skipped.
func (r *Repository) DemoteIdle(ctx context.Context, cutoff time.Time, note string, at time.Time) (int, error) {
	states := []string{
		string(pkg.StateIntake),
		string(pkg.StateWaitingForNurse),
		string(pkg.StateNurseActive),
	}
	return r.sweepPass(ctx,
		`UPDATE sessions SET state = $1, is_read = FALSE
         WHERE state = ANY($2) AND last_activity < $3 RETURNING id`,
		[]any{string(pkg.StateInactive), pq.Array(states), cutoff}, note, at)
}

// ExpireDormant is the hard timeout pass: inactive sessions past the grace
// window are closed permanently.
func (r *Repository) ExpireDormant(ctx context.Context, cutoff time.Time, note string, at time.Time) (int, error) {
	return r.sweepPass(ctx,
		`UPDATE sessions SET state = $1
         WHERE state = $2 AND last_activity < $3 RETURNING id`,
		[]any{string(pkg.StateClosed), string(pkg.StateInactive), cutoff}, note, at)
}

func (r *Repository) sweepPass(ctx context.Context, query string, args []any, note string, at time.Time) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, id := range ids {
		err := insertMessage(ctx, tx, pkg.Message{
			SessionID: id,
			Role:      pkg.RoleAssistant,
			Content:   note,
			Timestamp: at,
			Phase:     pkg.PhaseSystem,
		})
		if err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*pkg.Session, error) {
	var (
		s      pkg.Session
		intake []byte
	)
	err := row.Scan(&s.ID, &s.Owner, &s.State, &s.Summary, &s.IsRead, &s.NurseJoined, &s.WasUrgent, &intake, &s.CreatedAt, &s.LastActivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	if len(intake) > 0 {
		if err := json.Unmarshal(intake, &s.Intake); err != nil {
			return nil, fmt.Errorf("decode intake data for %s: %w", s.ID, err)
		}
	}
	if s.Intake.Answers == nil {
		s.Intake.Answers = map[string]string{}
	}
	return &s, nil
}

func collectSessions(rows *sql.Rows) ([]pkg.Session, error) {
	defer rows.Close()
	var out []pkg.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func insertMessage(ctx context.Context, tx *sql.Tx, m pkg.Message) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, ts, phase)
         VALUES ($1, $2, $3, $4, $5)`,
		m.SessionID, m.Role, m.Content, m.Timestamp, m.Phase,
	)
	return err
}
