package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// nullTime maps the zero time to NULL so SQL defaults apply.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// UpsertSession stores or refreshes a legacy terminal session row.
func (d *Database) UpsertSession(ctx context.Context, s TerminalSession) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO terminal_sessions (login, server, status, is_active, last_seen, created_at)
		VALUES (?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
		ON CONFLICT(login) DO UPDATE SET
			server = excluded.server,
			status = excluded.status,
			is_active = excluded.is_active,
			last_seen = COALESCE(excluded.last_seen, CURRENT_TIMESTAMP)
	`, s.Login, s.Server, s.Status, s.IsActive, nullTime(s.LastSeen), nullTime(s.CreatedAt))
	return err
}

// DeactivateSession marks a legacy session inactive; the row is kept for audit.
func (d *Database) DeactivateSession(ctx context.Context, login int64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE terminal_sessions
		SET is_active = 0, last_seen = CURRENT_TIMESTAMP
		WHERE login = ?
	`, login)
	return err
}

// ListActiveSessionLogins returns the logins of all active legacy sessions.
func (d *Database) ListActiveSessionLogins(ctx context.Context) ([]int64, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT login FROM terminal_sessions
		WHERE is_active = 1
		ORDER BY login`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []int64
	for rows.Next() {
		var login int64
		if err := rows.Scan(&login); err != nil {
			return nil, err
		}
		res = append(res, login)
	}
	return res, rows.Err()
}

// ListSessions returns all legacy session rows, newest first.
func (d *Database) ListSessions(ctx context.Context) ([]TerminalSession, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT login, server, status, is_active, last_error, last_seen, created_at
		FROM terminal_sessions
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []TerminalSession
	for rows.Next() {
		var s TerminalSession
		if err := rows.Scan(&s.Login, &s.Server, &s.Status, &s.IsActive, &s.LastError, &s.LastSeen, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// GetSession returns the session row for a login, or nil when absent.
func (d *Database) GetSession(ctx context.Context, login int64) (*TerminalSession, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT login, server, status, is_active, last_error, last_seen, created_at
		FROM terminal_sessions
		WHERE login = ?`, login)

	var s TerminalSession
	if err := row.Scan(&s.Login, &s.Server, &s.Status, &s.IsActive, &s.LastError, &s.LastSeen, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListSessionInstruments returns the active instruments configured for a login.
func (d *Database) ListSessionInstruments(ctx context.Context, login int64) ([]SessionInstrument, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, login, symbol, strategy_type, parameters, is_active, created_at, updated_at
		FROM session_instruments
		WHERE login = ? AND is_active = 1
		ORDER BY symbol`, login)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []SessionInstrument
	for rows.Next() {
		var si SessionInstrument
		if err := rows.Scan(&si.ID, &si.Login, &si.Symbol, &si.StrategyType, &si.Parameters, &si.IsActive, &si.CreatedAt, &si.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, si)
	}
	return res, rows.Err()
}

// UpsertSessionInstrument inserts an instrument row for a login; existing rows
// for the same login+symbol are replaced.
func (d *Database) UpsertSessionInstrument(ctx context.Context, si SessionInstrument) error {
	_, err := d.DB.ExecContext(ctx, `
		DELETE FROM session_instruments WHERE login = ? AND symbol = ?
	`, si.Login, si.Symbol)
	if err != nil {
		return err
	}
	_, err = d.DB.ExecContext(ctx, `
		INSERT INTO session_instruments (login, symbol, strategy_type, parameters, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, si.Login, si.Symbol, si.StrategyType, si.Parameters, si.IsActive)
	return err
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, nullTime(u.CreatedAt), nullTime(u.UpdatedAt))
	return err
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// InsertOrderAudit records an order outcome. Best-effort from the caller's
// point of view: the trading pass logs and continues on failure.
func (d *Database) InsertOrderAudit(ctx context.Context, a OrderAudit) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO order_audit (id, account_ns, account_id, symbol, action, volume, price, status, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.AccountNS, a.AccountID, a.Symbol, a.Action, a.Volume, a.Price, a.Status, a.Note, a.CreatedAt)
	return err
}

// ListOrderAudit returns the newest order audit rows up to limit.
func (d *Database) ListOrderAudit(ctx context.Context, limit int) ([]OrderAudit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, account_ns, account_id, symbol, action, volume, price, status, note, created_at
		FROM order_audit
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []OrderAudit
	for rows.Next() {
		var a OrderAudit
		if err := rows.Scan(&a.ID, &a.AccountNS, &a.AccountID, &a.Symbol, &a.Action, &a.Volume, &a.Price, &a.Status, &a.Note, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
