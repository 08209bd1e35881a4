package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
)

const codeColumns = `id, code, status, created_at, expires_at, user_email, school_name, assigned_at, metadata`

// Insert stores a new access code.
func (s *Store) Insert(ctx context.Context, code *accesscode.AccessCode) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if code.ID == "" {
		code.ID = uuid.New().String()
	}
	if code.Status == "" {
		code.Status = accesscode.StatusActive
	}

	var metadata sql.NullString
	if len(code.Metadata) > 0 {
		data, err := json.Marshal(code.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO access_codes (`+codeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		code.ID, code.Code, string(code.Status), code.CreatedAt.UTC(),
		nullTime(code.ExpiresAt), nullString(code.UserEmail), nullString(code.SchoolName),
		nullTime(code.AssignedAt), metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", accesscode.ErrDuplicateCode, code.Code)
		}
		return fmt.Errorf("failed to insert access code: %w", err)
	}
	return nil
}

// Get returns the access code with the given value.
func (s *Store) Get(ctx context.Context, code string) (*accesscode.AccessCode, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+codeColumns+` FROM access_codes WHERE code = ?`), code)
	rec, err := scanCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accesscode.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access code: %w", err)
	}
	return rec, nil
}

// List returns all access codes, newest first.
func (s *Store) List(ctx context.Context) ([]*accesscode.AccessCode, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+codeColumns+` FROM access_codes ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list access codes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var codes []*accesscode.AccessCode
	for rows.Next() {
		rec, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access code: %w", err)
		}
		codes = append(codes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list access codes: %w", err)
	}
	return codes, nil
}

// CompareAndAssign marks the code used in a single conditional UPDATE. The
// row is only touched while it is still active and unassigned, so concurrent
// callers on any number of processes see exactly one winner.
func (s *Store) CompareAndAssign(ctx context.Context, code string, a accesscode.Assignment) (*accesscode.AccessCode, bool, error) {
	if s.db == nil {
		return nil, false, fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE access_codes
		SET status = 'used', user_email = ?, school_name = ?, assigned_at = ?
		WHERE code = ? AND status = 'active' AND user_email IS NULL`),
		a.Email, a.SchoolName, a.AssignedAt.UTC(), code,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to assign access code: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to assign access code: %w", err)
	}
	if n == 0 {
		s.logger.Debug("conditional assign matched no row", slog.String("code", code))
		return nil, false, nil
	}

	// used is terminal, so the row read back is the one this call wrote
	rec, err := s.Get(ctx, code)
	if err != nil {
		// The code is consumed either way; report the assignment we wrote.
		s.logger.Warn("assigned access code could not be read back",
			slog.String("code", code), slog.String("error", err.Error()))
		return assignedRecord(code, a), true, nil
	}
	return rec, true, nil
}

func assignedRecord(code string, a accesscode.Assignment) *accesscode.AccessCode {
	email, school, at := a.Email, a.SchoolName, a.AssignedAt.UTC()
	return &accesscode.AccessCode{
		Code:       code,
		Status:     accesscode.StatusUsed,
		UserEmail:  &email,
		SchoolName: &school,
		AssignedAt: &at,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCode(row scanner) (*accesscode.AccessCode, error) {
	var (
		rec        accesscode.AccessCode
		status     string
		expiresAt  sql.NullTime
		userEmail  sql.NullString
		schoolName sql.NullString
		assignedAt sql.NullTime
		metadata   sql.NullString
	)

	if err := row.Scan(&rec.ID, &rec.Code, &status, &rec.CreatedAt, &expiresAt,
		&userEmail, &schoolName, &assignedAt, &metadata); err != nil {
		return nil, err
	}

	rec.Status = accesscode.Status(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		rec.ExpiresAt = &t
	}
	if userEmail.Valid {
		rec.UserEmail = &userEmail.String
	}
	if schoolName.Valid {
		rec.SchoolName = &schoolName.String
	}
	if assignedAt.Valid {
		t := assignedAt.Time.UTC()
		rec.AssignedAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
