package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/sqlchat/internal/domain"
	"github.com/ashureev/sqlchat/internal/shared"
	_ "modernc.org/sqlite"
)

// ErrUserNotFound is returned when an update targets a missing user.
var ErrUserNotFound = errors.New("user not found")

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exchanges (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		prompt TEXT NOT NULL,
		reply TEXT,
		error TEXT,
		status TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_user ON exchanges(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_exchanges_created ON exchanges(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, s.retry, "upsert user", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username, user.LastSeenAt.Unix(),
			user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		return err
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`

	var rows int64
	err := shared.RetryOnConflict(ctx, s.retry, "update last_seen", func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
		return ErrUserNotFound
	}
	return nil
}

// RecordExchange appends one submission to the audit trail.
func (s *SQLiteStore) RecordExchange(ctx context.Context, ex *domain.Exchange) error {
	query := `
	INSERT INTO exchanges (id, user_id, session_id, prompt, reply, error, status, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var reply, errMsg interface{}
	if ex.Reply != "" {
		reply = ex.Reply
	}
	if ex.Error != "" {
		errMsg = ex.Error
	}

	return shared.RetryOnConflict(ctx, s.retry, "record exchange", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			ex.ID, ex.UserID, ex.SessionID, ex.Prompt, reply, errMsg,
			string(ex.Status), ex.DurationMs, ex.CreatedAt.UnixMilli(),
		)
		return err
	})
}

// ListExchanges returns the most recent exchanges for a user, newest first.
func (s *SQLiteStore) ListExchanges(ctx context.Context, userID string, limit int) ([]*domain.Exchange, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, session_id, prompt, reply, error, status, duration_ms, created_at
		FROM exchanges WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close exchange rows", "error", closeErr)
		}
	}()

	var out []*domain.Exchange
	for rows.Next() {
		var ex domain.Exchange
		var reply, errMsg sql.NullString
		var status string
		var createdAt int64

		if err := rows.Scan(
			&ex.ID, &ex.UserID, &ex.SessionID, &ex.Prompt, &reply, &errMsg,
			&status, &ex.DurationMs, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan exchange row: %w", err)
		}
		ex.Reply = reply.String
		ex.Error = errMsg.String
		ex.Status = domain.ExchangeStatus(status)
		ex.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, &ex)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}
	return out, nil
}

// PruneExchanges removes audit records older than ttl.
func (s *SQLiteStore) PruneExchanges(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).UnixMilli()

	var deleted int64
	err := shared.RetryOnConflict(ctx, s.retry, "prune exchanges", func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE created_at < ?`, threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
