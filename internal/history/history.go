// Package history keeps a durable log of chat exchanges in SQLite.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/potrek505/TEG-project/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Fixed-width so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var ErrInvalidExchange = errors.New("session id, message and response are required")

// Exchange is one saved question and answer.
type Exchange struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

type Session struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open migrates and opens the log at path, creating the file if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := migrateUp(path); err != nil {
		return nil, err
	}

	dsn := url.URL{Scheme: "file", Opaque: path, RawQuery: "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"}
	db, err := sql.Open("sqlite", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	logger.Info("[History] database ready", "path", path)
	return &Store{db: db, now: time.Now}, nil
}

func migrateUp(path string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+path)
	if err != nil {
		return fmt.Errorf("create history migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate history: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveConversation records an exchange, registering the session on first use.
func (s *Store) SaveConversation(ctx context.Context, sessionID, message, response string) error {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(message) == "" || strings.TrimSpace(response) == "" {
		return ErrInvalidExchange
	}

	now := s.now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (session_id, created_at) VALUES (?, ?)",
		sessionID, now,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("[History] new session", "session_id", sessionID)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO conversations (session_id, message, response, timestamp) VALUES (?, ?, ?, ?)",
		sessionID, message, response, now,
	); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	return tx.Commit()
}

// ConversationHistory returns the exchanges of sessionID in order, or of
// every session when sessionID is empty.
func (s *Store) ConversationHistory(ctx context.Context, sessionID string) ([]Exchange, error) {
	query := "SELECT id, session_id, message, response, timestamp FROM conversations"
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY timestamp, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Exchange{}
	for rows.Next() {
		var (
			e  Exchange
			ts string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Message, &e.Response, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sessions returns all sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT session_id, created_at FROM sessions ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		var (
			sess Session
			ts   string
		)
		if err := rows.Scan(&sess.SessionID, &ts); err != nil {
			return nil, err
		}
		sess.CreatedAt = parseTime(ts)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ClearAll deletes every session and exchange.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Warn("[History] all conversations cleared")
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
