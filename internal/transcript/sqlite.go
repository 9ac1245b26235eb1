package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mentora-labs/mentora/internal/domain"
	"github.com/mentora-labs/mentora/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on SQLite for durable chat history.
type SQLiteStore struct {
	db *sql.DB
	// writeMu serializes writers to avoid SQLITE_BUSY under bursts.
	writeMu sync.Mutex
}

// NewSQLite creates a SQLite-backed transcript store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		task_id TEXT,
		role TEXT NOT NULL,
		agent_id TEXT,
		content TEXT NOT NULL DEFAULT '',
		is_loading INTEGER NOT NULL DEFAULT 0,
		is_error INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		UNIQUE(session_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_messages_task ON messages(session_id, task_id, role);
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

// Append adds a message to the end of the session's transcript.
func (s *SQLiteStore) Append(ctx context.Context, msg *domain.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
		INSERT INTO messages (id, session_id, task_id, role, agent_id, content, is_loading, is_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args := []any{
		msg.ID, msg.SessionID, msg.TaskID, string(msg.Role), msg.AgentID,
		msg.Content, boolToInt(msg.IsLoading), boolToInt(msg.IsError), msg.Timestamp.Unix(),
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	if shared.IsSQLiteConflictError(err) {
		// One retry after a brief pause clears transient lock contention.
		time.Sleep(50 * time.Millisecond)
		_, err = s.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// UpdateByID patches a message in place.
func (s *SQLiteStore) UpdateByID(ctx context.Context, sessionID, messageID string, patch Patch) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	set := ""
	args := []any{}
	if patch.Content != nil {
		set += "content = ?"
		args = append(args, *patch.Content)
	}
	if patch.IsLoading != nil {
		if set != "" {
			set += ", "
		}
		set += "is_loading = ?"
		args = append(args, boolToInt(*patch.IsLoading))
	}
	if patch.IsError != nil {
		if set != "" {
			set += ", "
		}
		set += "is_error = ?"
		args = append(args, boolToInt(*patch.IsError))
	}
	if set == "" {
		return nil
	}

	args = append(args, sessionID, messageID)
	res, err := s.db.ExecContext(ctx, "UPDATE messages SET "+set+" WHERE session_id = ? AND id = ?", args...)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update message rows: %w", err)
	}
	if n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ListOrdered returns the session's messages in append order.
func (s *SQLiteStore) ListOrdered(ctx context.Context, sessionID string) ([]domain.Message, error) {
	query := `
		SELECT id, session_id, task_id, role, agent_id, content, is_loading, is_error, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		var taskID, agentID sql.NullString
		var isLoading, isError int
		var createdAt int64

		if err := rows.Scan(&msg.ID, &msg.SessionID, &taskID, (*string)(&msg.Role), &agentID,
			&msg.Content, &isLoading, &isError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}

		msg.TaskID = taskID.String
		msg.AgentID = agentID.String
		msg.IsLoading = isLoading != 0
		msg.IsError = isError != 0
		msg.Timestamp = time.Unix(createdAt, 0)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

// AppendNoticeOnce appends a system notice for a task at most once. The
// existence check and insert run in one transaction so retried pollers cannot
// double-insert the notice.
func (s *SQLiteStore) AppendNoticeOnce(ctx context.Context, sessionID, taskID, content string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin notice tx: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM messages WHERE session_id = ? AND task_id = ? AND role = ?`,
		sessionID, taskID, string(domain.RoleSystem),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notice: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	notice := domain.NewSystemNotice(sessionID, taskID, content)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, task_id, role, agent_id, content, is_loading, is_error, created_at)
		 VALUES (?, ?, ?, ?, '', ?, 0, 0, ?)`,
		notice.ID, sessionID, taskID, string(domain.RoleSystem), content, notice.Timestamp.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert notice: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit notice: %w", err)
	}
	return true, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
