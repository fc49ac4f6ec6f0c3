// Package store: SQLite backend, used when no PostgreSQL DSN is configured.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/practica-ai/practica/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetDialogueState retrieves dialogue state, or (nil, nil) if absent.
func (s *SQLiteStore) GetDialogueState(key models.StateKey) (*models.DialogueState, error) {
	query := `SELECT step_name, payload, created_at, updated_at
			  FROM dialogue_states WHERE bot_id = ? AND chat_id = ? AND user_id = ?`

	state := models.DialogueState{Key: key}
	var payload sql.NullString

	err := s.db.QueryRow(query, key.BotID, key.ChatID, key.UserID).Scan(
		&state.StepName, &payload, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetDialogueState not found", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetDialogueState failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to load dialogue state for %s: %w", key, err)
	}

	state.Payload = unmarshalDoc(payload)
	slog.Debug("SQLiteStore GetDialogueState found", "key", key, "step", state.StepName)
	return &state, nil
}

// SaveDialogueState stores or updates dialogue state for a key. The
// payload column is replaced wholesale in the same statement as the step
// name, so partial updates are never observable.
func (s *SQLiteStore) SaveDialogueState(state models.DialogueState) error {
	if err := state.Key.Validate(); err != nil {
		return fmt.Errorf("save dialogue state: %w", err)
	}
	query := `
		INSERT INTO dialogue_states (bot_id, chat_id, user_id, step_name, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bot_id, chat_id, user_id)
		DO UPDATE SET
			step_name = excluded.step_name,
			payload = excluded.payload,
			updated_at = excluded.updated_at`

	payload, err := marshalDoc(state.Payload)
	if err != nil {
		slog.Error("SQLiteStore SaveDialogueState marshal failed", "error", err, "key", state.Key)
		return err
	}

	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	_, err = s.db.Exec(query, state.Key.BotID, state.Key.ChatID, state.Key.UserID,
		state.StepName, payload, state.CreatedAt, now)
	if err != nil {
		slog.Error("SQLiteStore SaveDialogueState failed", "error", err, "key", state.Key)
		return fmt.Errorf("failed to save dialogue state for %s: %w", state.Key, err)
	}
	slog.Debug("SQLiteStore SaveDialogueState succeeded", "key", state.Key, "step", state.StepName)
	return nil
}

// DeleteDialogueState removes dialogue state for a key.
func (s *SQLiteStore) DeleteDialogueState(key models.StateKey) error {
	_, err := s.db.Exec(`DELETE FROM dialogue_states WHERE bot_id = ? AND chat_id = ? AND user_id = ?`,
		key.BotID, key.ChatID, key.UserID)
	if err != nil {
		slog.Error("SQLiteStore DeleteDialogueState failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete dialogue state for %s: %w", key, err)
	}
	slog.Debug("SQLiteStore DeleteDialogueState succeeded", "key", key)
	return nil
}

// PruneDialogueStates deletes states not updated since olderThan.
func (s *SQLiteStore) PruneDialogueStates(olderThan time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM dialogue_states WHERE updated_at < ?`, olderThan)
	if err != nil {
		slog.Error("SQLiteStore PruneDialogueStates failed", "error", err)
		return 0, fmt.Errorf("failed to prune dialogue states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned dialogue states: %w", err)
	}
	slog.Debug("SQLiteStore PruneDialogueStates succeeded", "count", n)
	return int(n), nil
}

// AppendTurn appends a turn to the open session for its (user, channel)
// pair. The AUTOINCREMENT seq column makes append order recoverable even
// when createdAt timestamps collide at the column's clock resolution.
func (s *SQLiteStore) AppendTurn(turn models.ConversationTurn) (int64, error) {
	if err := turn.Validate(); err != nil {
		return 0, fmt.Errorf("append turn: %w", err)
	}
	metadata, err := marshalDoc(turn.Metadata)
	if err != nil {
		slog.Error("SQLiteStore AppendTurn marshal failed", "error", err, "turnID", turn.ID)
		return 0, err
	}

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO conversation_turns (id, user_id, channel_id, speaker, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.UserID, turn.ChannelID, string(turn.Speaker), turn.Content, metadata, turn.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AppendTurn failed", "error", err, "userID", turn.UserID, "channelID", turn.ChannelID)
		return 0, fmt.Errorf("failed to append turn for user %d on %s: %w", turn.UserID, turn.ChannelID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read turn sequence: %w", err)
	}
	slog.Debug("SQLiteStore AppendTurn succeeded", "userID", turn.UserID, "channelID", turn.ChannelID, "seq", seq)
	return seq, nil
}

// ActiveTurns returns the open session's turns in append order.
func (s *SQLiteStore) ActiveTurns(userID int64, channelID string) ([]models.ConversationTurn, error) {
	rows, err := s.db.Query(
		`SELECT seq, id, user_id, channel_id, speaker, content, metadata, created_at, closed_at
		 FROM conversation_turns
		 WHERE user_id = ? AND channel_id = ? AND closed_at IS NULL
		 ORDER BY seq ASC`,
		userID, channelID)
	if err != nil {
		slog.Error("SQLiteStore ActiveTurns query failed", "error", err, "userID", userID, "channelID", channelID)
		return nil, fmt.Errorf("failed to query active turns for user %d on %s: %w", userID, channelID, err)
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			slog.Error("SQLiteStore ActiveTurns scan failed", "error", err)
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ActiveTurns rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate active turns: %w", err)
	}
	slog.Debug("SQLiteStore ActiveTurns succeeded", "userID", userID, "channelID", channelID, "count", len(turns))
	return turns, nil
}

// CloseSession closes the open session for (user, channel). Idempotent.
func (s *SQLiteStore) CloseSession(userID int64, channelID string) error {
	return s.closeChannels(userID, []string{channelID})
}

// CloseSessions closes the open sessions on the given channels.
func (s *SQLiteStore) CloseSessions(userID int64, channelIDs ...string) error {
	return s.closeChannels(userID, channelIDs)
}

func (s *SQLiteStore) closeChannels(userID int64, channelIDs []string) error {
	// UTC like every other persisted timestamp: SQLite stores times as
	// text with their offset, so mixed zones would misorder the
	// closed_at < cutoff comparison in PruneClosedSessions.
	now := time.Now().UTC()
	for _, ch := range channelIDs {
		_, err := s.db.Exec(
			`UPDATE conversation_turns SET closed_at = ?
			 WHERE user_id = ? AND channel_id = ? AND closed_at IS NULL`,
			now, userID, ch)
		if err != nil {
			slog.Error("SQLiteStore CloseSession failed", "error", err, "userID", userID, "channelID", ch)
			return fmt.Errorf("failed to close session for user %d on %s: %w", userID, ch, err)
		}
	}
	slog.Debug("SQLiteStore sessions closed", "userID", userID, "channels", len(channelIDs))
	return nil
}

// CloseAllSessions closes every open session for the user.
func (s *SQLiteStore) CloseAllSessions(userID int64) error {
	_, err := s.db.Exec(
		`UPDATE conversation_turns SET closed_at = ? WHERE user_id = ? AND closed_at IS NULL`,
		time.Now().UTC(), userID)
	if err != nil {
		slog.Error("SQLiteStore CloseAllSessions failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to close all sessions for user %d: %w", userID, err)
	}
	slog.Debug("SQLiteStore CloseAllSessions succeeded", "userID", userID)
	return nil
}

// PruneClosedSessions deletes turns from sessions closed before olderThan.
// Only closed rows are ever touched, so pruning is safe to run
// concurrently with live traffic.
func (s *SQLiteStore) PruneClosedSessions(olderThan time.Time) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM conversation_turns WHERE closed_at IS NOT NULL AND closed_at < ?`, olderThan)
	if err != nil {
		slog.Error("SQLiteStore PruneClosedSessions failed", "error", err)
		return 0, fmt.Errorf("failed to prune closed sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned turns: %w", err)
	}
	slog.Debug("SQLiteStore PruneClosedSessions succeeded", "count", n)
	return int(n), nil
}

// AcquireLease acquires the named lease if it is free, expired, or
// already held by the same holder.
func (s *SQLiteStore) AcquireLease(name, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO scheduler_leases (name, holder, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		 WHERE scheduler_leases.expires_at < ? OR scheduler_leases.holder = excluded.holder`,
		name, holder, now.Add(ttl), now)
	if err != nil {
		slog.Error("SQLiteStore AcquireLease failed", "error", err, "name", name)
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check lease acquisition: %w", err)
	}
	return n > 0, nil
}

// RenewLease extends the lease if still held by holder.
func (s *SQLiteStore) RenewLease(name, holder string, ttl time.Duration) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE scheduler_leases SET expires_at = ? WHERE name = ? AND holder = ?`,
		time.Now().UTC().Add(ttl), name, holder)
	if err != nil {
		slog.Error("SQLiteStore RenewLease failed", "error", err, "name", name)
		return false, fmt.Errorf("failed to renew lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check lease renewal: %w", err)
	}
	return n > 0, nil
}

// ReleaseLease drops the lease if held by holder.
func (s *SQLiteStore) ReleaseLease(name, holder string) error {
	_, err := s.db.Exec(`DELETE FROM scheduler_leases WHERE name = ? AND holder = ?`, name, holder)
	if err != nil {
		slog.Error("SQLiteStore ReleaseLease failed", "error", err, "name", name)
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
