// Package store: PostgreSQL backend, used when DATABASE_URL is configured.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/practica-ai/practica/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// GetDialogueState retrieves dialogue state, or (nil, nil) if absent.
func (s *PostgresStore) GetDialogueState(key models.StateKey) (*models.DialogueState, error) {
	query := `SELECT step_name, payload, created_at, updated_at
			  FROM dialogue_states WHERE bot_id = $1 AND chat_id = $2 AND user_id = $3`

	state := models.DialogueState{Key: key}
	var payload sql.NullString

	err := s.db.QueryRow(query, key.BotID, key.ChatID, key.UserID).Scan(
		&state.StepName, &payload, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetDialogueState not found", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetDialogueState failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to load dialogue state for %s: %w", key, err)
	}

	state.Payload = unmarshalDoc(payload)
	slog.Debug("PostgresStore GetDialogueState found", "key", key, "step", state.StepName)
	return &state, nil
}

// SaveDialogueState stores or updates dialogue state for a key. Step name
// and payload land in one statement, so readers never observe a mix of
// two writes.
func (s *PostgresStore) SaveDialogueState(state models.DialogueState) error {
	if err := state.Key.Validate(); err != nil {
		return fmt.Errorf("save dialogue state: %w", err)
	}
	query := `
		INSERT INTO dialogue_states (bot_id, chat_id, user_id, step_name, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bot_id, chat_id, user_id)
		DO UPDATE SET
			step_name = EXCLUDED.step_name,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`

	payload, err := marshalDoc(state.Payload)
	if err != nil {
		slog.Error("PostgresStore SaveDialogueState marshal failed", "error", err, "key", state.Key)
		return err
	}

	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	_, err = s.db.Exec(query, state.Key.BotID, state.Key.ChatID, state.Key.UserID,
		state.StepName, payload, state.CreatedAt, now)
	if err != nil {
		slog.Error("PostgresStore SaveDialogueState failed", "error", err, "key", state.Key)
		return fmt.Errorf("failed to save dialogue state for %s: %w", state.Key, err)
	}
	slog.Debug("PostgresStore SaveDialogueState succeeded", "key", state.Key, "step", state.StepName)
	return nil
}

// DeleteDialogueState removes dialogue state for a key.
func (s *PostgresStore) DeleteDialogueState(key models.StateKey) error {
	_, err := s.db.Exec(`DELETE FROM dialogue_states WHERE bot_id = $1 AND chat_id = $2 AND user_id = $3`,
		key.BotID, key.ChatID, key.UserID)
	if err != nil {
		slog.Error("PostgresStore DeleteDialogueState failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete dialogue state for %s: %w", key, err)
	}
	slog.Debug("PostgresStore DeleteDialogueState succeeded", "key", key)
	return nil
}

// PruneDialogueStates deletes states not updated since olderThan.
func (s *PostgresStore) PruneDialogueStates(olderThan time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM dialogue_states WHERE updated_at < $1`, olderThan)
	if err != nil {
		slog.Error("PostgresStore PruneDialogueStates failed", "error", err)
		return 0, fmt.Errorf("failed to prune dialogue states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned dialogue states: %w", err)
	}
	slog.Debug("PostgresStore PruneDialogueStates succeeded", "count", n)
	return int(n), nil
}

// AppendTurn appends a turn to the open session for its (user, channel)
// pair. The BIGSERIAL seq column keeps append order recoverable even when
// createdAt timestamps collide at the column's clock resolution.
func (s *PostgresStore) AppendTurn(turn models.ConversationTurn) (int64, error) {
	if err := turn.Validate(); err != nil {
		return 0, fmt.Errorf("append turn: %w", err)
	}
	metadata, err := marshalDoc(turn.Metadata)
	if err != nil {
		slog.Error("PostgresStore AppendTurn marshal failed", "error", err, "turnID", turn.ID)
		return 0, err
	}

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	var seq int64
	err = s.db.QueryRow(
		`INSERT INTO conversation_turns (id, user_id, channel_id, speaker, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING seq`,
		turn.ID, turn.UserID, turn.ChannelID, string(turn.Speaker), turn.Content, metadata, turn.CreatedAt).Scan(&seq)
	if err != nil {
		slog.Error("PostgresStore AppendTurn failed", "error", err, "userID", turn.UserID, "channelID", turn.ChannelID)
		return 0, fmt.Errorf("failed to append turn for user %d on %s: %w", turn.UserID, turn.ChannelID, err)
	}
	slog.Debug("PostgresStore AppendTurn succeeded", "userID", turn.UserID, "channelID", turn.ChannelID, "seq", seq)
	return seq, nil
}

// ActiveTurns returns the open session's turns in append order.
func (s *PostgresStore) ActiveTurns(userID int64, channelID string) ([]models.ConversationTurn, error) {
	rows, err := s.db.Query(
		`SELECT seq, id, user_id, channel_id, speaker, content, metadata, created_at, closed_at
		 FROM conversation_turns
		 WHERE user_id = $1 AND channel_id = $2 AND closed_at IS NULL
		 ORDER BY seq ASC`,
		userID, channelID)
	if err != nil {
		slog.Error("PostgresStore ActiveTurns query failed", "error", err, "userID", userID, "channelID", channelID)
		return nil, fmt.Errorf("failed to query active turns for user %d on %s: %w", userID, channelID, err)
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			slog.Error("PostgresStore ActiveTurns scan failed", "error", err)
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ActiveTurns rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate active turns: %w", err)
	}
	slog.Debug("PostgresStore ActiveTurns succeeded", "userID", userID, "channelID", channelID, "count", len(turns))
	return turns, nil
}

// CloseSession closes the open session for (user, channel). Idempotent.
func (s *PostgresStore) CloseSession(userID int64, channelID string) error {
	return s.closeChannels(userID, []string{channelID})
}

// CloseSessions closes the open sessions on the given channels.
func (s *PostgresStore) CloseSessions(userID int64, channelIDs ...string) error {
	return s.closeChannels(userID, channelIDs)
}

func (s *PostgresStore) closeChannels(userID int64, channelIDs []string) error {
	now := time.Now().UTC()
	for _, ch := range channelIDs {
		_, err := s.db.Exec(
			`UPDATE conversation_turns SET closed_at = $1
			 WHERE user_id = $2 AND channel_id = $3 AND closed_at IS NULL`,
			now, userID, ch)
		if err != nil {
			slog.Error("PostgresStore CloseSession failed", "error", err, "userID", userID, "channelID", ch)
			return fmt.Errorf("failed to close session for user %d on %s: %w", userID, ch, err)
		}
	}
	slog.Debug("PostgresStore sessions closed", "userID", userID, "channels", len(channelIDs))
	return nil
}

// CloseAllSessions closes every open session for the user.
func (s *PostgresStore) CloseAllSessions(userID int64) error {
	_, err := s.db.Exec(
		`UPDATE conversation_turns SET closed_at = $1 WHERE user_id = $2 AND closed_at IS NULL`,
		time.Now().UTC(), userID)
	if err != nil {
		slog.Error("PostgresStore CloseAllSessions failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to close all sessions for user %d: %w", userID, err)
	}
	slog.Debug("PostgresStore CloseAllSessions succeeded", "userID", userID)
	return nil
}

// PruneClosedSessions deletes turns from sessions closed before olderThan.
// Only closed rows are ever touched, so pruning is safe to run
// concurrently with live traffic.
func (s *PostgresStore) PruneClosedSessions(olderThan time.Time) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM conversation_turns WHERE closed_at IS NOT NULL AND closed_at < $1`, olderThan)
	if err != nil {
		slog.Error("PostgresStore PruneClosedSessions failed", "error", err)
		return 0, fmt.Errorf("failed to prune closed sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned turns: %w", err)
	}
	slog.Debug("PostgresStore PruneClosedSessions succeeded", "count", n)
	return int(n), nil
}

// AcquireLease acquires the named lease if it is free, expired, or
// already held by the same holder.
func (s *PostgresStore) AcquireLease(name, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO scheduler_leases (name, holder, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		 WHERE scheduler_leases.expires_at < $4 OR scheduler_leases.holder = EXCLUDED.holder`,
		name, holder, now.Add(ttl), now)
	if err != nil {
		slog.Error("PostgresStore AcquireLease failed", "error", err, "name", name)
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check lease acquisition: %w", err)
	}
	return n > 0, nil
}

// RenewLease extends the lease if still held by holder.
func (s *PostgresStore) RenewLease(name, holder string, ttl time.Duration) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE scheduler_leases SET expires_at = $1 WHERE name = $2 AND holder = $3`,
		time.Now().UTC().Add(ttl), name, holder)
	if err != nil {
		slog.Error("PostgresStore RenewLease failed", "error", err, "name", name)
		return false, fmt.Errorf("failed to renew lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check lease renewal: %w", err)
	}
	return n > 0, nil
}

// ReleaseLease drops the lease if held by holder.
func (s *PostgresStore) ReleaseLease(name, holder string) error {
	_, err := s.db.Exec(`DELETE FROM scheduler_leases WHERE name = $1 AND holder = $2`, name, holder)
	if err != nil {
		slog.Error("PostgresStore ReleaseLease failed", "error", err, "name", name)
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
