package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/practica-ai/practica/internal/models"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

type sessionKey struct {
	userID    int64
	channelID string
}

type memoryLease struct {
	holder    string
	expiresAt time.Time
}

// MemoryStore is a non-durable Store used for tests and explicitly
// configured non-production deployments. Dialogues do not survive a
// process restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[models.StateKey]models.DialogueState
	turns  map[sessionKey][]models.ConversationTurn
	leases map[string]memoryLease
	seq    int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[models.StateKey]models.DialogueState),
		turns:  make(map[sessionKey][]models.ConversationTurn),
		leases: make(map[string]memoryLease),
	}
}

// GetDialogueState retrieves dialogue state, or (nil, nil) if absent.
func (s *MemoryStore) GetDialogueState(key models.StateKey) (*models.DialogueState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[key]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate the stored payload in place.
	out := state
	out.Payload = copyDoc(state.Payload)
	return &out, nil
}

// SaveDialogueState upserts dialogue state, replacing the payload wholesale.
func (s *MemoryStore) SaveDialogueState(state models.DialogueState) error {
	if err := state.Key.Validate(); err != nil {
		return fmt.Errorf("save dialogue state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if prev, ok := s.states[state.Key]; ok {
		state.CreatedAt = prev.CreatedAt
	} else if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now
	state.Payload = copyDoc(state.Payload)
	s.states[state.Key] = state
	return nil
}

// DeleteDialogueState removes dialogue state for a key. No-op if absent.
func (s *MemoryStore) DeleteDialogueState(key models.StateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

// PruneDialogueStates deletes states not updated since olderThan.
func (s *MemoryStore) PruneDialogueStates(olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, state := range s.states {
		if state.UpdatedAt.Before(olderThan) {
			delete(s.states, key)
			n++
		}
	}
	return n, nil
}

// AppendTurn appends a turn to the open session for its (user, channel)
// pair and returns the assigned sequence number.
func (s *MemoryStore) AppendTurn(turn models.ConversationTurn) (int64, error) {
	if err := turn.Validate(); err != nil {
		return 0, fmt.Errorf("append turn: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	turn.Seq = s.seq
	turn.ClosedAt = nil
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	turn.Metadata = copyDoc(turn.Metadata)
	key := sessionKey{userID: turn.UserID, channelID: turn.ChannelID}
	s.turns[key] = append(s.turns[key], turn)
	return turn.Seq, nil
}

// ActiveTurns returns the open session's turns in append order, or an
// empty slice if no session is open.
func (s *MemoryStore) ActiveTurns(userID int64, channelID string) ([]models.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConversationTurn
	for _, t := range s.turns[sessionKey{userID: userID, channelID: channelID}] {
		if t.ClosedAt == nil {
			t.Metadata = copyDoc(t.Metadata)
			out = append(out, t)
		}
	}
	return out, nil
}

// CloseSession closes the open session for (user, channel). Idempotent.
func (s *MemoryStore) CloseSession(userID int64, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(sessionKey{userID: userID, channelID: channelID})
	return nil
}

// CloseSessions closes the open sessions on the given channels.
func (s *MemoryStore) CloseSessions(userID int64, channelIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channelIDs {
		s.closeLocked(sessionKey{userID: userID, channelID: ch})
	}
	return nil
}

// CloseAllSessions closes every open session for the user on every
// channel that has one. Channels without history are not created.
func (s *MemoryStore) CloseAllSessions(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.turns {
		if key.userID == userID {
			s.closeLocked(key)
		}
	}
	return nil
}

func (s *MemoryStore) closeLocked(key sessionKey) {
	now := time.Now().UTC()
	turns := s.turns[key]
	for i := range turns {
		if turns[i].ClosedAt == nil {
			turns[i].ClosedAt = &now
		}
	}
}

// PruneClosedSessions deletes turns from sessions closed before olderThan.
func (s *MemoryStore) PruneClosedSessions(olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, turns := range s.turns {
		kept := turns[:0]
		for _, t := range turns {
			if t.ClosedAt != nil && t.ClosedAt.Before(olderThan) {
				n++
				continue
			}
			kept = append(kept, t)
		}
		if len(kept) == 0 {
			delete(s.turns, key)
		} else {
			s.turns[key] = kept
		}
	}
	return n, nil
}

// AcquireLease acquires the named lease if it is free, expired, or
// already held by the same holder.
func (s *MemoryStore) AcquireLease(name, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	lease, ok := s.leases[name]
	if ok && lease.holder != holder && lease.expiresAt.After(now) {
		return false, nil
	}
	s.leases[name] = memoryLease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// RenewLease extends the lease if still held by holder.
func (s *MemoryStore) RenewLease(name, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lease, ok := s.leases[name]
	if !ok || lease.holder != holder {
		return false, nil
	}
	s.leases[name] = memoryLease{holder: holder, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// ReleaseLease drops the lease if held by holder.
func (s *MemoryStore) ReleaseLease(name, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lease, ok := s.leases[name]; ok && lease.holder == holder {
		delete(s.leases, name)
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	slog.Debug("MemoryStore closed")
	return nil
}

func copyDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
