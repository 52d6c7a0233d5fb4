package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"busline/internal/passengers"
	"busline/internal/shared/constants"
	"busline/pkg/cache"
)

var ErrStateNotFound = errors.New("no persisted state for session")

// ClientState is the slice of a session that survives a client reload:
// route identifiers, the hold key, any artifact pending compensation, and
// the current passenger snapshot. Keyed by session ID with a staleness
// cutoff; entries older than the cutoff are discarded unread.
type ClientState struct {
	SessionID   string            `json:"session_id"`
	TicketID    string            `json:"ticket_id"`
	Token       string            `json:"token"`
	HoldKey     string            `json:"hold_key"`
	ArtifactRef string            `json:"artifact_ref,omitempty"`
	AssetID     string            `json:"asset_id,omitempty"`
	CurrentStep Step              `json:"current_step"`
	Passengers  []passengers.Slot `json:"passengers,omitempty"`
	SavedAt     time.Time         `json:"saved_at"`
}

// Store persists ClientState in Redis with the session-state TTL
type Store struct {
	cache cache.Service
	ttl   time.Duration
}

// NewStore creates a store. ttl <= 0 falls back to the default cutoff.
func NewStore(c cache.Service, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = constants.DefaultSessionStateTTL
	}
	return &Store{cache: c, ttl: ttl}
}

// Save writes the state under the session's key, stamping SavedAt
func (s *Store) Save(ctx context.Context, state ClientState) error {
	state.SavedAt = time.Now().UTC()
	key := constants.SessionStateKey(state.SessionID)
	if err := s.cache.Set(ctx, key, state, s.ttl); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	return nil
}

// Load reads a session's persisted state. A missing key or an entry past
// the staleness cutoff both report ErrStateNotFound; stale entries are
// deleted without being returned.
func (s *Store) Load(ctx context.Context, sessionID string) (*ClientState, error) {
	key := constants.SessionStateKey(sessionID)

	var state ClientState
	if err := s.cache.Get(ctx, key, &state); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}

	if time.Since(state.SavedAt) > s.ttl {
		_ = s.cache.Delete(ctx, key)
		return nil, ErrStateNotFound
	}
	return &state, nil
}

// Delete drops a session's persisted state
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, constants.SessionStateKey(sessionID))
}
