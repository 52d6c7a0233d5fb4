package constants

import "time"

// Redis key prefixes for persisted reservation client state.
// Everything is namespaced by session ID so a cancelled session
// leaves nothing behind once its keys are dropped.
const (
	SessionStatePrefix = "busline:session_state:"
	SeatMapCachePrefix = "busline:seat_map:"
)

// SessionStateKey builds the persisted client-state key for a session
func SessionStateKey(sessionID string) string {
	return SessionStatePrefix + sessionID
}

// SeatMapCacheKey builds the cached seat-map key for a ticket
func SeatMapCacheKey(ticketID string) string {
	return SeatMapCachePrefix + ticketID
}

// Default TTLs. SessionStateTTL is the 30-minute staleness cutoff after
// which persisted client state is discarded unread.
const (
	DefaultSessionStateTTL = 30 * time.Minute
	DefaultSeatMapCacheTTL = 30 * time.Second
)
