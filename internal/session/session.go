package session

import (
	"sync"
	"sync/atomic"
	"time"

	"busline/internal/orders"
	"busline/internal/passengers"
	"busline/internal/seats"
)

// Session is one agent's reservation in flight: the seat map, the passenger
// slots, the hold clock, and the order pipeline, all sharing one lifecycle.
// It is the single source of truth for seat and step state; mutations go
// through the Manager, which serializes them on the session mutex.
type Session struct {
	mu sync.Mutex

	ID             string
	AgentID        string
	TicketID       string
	Token          string
	ReservationKey string
	CreatedAt      time.Time

	step Step
	// expired and epoch are atomics so the order pipeline can check
	// staleness without the session lock; the pipeline holds its own lock
	// during the check, and readers of this lock call into the pipeline.
	// Writers still hold the session lock to keep both consistent with
	// step and seat state. epoch increments whenever the session is
	// cleared (expiry, cancel) so remote results started under an older
	// epoch are dropped, not applied.
	expired atomic.Bool
	epoch   atomic.Uint64
	// advancing guards against a re-entrant step advance; the second
	// request is rejected, not queued
	advancing bool

	Seats        *seats.Map
	Passengers   *passengers.Registry
	Timer        *HoldTimer
	Orchestrator *orders.Orchestrator
}

// View is the read model handed to transport layers
type View struct {
	SessionID     string                     `json:"session_id"`
	TicketID      string                     `json:"ticket_id"`
	Step          Step                       `json:"step"`
	HoldRemaining int                        `json:"hold_seconds_remaining"`
	Paused        bool                       `json:"is_paused"`
	Expired       bool                       `json:"is_expired"`
	Seats         []seats.SeatResponse       `json:"seats"`
	SelectedCount int                        `json:"selected_count"`
	MaxSelectable int                        `json:"max_selectable"`
	Passengers    []passengers.Slot          `json:"passengers"`
	Validation    passengers.ValidationState `json:"validation"`
	OrderProgress orders.ProgressInfo        `json:"order_progress"`
}

// view builds the read model. Callers hold the session lock.
func (s *Session) view() View {
	all := s.Seats.Snapshot()
	seatViews := make([]seats.SeatResponse, 0, len(all))
	for _, seat := range all {
		seatViews = append(seatViews, seat.ToResponse())
	}

	return View{
		SessionID:     s.ID,
		TicketID:      s.TicketID,
		Step:          s.step,
		HoldRemaining: s.Timer.Remaining(),
		Paused:        s.Timer.Paused(),
		Expired:       s.expired.Load(),
		Seats:         seatViews,
		SelectedCount: s.Seats.SelectedCount(),
		MaxSelectable: s.Seats.MaxSelectable(),
		Passengers:    s.Passengers.Snapshot(),
		Validation:    s.Passengers.Validate(),
		OrderProgress: s.Orchestrator.Progress(),
	}
}

// staleChecker returns a function reporting whether the session moved on
// from the given epoch. Handed to the order pipeline so results landing
// after an expiry or cancellation are dropped. The check must not take
// the session lock: the pipeline calls it while holding its own lock,
// and session readers call into the pipeline while holding this one.
func (s *Session) staleChecker(epoch uint64) func() bool {
	return func() bool {
		return s.expired.Load() || s.epoch.Load() != epoch
	}
}

// orderSnapshot freezes the seat and passenger state for the order
// pipeline. Callers hold the session lock.
func (s *Session) orderSnapshot() orders.Snapshot {
	selected := s.Seats.Selected()
	snap := orders.Snapshot{
		SessionID:      s.ID,
		TicketID:       s.TicketID,
		Token:          s.Token,
		ReservationKey: s.ReservationKey,
	}
	for _, seat := range selected {
		snap.SeatIDs = append(snap.SeatIDs, seat.ID)
		snap.SeatNumbers = append(snap.SeatNumbers, seat.SeatNumber)
	}
	for _, slot := range s.Passengers.Snapshot() {
		snap.Passengers = append(snap.Passengers, slot.ToNewPassenger())
	}
	return snap
}
