package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"busline/internal/carrier"
	"busline/internal/notifications"
	"busline/internal/orders"
	"busline/internal/passengers"
	"busline/internal/seats"
	"busline/internal/shared/config"
	"busline/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrAdvanceInFlight = errors.New("a step advance is already in flight")
	ErrNotReady        = errors.New("step precondition not met")
)

// Manager owns every live reservation session. It serializes mutations on
// the per-session mutex, releases that mutex across remote calls, and
// re-checks session state before applying their results.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	gateway  carrier.Gateway
	store    *Store
	repo     orders.Repository
	producer notifications.Producer
	cfg      config.BookingConfig
	log      *logger.Logger

	// background expiry cleanups, drained on shutdown
	cleanups sync.WaitGroup
}

// NewManager creates a session manager. store, repo and producer may be nil
// in tests; persistence and events degrade to no-ops.
func NewManager(gateway carrier.Gateway, store *Store, repo orders.Repository, producer notifications.Producer, cfg config.BookingConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.GetDefault()
	}
	if producer == nil {
		producer = notifications.NewNoopProducer()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		gateway:  gateway,
		store:    store,
		repo:     repo,
		producer: producer,
		cfg:      cfg,
		log:      log,
	}
}

// Create opens a reservation session: fetches the seat map, arms the hold
// timer, and registers the session.
func (m *Manager) Create(ctx context.Context, agentID, ticketID, token string) (View, error) {
	seatMap, err := m.gateway.FetchSeatMap(ctx, ticketID, token)
	if err != nil {
		return View{}, fmt.Errorf("failed to open session: %w", err)
	}

	s := &Session{
		ID:             uuid.New().String(),
		AgentID:        agentID,
		TicketID:       ticketID,
		Token:          token,
		ReservationKey: uuid.New().String(),
		CreatedAt:      time.Now().UTC(),
		step:           StepSeatAndPassenger,
		Seats:          seats.NewMap(m.cfg.MaxSelectableSeats),
		Passengers:     passengers.NewRegistry(m.cfg.NationalIDLength, m.cfg.ContactFieldsOn),
		Orchestrator:   orders.NewOrchestrator(m.gateway, m.gateway, m.repo, m.log),
	}
	s.Seats.Load(flattenSeatMap(seatMap))
	s.Timer = NewHoldTimer(func() { m.expire(s) })

	holdSeconds := int(m.cfg.HoldDuration.Seconds())
	if err := s.Timer.Start(holdSeconds); err != nil {
		return View{}, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.LogSessionStarted(ctx, s.ID, ticketID, agentID, holdSeconds)
	m.publish(ctx, notifications.EventSessionStarted, s, nil)
	m.persistState(ctx, s)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// Get returns the current view of a session
func (m *Manager) Get(sessionID string) (View, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// SelectSeat applies one click to a seat and re-syncs passenger slots
func (m *Manager) SelectSeat(ctx context.Context, sessionID string, seatID int) (View, error) {
	return m.mutateSeats(ctx, sessionID, func(s *Session) error {
		_, changed, err := s.Seats.Select(seatID)
		if err != nil {
			return err
		}
		if changed {
			s.Passengers.Sync(s.Seats.Selected())
		}
		return nil
	})
}

// RemoveSeat force-clears a selected seat
func (m *Manager) RemoveSeat(ctx context.Context, sessionID string, seatID int) (View, error) {
	return m.mutateSeats(ctx, sessionID, func(s *Session) error {
		_, changed, err := s.Seats.Remove(seatID)
		if err != nil {
			return err
		}
		if changed {
			s.Passengers.Sync(s.Seats.Selected())
		}
		return nil
	})
}

// SetSeatGender updates a selected seat's gender directly, as happens when
// the passenger's gender field is edited.
func (m *Manager) SetSeatGender(ctx context.Context, sessionID string, seatID int, gender seats.Gender) (View, error) {
	return m.mutateSeats(ctx, sessionID, func(s *Session) error {
		_, changed, err := s.Seats.SetGender(seatID, gender)
		if err != nil {
			return err
		}
		if changed {
			s.Passengers.Sync(s.Seats.Selected())
		}
		return nil
	})
}

// SetPassengerField updates one field of the slot bound to a seat
func (m *Manager) SetPassengerField(ctx context.Context, sessionID string, seatID int, field, value string) (View, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired.Load() {
		return s.view(), ErrSessionExpired
	}
	fieldErr := s.Passengers.SetField(seatID, field, value)
	return s.view(), fieldErr
}

// ListSavedPassengers returns the carrier's saved-passenger directory
func (m *Manager) ListSavedPassengers(ctx context.Context) ([]carrier.SavedPassenger, error) {
	return m.gateway.ListPassengers(ctx)
}

// ApplySavedPassenger fills a seat's slot from a saved directory record and
// aligns the seat's gender with the record.
func (m *Manager) ApplySavedPassenger(ctx context.Context, sessionID string, seatID int, passengerID string) (View, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return View{}, err
	}

	saved, err := m.gateway.ListPassengers(ctx)
	if err != nil {
		return View{}, fmt.Errorf("failed to list saved passengers: %w", err)
	}
	var record *carrier.SavedPassenger
	for i := range saved {
		if saved[i].ID == passengerID {
			record = &saved[i]
			break
		}
	}
	if record == nil {
		return View{}, fmt.Errorf("saved passenger %s not found", passengerID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired.Load() {
		return s.view(), ErrSessionExpired
	}

	gender := seats.GenderFemale
	if record.GenderMale {
		gender = seats.GenderMale
	}
	if _, _, err := s.Seats.SetGender(seatID, gender); err != nil {
		return s.view(), err
	}
	s.Passengers.Sync(s.Seats.Selected())
	if err := s.Passengers.ApplySaved(seatID, *record); err != nil {
		return s.view(), err
	}
	return s.view(), nil
}

// Advance moves the session one step forward. A second advance while one
// is in flight is rejected outright. Advancing out of the seat+passenger
// step commits the passenger slots first and blocks on commit failure.
func (m *Manager) Advance(ctx context.Context, sessionID string) (View, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	if s.expired.Load() {
		defer s.mu.Unlock()
		return s.view(), ErrSessionExpired
	}
	if s.advancing {
		defer s.mu.Unlock()
		return s.view(), ErrAdvanceInFlight
	}
	s.advancing = true
	step := s.step
	epoch := s.epoch.Load()
	s.mu.Unlock()

	finish := func() {
		s.mu.Lock()
		s.advancing = false
		s.mu.Unlock()
	}

	switch step {
	case StepSeatAndPassenger:
		view, err := m.advanceFromSeatStep(ctx, s, epoch)
		finish()
		return view, err

	case StepReview, StepPayment:
		defer finish()
		s.mu.Lock()
		defer s.mu.Unlock()
		attempt, ok := s.Orchestrator.Attempt()
		if !ok || attempt.Status != orders.StatusRedirecting {
			return s.view(), fmt.Errorf("%w: no successful order attempt", ErrNotReady)
		}
		next, _ := NextStep(step)
		s.step = next
		if next == StepComplete {
			s.Timer.Stop()
		}
		view := s.view()
		go m.persistState(context.WithoutCancel(ctx), s)
		return view, nil

	default:
		defer finish()
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.view(), fmt.Errorf("%w: from %s", ErrInvalidTransition, step)
	}
}

// advanceFromSeatStep gates on selection and validation, commits the
// passenger slots, and only then moves to review. The session lock is
// released across the commit; the epoch is re-checked before the step
// changes so an expiry mid-commit wins.
func (m *Manager) advanceFromSeatStep(ctx context.Context, s *Session, epoch uint64) (View, error) {
	s.mu.Lock()
	if s.Seats.SelectedCount() == 0 {
		defer s.mu.Unlock()
		return s.view(), fmt.Errorf("%w: no seat selected", ErrNotReady)
	}
	if !s.Passengers.Validate().AnyValid {
		defer s.mu.Unlock()
		return s.view(), fmt.Errorf("%w: no valid passenger", ErrNotReady)
	}
	s.mu.Unlock()

	result, err := s.Passengers.Commit(ctx, m.gateway)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.view(), fmt.Errorf("passenger commit failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired.Load() || s.epoch.Load() != epoch {
		return s.view(), ErrSessionExpired
	}
	if !result.Succeeded {
		msg := result.Message
		if msg == "" {
			msg = "passenger commit rejected"
		}
		return s.view(), fmt.Errorf("%w: %s", ErrNotReady, msg)
	}
	s.step = StepReview
	view := s.view()
	go m.persistState(context.WithoutCancel(ctx), s)
	return view, nil
}

// Back returns the session to the seat+passenger step, restoring the last
// committed passenger snapshot and compensating any in-flight order
// attempt that still owns an artifact.
func (m *Manager) Back(ctx context.Context, sessionID string) (View, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	if s.expired.Load() {
		defer s.mu.Unlock()
		return s.view(), ErrSessionExpired
	}
	if !CanTransition(s.step, StepSeatAndPassenger) {
		defer s.mu.Unlock()
		return s.view(), fmt.Errorf("%w: from %s", ErrInvalidTransition, s.step)
	}
	s.step = StepSeatAndPassenger
	s.Passengers.Restore(s.Passengers.CommittedSnapshot())
	s.mu.Unlock()

	if err := s.Orchestrator.Compensate(ctx, "backward navigation"); err != nil {
		m.log.ErrorWithContext(ctx, "compensation on backward navigation failed", err, map[string]interface{}{
			"session_id": s.ID,
		})
	} else {
		m.publishCompensated(ctx, s)
	}
	m.persistState(ctx, s)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// PlaceOrder runs the order pipeline from the review step. The session
// lock is not held across the pipeline; an expiry mid-run makes the
// pipeline drop its own results.
func (m *Manager) PlaceOrder(ctx context.Context, sessionID string) (*orders.Result, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.expired.Load() {
		s.mu.Unlock()
		return nil, ErrSessionExpired
	}
	if s.step != StepReview {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: order is placed from %s", ErrInvalidTransition, StepReview)
	}
	snap := s.orderSnapshot()
	stale := s.staleChecker(s.epoch.Load())
	s.mu.Unlock()

	result, err := s.Orchestrator.Run(ctx, snap, stale)
	if err != nil {
		if !errors.Is(err, orders.ErrStaleSession) && !errors.Is(err, orders.ErrAttemptInFlight) {
			m.publish(ctx, notifications.EventOrderFailed, s, map[string]any{
				"reason": err.Error(),
			})
		}
		return nil, err
	}

	event := notifications.NewBookingEvent(notifications.EventOrderCreated, s.ID)
	event.AgentID = s.AgentID
	event.TicketID = s.TicketID
	event.OrderRefNum = result.OrderRefNum
	if pubErr := m.producer.Publish(ctx, event); pubErr != nil {
		m.log.ErrorWithContext(ctx, "failed to publish order event", pubErr, map[string]interface{}{
			"session_id": s.ID,
		})
	}
	m.persistState(ctx, s)
	return result, nil
}

// PersistedState returns the reload-surviving client state for a session
func (m *Manager) PersistedState(ctx context.Context, sessionID string) (*ClientState, error) {
	if m.store == nil {
		return nil, ErrStateNotFound
	}
	return m.store.Load(ctx, sessionID)
}

// OrderProgress reports the active attempt's monotonic progress
func (m *Manager) OrderProgress(sessionID string) (orders.ProgressInfo, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return orders.ProgressInfo{}, err
	}
	return s.Orchestrator.Progress(), nil
}

// Pause suspends the hold countdown, as when the agent's screen is hidden
func (m *Manager) Pause(sessionID string) (View, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return View{}, err
	}
	s.Timer.Pause()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// Resume continues the hold countdown
func (m *Manager) Resume(sessionID string) (View, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return View{}, err
	}
	s.Timer.Resume()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// Cancel tears a session down before its hold runs out: clears seats,
// compensates any open order attempt, and drops persisted state.
func (m *Manager) Cancel(ctx context.Context, sessionID string) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	alreadyDone := s.expired.Load()
	s.expired.Store(true)
	s.epoch.Add(1)
	s.Seats.Reset()
	if CanTransition(s.step, StepExpired) {
		s.step = StepExpired
	}
	s.mu.Unlock()

	s.Timer.Stop()

	if !alreadyDone {
		if err := s.Orchestrator.Compensate(ctx, "session cancelled"); err != nil {
			m.log.ErrorWithContext(ctx, "compensation on cancel failed", err, map[string]interface{}{
				"session_id": s.ID,
			})
		}
		m.publish(ctx, notifications.EventSessionCancelled, s, nil)
	}

	if m.store != nil {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			m.log.ErrorWithContext(ctx, "failed to drop session state", err, map[string]interface{}{
				"session_id": s.ID,
			})
		}
	}

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	return nil
}

// Shutdown cancels every live session and waits for expiry cleanups
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Cancel(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.log.ErrorWithContext(ctx, "failed to cancel session on shutdown", err, map[string]interface{}{
				"session_id": id,
			})
		}
	}
	m.cleanups.Wait()
}

// expire is the hold timer's callback: the sole timeout authority. It
// clears every selected seat, bumps the epoch so in-flight remote results
// go stale, compensates the order attempt, and schedules state cleanup
// after a short grace delay.
func (m *Manager) expire(s *Session) {
	s.mu.Lock()
	if s.expired.Load() {
		s.mu.Unlock()
		return
	}
	s.expired.Store(true)
	s.epoch.Add(1)
	cleared := s.Seats.Reset()
	if CanTransition(s.step, StepExpired) {
		s.step = StepExpired
	}
	s.mu.Unlock()

	ctx := context.Background()
	if err := s.Orchestrator.Compensate(ctx, "hold expired"); err != nil {
		m.log.ErrorWithContext(ctx, "compensation on expiry failed", err, map[string]interface{}{
			"session_id": s.ID,
		})
	} else {
		m.publishCompensated(ctx, s)
	}

	m.log.LogSessionExpired(ctx, s.ID, cleared)
	m.publish(ctx, notifications.EventSessionExpired, s, map[string]any{"cleared_seats": cleared})

	m.cleanups.Add(1)
	time.AfterFunc(m.cfg.ExpiryGraceDelay, func() {
		defer m.cleanups.Done()
		if m.store != nil {
			_ = m.store.Delete(context.Background(), s.ID)
		}
		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()
	})
}

// mutateSeats runs one seat mutation under the session lock and persists
// the resulting state.
func (m *Manager) mutateSeats(ctx context.Context, sessionID string, mutate func(*Session) error) (View, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	if s.expired.Load() {
		defer s.mu.Unlock()
		return s.view(), ErrSessionExpired
	}
	if mutErr := mutate(s); mutErr != nil {
		defer s.mu.Unlock()
		return s.view(), mutErr
	}
	view := s.view()
	s.mu.Unlock()

	m.persistState(ctx, s)
	return view, nil
}

func (m *Manager) session(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// persistState saves the reload-surviving slice of a session. Best effort;
// a Redis hiccup never fails the user's action.
func (m *Manager) persistState(ctx context.Context, s *Session) {
	if m.store == nil {
		return
	}

	s.mu.Lock()
	state := ClientState{
		SessionID:   s.ID,
		TicketID:    s.TicketID,
		Token:       s.Token,
		HoldKey:     s.ReservationKey,
		CurrentStep: s.step,
		Passengers:  s.Passengers.Snapshot(),
	}
	if attempt, ok := s.Orchestrator.Attempt(); ok {
		if attempt.ArtifactRef != nil {
			state.ArtifactRef = *attempt.ArtifactRef
		}
		if attempt.AssetID != nil {
			state.AssetID = *attempt.AssetID
		}
	}
	s.mu.Unlock()

	if err := m.store.Save(ctx, state); err != nil {
		m.log.ErrorWithContext(ctx, "failed to persist session state", err, map[string]interface{}{
			"session_id": s.ID,
		})
	}
}

func (m *Manager) publish(ctx context.Context, eventType notifications.EventType, s *Session, payload map[string]any) {
	event := notifications.NewBookingEvent(eventType, s.ID)
	event.AgentID = s.AgentID
	event.TicketID = s.TicketID
	event.Payload = payload
	if err := m.producer.Publish(ctx, event); err != nil {
		m.log.ErrorWithContext(ctx, "failed to publish booking event", err, map[string]interface{}{
			"session_id": s.ID,
			"event_type": string(eventType),
		})
	}
}

// publishCompensated emits a compensation event when an artifact was
// actually rolled back, not on every no-op compensate call.
func (m *Manager) publishCompensated(ctx context.Context, s *Session) {
	attempt, ok := s.Orchestrator.Attempt()
	if !ok || attempt.Status != orders.StatusCompensated {
		return
	}
	m.publish(ctx, notifications.EventCompensationPerformed, s, nil)
}

// flattenSeatMap converts the carrier's table-grouped wire format into the
// flat import the seat map consumes.
func flattenSeatMap(resp *carrier.SeatMapResponse) []seats.ImportedSeat {
	var imported []seats.ImportedSeat
	for _, table := range resp.Tables {
		for _, row := range table.Rows {
			imported = append(imported, seats.ImportedSeat{
				ID:             row.Index,
				SeatNumber:     row.SeatNumber,
				Occupied:       row.Status == carrier.SeatStatusOccupied,
				OccupantGender: row.OccupantGender,
			})
		}
	}
	return imported
}
