package seats

import (
	"errors"
	"fmt"
)

var (
	ErrSeatNotFound     = errors.New("seat not found")
	ErrCapacityExceeded = errors.New("maximum selectable seats reached")
	ErrSeatNotSelected  = errors.New("seat is not selected")
)

// Map holds the canonical seat collection for one reservation session and
// applies the click-cycle rule. It is not safe for concurrent use; the
// owning session serializes access.
type Map struct {
	seats         map[int]*Seat
	order         []int
	maxSelectable int
}

// NewMap creates an empty seat map with a selection capacity
func NewMap(maxSelectable int) *Map {
	return &Map{
		seats:         make(map[int]*Seat),
		maxSelectable: maxSelectable,
	}
}

// Load imports a server seat map. The import is idempotent: occupied seats
// become reserved (flavored by occupant gender, gender-neutral when the
// carrier reports "UN"), empty seats become default, and a seat the agent
// has already selected in this session is never overwritten.
func (m *Map) Load(entries []ImportedSeat) {
	for _, e := range entries {
		existing, ok := m.seats[e.ID]
		if ok && existing.State.IsSelected() {
			continue
		}

		seat := &Seat{
			ID:         e.ID,
			SeatNumber: e.SeatNumber,
		}
		if e.Occupied {
			seat.IsAvailable = false
			switch e.OccupantGender {
			case "M":
				seat.State = StateReservedMale
			case "F":
				seat.State = StateReservedFemale
			default:
				seat.State = StateReserved
			}
		} else {
			seat.IsAvailable = true
			seat.State = StateDefault
		}

		if !ok {
			m.order = append(m.order, e.ID)
		}
		m.seats[e.ID] = seat
	}
}

// Select applies one click to a seat, cycling
// default → selected-male → selected-female → default.
// Reserved and unavailable seats are a no-op (changed=false). Entering a
// selected state past capacity is rejected with ErrCapacityExceeded and no
// mutation happens.
func (m *Map) Select(seatID int) (Seat, bool, error) {
	seat, ok := m.seats[seatID]
	if !ok {
		return Seat{}, false, ErrSeatNotFound
	}

	if seat.State.IsReserved() || (!seat.IsAvailable && !seat.State.IsSelected()) {
		return *seat, false, nil
	}

	next := nextInCycle(seat.State)
	if next == seat.State {
		return *seat, false, nil
	}

	// Capacity is checked at the moment of entering a selected state,
	// not by repairing an over-count afterwards.
	if !seat.State.IsSelected() && next.IsSelected() {
		if m.SelectedCount() >= m.maxSelectable {
			return *seat, false, fmt.Errorf("%w: limit is %d", ErrCapacityExceeded, m.maxSelectable)
		}
	}

	seat.State = next
	return *seat, true, nil
}

// Remove force-transitions a selected seat back to default. Always allowed;
// removing a seat that is not selected is a no-op.
func (m *Map) Remove(seatID int) (Seat, bool, error) {
	seat, ok := m.seats[seatID]
	if !ok {
		return Seat{}, false, ErrSeatNotFound
	}
	if !seat.State.IsSelected() {
		return *seat, false, nil
	}
	seat.State = StateDefault
	return *seat, true, nil
}

// SetGender updates a selected seat's gender flavor directly, bypassing the
// click cycle. Capacity accounting is unaffected since the seat stays
// selected either way.
func (m *Map) SetGender(seatID int, gender Gender) (Seat, bool, error) {
	seat, ok := m.seats[seatID]
	if !ok {
		return Seat{}, false, ErrSeatNotFound
	}
	if !seat.State.IsSelected() {
		return *seat, false, ErrSeatNotSelected
	}

	next := gender.SelectedState()
	if seat.State == next {
		return *seat, false, nil
	}
	seat.State = next
	return *seat, true, nil
}

// Reset clears every selected seat back to default and returns how many
// were cleared. Used on session expiry and cancellation.
func (m *Map) Reset() int {
	cleared := 0
	for _, seat := range m.seats {
		if seat.State.IsSelected() {
			seat.State = StateDefault
			cleared++
		}
	}
	return cleared
}

// Get returns a copy of one seat
func (m *Map) Get(seatID int) (Seat, bool) {
	seat, ok := m.seats[seatID]
	if !ok {
		return Seat{}, false
	}
	return *seat, true
}

// SelectedCount returns the number of seats currently selected
func (m *Map) SelectedCount() int {
	count := 0
	for _, seat := range m.seats {
		if seat.State.IsSelected() {
			count++
		}
	}
	return count
}

// Selected returns copies of the selected seats in import order
func (m *Map) Selected() []Seat {
	var selected []Seat
	for _, id := range m.order {
		if seat := m.seats[id]; seat.State.IsSelected() {
			selected = append(selected, *seat)
		}
	}
	return selected
}

// Snapshot returns copies of all seats in import order
func (m *Map) Snapshot() []Seat {
	all := make([]Seat, 0, len(m.order))
	for _, id := range m.order {
		all = append(all, *m.seats[id])
	}
	return all
}

// AvailableCount returns how many seats the agent could still select
func (m *Map) AvailableCount() int {
	count := 0
	for _, seat := range m.seats {
		if seat.IsAvailable && !seat.State.IsReserved() {
			count++
		}
	}
	return count
}

// MaxSelectable returns the session capacity
func (m *Map) MaxSelectable() int {
	return m.maxSelectable
}
