package seats_test

import (
	"testing"

	"busline/internal/seats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedMap(t *testing.T, maxSelectable int, entries ...seats.ImportedSeat) *seats.Map {
	t.Helper()
	m := seats.NewMap(maxSelectable)
	m.Load(entries)
	return m
}

func emptySeat(id int, number string) seats.ImportedSeat {
	return seats.ImportedSeat{ID: id, SeatNumber: number, Occupied: false}
}

func TestSelect_ClickCycleClosesAfterThreeClicks(t *testing.T) {
	m := loadedMap(t, 4, emptySeat(12, "12"))

	seat, changed, err := m.Select(12)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, seats.StateSelectedMale, seat.State)

	seat, changed, err = m.Select(12)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, seats.StateSelectedFemale, seat.State)

	seat, changed, err = m.Select(12)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, seats.StateDefault, seat.State)
	assert.Zero(t, m.SelectedCount())
}

func TestSelect_CapacityEnforcedBeforeTransition(t *testing.T) {
	m := loadedMap(t, 4,
		emptySeat(1, "1"), emptySeat(2, "2"), emptySeat(3, "3"),
		emptySeat(4, "4"), emptySeat(5, "5"),
	)

	for _, id := range []int{1, 2, 3, 4} {
		_, changed, err := m.Select(id)
		require.NoError(t, err)
		require.True(t, changed)
	}

	seat, changed, err := m.Select(5)
	assert.ErrorIs(t, err, seats.ErrCapacityExceeded)
	assert.False(t, changed)
	assert.Equal(t, seats.StateDefault, seat.State)
	assert.Equal(t, 4, m.SelectedCount())
}

func TestSelect_CyclingSelectedSeatIgnoresCapacity(t *testing.T) {
	m := loadedMap(t, 1, emptySeat(1, "1"))

	_, _, err := m.Select(1)
	require.NoError(t, err)

	// male → female stays within the one selected seat
	seat, changed, err := m.Select(1)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, seats.StateSelectedFemale, seat.State)
	assert.Equal(t, 1, m.SelectedCount())
}

func TestSelect_ReservedSeatIsImmutable(t *testing.T) {
	m := loadedMap(t, 4,
		seats.ImportedSeat{ID: 7, SeatNumber: "7", Occupied: true, OccupantGender: "M"},
		seats.ImportedSeat{ID: 8, SeatNumber: "8", Occupied: true, OccupantGender: "F"},
	)

	for _, id := range []int{7, 8} {
		seat, changed, err := m.Select(id)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.True(t, seat.State.IsReserved())
	}
	assert.Zero(t, m.SelectedCount())
}

func TestSelect_UnknownOccupantGenderStillReserved(t *testing.T) {
	m := loadedMap(t, 4,
		seats.ImportedSeat{ID: 9, SeatNumber: "9", Occupied: true, OccupantGender: "UN"},
	)

	seat, changed, err := m.Select(9)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, seats.StateReserved, seat.State)
	assert.False(t, seat.IsAvailable)
}

func TestSelect_UnknownSeat(t *testing.T) {
	m := loadedMap(t, 4, emptySeat(1, "1"))

	_, _, err := m.Select(99)
	assert.ErrorIs(t, err, seats.ErrSeatNotFound)
}

func TestRemove_AlwaysAllowed(t *testing.T) {
	m := loadedMap(t, 4, emptySeat(1, "1"), emptySeat(2, "2"))

	_, _, err := m.Select(1)
	require.NoError(t, err)

	seat, changed, err := m.Remove(1)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, seats.StateDefault, seat.State)

	// removing an unselected seat is a no-op
	_, changed, err = m.Remove(2)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSelectRemoveSequencesNeverExceedCapacity(t *testing.T) {
	m := loadedMap(t, 2, emptySeat(1, "1"), emptySeat(2, "2"), emptySeat(3, "3"))

	ops := []struct {
		op string
		id int
	}{
		{"select", 1}, {"select", 2}, {"select", 3},
		{"remove", 1}, {"select", 3}, {"select", 3},
		{"select", 1}, {"remove", 2}, {"select", 2},
	}

	for _, step := range ops {
		switch step.op {
		case "select":
			m.Select(step.id)
		case "remove":
			m.Remove(step.id)
		}
		assert.LessOrEqual(t, m.SelectedCount(), 2)
	}
}

func TestSetGender_BypassesCycleAndCapacity(t *testing.T) {
	m := loadedMap(t, 1, emptySeat(1, "1"), emptySeat(2, "2"))

	_, _, err := m.Select(1)
	require.NoError(t, err)

	seat, changed, err := m.SetGender(1, seats.GenderFemale)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, seats.StateSelectedFemale, seat.State)
	assert.Equal(t, 1, m.SelectedCount())

	// same gender again is a no-op
	_, changed, err = m.SetGender(1, seats.GenderFemale)
	require.NoError(t, err)
	assert.False(t, changed)

	// only selected seats carry a gender
	_, _, err = m.SetGender(2, seats.GenderMale)
	assert.ErrorIs(t, err, seats.ErrSeatNotSelected)
}

func TestLoad_DoesNotOverwriteSelectedSeats(t *testing.T) {
	m := loadedMap(t, 4, emptySeat(1, "1"), emptySeat(2, "2"))

	_, _, err := m.Select(1)
	require.NoError(t, err)

	// second import reports seat 1 occupied; the local selection wins
	m.Load([]seats.ImportedSeat{
		{ID: 1, SeatNumber: "1", Occupied: true, OccupantGender: "M"},
		{ID: 2, SeatNumber: "2", Occupied: true, OccupantGender: "F"},
	})

	seat, _ := m.Get(1)
	assert.Equal(t, seats.StateSelectedMale, seat.State)

	seat, _ = m.Get(2)
	assert.Equal(t, seats.StateReservedFemale, seat.State)
	assert.Equal(t, 2, len(m.Snapshot()))
}

func TestReset_ClearsOnlySelectedSeats(t *testing.T) {
	m := loadedMap(t, 4,
		emptySeat(1, "1"), emptySeat(2, "2"),
		seats.ImportedSeat{ID: 3, SeatNumber: "3", Occupied: true, OccupantGender: "M"},
	)

	m.Select(1)
	m.Select(2)

	cleared := m.Reset()
	assert.Equal(t, 2, cleared)
	assert.Zero(t, m.SelectedCount())

	seat, _ := m.Get(3)
	assert.Equal(t, seats.StateReservedMale, seat.State)
}

func TestSelected_ReturnsImportOrder(t *testing.T) {
	m := loadedMap(t, 4, emptySeat(13, "13"), emptySeat(12, "12"))

	m.Select(12)
	m.Select(13)

	selected := m.Selected()
	require.Len(t, selected, 2)
	assert.Equal(t, 13, selected[0].ID)
	assert.Equal(t, 12, selected[1].ID)
}
