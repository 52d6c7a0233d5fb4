package passengers_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"busline/internal/carrier"
	"busline/internal/passengers"
	"busline/internal/seats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	mu sync.Mutex

	createCalls [][]carrier.NewPassenger
	updateCalls map[string]carrier.NewPassenger

	createErr    error
	updateErr    error
	duplicateRes *carrier.DuplicateCheck

	// createGate, when set, blocks BulkCreatePassengers until released
	createGate chan struct{}

	nextID int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{updateCalls: make(map[string]carrier.NewPassenger)}
}

func (f *fakeDirectory) BulkCreatePassengers(ctx context.Context, ps []carrier.NewPassenger) ([]carrier.SavedPassenger, error) {
	f.mu.Lock()
	f.createCalls = append(f.createCalls, ps)
	f.mu.Unlock()

	if f.createGate != nil {
		<-f.createGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	out := make([]carrier.SavedPassenger, 0, len(ps))
	for _, p := range ps {
		f.nextID++
		out = append(out, carrier.SavedPassenger{
			ID:           fmt.Sprintf("saved-%d", f.nextID),
			FirstName:    p.FirstName,
			LastName:     p.LastName,
			NationalCode: p.NationalCode,
			GenderMale:   p.GenderMale,
			SeatNumber:   p.SeatNumber,
			SeatID:       p.SeatID,
		})
	}
	return out, nil
}

func (f *fakeDirectory) UpdatePassenger(ctx context.Context, id string, fields carrier.NewPassenger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls[id] = fields
	return f.updateErr
}

func (f *fakeDirectory) ValidatePassengers(ctx context.Context, ps []carrier.NewPassenger) (*carrier.DuplicateCheck, error) {
	if f.duplicateRes != nil {
		return f.duplicateRes, nil
	}
	return &carrier.DuplicateCheck{}, nil
}

func selectedSeat(id int, number string, g seats.Gender) seats.Seat {
	return seats.Seat{ID: id, SeatNumber: number, State: g.SelectedState(), IsAvailable: true}
}

func fillValid(t *testing.T, r *passengers.Registry, seatID int, name, family, nid string) {
	t.Helper()
	require.NoError(t, r.SetField(seatID, passengers.FieldName, name))
	require.NoError(t, r.SetField(seatID, passengers.FieldFamily, family))
	require.NoError(t, r.SetField(seatID, passengers.FieldNationalID, nid))
}

func TestSync_SlotPerSelectedSeatWithDerivedGender(t *testing.T) {
	r := passengers.NewRegistry(10, false)

	r.Sync([]seats.Seat{
		selectedSeat(12, "12", seats.GenderMale),
		selectedSeat(13, "13", seats.GenderFemale),
	})

	require.Equal(t, 2, r.Count())
	snapshot := r.Snapshot()
	assert.Equal(t, seats.GenderMale, snapshot[0].Gender)
	assert.Equal(t, seats.GenderFemale, snapshot[1].Gender)
}

func TestSync_PreservesEnteredFieldsAndRemovesDeselected(t *testing.T) {
	r := passengers.NewRegistry(10, false)
	r.Sync([]seats.Seat{
		selectedSeat(1, "1", seats.GenderMale),
		selectedSeat(2, "2", seats.GenderMale),
	})
	fillValid(t, r, 1, "Ali", "Rezaei", "0012345678")

	r.Sync([]seats.Seat{selectedSeat(1, "1", seats.GenderFemale)})

	require.Equal(t, 1, r.Count())
	slot := r.Snapshot()[0]
	assert.Equal(t, "Ali", slot.Name)
	assert.Equal(t, "Rezaei", slot.Family)
	// gender follows the seat state
	assert.Equal(t, seats.GenderFemale, slot.Gender)
}

func TestDuplicateNationalID_FlagsBothAndClearsBoth(t *testing.T) {
	r := passengers.NewRegistry(10, false)
	r.Sync([]seats.Seat{
		selectedSeat(1, "1", seats.GenderMale),
		selectedSeat(2, "2", seats.GenderMale),
	})
	fillValid(t, r, 1, "Ali", "Rezaei", "0012345678")
	require.NoError(t, r.SetField(2, passengers.FieldName, "Sara"))
	require.NoError(t, r.SetField(2, passengers.FieldFamily, "Karimi"))

	err := r.SetField(2, passengers.FieldNationalID, "0012345678")
	assert.ErrorIs(t, err, passengers.ErrDuplicateNationalID)

	state := r.Validate()
	assert.False(t, state.AllValid)
	require.Len(t, state.Slots, 2)
	assert.Equal(t, "2", state.Slots[0].DuplicateOfSeat)
	assert.Equal(t, "1", state.Slots[1].DuplicateOfSeat)
	assert.Contains(t, state.Slots[1].DuplicateMessage, "seat 1")

	// resolving one side clears both flags
	require.NoError(t, r.SetField(2, passengers.FieldNationalID, "0087654321"))
	state = r.Validate()
	assert.True(t, state.AllValid)
	assert.Empty(t, state.Slots[0].DuplicateOfSeat)
	assert.Empty(t, state.Slots[1].DuplicateOfSeat)
}

func TestValidate_Flags(t *testing.T) {
	r := passengers.NewRegistry(10, false)
	r.Sync([]seats.Seat{
		selectedSeat(1, "1", seats.GenderMale),
		selectedSeat(2, "2", seats.GenderFemale),
	})

	state := r.Validate()
	assert.False(t, state.AnyValid)
	assert.False(t, state.AllValid)

	fillValid(t, r, 1, "Ali", "Rezaei", "0012345678")
	state = r.Validate()
	assert.True(t, state.AnyValid)
	assert.False(t, state.AllValid)

	fillValid(t, r, 2, "Sara", "Karimi", "0087654321")
	state = r.Validate()
	assert.True(t, state.AnyValid)
	assert.True(t, state.AllValid)

	// a short national ID invalidates the slot
	require.NoError(t, r.SetField(2, passengers.FieldNationalID, "123"))
	state = r.Validate()
	assert.False(t, state.AllValid)
}

func TestValidate_ContactFieldsGateAllValid(t *testing.T) {
	r := passengers.NewRegistry(10, true)
	r.Sync([]seats.Seat{selectedSeat(1, "1", seats.GenderMale)})
	fillValid(t, r, 1, "Ali", "Rezaei", "0012345678")

	require.NoError(t, r.SetField(1, passengers.FieldEmail, "not-an-email"))
	state := r.Validate()
	assert.False(t, state.AllValid)

	require.NoError(t, r.SetField(1, passengers.FieldEmail, "ali@example.com"))
	state = r.Validate()
	assert.True(t, state.AllValid)
}

func TestCommit_CreatesNewAndRecordsSourceIDs(t *testing.T) {
	r := passengers.NewRegistry(10, false)
	dir := newFakeDirectory()
	r.Sync([]seats.Seat{
		selectedSeat(1, "1", seats.GenderMale),
		selectedSeat(2, "2", seats.GenderFemale),
	})
	fillValid(t, r, 1, "Ali", "Rezaei", "0012345678")
	fillValid(t, r, 2, "Sara", "Karimi", "0087654321")

	result, err := r.Commit(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Equal(t, 2, result.Created)

	for _, slot := range r.Snapshot() {
		assert.NotEmpty(t, slot.SourceID)
	}
}

func TestCommit_SkipsUnchangedSlots(t *testing.T) {
	r := passengers.NewRegistry(10, false)
	dir := newFakeDirectory()
	r.Sync([]seats.Seat{
		selectedSeat(1, "1", seats.GenderMale),
		selectedSeat(2, "2", seats.GenderFemale),
	})
	fillValid(t, r, 1, "Ali", "Rezaei", "0012345678")
	fillValid(t, r, 2, "Sara", "Karimi", "0087654321")

	_, err := r.Commit(context.Background(), dir)
	require.NoError(t, err)

	// only seat 1 changes; seat 2 must not be re-submitted
	require.NoError(t, r.SetField(1, passengers.FieldName, "Hossein"))
	result, err := r.Commit(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Created)
}

func TestCommit_ReentrantCallRejected(t *testing.T) {
	r := passengers.NewRegistry(10, false)
	dir := newFakeDirectory()
	dir.createGate = make(chan struct{})

	r.Sync([]seats.Seat{selectedSeat(1, "1", seats.GenderMale)})
	fillValid(t, r, 1, "Ali", "Rezaei", "0012345678")

	done := make(chan error, 1)
	go func() {
		_, err := r.Commit(context.Background(), dir)
		done <- err
	}()

	// wait for the first commit to reach the directory call
	for {
		dir.mu.Lock()
		started := len(dir.createCalls) > 0
		dir.mu.Unlock()
		if started {
			break
		}
	}

	_, err := r.Commit(context.Background(), dir)
	assert.ErrorIs(t, err, passengers.ErrCommitInFlight)

	close(dir.createGate)
	require.NoError(t, <-done)
}

func TestCommit_TotalFailureReportsError(t *testing.T) {
	r := passengers.NewRegistry(10, false)
	dir := newFakeDirectory()
	dir.createErr = errors.New("directory down")

	r.Sync([]seats.Seat{selectedSeat(1, "1", seats.GenderMale)})
	fillValid(t, r, 1, "Ali", "Rezaei", "0012345678")

	result, err := r.Commit(context.Background(), dir)
	assert.ErrorIs(t, err, passengers.ErrAllSlotsFailed)
	assert.False(t, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
}

func TestCommit_CarrierDuplicateBlocksWithoutError(t *testing.T) {
	r := passengers.NewRegistry(10, false)
	dir := newFakeDirectory()
	dir.duplicateRes = &carrier.DuplicateCheck{HasDuplicates: true, Message: "duplicate on trip"}

	r.Sync([]seats.Seat{selectedSeat(1, "1", seats.GenderMale)})
	fillValid(t, r, 1, "Ali", "Rezaei", "0012345678")

	result, err := r.Commit(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	assert.Equal(t, "duplicate on trip", result.Message)
	assert.Empty(t, dir.createCalls)
}

func TestCommit_DropsResultForSeatDeselectedMidFlight(t *testing.T) {
	r := passengers.NewRegistry(10, false)
	dir := newFakeDirectory()
	dir.createGate = make(chan struct{})

	r.Sync([]seats.Seat{
		selectedSeat(1, "1", seats.GenderMale),
		selectedSeat(2, "2", seats.GenderFemale),
	})
	fillValid(t, r, 1, "Ali", "Rezaei", "0012345678")
	fillValid(t, r, 2, "Sara", "Karimi", "0087654321")

	done := make(chan error, 1)
	go func() {
		_, err := r.Commit(context.Background(), dir)
		done <- err
	}()

	// seat 2 is deselected while its create is in flight
	for {
		dir.mu.Lock()
		started := len(dir.createCalls) > 0
		dir.mu.Unlock()
		if started {
			break
		}
	}
	r.Sync([]seats.Seat{selectedSeat(1, "1", seats.GenderMale)})
	close(dir.createGate)
	require.NoError(t, <-done)

	require.Equal(t, 1, r.Count())
	slot := r.Snapshot()[0]
	assert.Equal(t, 1, slot.SeatID)
	assert.NotEmpty(t, slot.SourceID)
}

func TestRestore_ReplacesWorkingSet(t *testing.T) {
	r := passengers.NewRegistry(10, false)
	dir := newFakeDirectory()
	r.Sync([]seats.Seat{
		selectedSeat(12, "12", seats.GenderMale),
		selectedSeat(13, "13", seats.GenderFemale),
	})
	fillValid(t, r, 12, "Ali", "Rezaei", "0012345678")
	fillValid(t, r, 13, "Sara", "Karimi", "0087654321")

	_, err := r.Commit(context.Background(), dir)
	require.NoError(t, err)
	committed := r.CommittedSnapshot()
	require.Len(t, committed, 2)

	// scribble over the working set, then step backward
	require.NoError(t, r.SetField(12, passengers.FieldName, "X"))
	r.Restore(committed)

	restored := r.Snapshot()
	assert.Equal(t, "Ali", restored[0].Name)
	assert.Equal(t, "Sara", restored[1].Name)
}

func TestApplySaved_PopulatesSlotFromDirectory(t *testing.T) {
	r := passengers.NewRegistry(10, false)
	r.Sync([]seats.Seat{selectedSeat(1, "1", seats.GenderMale)})

	err := r.ApplySaved(1, carrier.SavedPassenger{
		ID:           "saved-9",
		FirstName:    "Maryam",
		LastName:     "Ahmadi",
		NationalCode: "0011223344",
		GenderMale:   false,
		DateOfBirth:  "1370-01-01",
	})
	require.NoError(t, err)

	slot := r.Snapshot()[0]
	assert.Equal(t, "saved-9", slot.SourceID)
	assert.Equal(t, "Maryam", slot.Name)
	assert.Equal(t, seats.GenderFemale, slot.Gender)
}
