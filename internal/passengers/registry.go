package passengers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"busline/internal/carrier"
	"busline/internal/seats"

	"github.com/go-playground/validator/v10"
)

var (
	ErrSlotNotFound        = errors.New("no passenger slot for seat")
	ErrUnknownField        = errors.New("unknown passenger field")
	ErrCommitInFlight      = errors.New("a passenger commit is already in flight")
	ErrAllSlotsFailed      = errors.New("no passenger slot could be persisted")
	ErrDuplicateNationalID = errors.New("duplicate national ID")
)

// Field names accepted by SetField
const (
	FieldName       = "name"
	FieldFamily     = "family"
	FieldNationalID = "national_id"
	FieldBirthDate  = "birth_date"
	FieldPhone      = "phone"
	FieldEmail      = "email"
)

// Directory is the subset of the carrier API the registry persists through
type Directory interface {
	BulkCreatePassengers(ctx context.Context, passengers []carrier.NewPassenger) ([]carrier.SavedPassenger, error)
	UpdatePassenger(ctx context.Context, passengerID string, fields carrier.NewPassenger) error
	ValidatePassengers(ctx context.Context, passengers []carrier.NewPassenger) (*carrier.DuplicateCheck, error)
}

// Registry keeps exactly one passenger slot per selected seat. Slot
// mutation happens under the registry lock; remote persistence releases the
// lock mid-flight and drops results for seats deselected in the meantime.
type Registry struct {
	mu    sync.Mutex
	slots map[int]*Slot
	order []int

	nationalIDLength string // validator tag fragment, e.g. "len=10"
	idLength         int
	contactFields    bool

	committing bool
	// last data pushed to the directory, per seat; slots matching this are
	// skipped on the next commit
	lastCommitted map[int]Slot
	// snapshot taken at the end of a successful commit, restorable on
	// backward navigation
	committed []Slot

	validate *validator.Validate
}

// NewRegistry creates a registry. nationalIDLength is the required fixed
// length of the national identifier; contactFields enables phone/email
// format gating.
func NewRegistry(nationalIDLength int, contactFields bool) *Registry {
	return &Registry{
		slots:            make(map[int]*Slot),
		lastCommitted:    make(map[int]Slot),
		idLength:         nationalIDLength,
		nationalIDLength: fmt.Sprintf("len=%d", nationalIDLength),
		contactFields:    contactFields,
		validate:         validator.New(),
	}
}

// Sync reconciles the slot set with the current seat selection: new
// selected seats get a slot with gender derived from the seat state,
// deselected seats lose theirs, surviving slots keep their field values
// (with gender re-synced to the seat).
func (r *Registry) Sync(selected []seats.Seat) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keep := make(map[int]bool, len(selected))
	for _, seat := range selected {
		keep[seat.ID] = true
		gender, _ := seats.GenderOf(seat.State)

		if slot, ok := r.slots[seat.ID]; ok {
			slot.Gender = gender
			slot.SeatNumber = seat.SeatNumber
			continue
		}

		r.slots[seat.ID] = &Slot{
			SeatID:     seat.ID,
			SeatNumber: seat.SeatNumber,
			Gender:     gender,
		}
		r.order = append(r.order, seat.ID)
	}

	for id := range r.slots {
		if !keep[id] {
			delete(r.slots, id)
		}
	}
	r.compactOrder()
	r.recomputeDuplicates()
}

// SetField updates one field of a slot. Setting a full-length national ID
// triggers the synchronous duplicate check across the session.
func (r *Registry) SetField(seatID int, field, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[seatID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrSlotNotFound, seatID)
	}

	switch field {
	case FieldName:
		slot.Name = strings.TrimSpace(value)
	case FieldFamily:
		slot.Family = strings.TrimSpace(value)
	case FieldNationalID:
		slot.NationalID = strings.TrimSpace(value)
		r.recomputeDuplicates()
		if slot.HasDuplicate() {
			return fmt.Errorf("%w: %s", ErrDuplicateNationalID, slot.DuplicateMessage)
		}
	case FieldBirthDate:
		slot.BirthDate = strings.TrimSpace(value)
	case FieldPhone:
		slot.Phone = strings.TrimSpace(value)
	case FieldEmail:
		slot.Email = strings.TrimSpace(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// ApplySaved populates a slot from a saved-passenger directory record
func (r *Registry) ApplySaved(seatID int, saved carrier.SavedPassenger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[seatID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrSlotNotFound, seatID)
	}

	slot.Name = saved.FirstName
	slot.Family = saved.LastName
	slot.NationalID = saved.NationalCode
	slot.BirthDate = saved.DateOfBirth
	slot.SourceID = saved.ID
	if saved.GenderMale {
		slot.Gender = seats.GenderMale
	} else {
		slot.Gender = seats.GenderFemale
	}
	r.recomputeDuplicates()
	if slot.HasDuplicate() {
		return fmt.Errorf("%w: %s", ErrDuplicateNationalID, slot.DuplicateMessage)
	}
	return nil
}

// Gender returns the gender currently recorded for a seat's slot
func (r *Registry) Gender(seatID int) (seats.Gender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[seatID]
	if !ok {
		return "", false
	}
	return slot.Gender, true
}

// Validate reports the two gating flags plus per-slot verdicts
func (r *Registry) Validate() ValidationState {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := ValidationState{AllValid: len(r.slots) > 0}
	for _, id := range r.order {
		slot := r.slots[id]
		valid := r.slotValid(slot)
		if valid {
			state.AnyValid = true
		} else {
			state.AllValid = false
		}
		state.Slots = append(state.Slots, SlotValidity{
			SeatID:           slot.SeatID,
			Valid:            valid,
			DuplicateOfSeat:  slot.DuplicateOfSeat,
			DuplicateMessage: slot.DuplicateMessage,
		})
	}
	return state
}

// slotValid: non-empty name and family, national ID of required length and
// all digits, no duplicate flag, and (when enabled) well-formed contact
// fields. Callers hold the lock.
func (r *Registry) slotValid(slot *Slot) bool {
	if slot.Name == "" || slot.Family == "" {
		return false
	}
	if err := r.validate.Var(slot.NationalID, "required,numeric,"+r.nationalIDLength); err != nil {
		return false
	}
	if slot.HasDuplicate() {
		return false
	}
	if r.contactFields {
		if err := r.validate.Var(slot.Phone, "omitempty,numeric,len=11"); err != nil {
			return false
		}
		if err := r.validate.Var(slot.Email, "omitempty,email"); err != nil {
			return false
		}
	}
	return true
}

// recomputeDuplicates re-derives collision flags from scratch so that
// resolving one side of a collision clears both. Callers hold the lock.
func (r *Registry) recomputeDuplicates() {
	byID := make(map[string][]*Slot)
	for _, slot := range r.slots {
		slot.DuplicateOfSeat = ""
		slot.DuplicateMessage = ""
		if len(slot.NationalID) == r.idLength {
			byID[slot.NationalID] = append(byID[slot.NationalID], slot)
		}
	}

	for _, group := range byID {
		if len(group) < 2 {
			continue
		}
		for _, slot := range group {
			other := otherSeatNumber(group, slot)
			slot.DuplicateOfSeat = other
			slot.DuplicateMessage = fmt.Sprintf("national ID already entered for seat %s", other)
		}
	}
}

func otherSeatNumber(group []*Slot, self *Slot) string {
	for _, s := range group {
		if s != self {
			return s.SeatNumber
		}
	}
	return ""
}

// Snapshot returns copies of the working slots in seat order
func (r *Registry) Snapshot() []Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []Slot {
	out := make([]Slot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.slots[id])
	}
	return out
}

// CommittedSnapshot returns the slots as of the last successful commit
func (r *Registry) CommittedSnapshot() []Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Slot(nil), r.committed...)
}

// Restore replaces the working set from a snapshot. This is the
// compensating read for Commit's write, used on backward navigation.
func (r *Registry) Restore(snapshot []Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.slots = make(map[int]*Slot, len(snapshot))
	r.order = r.order[:0]
	for i := range snapshot {
		slot := snapshot[i]
		r.slots[slot.SeatID] = &slot
		r.order = append(r.order, slot.SeatID)
	}
	r.recomputeDuplicates()
}

// Commit persists the slots to the carrier passenger directory. A commit
// already in flight rejects the call outright rather than queueing it.
// Individual slot failures are tolerated; only total failure reports an
// unsuccessful result.
func (r *Registry) Commit(ctx context.Context, dir Directory) (*CommitResult, error) {
	r.mu.Lock()
	if r.committing {
		r.mu.Unlock()
		return nil, ErrCommitInFlight
	}
	r.committing = true

	working := r.snapshotLocked()
	var toCreate, toUpdate, unchanged []Slot
	for _, slot := range working {
		prev, ok := r.lastCommitted[slot.SeatID]
		if ok && slot.sameData(&prev) {
			unchanged = append(unchanged, slot)
			continue
		}
		if slot.SourceID != "" {
			toUpdate = append(toUpdate, slot)
		} else {
			toCreate = append(toCreate, slot)
		}
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.committing = false
		r.mu.Unlock()
	}()

	result := &CommitResult{Skipped: len(unchanged)}

	// Carrier-side duplicate validation over the full working set
	payload := make([]carrier.NewPassenger, 0, len(working))
	for i := range working {
		payload = append(payload, working[i].ToNewPassenger())
	}
	if check, err := dir.ValidatePassengers(ctx, payload); err == nil && check != nil && check.HasDuplicates {
		result.Message = check.Message
		if result.Message == "" {
			result.Message = "carrier rejected passengers as duplicates"
		}
		return result, nil
	}

	attempted := len(toCreate) + len(toUpdate)

	if len(toCreate) > 0 {
		created, err := dir.BulkCreatePassengers(ctx, slotsToNewPassengers(toCreate))
		if err != nil {
			result.Failed += len(toCreate)
		} else {
			result.Created = len(toCreate)
			r.applyCreated(toCreate, created)
		}
	}

	for _, slot := range toUpdate {
		if err := dir.UpdatePassenger(ctx, slot.SourceID, slot.ToNewPassenger()); err != nil {
			result.Failed++
			continue
		}
		result.Updated++
		r.markCommitted(slot)
	}

	if attempted > 0 && result.Failed == attempted {
		result.Message = "passenger persistence failed for every slot"
		return result, ErrAllSlotsFailed
	}

	result.Succeeded = true

	r.mu.Lock()
	r.committed = r.snapshotLocked()
	r.mu.Unlock()

	return result, nil
}

// applyCreated writes directory IDs back onto slots that are still part of
// the session; results for seats deselected mid-commit are dropped.
func (r *Registry) applyCreated(sent []Slot, created []carrier.SavedPassenger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bySeat := make(map[int]carrier.SavedPassenger, len(created))
	for _, p := range created {
		bySeat[p.SeatID] = p
	}

	for _, slot := range sent {
		live, ok := r.slots[slot.SeatID]
		if !ok {
			continue // seat deselected while the create was in flight
		}
		if saved, ok := bySeat[slot.SeatID]; ok {
			live.SourceID = saved.ID
		}
		committed := slot
		committed.SourceID = live.SourceID
		r.lastCommitted[slot.SeatID] = committed
	}
}

func (r *Registry) markCommitted(slot Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[slot.SeatID]; !ok {
		return // stale: seat gone
	}
	r.lastCommitted[slot.SeatID] = slot
}

func (r *Registry) compactOrder() {
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := r.slots[id]; ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
}

func slotsToNewPassengers(slots []Slot) []carrier.NewPassenger {
	out := make([]carrier.NewPassenger, 0, len(slots))
	for i := range slots {
		out = append(out, slots[i].ToNewPassenger())
	}
	return out
}

// Count returns the number of slots
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
