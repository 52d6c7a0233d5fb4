package passengers

import (
	"busline/internal/carrier"
	"busline/internal/seats"
)

// Slot is one passenger record bound 1:1 to a selected seat
type Slot struct {
	SeatID     int          `json:"seat_id"`
	SeatNumber string       `json:"seat_number"`
	Name       string       `json:"name"`
	Family     string       `json:"family"`
	NationalID string       `json:"national_id"`
	Gender     seats.Gender `json:"gender"`
	BirthDate  string       `json:"birth_date"`
	Phone      string       `json:"phone,omitempty"`
	Email      string       `json:"email,omitempty"`

	// SourceID is set when the slot was populated from (or persisted to)
	// the carrier's saved-passenger directory.
	SourceID string `json:"source_id,omitempty"`

	// Duplicate national-ID collision, referencing the other seat
	DuplicateOfSeat  string `json:"duplicate_of_seat,omitempty"`
	DuplicateMessage string `json:"duplicate_message,omitempty"`
}

// HasDuplicate reports whether this slot collides with another on national ID
func (s *Slot) HasDuplicate() bool {
	return s.DuplicateOfSeat != ""
}

// ToNewPassenger converts a slot into the carrier wire format
func (s *Slot) ToNewPassenger() carrier.NewPassenger {
	return carrier.NewPassenger{
		FirstName:    s.Name,
		LastName:     s.Family,
		NationalCode: s.NationalID,
		GenderMale:   s.Gender == seats.GenderMale,
		DateOfBirth:  s.BirthDate,
		SeatNumber:   s.SeatNumber,
		SeatID:       s.SeatID,
	}
}

// sameData reports whether two slots carry identical passenger data.
// Used to skip re-submitting unchanged slots on commit.
func (s *Slot) sameData(other *Slot) bool {
	if other == nil {
		return false
	}
	return s.Name == other.Name &&
		s.Family == other.Family &&
		s.NationalID == other.NationalID &&
		s.Gender == other.Gender &&
		s.BirthDate == other.BirthDate &&
		s.Phone == other.Phone &&
		s.Email == other.Email
}

// ValidationState carries the two gating flags plus per-slot detail
type ValidationState struct {
	AnyValid bool           `json:"any_valid"`
	AllValid bool           `json:"all_valid"`
	Slots    []SlotValidity `json:"slots"`
}

// SlotValidity is the per-slot validation verdict
type SlotValidity struct {
	SeatID           int    `json:"seat_id"`
	Valid            bool   `json:"valid"`
	DuplicateOfSeat  string `json:"duplicate_of_seat,omitempty"`
	DuplicateMessage string `json:"duplicate_message,omitempty"`
}

// CommitResult is the structured outcome of persisting slots
type CommitResult struct {
	Succeeded bool   `json:"succeeded"`
	Message   string `json:"message,omitempty"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}
