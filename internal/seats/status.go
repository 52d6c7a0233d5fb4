package seats

// State is the client-side lifecycle of one seat in a reservation session
type State string

const (
	StateDefault        State = "DEFAULT"
	StateReserved       State = "RESERVED" // occupied, occupant gender unreported
	StateReservedMale   State = "RESERVED_MALE"
	StateReservedFemale State = "RESERVED_FEMALE"
	StateSelectedMale   State = "SELECTED_MALE"
	StateSelectedFemale State = "SELECTED_FEMALE"
)

func (s State) IsValid() bool {
	switch s {
	case StateDefault, StateReserved, StateReservedMale, StateReservedFemale,
		StateSelectedMale, StateSelectedFemale:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// IsSelected reports whether the seat is selected in this session
func (s State) IsSelected() bool {
	return s == StateSelectedMale || s == StateSelectedFemale
}

// IsReserved reports whether the seat is held by another party.
// Reserved seats are immutable for the whole session.
func (s State) IsReserved() bool {
	return s == StateReserved || s == StateReservedMale || s == StateReservedFemale
}

// Gender of the occupant a selected seat is being booked for
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale
}

// SelectedState maps a gender onto its selected seat state
func (g Gender) SelectedState() State {
	if g == GenderFemale {
		return StateSelectedFemale
	}
	return StateSelectedMale
}

// GenderOf returns the gender encoded in a selected state
func GenderOf(s State) (Gender, bool) {
	switch s {
	case StateSelectedMale:
		return GenderMale, true
	case StateSelectedFemale:
		return GenderFemale, true
	}
	return "", false
}

// nextInCycle implements the click cycle:
// default → selected-male → selected-female → default.
// Reserved states are not part of the cycle.
func nextInCycle(s State) State {
	switch s {
	case StateDefault:
		return StateSelectedMale
	case StateSelectedMale:
		return StateSelectedFemale
	case StateSelectedFemale:
		return StateDefault
	}
	return s
}
