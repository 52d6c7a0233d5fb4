package seats

// Seat is one physical seat as tracked by the reservation session.
// ID is the carrier's stable seat identity; SeatNumber is the display label.
type Seat struct {
	ID          int    `json:"id"`
	SeatNumber  string `json:"seat_number"`
	State       State  `json:"state"`
	IsAvailable bool   `json:"is_available"`
}

// ImportedSeat is one entry of a server seat-map import, already flattened
// from the carrier's table/row nesting.
type ImportedSeat struct {
	ID             int
	SeatNumber     string
	Occupied       bool
	OccupantGender string // "M", "F" or "UN"
}

// SeatResponse is the API shape of a seat
type SeatResponse struct {
	ID          int    `json:"id"`
	SeatNumber  string `json:"seat_number"`
	State       string `json:"state"`
	IsAvailable bool   `json:"is_available"`
	IsSelected  bool   `json:"is_selected"`
}

// ToResponse converts a Seat for API consumption
func (s Seat) ToResponse() SeatResponse {
	return SeatResponse{
		ID:          s.ID,
		SeatNumber:  s.SeatNumber,
		State:       s.State.String(),
		IsAvailable: s.IsAvailable,
		IsSelected:  s.State.IsSelected(),
	}
}
