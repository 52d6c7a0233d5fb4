package carrier

// Seat map wire format. The carrier reports occupancy grouped by cabin
// table; each entry is one physical seat.
type SeatMapEntry struct {
	Index          int    `json:"index"`
	SeatNumber     string `json:"seatNumber"`
	Status         string `json:"status"`         // "occupied" or "empty"
	OccupantGender string `json:"occupantGender"` // "M", "F" or "UN"
}

type SeatMapTable struct {
	Table string         `json:"table"`
	Rows  []SeatMapEntry `json:"rows"`
}

type SeatMapResponse struct {
	TicketID string         `json:"ticketId"`
	Tables   []SeatMapTable `json:"tables"`
}

const (
	SeatStatusOccupied = "occupied"
	SeatStatusEmpty    = "empty"

	GenderMale    = "M"
	GenderFemale  = "F"
	GenderUnknown = "UN"
)

// SavedPassenger is a record in the carrier passenger directory
type SavedPassenger struct {
	ID           string `json:"id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	NationalCode string `json:"nationalCode"`
	GenderMale   bool   `json:"genderBoolean"`
	DateOfBirth  string `json:"dateOfBirth"`
	SeatNumber   string `json:"seatNumber"`
	SeatID       int    `json:"seatId"`
}

// NewPassenger is the create/update payload for the passenger directory
type NewPassenger struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	NationalCode string `json:"nationalCode"`
	GenderMale   bool   `json:"genderBoolean"`
	DateOfBirth  string `json:"dateOfBirth"`
	SeatNumber   string `json:"seatNumber"`
	SeatID       int    `json:"seatId"`
}

// DuplicateCheck is the result of the carrier-side duplicate validation
type DuplicateCheck struct {
	HasDuplicates bool   `json:"hasDuplicates"`
	Message       string `json:"message,omitempty"`
}

// ArtifactRef identifies an uploaded seat-layout capture
type ArtifactRef struct {
	Ref     string `json:"artifactRef"`
	AssetID string `json:"assetId"`
}

// OrderRequest carries the finalized trip and passenger data
type OrderRequest struct {
	TicketID   string         `json:"ticketId"`
	Token      string         `json:"token"`
	Passengers []NewPassenger `json:"passengers"`
	SeatIDs    []int          `json:"seatIds"`
	AssetID    string         `json:"assetId,omitempty"`
}

type OrderResponse struct {
	RefNum string `json:"refNum"`
}

// PurchaseRequest asks for a payment redirect target for an order
type PurchaseRequest struct {
	OrderRefNum    string `json:"orderRefNum"`
	ReservationKey string `json:"reservationKey"`
	CallbackURL    string `json:"callbackUrl"`
}

type PurchaseResponse struct {
	PaymentURL string `json:"paymentUrl"`
}
