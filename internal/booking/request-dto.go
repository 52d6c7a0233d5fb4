package booking

// CreateSessionRequest opens a reservation session for a trip
type CreateSessionRequest struct {
	TicketID string `json:"ticket_id" validate:"required"`
	Token    string `json:"token" validate:"required"`
}

// SeatGenderRequest sets a selected seat's occupant gender directly
type SeatGenderRequest struct {
	Gender string `json:"gender" validate:"required,oneof=male female"`
}

// PassengerFieldRequest updates one field of a seat's passenger slot
type PassengerFieldRequest struct {
	Field string `json:"field" validate:"required,oneof=name family national_id birth_date phone email"`
	Value string `json:"value"`
}

// ApplySavedPassengerRequest fills a slot from the saved directory
type ApplySavedPassengerRequest struct {
	PassengerID string `json:"passenger_id" validate:"required"`
}
