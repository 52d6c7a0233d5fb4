package orders

import (
	"time"

	"busline/internal/carrier"

	"github.com/google/uuid"
)

// Attempt is one pass through the order pipeline. Persisted so a failed or
// compensated attempt stays auditable after its session is gone.
type Attempt struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID     string    `gorm:"index;not null" json:"session_id"`
	TicketID      string    `gorm:"index" json:"ticket_id"`
	ArtifactRef   *string   `json:"artifact_ref,omitempty"`
	AssetID       *string   `json:"asset_id,omitempty"`
	OrderRefNum   *string   `json:"order_ref_num,omitempty"`
	PaymentURL    *string   `json:"payment_url,omitempty"`
	Status        Status    `gorm:"type:varchar(20);default:'IDLE'" json:"status"`
	Progress      int       `gorm:"not null;default:0" json:"progress"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName sets the table name for Attempt
func (Attempt) TableName() string {
	return "order_attempts"
}

// advanceProgress raises the progress indicator. It never moves backwards
// within an attempt.
func (a *Attempt) advanceProgress(p int) {
	if p > a.Progress {
		a.Progress = p
	}
}

// Snapshot is the finalized seat+passenger state the pipeline consumes
type Snapshot struct {
	SessionID      string
	TicketID       string
	Token          string
	ReservationKey string
	CallbackURL    string
	SeatIDs        []int
	SeatNumbers    []string
	Passengers     []carrier.NewPassenger
}

// Result reports a completed pipeline run
type Result struct {
	AttemptID   string `json:"attempt_id"`
	OrderRefNum string `json:"order_ref_num"`
	PaymentURL  string `json:"payment_url"`
}

// ProgressInfo is the UI-facing progress view
type ProgressInfo struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}
