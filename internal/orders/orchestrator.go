package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"busline/internal/carrier"
	"busline/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrAttemptInFlight = errors.New("an order attempt is already in flight")
	ErrStaleSession    = errors.New("session ended while the order was in flight")
	ErrNoAttempt       = errors.New("no order attempt exists")
)

// Progress milestones per stage
const (
	progressCaptured  = 35
	progressCreated   = 65
	progressPurchased = 90
	progressComplete  = 100
)

// Orchestrator sequences the remote calls that turn a validated
// seat+passenger snapshot into a payable order: capture artifact → create
// order → purchase (payment handle) → redirect. One attempt is in flight
// at a time; a new one starts only after the previous reached a terminal
// state. Aborts while the artifact exists but the order is unpurchased
// compensate by deleting the artifact.
type Orchestrator struct {
	mu      sync.Mutex
	attempt *Attempt

	artifacts carrier.ArtifactService
	orderSvc  carrier.OrderService
	repo      Repository
	log       *logger.Logger
}

// NewOrchestrator creates an order orchestrator for one session. repo may
// be nil when durable attempt history is not wanted (tests).
func NewOrchestrator(artifacts carrier.ArtifactService, orderSvc carrier.OrderService, repo Repository, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Orchestrator{
		artifacts: artifacts,
		orderSvc:  orderSvc,
		repo:      repo,
		log:       log,
	}
}

// Run executes the pipeline. stale is consulted after every remote
// completion; once it reports true the result is dropped instead of
// applied and anything compensatable is compensated. Re-entrant calls are
// rejected while an attempt is active.
func (o *Orchestrator) Run(ctx context.Context, snap Snapshot, stale func() bool) (*Result, error) {
	if stale == nil {
		stale = func() bool { return false }
	}

	o.mu.Lock()
	if o.attempt != nil && !o.attempt.Status.CanStartNew() {
		o.mu.Unlock()
		return nil, ErrAttemptInFlight
	}
	attempt := &Attempt{
		ID:        uuid.New(),
		SessionID: snap.SessionID,
		TicketID:  snap.TicketID,
		Status:    StatusCapturing,
	}
	o.attempt = attempt
	o.mu.Unlock()
	o.persist(ctx, attempt)

	// Stage 1: capture and upload the seat-layout artifact
	artifact, err := renderArtifact(snap)
	if err != nil {
		return nil, o.fail(ctx, attempt, fmt.Errorf("failed to render artifact: %w", err))
	}
	ref, err := o.artifacts.UploadArtifact(ctx, artifact)
	if err != nil {
		return nil, o.fail(ctx, attempt, fmt.Errorf("artifact upload failed: %w", err))
	}
	if dropped := o.applyStage(ctx, attempt, StatusCapturing, StatusCreating, stale, func(a *Attempt) {
		a.ArtifactRef = &ref.Ref
		a.AssetID = &ref.AssetID
		a.advanceProgress(progressCaptured)
	}); dropped != nil {
		// the session died while the upload was in flight; the artifact
		// was registered above, so compensate before reporting
		o.compensateLocked(ctx, attempt, ref.Ref, "stale upload result")
		return nil, dropped
	}

	// Stage 2: create the order; on failure the artifact is compensated
	// before the failure is reported
	orderResp, err := o.orderSvc.CreateOrder(ctx, carrier.OrderRequest{
		TicketID:   snap.TicketID,
		Token:      snap.Token,
		Passengers: snap.Passengers,
		SeatIDs:    snap.SeatIDs,
		AssetID:    ref.AssetID,
	})
	if err != nil {
		// compensate the artifact before reporting the failure
		o.mu.Lock()
		var orphan string
		if attempt.Status == StatusCreating && attempt.ArtifactRef != nil {
			orphan = *attempt.ArtifactRef
			attempt.ArtifactRef = nil
			attempt.AssetID = nil
		}
		o.mu.Unlock()
		if orphan != "" {
			if delErr := o.artifacts.DeleteArtifact(ctx, orphan); delErr != nil {
				o.log.ErrorWithContext(ctx, "artifact compensation failed", delErr, map[string]interface{}{
					"session_id":   snap.SessionID,
					"artifact_ref": orphan,
				})
			} else {
				o.log.LogCompensation(ctx, snap.SessionID, orphan, "order creation failed")
			}
		}
		return nil, o.fail(ctx, attempt, fmt.Errorf("order creation failed: %w", err))
	}
	if dropped := o.applyStage(ctx, attempt, StatusCreating, StatusPurchasing, stale, func(a *Attempt) {
		a.OrderRefNum = &orderResp.RefNum
		a.advanceProgress(progressCreated)
	}); dropped != nil {
		return nil, dropped
	}
	o.log.LogOrderCreated(ctx, snap.SessionID, orderResp.RefNum)

	// Stage 3: request the payment handle. A failure here leaves the
	// order unpaid but keeps the artifact: it is still needed if the
	// purchase is retried against the same order.
	purchase, err := o.orderSvc.Purchase(ctx, carrier.PurchaseRequest{
		OrderRefNum:    orderResp.RefNum,
		ReservationKey: snap.ReservationKey,
		CallbackURL:    snap.CallbackURL,
	})
	if err != nil {
		return nil, o.fail(ctx, attempt, fmt.Errorf("purchase failed: %w", err))
	}
	if dropped := o.applyStage(ctx, attempt, StatusPurchasing, StatusRedirecting, stale, func(a *Attempt) {
		a.PaymentURL = &purchase.PaymentURL
		a.advanceProgress(progressPurchased)
		a.advanceProgress(progressComplete)
	}); dropped != nil {
		// the session died before the payment handle was delivered, so
		// the order never proceeds to payment and the artifact is
		// reclaimed; only redirection and beyond preserve it
		o.mu.Lock()
		var orphan string
		if attempt.Status == StatusPurchasing && attempt.ArtifactRef != nil {
			orphan = *attempt.ArtifactRef
			attempt.ArtifactRef = nil
			attempt.AssetID = nil
			attempt.Status = StatusCompensated
		}
		o.mu.Unlock()
		if orphan != "" {
			o.compensateLocked(ctx, attempt, orphan, "stale purchase result")
			o.persist(ctx, attempt)
		}
		return nil, dropped
	}

	return &Result{
		AttemptID:   attempt.ID.String(),
		OrderRefNum: orderResp.RefNum,
		PaymentURL:  purchase.PaymentURL,
	}, nil
}

// Compensate deletes the uploaded artifact when the active attempt is in a
// compensatable state (artifact exists, order not purchased). Exactly one
// delete is issued; attempts at or past redirection are left untouched.
func (o *Orchestrator) Compensate(ctx context.Context, reason string) error {
	o.mu.Lock()
	attempt := o.attempt
	if attempt == nil || !attempt.Status.Compensatable() {
		o.mu.Unlock()
		return nil
	}
	var ref string
	if attempt.ArtifactRef != nil {
		ref = *attempt.ArtifactRef
	}
	// mark compensated first so a concurrent Run stage drops its result
	attempt.Status = StatusCompensated
	attempt.ArtifactRef = nil
	attempt.AssetID = nil
	o.mu.Unlock()

	if ref != "" {
		if err := o.artifacts.DeleteArtifact(ctx, ref); err != nil {
			return fmt.Errorf("artifact compensation failed: %w", err)
		}
		o.log.LogCompensation(ctx, attempt.SessionID, ref, reason)
	}
	o.persist(ctx, attempt)
	return nil
}

// compensateLocked handles the stale-drop edges where the attempt status
// was already settled and only the remote artifact remains to delete.
func (o *Orchestrator) compensateLocked(ctx context.Context, attempt *Attempt, ref string, reason string) {
	if ref == "" {
		return
	}
	if err := o.artifacts.DeleteArtifact(ctx, ref); err != nil {
		o.log.ErrorWithContext(ctx, "stale artifact delete failed", err, map[string]interface{}{
			"session_id":   attempt.SessionID,
			"artifact_ref": ref,
		})
		return
	}
	o.log.LogCompensation(ctx, attempt.SessionID, ref, reason)
}

// Progress returns the monotonic progress view of the active attempt
func (o *Orchestrator) Progress() ProgressInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt == nil {
		return ProgressInfo{Status: StatusIdle.String()}
	}
	return ProgressInfo{
		Status:   o.attempt.Status.String(),
		Progress: o.attempt.Progress,
		Message:  o.attempt.FailureReason,
	}
}

// Attempt returns a copy of the active attempt, if any
func (o *Orchestrator) Attempt() (Attempt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt == nil {
		return Attempt{}, false
	}
	return *o.attempt, true
}

// applyStage advances the attempt from one status to the next and applies
// the stage result, unless the session went stale or the attempt was moved
// to another state (compensated) while the remote call was in flight, in
// which case the result is dropped.
func (o *Orchestrator) applyStage(ctx context.Context, attempt *Attempt, from, to Status, stale func() bool, apply func(*Attempt)) error {
	o.mu.Lock()
	if attempt.Status != from {
		o.mu.Unlock()
		return ErrStaleSession
	}
	if stale() {
		o.mu.Unlock()
		return ErrStaleSession
	}
	apply(attempt)
	attempt.Status = to
	o.mu.Unlock()
	o.persist(ctx, attempt)
	return nil
}

// fail marks the attempt failed and returns the original error
func (o *Orchestrator) fail(ctx context.Context, attempt *Attempt, err error) error {
	o.mu.Lock()
	if attempt.Status != StatusCompensated {
		attempt.Status = StatusFailed
	}
	attempt.FailureReason = err.Error()
	o.mu.Unlock()
	o.persist(ctx, attempt)
	return err
}

// persist records the attempt best-effort; history must not break the flow
func (o *Orchestrator) persist(ctx context.Context, attempt *Attempt) {
	if o.repo == nil {
		return
	}
	o.mu.Lock()
	copied := *attempt
	o.mu.Unlock()
	if err := o.repo.Save(ctx, &copied); err != nil {
		o.log.ErrorWithContext(ctx, "failed to persist order attempt", err, map[string]interface{}{
			"attempt_id": copied.ID.String(),
		})
	}
}

// renderArtifact produces the seat-layout capture uploaded for downstream
// ticket document generation.
func renderArtifact(snap Snapshot) ([]byte, error) {
	layout := struct {
		TicketID    string                 `json:"ticketId"`
		SeatNumbers []string               `json:"seatNumbers"`
		SeatIDs     []int                  `json:"seatIds"`
		Passengers  []carrier.NewPassenger `json:"passengers"`
	}{
		TicketID:    snap.TicketID,
		SeatNumbers: snap.SeatNumbers,
		SeatIDs:     snap.SeatIDs,
		Passengers:  snap.Passengers,
	}
	return json.Marshal(layout)
}
