package booking

import (
	"errors"
	"net/http"
	"strconv"

	"busline/internal/carrier"
	"busline/internal/orders"
	"busline/internal/passengers"
	"busline/internal/seats"
	"busline/internal/session"
	"busline/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Controller exposes the reservation session flow over HTTP
type Controller struct {
	manager   *session.Manager
	validator *validator.Validate
}

func NewController(manager *session.Manager) *Controller {
	return &Controller{
		manager:   manager,
		validator: validator.New(),
	}
}

func (c *Controller) CreateSession(ctx *gin.Context) {
	var req CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := c.validator.Struct(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	agentID := ctx.GetString("agent_id")
	view, err := c.manager.Create(ctx.Request.Context(), agentID, req.TicketID, req.Token)
	if err != nil {
		respondError(ctx, err, "Failed to open session")
		return
	}
	response.Success(ctx, http.StatusCreated, "Session opened", view)
}

func (c *Controller) GetSession(ctx *gin.Context) {
	view, err := c.manager.Get(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, "Failed to fetch session")
		return
	}
	response.Success(ctx, http.StatusOK, "Session state", view)
}

func (c *Controller) GetPersistedState(ctx *gin.Context) {
	state, err := c.manager.PersistedState(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrStateNotFound) {
			response.Error(ctx, http.StatusNotFound, "No persisted state for session", nil)
			return
		}
		respondError(ctx, err, "Failed to load persisted state")
		return
	}
	response.Success(ctx, http.StatusOK, "Persisted session state", state)
}

func (c *Controller) SelectSeat(ctx *gin.Context) {
	seatID, ok := seatParam(ctx)
	if !ok {
		return
	}
	view, err := c.manager.SelectSeat(ctx.Request.Context(), ctx.Param("id"), seatID)
	if err != nil {
		respondError(ctx, err, "Failed to select seat")
		return
	}
	response.Success(ctx, http.StatusOK, "Seat state updated", view)
}

func (c *Controller) RemoveSeat(ctx *gin.Context) {
	seatID, ok := seatParam(ctx)
	if !ok {
		return
	}
	view, err := c.manager.RemoveSeat(ctx.Request.Context(), ctx.Param("id"), seatID)
	if err != nil {
		respondError(ctx, err, "Failed to remove seat")
		return
	}
	response.Success(ctx, http.StatusOK, "Seat removed", view)
}

func (c *Controller) SetSeatGender(ctx *gin.Context) {
	seatID, ok := seatParam(ctx)
	if !ok {
		return
	}
	var req SeatGenderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := c.validator.Struct(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	gender := seats.GenderMale
	if req.Gender == "female" {
		gender = seats.GenderFemale
	}
	view, err := c.manager.SetSeatGender(ctx.Request.Context(), ctx.Param("id"), seatID, gender)
	if err != nil {
		respondError(ctx, err, "Failed to set seat gender")
		return
	}
	response.Success(ctx, http.StatusOK, "Seat gender updated", view)
}

func (c *Controller) SetPassengerField(ctx *gin.Context) {
	seatID, ok := seatParam(ctx)
	if !ok {
		return
	}
	var req PassengerFieldRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := c.validator.Struct(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	view, err := c.manager.SetPassengerField(ctx.Request.Context(), ctx.Param("id"), seatID, req.Field, req.Value)
	if err != nil {
		respondError(ctx, err, "Failed to update passenger field")
		return
	}
	response.Success(ctx, http.StatusOK, "Passenger field updated", view)
}

func (c *Controller) ListSavedPassengers(ctx *gin.Context) {
	saved, err := c.manager.ListSavedPassengers(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "Failed to list saved passengers")
		return
	}
	response.Success(ctx, http.StatusOK, "Saved passengers", saved)
}

func (c *Controller) ApplySavedPassenger(ctx *gin.Context) {
	seatID, ok := seatParam(ctx)
	if !ok {
		return
	}
	var req ApplySavedPassengerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := c.validator.Struct(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	view, err := c.manager.ApplySavedPassenger(ctx.Request.Context(), ctx.Param("id"), seatID, req.PassengerID)
	if err != nil {
		respondError(ctx, err, "Failed to apply saved passenger")
		return
	}
	response.Success(ctx, http.StatusOK, "Saved passenger applied", view)
}

func (c *Controller) Advance(ctx *gin.Context) {
	view, err := c.manager.Advance(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, "Failed to advance step")
		return
	}
	response.Success(ctx, http.StatusOK, "Step advanced", view)
}

func (c *Controller) Back(ctx *gin.Context) {
	view, err := c.manager.Back(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, "Failed to step back")
		return
	}
	response.Success(ctx, http.StatusOK, "Returned to seat selection", view)
}

func (c *Controller) Pause(ctx *gin.Context) {
	view, err := c.manager.Pause(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, "Failed to pause hold")
		return
	}
	response.Success(ctx, http.StatusOK, "Hold paused", view)
}

func (c *Controller) Resume(ctx *gin.Context) {
	view, err := c.manager.Resume(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, "Failed to resume hold")
		return
	}
	response.Success(ctx, http.StatusOK, "Hold resumed", view)
}

func (c *Controller) PlaceOrder(ctx *gin.Context) {
	result, err := c.manager.PlaceOrder(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, "Failed to place order")
		return
	}
	response.Success(ctx, http.StatusCreated, "Order placed", result)
}

func (c *Controller) OrderProgress(ctx *gin.Context) {
	progress, err := c.manager.OrderProgress(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err, "Failed to fetch order progress")
		return
	}
	response.Success(ctx, http.StatusOK, "Order progress", progress)
}

func (c *Controller) CancelSession(ctx *gin.Context) {
	if err := c.manager.Cancel(ctx.Request.Context(), ctx.Param("id")); err != nil {
		respondError(ctx, err, "Failed to cancel session")
		return
	}
	response.Success(ctx, http.StatusOK, "Session cancelled", nil)
}

func seatParam(ctx *gin.Context) (int, bool) {
	seatID, err := strconv.Atoi(ctx.Param("seatId"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid seat ID", err.Error())
		return 0, false
	}
	return seatID, true
}

// respondError maps domain errors onto HTTP statuses
func respondError(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, seats.ErrSeatNotFound),
		errors.Is(err, passengers.ErrSlotNotFound):
		response.Error(ctx, http.StatusNotFound, err.Error(), nil)

	case errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, orders.ErrStaleSession):
		response.Error(ctx, http.StatusGone, err.Error(), nil)

	case errors.Is(err, seats.ErrCapacityExceeded),
		errors.Is(err, session.ErrAdvanceInFlight),
		errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, orders.ErrAttemptInFlight),
		errors.Is(err, passengers.ErrCommitInFlight):
		response.Error(ctx, http.StatusConflict, err.Error(), nil)

	case errors.Is(err, passengers.ErrDuplicateNationalID),
		errors.Is(err, seats.ErrSeatNotSelected),
		errors.Is(err, passengers.ErrUnknownField):
		response.Error(ctx, http.StatusUnprocessableEntity, err.Error(), nil)

	case errors.Is(err, carrier.ErrUnavailable):
		response.Error(ctx, http.StatusBadGateway, "Carrier backend unavailable", err.Error())

	default:
		response.Error(ctx, http.StatusInternalServerError, fallback, nil)
	}
}
