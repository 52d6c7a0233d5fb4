package booking

import (
	"busline/internal/shared/config"
	"busline/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// Router handles reservation session routes
type Router struct {
	controller *Controller
	config     *config.Config
}

func NewRouter(controller *Controller, cfg *config.Config) *Router {
	return &Router{
		controller: controller,
		config:     cfg,
	}
}

// SetupRoutes registers all booking routes. Everything requires an
// authenticated counter agent.
func (r *Router) SetupRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	sessions.Use(middleware.AgentAuthWithConfig(r.config))
	{
		sessions.POST("", r.controller.CreateSession)
		sessions.GET("/:id", r.controller.GetSession)
		sessions.GET("/:id/state", r.controller.GetPersistedState)
		sessions.DELETE("/:id", r.controller.CancelSession)

		sessions.POST("/:id/seats/:seatId/select", r.controller.SelectSeat)
		sessions.DELETE("/:id/seats/:seatId", r.controller.RemoveSeat)
		sessions.PUT("/:id/seats/:seatId/gender", r.controller.SetSeatGender)

		sessions.PATCH("/:id/passengers/:seatId", r.controller.SetPassengerField)
		sessions.POST("/:id/passengers/:seatId/apply-saved", r.controller.ApplySavedPassenger)

		sessions.POST("/:id/advance", r.controller.Advance)
		sessions.POST("/:id/back", r.controller.Back)
		sessions.POST("/:id/pause", r.controller.Pause)
		sessions.POST("/:id/resume", r.controller.Resume)

		sessions.POST("/:id/order", r.controller.PlaceOrder)
		sessions.GET("/:id/order/progress", r.controller.OrderProgress)
	}

	saved := rg.Group("/passengers")
	saved.Use(middleware.AgentAuthWithConfig(r.config))
	{
		saved.GET("/saved", r.controller.ListSavedPassengers)
	}
}
