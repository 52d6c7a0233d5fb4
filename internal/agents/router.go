package agents

import (
	"busline/internal/shared/config"
	"busline/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// Router handles agent auth routes
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

// SetupRoutes registers all agent routes
func (r *Router) SetupRoutes(rg *gin.RouterGroup) {
	agents := rg.Group("/agents")
	{
		agents.POST("/register", r.controller.Register)
		agents.POST("/login", r.controller.Login)
		agents.POST("/refresh", r.controller.RefreshToken)

		protected := agents.Group("")
		protected.Use(middleware.AgentAuthWithConfig(r.config))
		{
			protected.GET("/me", r.controller.GetMe)
		}
	}
}
