package routes

import (
	"net/http"
	"time"

	"busline/internal/agents"
	"busline/internal/booking"
	"busline/internal/carrier"
	"busline/internal/notifications"
	"busline/internal/orders"
	"busline/internal/session"
	"busline/internal/shared/config"
	"busline/internal/shared/database"
	"busline/pkg/cache"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	config   *config.Config
	db       *database.DB
	producer notifications.Producer
	manager  *session.Manager
}

// NewRouter wires the session manager and its collaborators
func NewRouter(cfg *config.Config, db *database.DB, producer notifications.Producer) *Router {
	gateway := carrier.NewHTTPGateway(cfg.Carrier)
	store := session.NewStore(cache.NewService(db.GetRedis()), cfg.Redis.SessionStateTTL)
	repo := orders.NewRepository(db.GetPostgreSQL())
	manager := session.NewManager(gateway, store, repo, producer, cfg.Booking, nil)

	return &Router{
		config:   cfg,
		db:       db,
		producer: producer,
		manager:  manager,
	}
}

// Manager exposes the session manager for shutdown draining
func (r *Router) Manager() *session.Manager {
	return r.manager
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupAgentRoutes(api)
		r.setupBookingRoutes(api)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "busline-backend",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "busline-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})
}

func (r *Router) setupAgentRoutes(rg *gin.RouterGroup) {
	agentRepo := agents.NewRepository(r.db.GetPostgreSQL())
	agentService := agents.NewService(agentRepo, r.config)
	agentController := agents.NewController(agentService)
	agentRouter := agents.NewRouter(agentController, r.config)

	agentRouter.SetupRoutes(rg)
}

func (r *Router) setupBookingRoutes(rg *gin.RouterGroup) {
	bookingController := booking.NewController(r.manager)
	bookingRouter := booking.NewRouter(bookingController, r.config)

	bookingRouter.SetupRoutes(rg)
}
