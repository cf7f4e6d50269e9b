package handlers

import (
	"net/http"
	"time"

	"espresso_rig/internal/logger"
	"espresso_rig/internal/service"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Options tunes the HTTP surface.
type Options struct {
	// WSInterval is the /ws push cadence when the client does not ask for one.
	WSInterval time.Duration
	// OverrideRate and OverrideBurst limit override commands across all clients.
	OverrideRate  rate.Limit
	OverrideBurst int
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	opts     Options
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, opts Options) *Handler {
	if opts.WSInterval <= 0 {
		opts.WSInterval = defaultInterval
	}
	if opts.OverrideRate <= 0 {
		opts.OverrideRate = 2
	}
	if opts.OverrideBurst <= 0 {
		opts.OverrideBurst = 1
	}
	return &Handler{services: services, log: log, opts: opts}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)
	if h.opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.opts.Metrics))
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// State stream for the display, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/state", h.getState)

		// Body example: {"value":"off"}
		api.POST("/override", h.operatorMiddleware, h.overrideRateLimit(), h.setOverride)
	}
}
