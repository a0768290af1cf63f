// internal/routes/routes.go
package routes

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/alexconrey/webmux/internal/config"
	"github.com/alexconrey/webmux/internal/database"
	"github.com/alexconrey/webmux/internal/handler"
	"github.com/alexconrey/webmux/internal/middleware"
	"github.com/alexconrey/webmux/internal/protocol"
	"github.com/alexconrey/webmux/internal/registry"
	"github.com/alexconrey/webmux/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config     *config.Config
	logger     *zap.Logger
	db         *database.DB
	registry   *registry.Registry
	journal    handler.JournalReader
	eventBus   *handler.EventBus
	metrics    prometheus.Gatherer
	portLister protocol.PortLister
}

// NewRouter creates a new router instance. db, journal and metrics may be nil.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	registry *registry.Registry,
	journal handler.JournalReader,
	eventBus *handler.EventBus,
	metrics prometheus.Gatherer,
) *Router {
	return &Router{
		config:     config,
		logger:     logger,
		db:         db,
		registry:   registry,
		journal:    journal,
		eventBus:   eventBus,
		metrics:    metrics,
		portLister: protocol.ListPorts,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(r.logger))

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger, "/health", "/live", "/ready", r.config.Metrics.Path))

	router.Use(middleware.CORSMiddleware(&r.config.Server))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.registry, r.db, r.config, r.logger)
	connectionHandler := handler.NewConnectionHandler(r.registry, r.journal, r.logger)
	portHandler := handler.NewPortHandler(r.portLister, r.logger)
	wsHandler := handler.NewWebSocketHandler(r.registry, r.eventBus, r.config.Server.AllowedOrigins, r.logger)

	healthHandler.RegisterRoutes(&router.RouterGroup)

	api := router.Group("/api")
	connectionHandler.RegisterRoutes(api)
	portHandler.RegisterRoutes(api)

	wsHandler.RegisterRoutes(api, router.Group("/ws"))

	r.addMetricsRoutes(router)
	r.addDocumentationRoutes(router)
	r.addStaticRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addMetricsRoutes exposes the Prometheus endpoint
func (r *Router) addMetricsRoutes(router *gin.Engine) {
	if !r.config.Metrics.Enabled || r.metrics == nil {
		return
	}

	router.GET(r.config.Metrics.Path, gin.WrapH(promhttp.HandlerFor(r.metrics, promhttp.HandlerOpts{})))
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}

// addStaticRoutes serves the browser terminal when its directory exists
func (r *Router) addStaticRoutes(router *gin.Engine) {
	dir := r.config.Server.StaticDir
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		r.logger.Info("Static directory not found, browser terminal disabled", zap.String("static_dir", dir))
		return
	}

	router.Static("/static", dir)

	index := filepath.Join(dir, "index.html")
	router.GET("/", func(c *gin.Context) {
		c.File(index)
	})
}
