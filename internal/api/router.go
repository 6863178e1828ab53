package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/aditi-updates/session-agent/internal/api/handler"
	"github.com/aditi-updates/session-agent/internal/api/middleware"
	"github.com/aditi-updates/session-agent/internal/core/ports"
	"github.com/aditi-updates/session-agent/internal/core/service"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Dispatcher handler.VisibilityDispatcher
	Store      ports.TabStateStore
	Guard      *service.VisibilityGuard
	Identity   ports.IdentityService
	Reconciler *service.Reconciler
	Loading    func() bool

	Mongo *mongo.Database
	Redis *redis.Client

	AgentToken string
	Log        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echoprometheus.NewMiddleware("sessionagent"))

	// --- Handlers ---
	visibilityHandler := handler.NewVisibilityHandler(deps.Dispatcher)
	sessionHandler := handler.NewSessionHandler(deps.Store, deps.Guard, deps.Identity, deps.Reconciler, deps.Loading)

	// --- Agent endpoints (shared-token auth when configured) ---
	v1 := e.Group("/v1", middleware.AgentAuth(deps.AgentToken))
	v1.POST("/visibility", visibilityHandler.Receive)
	v1.GET("/session", sessionHandler.Snapshot)
	v1.POST("/session/signout", sessionHandler.SignOut)

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(deps.Mongo, deps.Redis)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", readinessHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}
