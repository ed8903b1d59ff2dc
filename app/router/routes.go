// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quantsix/seqd/app/dto"
	"github.com/quantsix/seqd/app/handlers"
	"github.com/quantsix/seqd/app/middleware"
	"github.com/quantsix/seqd/utils"
	"gorm.io/gorm"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app             *fiber.App
	db              *gorm.DB
	sequenceHandler handlers.SequenceHandlerInterface
	throttler       *middleware.Throttler
	enableMetrics   bool
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(db *gorm.DB, sequenceHandler handlers.SequenceHandlerInterface, throttler *middleware.Throttler, enableMetrics bool) Router {
	app := fiber.New(fiber.Config{
		AppName:      "seqd API",
		ServerHeader: "seqd",
		BodyLimit:    1 * 1024 * 1024, // 1MB
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:             app,
		db:              db,
		sequenceHandler: sequenceHandler,
		throttler:       throttler,
		enableMetrics:   enableMetrics,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.app.Use(recover.New())
	r.app.Use(middleware.Logging())
	if r.enableMetrics {
		r.app.Use(middleware.Metrics())
		r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	r.app.Get("/health", r.healthCheck)

	api := r.app.Group("/api/v1")
	if r.throttler != nil {
		api.Use(r.throttler.Handle())
	}

	// Sequence routes run inside a per-request transaction; the allocation
	// lock rides on it and is released when the middleware finalizes.
	sequences := api.Group("/sequences", middleware.Database(r.db))
	sequences.Post("", r.sequenceHandler.Initialize)
	sequences.Get("/:key", r.sequenceHandler.Get)
	sequences.Post("/:key/allocate", r.sequenceHandler.Allocate)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"service":   "seqd",
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "Route not found",
		Error:   dto.ErrorDetail{Code: "NOT_FOUND"},
	})
}
