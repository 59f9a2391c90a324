package emulator

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/tipster-app/tipster/internal/config"
)

// Server is the development backend: a single Fiber application serving
// the auth, table and procedure endpoints the client consumes.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	store    Store
	sessions RefreshStore
	log      *slog.Logger
}

// New instantiates the emulator and wires its routes.
func New(cfg config.Config, store Store, sessions RefreshStore, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	s := &Server{app: app, cfg: cfg, store: store, sessions: sessions, log: log}

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Every client request carries the project API key; the emulator only
	// checks that one is present.
	api := app.Group("", func(c *fiber.Ctx) error {
		if c.Get("apikey") == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"message": "No API key found in request"})
		}
		return c.Next()
	})

	s.registerAuthRoutes(api)
	s.registerTableRoutes(api)

	return s
}

// Listen starts the HTTP server on the configured address.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Listener serves on an existing listener, which tests use to bind port
// zero.
func (s *Server) Listener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Test dispatches a request in-process, without a listener.
func (s *Server) Test(req *http.Request, msTimeout ...int) (*http.Response, error) {
	return s.app.Test(req, msTimeout...)
}
