package server

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/serenmind/sentinel/pkg/config"
	handlers "github.com/serenmind/sentinel/pkg/handlers/http"
	"github.com/serenmind/sentinel/pkg/infra/prometheus"
	"github.com/serenmind/sentinel/pkg/service"
)

// Server exposes the safety engine over HTTP: the synchronous validation
// endpoints for the narrative pipeline and the metrics pull endpoint for the
// monitoring collaborator.
type Server struct {
	cfg    *config.Config
	logger *logrus.Logger
	app    *fiber.App
}

func New(cfg *config.Config, logger *logrus.Logger, svc *service.Service) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(fiberrecover.New())

	app.Post("/v1/validate", handlers.NewValidateHandler(logger, svc).Handle)
	app.Post("/v1/assess", handlers.NewAssessHandler(logger, svc).Handle)
	app.Get("/v1/metrics", handlers.NewMetricsHandler(svc).Handle)
	app.Get("/health", handlers.NewHealthHandler(svc).Handle)

	promHandler := promhttp.HandlerFor(prometheus.Registry(), promhttp.HandlerOpts{})
	app.Get(cfg.Server.MetricsPath, func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(promHandler)(c.Context())
		return nil
	})

	return &Server{cfg: cfg, logger: logger, app: app}
}

func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.WithField("addr", addr).Info("safety engine listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
