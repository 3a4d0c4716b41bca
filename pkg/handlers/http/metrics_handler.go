package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/serenmind/sentinel/pkg/service"
)

type metricsHandler struct {
	service *service.Service
}

func NewMetricsHandler(svc *service.Service) Handler {
	return &metricsHandler{service: svc}
}

func (h *metricsHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(h.service.Metrics())
}
