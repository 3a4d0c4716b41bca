package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/serenmind/sentinel/pkg/service"
)

type healthHandler struct {
	service *service.Service
}

func NewHealthHandler(svc *service.Service) Handler {
	return &healthHandler{service: svc}
}

// Handle reports liveness. A degraded rule store is still healthy: the
// engine keeps serving the last-known-good set, and degradation is exposed
// in the body for operators.
func (h *healthHandler) Handle(c *fiber.Ctx) error {
	snapshot := h.service.Metrics()
	return c.JSON(fiber.Map{
		"status":              "ok",
		"rule_set_version":    snapshot.RuleSetVersion,
		"rule_store_degraded": snapshot.RuleStoreDegraded,
	})
}
