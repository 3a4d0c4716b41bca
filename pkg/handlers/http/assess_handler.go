package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/serenmind/sentinel/pkg/service"
)

type assessHandler struct {
	logger  *logrus.Logger
	service *service.Service
}

func NewAssessHandler(logger *logrus.Logger, svc *service.Service) Handler {
	return &assessHandler{logger: logger, service: svc}
}

type assessRequest struct {
	Content string                `json:"content"`
	History []historyEntryRequest `json:"history,omitempty"`
}

func (h *assessHandler) Handle(c *fiber.Ctx) error {
	var req assessRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	}

	assessment := h.service.AssessCrisis(c.Context(), req.Content, parseHistory(req.History))
	return c.JSON(assessment)
}
