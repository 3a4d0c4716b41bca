package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/serenmind/sentinel/pkg/domain/crisis"
	"github.com/serenmind/sentinel/pkg/domain/safety"
	"github.com/serenmind/sentinel/pkg/service"
	"github.com/serenmind/sentinel/pkg/validator"
)

type validateHandler struct {
	logger  *logrus.Logger
	service *service.Service
}

func NewValidateHandler(logger *logrus.Logger, svc *service.Service) Handler {
	return &validateHandler{logger: logger, service: svc}
}

type historyEntryRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	At      string `json:"at,omitempty"`
}

type validateRequest struct {
	SessionID string                `json:"session_id"`
	Role      string                `json:"role"`
	Content   string                `json:"content"`
	History   []historyEntryRequest `json:"history,omitempty"`
	Assess    bool                  `json:"assess,omitempty"`
}

type validateResponse struct {
	Result     safety.Result      `json:"result"`
	Assessment *crisis.Assessment `json:"assessment,omitempty"`
}

func (h *validateHandler) Handle(c *fiber.Ctx) error {
	var req validateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id is required"})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	}

	tctx := validator.Context{
		SessionID: req.SessionID,
		Role:      parseRole(req.Role),
		History:   parseHistory(req.History),
	}

	// Validation never surfaces internal failures: the result already
	// encodes the safe fallback, so this path has no 5xx branch.
	if req.Assess {
		result, assessment := h.service.ValidateAndAssess(c.Context(), req.Content, tctx)
		return c.JSON(validateResponse{Result: result, Assessment: &assessment})
	}

	result := h.service.Validate(c.Context(), req.Content, tctx)
	return c.JSON(validateResponse{Result: result})
}

func parseRole(role string) safety.ContentRole {
	if role == string(safety.RoleAgent) {
		return safety.RoleAgent
	}
	return safety.RoleUser
}

func parseHistory(entries []historyEntryRequest) []crisis.HistoryEntry {
	out := make([]crisis.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		at, err := time.Parse(time.RFC3339, e.At)
		if err != nil {
			at = time.Time{}
		}
		out = append(out, crisis.HistoryEntry{
			Role:    parseRole(e.Role),
			Content: e.Content,
			At:      at,
		})
	}
	return out
}
