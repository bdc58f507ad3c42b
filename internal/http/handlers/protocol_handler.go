package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/http/dto"
	"github.com/chioma/settlement/internal/middleware"
	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/services"
)

type ProtocolHandler struct {
	protocolService *services.ProtocolService
	log             *zap.Logger
}

func NewProtocolHandler(protocolService *services.ProtocolService, log *zap.Logger) *ProtocolHandler {
	return &ProtocolHandler{protocolService: protocolService, log: log}
}

// Initialize makes the caller the protocol admin.
func (h *ProtocolHandler) Initialize(c *fiber.Ctx) error {
	var req dto.InitializeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	cfg := models.ProtocolConfig{FeeBPS: req.FeeBPS, FeeCollector: req.FeeCollector, Paused: req.Paused}
	if err := h.protocolService.Initialize(c.Context(), middleware.GetCaller(c), cfg); err != nil {
		return respondError(c, err, h.log)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: cfg})
}

func (h *ProtocolHandler) UpdateConfig(c *fiber.Ctx) error {
	var req dto.UpdateConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	cfg, err := h.protocolService.UpdateConfig(c.Context(), middleware.GetCaller(c), req.FeeBPS, req.FeeCollector)
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: cfg})
}

func (h *ProtocolHandler) Pause(c *fiber.Ctx) error {
	return h.setPaused(c, true)
}

func (h *ProtocolHandler) Unpause(c *fiber.Ctx) error {
	return h.setPaused(c, false)
}

func (h *ProtocolHandler) setPaused(c *fiber.Ctx, paused bool) error {
	if err := h.protocolService.SetPaused(c.Context(), middleware.GetCaller(c), paused); err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"paused": paused}})
}

func (h *ProtocolHandler) GetState(c *fiber.Ctx) error {
	st, err := h.protocolService.State(c.Context())
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: st})
}

func (h *ProtocolHandler) Version(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"version": h.protocolService.Version()})
}
