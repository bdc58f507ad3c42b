package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/http/dto"
	"github.com/chioma/settlement/internal/middleware"
	"github.com/chioma/settlement/internal/services"
)

type PropertyHandler struct {
	propertyService *services.PropertyService
	log             *zap.Logger
}

func NewPropertyHandler(propertyService *services.PropertyService, log *zap.Logger) *PropertyHandler {
	return &PropertyHandler{propertyService: propertyService, log: log}
}

// RegisterProperty registers a property owned by the caller.
func (h *PropertyHandler) RegisterProperty(c *fiber.Ctx) error {
	var req dto.RegisterPropertyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	prop, err := h.propertyService.Register(c.Context(), middleware.GetCaller(c), req.PropertyID, req.MetadataHash)
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: prop})
}

func (h *PropertyHandler) GetProperty(c *fiber.Ctx) error {
	prop, err := h.propertyService.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: prop})
}

func (h *PropertyHandler) VerifyProperty(c *fiber.Ctx) error {
	prop, err := h.propertyService.Verify(c.Context(), middleware.GetCaller(c), c.Params("id"))
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: prop})
}

func (h *PropertyHandler) CountProperties(c *fiber.Ctx) error {
	n, err := h.propertyService.Count(c.Context())
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"count": n}})
}
