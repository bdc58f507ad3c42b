package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/http/dto"
	"github.com/chioma/settlement/internal/middleware"
	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/services"
)

type EscrowHandler struct {
	escrowService *services.EscrowService
	log           *zap.Logger
}

func NewEscrowHandler(escrowService *services.EscrowService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrowService: escrowService, log: log}
}

func (h *EscrowHandler) OpenEscrow(c *fiber.Ctx) error {
	var req dto.OpenEscrowRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	caller := middleware.GetCaller(c)
	if req.Depositor == "" {
		req.Depositor = caller
	}

	escrow, err := h.escrowService.Open(c.Context(), caller, services.OpenEscrowInput{
		Depositor:   req.Depositor,
		Beneficiary: req.Beneficiary,
		Arbiter:     req.Arbiter,
		Amount:      req.Amount,
		Token:       req.Token,
	})
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) GetEscrow(c *fiber.Ctx) error {
	id, err := models.ParseEscrowID(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid escrow id")
	}

	escrow, err := h.escrowService.GetByID(c.Context(), id)
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) FundEscrow(c *fiber.Ctx) error {
	return h.act(c, h.escrowService.Fund)
}

func (h *EscrowHandler) ReleaseEscrow(c *fiber.Ctx) error {
	return h.act(c, h.escrowService.Release)
}

func (h *EscrowHandler) RefundEscrow(c *fiber.Ctx) error {
	return h.act(c, h.escrowService.Refund)
}

func (h *EscrowHandler) DisputeEscrow(c *fiber.Ctx) error {
	var req dto.DisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	id, err := models.ParseEscrowID(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid escrow id")
	}

	escrow, err := h.escrowService.Dispute(c.Context(), middleware.GetCaller(c), id, req.Reason)
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *EscrowHandler) ResolveEscrow(c *fiber.Ctx) error {
	var req dto.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	id, err := models.ParseEscrowID(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid escrow id")
	}

	escrow, err := h.escrowService.Resolve(c.Context(), middleware.GetCaller(c), id, models.Resolution(req.Outcome))
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

type escrowAction func(ctx context.Context, caller string, id models.EscrowID) (*models.Escrow, error)

func (h *EscrowHandler) act(c *fiber.Ctx, action escrowAction) error {
	id, err := models.ParseEscrowID(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid escrow id")
	}

	escrow, err := action(c.Context(), middleware.GetCaller(c), id)
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}
