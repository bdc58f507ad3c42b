package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/http/dto"
	"github.com/chioma/settlement/internal/middleware"
	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/services"
)

type AgreementHandler struct {
	agreementService *services.AgreementService
	log              *zap.Logger
}

func NewAgreementHandler(agreementService *services.AgreementService, log *zap.Logger) *AgreementHandler {
	return &AgreementHandler{agreementService: agreementService, log: log}
}

func (h *AgreementHandler) CreateAgreement(c *fiber.Ctx) error {
	var req dto.CreateAgreementRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	agreement, err := h.agreementService.Create(c.Context(), middleware.GetCaller(c), services.CreateAgreementInput{
		AgreementID:         req.AgreementID,
		PropertyID:          req.PropertyID,
		Landlord:            req.Landlord,
		Tenant:              req.Tenant,
		Agent:               req.Agent,
		MonthlyRent:         req.MonthlyRent,
		SecurityDeposit:     req.SecurityDeposit,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		AgentCommissionRate: req.AgentCommissionRate,
		PaymentToken:        req.PaymentToken,
	})
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: agreement})
}

func (h *AgreementHandler) GetAgreement(c *fiber.Ctx) error {
	agreement, err := h.agreementService.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: agreement})
}

func (h *AgreementHandler) ListPayments(c *fiber.Ctx) error {
	payments, err := h.agreementService.Payments(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payments})
}

func (h *AgreementHandler) GetPayment(c *fiber.Ctx) error {
	index, err := strconv.ParseUint(c.Params("index"), 10, 32)
	if err != nil {
		return badRequest(c, "invalid payment index")
	}

	payment, err := h.agreementService.Payment(c.Context(), c.Params("id"), uint32(index))
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payment})
}

func (h *AgreementHandler) SignAgreement(c *fiber.Ctx) error {
	return h.act(c, h.agreementService.Sign)
}

func (h *AgreementHandler) FundDeposit(c *fiber.Ctx) error {
	return h.act(c, h.agreementService.FundDeposit)
}

func (h *AgreementHandler) TerminateAgreement(c *fiber.Ctx) error {
	return h.act(c, h.agreementService.Terminate)
}

func (h *AgreementHandler) CompleteAgreement(c *fiber.Ctx) error {
	return h.act(c, h.agreementService.Complete)
}

func (h *AgreementHandler) CancelAgreement(c *fiber.Ctx) error {
	return h.act(c, h.agreementService.Cancel)
}

func (h *AgreementHandler) PayRent(c *fiber.Ctx) error {
	var req dto.PayRentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	payment, err := h.agreementService.PayRent(c.Context(), middleware.GetCaller(c), c.Params("id"), req.Amount)
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: payment})
}

func (h *AgreementHandler) DisputeAgreement(c *fiber.Ctx) error {
	var req dto.DisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	agreement, err := h.agreementService.Dispute(c.Context(), middleware.GetCaller(c), c.Params("id"), req.Reason)
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: agreement})
}

func (h *AgreementHandler) ResolveAgreement(c *fiber.Ctx) error {
	var req dto.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	outcome := models.AgreementResolution(req.Outcome)
	agreement, err := h.agreementService.Resolve(c.Context(), middleware.GetCaller(c), c.Params("id"), outcome)
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: agreement})
}

type agreementAction func(ctx context.Context, caller, id string) (*models.RentAgreement, error)

func (h *AgreementHandler) act(c *fiber.Ctx, action agreementAction) error {
	agreement, err := action(c.Context(), middleware.GetCaller(c), c.Params("id"))
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: agreement})
}
