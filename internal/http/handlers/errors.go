package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/http/dto"
	"github.com/chioma/settlement/internal/middleware"
	"github.com/chioma/settlement/internal/models"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{models.ErrNotAuthorized, fiber.StatusForbidden},
	{models.ErrInvalidSigner, fiber.StatusForbidden},
	{models.ErrNotFound, fiber.StatusNotFound},
	{models.ErrAlreadyInitialized, fiber.StatusConflict},
	{models.ErrAlreadyExists, fiber.StatusConflict},
	{models.ErrAlreadyVerified, fiber.StatusConflict},
	{models.ErrInvalidState, fiber.StatusConflict},
	{models.ErrInvalidAmount, fiber.StatusUnprocessableEntity},
	{models.ErrInvalidConfig, fiber.StatusUnprocessableEntity},
	{models.ErrInvalidInput, fiber.StatusUnprocessableEntity},
	{models.ErrPaymentTooEarly, fiber.StatusUnprocessableEntity},
	{models.ErrNotInitialized, fiber.StatusServiceUnavailable},
	{models.ErrPaused, fiber.StatusServiceUnavailable},
	{models.ErrTransferFailed, fiber.StatusBadGateway},
}

// StatusFor maps a settlement error to its HTTP status.
func StatusFor(err error) int {
	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			return es.status
		}
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error, log *zap.Logger) error {
	status := StatusFor(err)
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)

	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Error("request failed", zap.String("request_id", reqID), zap.Error(err))
		msg = "internal error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      models.ErrorCode(err),
		RequestID: reqID,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, Code: "bad_request"})
}
