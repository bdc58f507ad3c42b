package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/chioma/settlement/internal/models"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrNotAuthorized, fiber.StatusForbidden},
		{models.ErrInvalidSigner, fiber.StatusForbidden},
		{fmt.Errorf("%w: escrow x", models.ErrNotFound), fiber.StatusNotFound},
		{models.ErrAlreadyInitialized, fiber.StatusConflict},
		{models.ErrInvalidState, fiber.StatusConflict},
		{models.ErrAlreadyVerified, fiber.StatusConflict},
		{models.ErrPaymentTooEarly, fiber.StatusUnprocessableEntity},
		{models.ErrInvalidConfig, fiber.StatusUnprocessableEntity},
		{models.ErrPaused, fiber.StatusServiceUnavailable},
		{fmt.Errorf("%w: leg 2", models.ErrTransferFailed), fiber.StatusBadGateway},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
