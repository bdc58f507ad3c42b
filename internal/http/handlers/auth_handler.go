package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/http/dto"
	"github.com/chioma/settlement/internal/services"
	"github.com/chioma/settlement/internal/ton"
)

type AuthHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// ProofPayload issues the nonce the wallet signs.
// POST /auth/proof-payload
func (h *AuthHandler) ProofPayload(c *fiber.Ctx) error {
	payload, err := h.authService.GeneratePayload(c.Context())
	if err != nil {
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.PayloadResponse{Payload: payload})
}

// TonProof exchanges a signed ton_proof for a token.
// POST /auth/ton-proof
func (h *AuthHandler) TonProof(c *fiber.Ctx) error {
	var req ton.ProofData
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Address == "" || req.PublicKey == "" || req.Proof.Signature == "" {
		return badRequest(c, "address, public_key, and proof.signature are required")
	}

	session, err := h.authService.Login(c.Context(), req)
	if err != nil {
		h.log.Debug("ton proof login failed", zap.Error(err))
		return respondError(c, err, h.log)
	}
	return c.JSON(dto.AuthResponse{Token: session.Token, Address: session.Address})
}
