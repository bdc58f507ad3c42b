package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/config"
	"github.com/chioma/settlement/internal/http/handlers"
	"github.com/chioma/settlement/internal/middleware"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	Protocol  *handlers.ProtocolHandler
	Escrow    *handlers.EscrowHandler
	Agreement *handlers.AgreementHandler
	Property  *handlers.PropertyHandler
	WSHub     *handlers.WSHub
}

func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/version", h.Protocol.Version)

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))

	// Auth (public)
	api.Post("/auth/proof-payload", h.Auth.ProofPayload)
	api.Post("/auth/ton-proof", h.Auth.TonProof)

	// Reads (public)
	api.Get("/protocol", h.Protocol.GetState)
	api.Get("/escrows/:id", h.Escrow.GetEscrow)
	api.Get("/agreements/:id", h.Agreement.GetAgreement)
	api.Get("/agreements/:id/payments", h.Agreement.ListPayments)
	api.Get("/agreements/:id/payments/:index", h.Agreement.GetPayment)
	api.Get("/properties/count", h.Property.CountProperties)
	api.Get("/properties/:id", h.Property.GetProperty)

	// Mutations act as the authenticated caller
	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret, log))

	// Protocol
	protected.Post("/protocol/initialize", h.Protocol.Initialize)
	protected.Put("/protocol/config", h.Protocol.UpdateConfig)
	protected.Post("/protocol/pause", h.Protocol.Pause)
	protected.Post("/protocol/unpause", h.Protocol.Unpause)

	// Escrows
	protected.Post("/escrows", h.Escrow.OpenEscrow)
	protected.Post("/escrows/:id/fund", h.Escrow.FundEscrow)
	protected.Post("/escrows/:id/release", h.Escrow.ReleaseEscrow)
	protected.Post("/escrows/:id/refund", h.Escrow.RefundEscrow)
	protected.Post("/escrows/:id/dispute", h.Escrow.DisputeEscrow)
	protected.Post("/escrows/:id/resolve", h.Escrow.ResolveEscrow)

	// Agreements
	protected.Post("/agreements", h.Agreement.CreateAgreement)
	protected.Post("/agreements/:id/sign", h.Agreement.SignAgreement)
	protected.Post("/agreements/:id/fund-deposit", h.Agreement.FundDeposit)
	protected.Post("/agreements/:id/pay", h.Agreement.PayRent)
	protected.Post("/agreements/:id/terminate", h.Agreement.TerminateAgreement)
	protected.Post("/agreements/:id/complete", h.Agreement.CompleteAgreement)
	protected.Post("/agreements/:id/cancel", h.Agreement.CancelAgreement)
	protected.Post("/agreements/:id/dispute", h.Agreement.DisputeAgreement)
	protected.Post("/agreements/:id/resolve", h.Agreement.ResolveAgreement)

	// Properties
	protected.Post("/properties", h.Property.RegisterProperty)
	protected.Post("/properties/:id/verify", h.Property.VerifyProperty)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware(), middleware.AuthMiddleware(cfg.JWTSecret, log))
	app.Get("/ws", websocket.New(h.WSHub.HandleWS))
}
