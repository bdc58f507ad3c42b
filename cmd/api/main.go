package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/auth"
	"github.com/chioma/settlement/internal/bootstrap"
	"github.com/chioma/settlement/internal/config"
	"github.com/chioma/settlement/internal/events"
	apphttp "github.com/chioma/settlement/internal/http"
	"github.com/chioma/settlement/internal/http/handlers"
	"github.com/chioma/settlement/internal/services"
	"github.com/chioma/settlement/internal/ton"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Open(ctx, cfg, bootstrap.Options{Redis: true, Engine: true}, log)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	defer rt.Close()

	// Services
	protocolService := services.NewProtocolService(rt.Engine)
	escrowService := services.NewEscrowService(rt.Engine)
	agreementService := services.NewAgreementService(rt.Engine)
	propertyService := services.NewPropertyService(rt.Engine)
	authService := services.NewAuthService(
		auth.NewRedisNonces(rt.Redis),
		ton.NewVerifier(cfg.TONProofAllowedDomains),
		cfg.TONNetwork,
		cfg.JWTSecret,
		cfg.JWTExpiration,
		log,
	)

	// Handlers
	subscriber := events.NewRedisSubscriber(rt.Redis, log)
	wsHub := handlers.NewWSHub(subscriber, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to start ws hub", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rt.Redis, apphttp.Handlers{
		Auth:      handlers.NewAuthHandler(authService, log),
		Protocol:  handlers.NewProtocolHandler(protocolService, log),
		Escrow:    handlers.NewEscrowHandler(escrowService, log),
		Agreement: handlers.NewAgreementHandler(agreementService, log),
		Property:  handlers.NewPropertyHandler(propertyService, log),
		WSHub:     wsHub,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr), zap.String("version", protocolService.Version()))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
