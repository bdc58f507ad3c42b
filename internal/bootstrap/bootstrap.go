// Package bootstrap wires the configured store, transfer backend and
// settlement engine for the binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/config"
	"github.com/chioma/settlement/internal/custody"
	"github.com/chioma/settlement/internal/db"
	"github.com/chioma/settlement/internal/events"
	"github.com/chioma/settlement/internal/formance"
	"github.com/chioma/settlement/internal/services"
	"github.com/chioma/settlement/internal/store"
	"github.com/chioma/settlement/internal/ton"
)

// Runtime holds the connections a binary opened. Close releases them.
type Runtime struct {
	Config     *config.Config
	Tokens     *config.TokenRegistry
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Store      store.Store
	Transferer custody.Transferer
	Engine     *services.Engine

	closers []func()
}

type Options struct {
	// Redis connects REDIS_URL. Required for the TON backend and for events.
	Redis bool
	// Engine builds the settlement engine, which needs a transfer backend.
	Engine bool
}

func Open(ctx context.Context, cfg *config.Config, opts Options, log *zap.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg}
	if err := rt.open(ctx, opts, log); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) open(ctx context.Context, opts Options, log *zap.Logger) error {
	cfg := rt.Config

	tokens, err := config.LoadTokens(cfg.TokensFile)
	if err != nil {
		return err
	}
	rt.Tokens = tokens

	if opts.Redis || cfg.TransferBackend == "ton" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.Redis = rdb
		rt.closers = append(rt.closers, func() { _ = rdb.Close() })
	}

	if err := rt.openStore(ctx, log); err != nil {
		return err
	}
	if !opts.Engine {
		return nil
	}

	if err := rt.openTransferer(ctx, log); err != nil {
		return err
	}

	var publisher events.Publisher = events.Nop{}
	if rt.Redis != nil {
		publisher = events.NewRedisPublisher(rt.Redis, log)
	}
	rt.Engine, err = services.NewEngine(rt.Store, rt.Transferer, publisher, tokens, services.Settings{
		RecordTTL:      cfg.RecordTTL,
		PaymentPeriod:  cfg.PaymentPeriod,
		PaymentGrace:   cfg.PaymentGrace,
		CustodyAccount: cfg.CustodyAccount,
	}, log)
	return err
}

func (rt *Runtime) openStore(ctx context.Context, log *zap.Logger) error {
	cfg := rt.Config
	opts := store.Options{DefaultTTL: cfg.RecordTTL}

	switch cfg.StoreBackend {
	case "postgres":
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		rt.Pool = pool
		rt.closers = append(rt.closers, pool.Close)

		if _, err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		rt.Store = store.NewPostgres(pool, opts, log)
	case "sqlite":
		st, err := store.NewSQLite(cfg.SQLitePath, opts, log)
		if err != nil {
			return fmt.Errorf("failed to open sqlite: %w", err)
		}
		rt.Store = st
		rt.closers = append(rt.closers, func() { _ = st.Close() })
	case "memory":
		rt.Store = store.NewMemory(opts)
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	log.Info("store opened", zap.String("backend", cfg.StoreBackend))
	return nil
}

func (rt *Runtime) openTransferer(ctx context.Context, log *zap.Logger) error {
	cfg := rt.Config

	switch cfg.TransferBackend {
	case "formance":
		svc, err := formance.NewService(ctx, formance.Config{
			StackURL:       cfg.FormanceStackURL,
			ClientID:       cfg.FormanceClientID,
			ClientSecret:   cfg.FormanceClientSecret,
			LedgerName:     cfg.FormanceLedger,
			CustodyAccount: cfg.CustodyAccount,
			Precisions:     rt.Tokens.Precisions(),
		}, log)
		if err != nil {
			return fmt.Errorf("failed to init formance: %w", err)
		}
		rt.Transferer = svc
	case "ton":
		api, err := ton.Connect(ctx, ton.NetworkConfig{
			Network:        cfg.TONNetwork,
			LiteServerHost: cfg.LiteServerHost,
			LiteServerPort: cfg.LiteServerPort,
			LiteServerKey:  cfg.LiteServerKey,
		}, log)
		if err != nil {
			return err
		}
		hot, err := ton.NewHotWallet(api, cfg.TONWalletSeed, log)
		if err != nil {
			return err
		}
		rt.Transferer = ton.NewCustody(cfg.CustodyAccount, ton.NewCredits(rt.Redis), ton.NewRedisPayouts(rt.Redis), hot, log)
	case "memory":
		rt.Transferer = custody.NewLedger()
	default:
		return fmt.Errorf("unknown TRANSFER_BACKEND %q", cfg.TransferBackend)
	}

	log.Info("transfer backend ready", zap.String("backend", cfg.TransferBackend))
	return nil
}

// Close releases connections in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
