package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	tonapi "github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/config"
	"github.com/chioma/settlement/internal/db"
	"github.com/chioma/settlement/internal/ton"
)

// TON indexer watches the custody hot wallet and credits every incoming
// transfer to its sender. Credits are spent when the sender funds an escrow
// or agreement deposit, or pays rent, with the TON token. Each cycle also
// resends committed payouts whose first send failed.

const (
	redisCursorLT   = "ton-indexer:cursor:lt"
	redisCursorHash = "ton-indexer:cursor:hash"
	redisProcessed  = "ton-indexer:tx:"
	processedTTL    = 7 * 24 * time.Hour
	pollInterval    = 5 * time.Second
	txBatchSize     = 100
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TONWalletSeed == "" {
		log.Fatal("TON_WALLET_SEED is required")
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	api, err := ton.Connect(ctx, ton.NetworkConfig{
		Network:        cfg.TONNetwork,
		LiteServerHost: cfg.LiteServerHost,
		LiteServerPort: cfg.LiteServerPort,
		LiteServerKey:  cfg.LiteServerKey,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to TON network", zap.Error(err))
	}

	hot, err := ton.NewHotWallet(api, cfg.TONWalletSeed, log)
	if err != nil {
		log.Fatal("failed to open hot wallet", zap.Error(err))
	}
	hotWallet := hot.Address()
	credits := ton.NewCredits(rdb)
	custody := ton.NewCustody(cfg.CustodyAccount, credits, ton.NewRedisPayouts(rdb), hot, log)

	log.Info("TON indexer started",
		zap.String("hot_wallet", hotWallet.String()),
		zap.String("network", cfg.TONNetwork),
	)

	initCursor(ctx, api, hotWallet, rdb, log)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := pollAndCredit(ctx, api, hotWallet, credits, rdb, log); err != nil {
				log.Error("poll cycle failed", zap.Error(err))
			}
			sent, err := custody.Flush(ctx)
			if err != nil {
				log.Error("payout retry failed", zap.Error(err))
			}
			if sent > 0 {
				log.Info("queued payouts sent", zap.Int("count", sent))
			}
		case <-sigCh:
			log.Info("shutting down TON indexer")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// initCursor starts a fresh indexer at the wallet's latest transaction so
// history before the first run is never credited.
func initCursor(ctx context.Context, api tonapi.APIClientWrapped, addr *address.Address, rdb *redis.Client, log *zap.Logger) {
	existing, _ := rdb.Get(ctx, redisCursorLT).Result()
	if existing != "" {
		log.Info("resuming from saved cursor", zap.String("lt", existing))
		return
	}

	account, err := currentAccount(ctx, api, addr)
	if err != nil {
		log.Warn("failed to read hot wallet for cursor init", zap.Error(err))
		rdb.Set(ctx, redisCursorLT, "0", 0)
		return
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		log.Info("hot wallet not active yet, starting from LT=0")
		rdb.Set(ctx, redisCursorLT, "0", 0)
		return
	}

	saveCursor(ctx, rdb, account.LastTxLT, account.LastTxHash)
	log.Info("cursor initialized at current account state",
		zap.Uint64("lt", account.LastTxLT),
		zap.String("hash", hex.EncodeToString(account.LastTxHash)),
	)
}

func currentAccount(ctx context.Context, api tonapi.APIClientWrapped, addr *address.Address) (*tlb.Account, error) {
	block, err := api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get master block: %w", err)
	}
	account, err := api.GetAccount(ctx, block, addr)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func loadCursorLT(ctx context.Context, rdb *redis.Client) uint64 {
	val, err := rdb.Get(ctx, redisCursorLT).Result()
	if err != nil || val == "" {
		return 0
	}
	lt, _ := strconv.ParseUint(val, 10, 64)
	return lt
}

func saveCursor(ctx context.Context, rdb *redis.Client, lt uint64, hash []byte) {
	rdb.Set(ctx, redisCursorLT, strconv.FormatUint(lt, 10), 0)
	rdb.Set(ctx, redisCursorHash, hex.EncodeToString(hash), 0)
}

func pollAndCredit(
	ctx context.Context,
	api tonapi.APIClientWrapped,
	addr *address.Address,
	credits *ton.Credits,
	rdb *redis.Client,
	log *zap.Logger,
) error {
	cursorLT := loadCursorLT(ctx, rdb)

	account, err := currentAccount(ctx, api, addr)
	if err != nil {
		return err
	}
	if account == nil || !account.IsActive || account.LastTxLT <= cursorLT {
		return nil
	}

	txs, err := fetchNewTransactions(ctx, api, addr, account, cursorLT)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}
	for _, tx := range txs {
		if err := creditIncoming(ctx, tx, credits, rdb, log); err != nil {
			// Keep the cursor so the transaction is retried next cycle.
			return err
		}
	}

	saveCursor(ctx, rdb, account.LastTxLT, account.LastTxHash)
	return nil
}

// fetchNewTransactions pages backwards from the latest transaction to the
// cursor and returns what it found oldest first.
func fetchNewTransactions(
	ctx context.Context,
	api tonapi.APIClientWrapped,
	addr *address.Address,
	account *tlb.Account,
	cursorLT uint64,
) ([]*tlb.Transaction, error) {
	var found []*tlb.Transaction

	lt := account.LastTxLT
	hash := account.LastTxHash
	for {
		txs, err := api.ListTransactions(ctx, addr, uint32(txBatchSize), lt, hash)
		if err != nil {
			return nil, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(txs) == 0 {
			break
		}

		reachedCursor := false
		for _, tx := range txs {
			if tx.LT <= cursorLT {
				reachedCursor = true
				continue
			}
			found = append(found, tx)
		}
		if reachedCursor || len(txs) < txBatchSize {
			break
		}

		oldest := txs[0]
		if oldest.PrevTxLT == 0 {
			break
		}
		lt = oldest.PrevTxLT
		hash = oldest.PrevTxHash
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].LT < found[j].LT
	})
	return found, nil
}

// creditIncoming adds a non-bounced incoming transfer to its sender's credit.
// Each transaction is credited at most once.
func creditIncoming(ctx context.Context, tx *tlb.Transaction, credits *ton.Credits, rdb *redis.Client, log *zap.Logger) error {
	if tx.IO.In == nil {
		return nil
	}
	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil || inMsg.Bounced {
		return nil
	}
	nano := inMsg.Amount.Nano()
	if nano.Sign() <= 0 || !nano.IsInt64() {
		return nil
	}

	txKey := fmt.Sprintf("%s%d", redisProcessed, tx.LT)
	fresh, err := rdb.SetNX(ctx, txKey, "credited", processedTTL).Result()
	if err != nil {
		return fmt.Errorf("mark tx %d: %w", tx.LT, err)
	}
	if !fresh {
		return nil
	}

	sender := ton.RawAddress(inMsg.SrcAddr)
	balance, err := credits.Add(ctx, sender, nano.Int64())
	if err != nil {
		_ = rdb.Del(ctx, txKey).Err()
		return fmt.Errorf("credit %s: %w", sender, err)
	}

	log.Info("deposit credited",
		zap.Uint64("lt", tx.LT),
		zap.String("from", sender),
		zap.String("amount", inMsg.Amount.String()),
		zap.Int64("credit_nano", balance),
	)
	return nil
}
