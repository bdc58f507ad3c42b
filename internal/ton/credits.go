package ton

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const creditKeyPrefix = "ton-custody:credit:"

var ErrInsufficientCredit = errors.New("insufficient deposit credit")

// spendScript decrements a credit only when it covers the amount.
var spendScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local amt = tonumber(ARGV[1])
if cur < amt then
  return -1
end
return redis.call("DECRBY", KEYS[1], amt)
`)

// Credits tracks nanoTON each address has sent to the custody wallet and not
// yet committed to an escrow or agreement.
type Credits struct {
	rdb *redis.Client
}

func NewCredits(rdb *redis.Client) *Credits {
	return &Credits{rdb: rdb}
}

func creditKey(addr string) string {
	return creditKeyPrefix + strings.ToLower(addr)
}

func (c *Credits) Add(ctx context.Context, addr string, nano int64) (int64, error) {
	return c.rdb.IncrBy(ctx, creditKey(addr), nano).Result()
}

func (c *Credits) Spend(ctx context.Context, addr string, nano int64) error {
	left, err := spendScript.Run(ctx, c.rdb, []string{creditKey(addr)}, nano).Int64()
	if err != nil {
		return err
	}
	if left < 0 {
		return fmt.Errorf("%w: %s needs %d nanoTON", ErrInsufficientCredit, addr, nano)
	}
	return nil
}

func (c *Credits) Balance(ctx context.Context, addr string) (int64, error) {
	n, err := c.rdb.Get(ctx, creditKey(addr)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
