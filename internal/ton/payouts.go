package ton

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Payout states, one Redis hash each. A payout is held while the operation
// that queued it is uncommitted, ready once it committed and inflight while
// the hot wallet sends it.
const (
	payoutsHeld     = "ton-custody:payouts:held"
	payoutsReady    = "ton-custody:payouts:ready"
	payoutsInflight = "ton-custody:payouts:inflight"
)

// Payout is one queued hot-wallet transfer.
type Payout struct {
	ID       string    `json:"id"`
	To       string    `json:"to"`
	Nano     int64     `json:"nano"`
	Comment  string    `json:"comment"`
	QueuedAt time.Time `json:"queued_at"`
}

// PayoutQueue moves payouts through held, ready and inflight.
type PayoutQueue interface {
	Hold(ctx context.Context, p Payout) error
	// Cancel drops a held payout and reports whether it was still held.
	Cancel(ctx context.Context, id string) (bool, error)
	// Release makes a held payout eligible for sending.
	Release(ctx context.Context, id string) error
	// Claim takes a ready payout for sending; nil when another sender has it.
	Claim(ctx context.Context, id string) (*Payout, error)
	Done(ctx context.Context, id string) error
	// Requeue returns a claimed payout to ready after a failed send.
	Requeue(ctx context.Context, id string) error
	ReadyIDs(ctx context.Context) ([]string, error)
}

// moveScript moves one field between hashes atomically and returns its value.
var moveScript = redis.NewScript(`
local v = redis.call("HGET", KEYS[1], ARGV[1])
if not v then
  return false
end
redis.call("HDEL", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[2], ARGV[1], v)
return v
`)

type RedisPayouts struct {
	rdb *redis.Client
}

var _ PayoutQueue = (*RedisPayouts)(nil)

func NewRedisPayouts(rdb *redis.Client) *RedisPayouts {
	return &RedisPayouts{rdb: rdb}
}

func (q *RedisPayouts) Hold(ctx context.Context, p Payout) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return q.rdb.HSet(ctx, payoutsHeld, p.ID, data).Err()
}

func (q *RedisPayouts) Cancel(ctx context.Context, id string) (bool, error) {
	n, err := q.rdb.HDel(ctx, payoutsHeld, id).Result()
	return n > 0, err
}

func (q *RedisPayouts) Release(ctx context.Context, id string) error {
	_, err := q.move(ctx, payoutsHeld, payoutsReady, id)
	return err
}

func (q *RedisPayouts) Claim(ctx context.Context, id string) (*Payout, error) {
	return q.move(ctx, payoutsReady, payoutsInflight, id)
}

func (q *RedisPayouts) Done(ctx context.Context, id string) error {
	return q.rdb.HDel(ctx, payoutsInflight, id).Err()
}

func (q *RedisPayouts) Requeue(ctx context.Context, id string) error {
	_, err := q.move(ctx, payoutsInflight, payoutsReady, id)
	return err
}

func (q *RedisPayouts) ReadyIDs(ctx context.Context) ([]string, error) {
	return q.rdb.HKeys(ctx, payoutsReady).Result()
}

func (q *RedisPayouts) move(ctx context.Context, from, to, id string) (*Payout, error) {
	raw, err := moveScript.Run(ctx, q.rdb, []string{from, to}, id).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("move payout %s: %w", id, err)
	}
	var p Payout
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode payout %s: %w", id, err)
	}
	return &p, nil
}
