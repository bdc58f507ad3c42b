package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const maxSerializationRetries = 3

// Postgres keeps entries in the kv_entries table and runs every Update as a
// serializable transaction, retrying serialization failures.
type Postgres struct {
	pool *pgxpool.Pool
	opts Options
	log  *zap.Logger
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool, opts Options, log *zap.Logger) *Postgres {
	return &Postgres{pool: pool, opts: opts, log: log}
}

func (s *Postgres) Update(ctx context.Context, fn func(Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxSerializationRetries; attempt++ {
		err = s.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, false, fn)
		if !isSerializationFailure(err) {
			return err
		}
		s.log.Warn("kv transaction conflict, retrying", zap.Int("attempt", attempt))
	}
	return err
}

func (s *Postgres) View(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, true, fn)
}

func (s *Postgres) run(ctx context.Context, txOpts pgx.TxOptions, readOnly bool, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx, opts: s.opts, now: s.opts.now(), readOnly: readOnly}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`, s.opts.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *Postgres) Close() error {
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

type pgTx struct {
	tx       pgx.Tx
	opts     Options
	now      time.Time
	readOnly bool
}

func (t *pgTx) Get(ctx context.Context, key string, dst any) (bool, error) {
	query := `SELECT value FROM kv_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`
	if !t.readOnly {
		query += ` FOR UPDATE`
	}
	var data []byte
	err := t.tx.QueryRow(ctx, query, key, t.now).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, decode(key, data, dst)
}

func (t *pgTx) Has(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM kv_entries WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2))`,
		key, t.now).Scan(&exists)
	return exists, err
}

func (t *pgTx) Set(ctx context.Context, key string, value any) error {
	if t.readOnly {
		return ErrReadOnly
	}
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = CASE
				WHEN kv_entries.expires_at IS NULL OR kv_entries.expires_at > $4 THEN kv_entries.expires_at
				ELSE EXCLUDED.expires_at
			END
	`, key, string(data), t.opts.expiryFor(t.now), t.now)
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, key string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key)
	return err
}

func (t *pgTx) ExtendTTL(ctx context.Context, key string, ttl time.Duration) error {
	if t.readOnly {
		return ErrReadOnly
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE kv_entries SET expires_at = CASE
			WHEN expires_at IS NULL THEN NULL
			ELSE GREATEST(expires_at, $2)
		END
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $3)
	`, key, t.now.Add(ttl), t.now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return nil
}

func (t *pgTx) Persist(ctx context.Context, key string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE kv_entries SET expires_at = NULL WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, t.now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return nil
}
