package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/config"
	"github.com/chioma/settlement/internal/custody"
	"github.com/chioma/settlement/internal/events"
	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/repositories"
	"github.com/chioma/settlement/internal/store"
)

// Version of the settlement protocol.
const Version = "1.0.0"

type Settings struct {
	// RecordTTL is the lease every write renews on the keys it touches.
	RecordTTL time.Duration
	// PaymentPeriod is the fixed interval between rent due dates.
	PaymentPeriod time.Duration
	// PaymentGrace is how long before the due date rent is accepted.
	PaymentGrace time.Duration
	// CustodyAccount holds escrowed funds and security deposits.
	CustodyAccount string
}

func (s Settings) validate() error {
	if s.RecordTTL <= 0 {
		return fmt.Errorf("%w: record ttl must be positive", models.ErrInvalidConfig)
	}
	if s.PaymentPeriod <= 0 {
		return fmt.Errorf("%w: payment period must be positive", models.ErrInvalidConfig)
	}
	if s.PaymentGrace < 0 || s.PaymentGrace >= s.PaymentPeriod {
		return fmt.Errorf("%w: payment grace must be in [0, period)", models.ErrInvalidConfig)
	}
	if s.CustodyAccount == "" {
		return fmt.Errorf("%w: custody account is required", models.ErrInvalidConfig)
	}
	return nil
}

// Engine carries what every settlement service shares: the store, the
// transfer primitive, the event publisher and the clock.
type Engine struct {
	store      store.Store
	transferer custody.Transferer
	publisher  events.Publisher
	tokens     *config.TokenRegistry
	settings   Settings
	now        func() time.Time
	log        *zap.Logger

	state      *repositories.StateRepo
	escrows    *repositories.EscrowRepo
	agreements *repositories.AgreementRepo
	properties *repositories.PropertyRepo
}

func NewEngine(
	st store.Store,
	transferer custody.Transferer,
	publisher events.Publisher,
	tokens *config.TokenRegistry,
	settings Settings,
	log *zap.Logger,
) (*Engine, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Engine{
		store:      st,
		transferer: transferer,
		publisher:  publisher,
		tokens:     tokens,
		settings:   settings,
		now:        time.Now,
		log:        log,
		state:      repositories.NewStateRepo(),
		escrows:    repositories.NewEscrowRepo(settings.RecordTTL),
		agreements: repositories.NewAgreementRepo(settings.RecordTTL),
		properties: repositories.NewPropertyRepo(settings.RecordTTL),
	}, nil
}

// SetClock replaces the ledger clock.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

type pendingEvent struct {
	stream string
	event  events.Event
}

// op is the context of one mutating call: its transaction, the transfers it
// queued and the events it will publish once committed.
type op struct {
	tx     store.Tx
	batch  *custody.Batch
	events []pendingEvent
	now    time.Time
}

func (o *op) transfer(t custody.Transfer) {
	o.batch.Add(t)
}

func (o *op) emit(stream, typ string, parties []string, payload map[string]any) {
	o.events = append(o.events, pendingEvent{stream: stream, event: events.Event{
		Type:      typ,
		Parties:   parties,
		Payload:   payload,
		Timestamp: o.now,
	}})
}

// mutate runs fn as one all-or-nothing call. Queued transfers execute after
// fn returns and before commit; a transfer or commit failure reverses them,
// as does a store retry before re-running fn. Backends implementing
// custody.Settler keep their legs reversible until the post-commit Settle.
// Events are published only after commit.
func (e *Engine) mutate(ctx context.Context, name string, fn func(ctx context.Context, o *op) error) error {
	var last *custody.Batch
	var committed []pendingEvent
	var receipts []custody.Receipt

	err := e.store.Update(ctx, func(tx store.Tx) error {
		if last != nil {
			// The store is retrying; undo the previous attempt's transfers.
			last.Compensate(ctx)
		}
		o := &op{tx: tx, batch: custody.NewBatch(e.transferer, e.log), now: e.now()}
		last = o.batch

		if err := fn(ctx, o); err != nil {
			return err
		}
		if err := o.batch.Execute(ctx); err != nil {
			return err
		}
		committed = o.events
		receipts = o.batch.Executed()
		return nil
	})
	if err != nil {
		if last != nil {
			last.Compensate(ctx)
		}
		e.log.Info("operation rejected", zap.String("op", name), zap.String("code", models.ErrorCode(err)), zap.Error(err))
		return err
	}

	if settler, ok := e.transferer.(custody.Settler); ok && len(receipts) > 0 {
		if err := settler.Settle(ctx, receipts); err != nil {
			e.log.Error("committed transfers not settled", zap.String("op", name), zap.Error(err))
		}
	}

	for _, p := range committed {
		if err := e.publisher.Publish(ctx, p.stream, p.event); err != nil {
			e.log.Warn("failed to publish event", zap.String("op", name), zap.String("type", p.event.Type), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) view(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return e.store.View(ctx, func(tx store.Tx) error {
		return fn(ctx, tx)
	})
}

// protocol is the singleton state loaded at the start of every guarded call.
type protocol struct {
	admin  string
	config *models.ProtocolConfig
}

// requireLive loads admin and config and rejects calls while paused.
func (e *Engine) requireLive(ctx context.Context, tx store.Tx) (*protocol, error) {
	p, err := e.requireInitialized(ctx, tx)
	if err != nil {
		return nil, err
	}
	if p.config.Paused {
		return nil, models.ErrPaused
	}
	return p, nil
}

func (e *Engine) requireInitialized(ctx context.Context, tx store.Tx) (*protocol, error) {
	admin, err := e.state.Admin(ctx, tx)
	if err != nil {
		return nil, err
	}
	cfg, err := e.state.Config(ctx, tx)
	if err != nil {
		return nil, err
	}
	return &protocol{admin: admin, config: cfg}, nil
}

func (e *Engine) requireToken(token string) error {
	if token == "" || !e.tokens.Supported(token) {
		return fmt.Errorf("%w: token %q is not supported", models.ErrInvalidInput, token)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func strPtr(s string) *string {
	return &s
}
