package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/events"
	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/store"
)

// ProtocolService owns the one-shot initialization and the admin setters.
type ProtocolService struct {
	*Engine
}

func NewProtocolService(e *Engine) *ProtocolService {
	return &ProtocolService{Engine: e}
}

// Initialize makes admin the protocol admin and stores cfg. It succeeds once.
func (s *ProtocolService) Initialize(ctx context.Context, admin string, cfg models.ProtocolConfig) error {
	if admin == "" {
		return fmt.Errorf("%w: admin address is required", models.ErrInvalidInput)
	}
	return s.mutate(ctx, "initialize", func(ctx context.Context, o *op) error {
		initialized, err := s.state.IsInitialized(ctx, o.tx)
		if err != nil {
			return err
		}
		if initialized {
			return models.ErrAlreadyInitialized
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := s.state.Initialize(ctx, o.tx, admin, cfg); err != nil {
			return err
		}

		o.emit(events.StreamProtocol, events.EventProtocolInitialized, []string{admin}, map[string]any{
			"admin":         admin,
			"fee_bps":       cfg.FeeBPS,
			"fee_collector": cfg.FeeCollector,
			"paused":        cfg.Paused,
		})
		s.log.Info("protocol initialized", zap.String("admin", admin), zap.Uint32("fee_bps", cfg.FeeBPS))
		return nil
	})
}

// UpdateConfig replaces the fee settings. Existing agreements keep the fee
// they were created with. Allowed while paused.
func (s *ProtocolService) UpdateConfig(ctx context.Context, caller string, feeBPS uint32, feeCollector string) (*models.ProtocolConfig, error) {
	var updated models.ProtocolConfig
	err := s.mutate(ctx, "update_config", func(ctx context.Context, o *op) error {
		p, err := s.requireAdmin(ctx, o.tx, caller)
		if err != nil {
			return err
		}
		updated = *p.config
		updated.FeeBPS = feeBPS
		updated.FeeCollector = feeCollector
		if err := updated.Validate(); err != nil {
			return err
		}
		if err := s.state.SaveConfig(ctx, o.tx, updated); err != nil {
			return err
		}
		o.emit(events.StreamProtocol, events.EventConfigUpdated, []string{p.admin}, map[string]any{
			"fee_bps":       feeBPS,
			"fee_collector": feeCollector,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SetPaused toggles the pause flag. Allowed while paused.
func (s *ProtocolService) SetPaused(ctx context.Context, caller string, paused bool) error {
	return s.mutate(ctx, "set_paused", func(ctx context.Context, o *op) error {
		p, err := s.requireAdmin(ctx, o.tx, caller)
		if err != nil {
			return err
		}
		if p.config.Paused == paused {
			return nil
		}
		cfg := *p.config
		cfg.Paused = paused
		if err := s.state.SaveConfig(ctx, o.tx, cfg); err != nil {
			return err
		}
		o.emit(events.StreamProtocol, events.EventPausedChanged, []string{p.admin}, map[string]any{"paused": paused})
		s.log.Info("pause flag changed", zap.Bool("paused", paused))
		return nil
	})
}

func (s *ProtocolService) requireAdmin(ctx context.Context, tx store.Tx, caller string) (*protocol, error) {
	p, err := s.requireInitialized(ctx, tx)
	if err != nil {
		return nil, err
	}
	if caller == "" || caller != p.admin {
		return nil, fmt.Errorf("%w: caller is not the admin", models.ErrNotAuthorized)
	}
	return p, nil
}

// State is a read-only snapshot of the protocol singletons.
type State struct {
	Admin    string                `json:"admin"`
	Config   models.ProtocolConfig `json:"config"`
	Counters models.Counters       `json:"counters"`
	Version  string                `json:"version"`
}

func (s *ProtocolService) State(ctx context.Context) (*State, error) {
	var st State
	err := s.view(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := s.requireInitialized(ctx, tx)
		if err != nil {
			return err
		}
		counters, err := s.state.Counters(ctx, tx)
		if err != nil {
			return err
		}
		st = State{Admin: p.admin, Config: *p.config, Counters: counters, Version: Version}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *ProtocolService) Version() string {
	return Version
}
