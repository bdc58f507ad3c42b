package models

import (
	"fmt"
	"time"
)

// MaxBPS is 100% in basis points.
const MaxBPS = 10000

// ProtocolConfig is the process-wide settlement configuration.
type ProtocolConfig struct {
	FeeBPS       uint32 `json:"fee_bps"`
	FeeCollector string `json:"fee_collector"`
	Paused       bool   `json:"paused"`
}

func (c ProtocolConfig) Validate() error {
	if c.FeeBPS > MaxBPS {
		return fmt.Errorf("%w: fee_bps %d exceeds %d", ErrInvalidConfig, c.FeeBPS, MaxBPS)
	}
	if c.FeeCollector == "" {
		return fmt.Errorf("%w: fee_collector is required", ErrInvalidConfig)
	}
	return nil
}

// Counters are the global monotonic counts kept next to the config.
type Counters struct {
	Agreements uint32 `json:"agreements"`
	Payments   uint32 `json:"payments"`
	Disputes   uint32 `json:"disputes"`
	Properties uint32 `json:"properties"`
	Escrows    uint32 `json:"escrows"`
}

type PropertyDetails struct {
	PropertyID   string     `json:"property_id"`
	Landlord     string     `json:"landlord"`
	MetadataHash string     `json:"metadata_hash"`
	Verified     bool       `json:"verified"`
	RegisteredAt time.Time  `json:"registered_at"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
}
