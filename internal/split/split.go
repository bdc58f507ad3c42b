// Package split divides a rent payment between landlord, platform and agent.
//
// Fee and commission are floored independently; the landlord receives the
// remainder and so absorbs all rounding.
package split

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chioma/settlement/internal/models"
)

var maxBPS = decimal.NewFromInt(models.MaxBPS)

// Shares is one disjoint division of a gross amount.
type Shares struct {
	Landlord int64 `json:"landlord_amount"`
	Platform int64 `json:"platform_amount"`
	Agent    int64 `json:"agent_amount"`
}

func (s Shares) Total() int64 {
	return s.Landlord + s.Platform + s.Agent
}

// ValidateRates rejects a fee/commission pair whose sum exceeds 100%.
func ValidateRates(feeBPS, commissionBPS uint32) error {
	if uint64(feeBPS)+uint64(commissionBPS) > models.MaxBPS {
		return fmt.Errorf("%w: fee %d bps + commission %d bps exceeds %d", models.ErrInvalidConfig, feeBPS, commissionBPS, models.MaxBPS)
	}
	return nil
}

// Split computes platform = floor(gross*fee/10000), agent =
// floor(gross*commission/10000) and landlord = gross - platform - agent.
func Split(gross int64, feeBPS, commissionBPS uint32) (Shares, error) {
	if gross <= 0 {
		return Shares{}, fmt.Errorf("%w: gross amount must be positive, got %d", models.ErrInvalidAmount, gross)
	}
	if err := ValidateRates(feeBPS, commissionBPS); err != nil {
		return Shares{}, fmt.Errorf("%w: %v", models.ErrInvalidAmount, err)
	}

	total := decimal.NewFromInt(gross)
	platform := share(total, feeBPS)
	agent := share(total, commissionBPS)
	landlord := total.Sub(platform).Sub(agent)

	if landlord.IsNegative() {
		return Shares{}, fmt.Errorf("%w: landlord share is negative", models.ErrInvalidAmount)
	}

	return Shares{
		Landlord: landlord.IntPart(),
		Platform: platform.IntPart(),
		Agent:    agent.IntPart(),
	}, nil
}

// share is floor(total*bps/10000); inputs are non-negative so truncation floors.
func share(total decimal.Decimal, bps uint32) decimal.Decimal {
	if bps == 0 {
		return decimal.Zero
	}
	q, _ := total.Mul(decimal.NewFromInt(int64(bps))).QuoRem(maxBPS, 0)
	return q
}
