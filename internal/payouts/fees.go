package payouts

import "github.com/angelmondragon/escrow-backend/pkg/config"

// FeeSchedule is a tiered flat fee charged on each withdrawal, in kobo.
type FeeSchedule struct {
	LowTierCeiling int64
	MidTierCeiling int64
	LowTierFee     int64
	MidTierFee     int64
	HighTierFee    int64
}

// FeeScheduleFromConfig reads the fee tiers from the payout config.
func FeeScheduleFromConfig(cfg config.PayoutConfig) FeeSchedule {
	return FeeSchedule{
		LowTierCeiling: cfg.LowTierCeiling,
		MidTierCeiling: cfg.MidTierCeiling,
		LowTierFee:     cfg.LowTierFee,
		MidTierFee:     cfg.MidTierFee,
		HighTierFee:    cfg.HighTierFee,
	}
}

// FeeFor returns the fee for a withdrawal of amount.
func (f FeeSchedule) FeeFor(amount int64) int64 {
	switch {
	case amount <= f.LowTierCeiling:
		return f.LowTierFee
	case amount <= f.MidTierCeiling:
		return f.MidTierFee
	default:
		return f.HighTierFee
	}
}
