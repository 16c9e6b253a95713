package pool

import (
	"fmt"
	"math/big"

	"github.com/BurntSushi/toml"
)

// Config captures the runtime configuration for the pool engine.
type Config struct {
	// FlashLoanPremiumBps is charged on flash loaned amounts, floored.
	FlashLoanPremiumBps uint64 `toml:"FlashLoanPremiumBps"`
	// MaxStableRateBorrowSizeBps caps a single stable borrow relative to the
	// reserve's available liquidity.
	MaxStableRateBorrowSizeBps uint64 `toml:"MaxStableRateBorrowSizeBps"`
	// RebalanceUsageRatioBps is the minimum pool usage ratio before a stable
	// position may be rebalanced.
	RebalanceUsageRatioBps uint64 `toml:"RebalanceUsageRatioBps"`
	// RebalanceLiquidityRateBps is the maximum liquidity rate, as a share of
	// the strategy's max variable rate, at which rebalancing is allowed.
	RebalanceLiquidityRateBps uint64 `toml:"RebalanceLiquidityRateBps"`
	// Reserves lists the per-asset risk settings applied at listing time,
	// keyed by hex asset address.
	Reserves map[string]ReserveSettings `toml:"reserves"`
}

// ReserveSettings describes the governance risk limits for one reserve.
type ReserveSettings struct {
	Decimals                uint8    `toml:"Decimals"`
	LTVBps                  uint64   `toml:"LTVBps"`
	LiquidationThresholdBps uint64   `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64   `toml:"LiquidationBonusBps"`
	ReserveFactorBps        uint64   `toml:"ReserveFactorBps"`
	BorrowingEnabled        bool     `toml:"BorrowingEnabled"`
	StableRateEnabled       bool     `toml:"StableRateEnabled"`
	BorrowCapWei            *big.Int `toml:"BorrowCapWei"`
	SupplyCapWei            *big.Int `toml:"SupplyCapWei"`
}

// Default gating constants, matching the validation thresholds the engine
// applies when the corresponding config value is zero.
const (
	defaultFlashLoanPremiumBps        = 9
	defaultMaxStableRateBorrowSizeBps = 2_500
	defaultRebalanceUsageRatioBps     = 9_500
	defaultRebalanceLiquidityRateBps  = 4_000
)

// EnsureDefaults fills the zero-valued gating thresholds.
func (c *Config) EnsureDefaults() {
	if c.FlashLoanPremiumBps == 0 {
		c.FlashLoanPremiumBps = defaultFlashLoanPremiumBps
	}
	if c.MaxStableRateBorrowSizeBps == 0 {
		c.MaxStableRateBorrowSizeBps = defaultMaxStableRateBorrowSizeBps
	}
	if c.RebalanceUsageRatioBps == 0 {
		c.RebalanceUsageRatioBps = defaultRebalanceUsageRatioBps
	}
	if c.RebalanceLiquidityRateBps == 0 {
		c.RebalanceLiquidityRateBps = defaultRebalanceLiquidityRateBps
	}
}

// DefaultConfig returns a config with all gating thresholds at their
// defaults.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.EnsureDefaults()
	return cfg
}

// LoadConfig reads a TOML pool configuration from disk.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decode pool config: %w", err)
	}
	cfg.EnsureDefaults()
	return &cfg, nil
}

// ReserveConfig converts the settings into a reserve configuration; newly
// listed reserves start active and unfrozen.
func (s ReserveSettings) ReserveConfig() ReserveConfig {
	return ReserveConfig{
		Decimals:                s.Decimals,
		LTVBps:                  s.LTVBps,
		LiquidationThresholdBps: s.LiquidationThresholdBps,
		LiquidationBonusBps:     s.LiquidationBonusBps,
		ReserveFactorBps:        s.ReserveFactorBps,
		Active:                  true,
		BorrowingEnabled:        s.BorrowingEnabled,
		StableRateEnabled:       s.StableRateEnabled,
		BorrowCap:               setOrZero(s.BorrowCapWei),
		SupplyCap:               setOrZero(s.SupplyCapWei),
	}
}
