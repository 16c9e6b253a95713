package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypePoolDeposit is emitted when liquidity is supplied to a reserve.
	TypePoolDeposit = "pool.deposit"
	// TypePoolWithdraw is emitted when receipt tokens are redeemed for
	// underlying liquidity.
	TypePoolWithdraw = "pool.withdraw"
	// TypePoolBorrow is emitted when debt is opened against a reserve.
	TypePoolBorrow = "pool.borrow"
	// TypePoolRepay is emitted when outstanding debt is repaid.
	TypePoolRepay = "pool.repay"
	// TypePoolSwapRateMode is emitted when a borrower switches between the
	// stable and variable rate modes.
	TypePoolSwapRateMode = "pool.rate_mode.swapped"
	// TypePoolRebalanceStableRate is emitted when a stable position is
	// re-minted at the current stable rate.
	TypePoolRebalanceStableRate = "pool.stable_rate.rebalanced"
	// TypePoolCollateralEnabled is emitted when a user flags a reserve as
	// collateral.
	TypePoolCollateralEnabled = "pool.collateral.enabled"
	// TypePoolCollateralDisabled is emitted when a user removes the
	// collateral flag from a reserve.
	TypePoolCollateralDisabled = "pool.collateral.disabled"
	// TypePoolFlashLoan is emitted once per asset of a settled flash loan.
	TypePoolFlashLoan = "pool.flash_loan"
	// TypePoolLiquidation is emitted when a position is liquidated.
	TypePoolLiquidation = "pool.liquidation"
	// TypePoolReserveDataUpdated is emitted whenever a reserve's rates and
	// indexes are recomputed.
	TypePoolReserveDataUpdated = "pool.reserve.data_updated"
	// TypePoolReserveInitialized is emitted when a reserve is listed.
	TypePoolReserveInitialized = "pool.reserve.initialized"
	// TypePoolPaused is emitted when the pool-wide pause flag is raised.
	TypePoolPaused = "pool.paused"
	// TypePoolUnpaused is emitted when the pool-wide pause flag is cleared.
	TypePoolUnpaused = "pool.unpaused"
)

// PoolDeposit captures an accepted deposit.
type PoolDeposit struct {
	Asset      common.Address
	Caller     common.Address
	OnBehalfOf common.Address
	Amount     *big.Int
	Referral   uint16
}

// EventType implements the Event interface.
func (PoolDeposit) EventType() string { return TypePoolDeposit }

// PoolWithdraw captures an accepted withdrawal.
type PoolWithdraw struct {
	Asset  common.Address
	User   common.Address
	To     common.Address
	Amount *big.Int
}

// EventType implements the Event interface.
func (PoolWithdraw) EventType() string { return TypePoolWithdraw }

// PoolBorrow captures an accepted borrow, including the rate actually applied
// to the new debt.
type PoolBorrow struct {
	Asset      common.Address
	Caller     common.Address
	OnBehalfOf common.Address
	Amount     *big.Int
	RateMode   uint8
	Rate       *big.Int
	Referral   uint16
}

// EventType implements the Event interface.
func (PoolBorrow) EventType() string { return TypePoolBorrow }

// PoolRepay captures an accepted repayment.
type PoolRepay struct {
	Asset  common.Address
	User   common.Address
	Payer  common.Address
	Amount *big.Int
}

// EventType implements the Event interface.
func (PoolRepay) EventType() string { return TypePoolRepay }

// PoolSwapRateMode captures a borrow rate mode switch.
type PoolSwapRateMode struct {
	Asset    common.Address
	User     common.Address
	RateMode uint8
}

// EventType implements the Event interface.
func (PoolSwapRateMode) EventType() string { return TypePoolSwapRateMode }

// PoolRebalanceStableRate captures a stable rate rebalance. The caller is
// recorded because the operation is permissionless.
type PoolRebalanceStableRate struct {
	Asset  common.Address
	User   common.Address
	Caller common.Address
}

// EventType implements the Event interface.
func (PoolRebalanceStableRate) EventType() string { return TypePoolRebalanceStableRate }

// PoolCollateralEnabled captures a reserve being flagged as collateral.
type PoolCollateralEnabled struct {
	Asset common.Address
	User  common.Address
}

// EventType implements the Event interface.
func (PoolCollateralEnabled) EventType() string { return TypePoolCollateralEnabled }

// PoolCollateralDisabled captures the collateral flag being removed.
type PoolCollateralDisabled struct {
	Asset common.Address
	User  common.Address
}

// EventType implements the Event interface.
func (PoolCollateralDisabled) EventType() string { return TypePoolCollateralDisabled }

// PoolFlashLoan captures the settlement of one asset of a flash loan.
type PoolFlashLoan struct {
	Receiver  common.Address
	Initiator common.Address
	Asset     common.Address
	Amount    *big.Int
	Premium   *big.Int
	RateMode  uint8
	Referral  uint16
}

// EventType implements the Event interface.
func (PoolFlashLoan) EventType() string { return TypePoolFlashLoan }

// PoolLiquidation captures an executed liquidation call.
type PoolLiquidation struct {
	CollateralAsset     common.Address
	DebtAsset           common.Address
	Borrower            common.Address
	Liquidator          common.Address
	DebtCovered         *big.Int
	CollateralSeized    *big.Int
	ReceiveReceiptToken bool
}

// EventType implements the Event interface.
func (PoolLiquidation) EventType() string { return TypePoolLiquidation }

// PoolReserveDataUpdated captures the refreshed rates and indexes of a
// reserve after a re-price.
type PoolReserveDataUpdated struct {
	Asset               common.Address
	LiquidityRate       *big.Int
	StableBorrowRate    *big.Int
	VariableBorrowRate  *big.Int
	LiquidityIndex      *big.Int
	VariableBorrowIndex *big.Int
}

// EventType implements the Event interface.
func (PoolReserveDataUpdated) EventType() string { return TypePoolReserveDataUpdated }

// PoolReserveInitialized captures the listing of a new reserve.
type PoolReserveInitialized struct {
	Asset             common.Address
	ReserveID         uint8
	ReceiptToken      common.Address
	StableDebtToken   common.Address
	VariableDebtToken common.Address
	RateStrategy      common.Address
}

// EventType implements the Event interface.
func (PoolReserveInitialized) EventType() string { return TypePoolReserveInitialized }

// PoolPaused captures the pool being paused.
type PoolPaused struct{}

// EventType implements the Event interface.
func (PoolPaused) EventType() string { return TypePoolPaused }

// PoolUnpaused captures the pool being resumed.
type PoolUnpaused struct{}

// EventType implements the Event interface.
func (PoolUnpaused) EventType() string { return TypePoolUnpaused }
