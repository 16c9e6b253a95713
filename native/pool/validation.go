package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Validation checks are pure reads and fail fast: every check of an operation
// passes before the first mutation happens.

func validateDeposit(r *Reserve, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !r.Config.Active {
		return ErrReserveNotActive
	}
	if r.Config.Frozen {
		return ErrReserveFrozen
	}
	return nil
}

// validateSupplyCap rejects deposits that would push the receipt supply over
// the configured cap. A zero cap is unbounded.
func (e *Engine) validateSupplyCap(r *Reserve, amount *big.Int) error {
	if r.Config.SupplyCap == nil || r.Config.SupplyCap.Sign() == 0 {
		return nil
	}
	receiptToken, err := e.receiptToken(r)
	if err != nil {
		return err
	}
	supply, err := receiptToken.TotalSupply()
	if err != nil {
		return err
	}
	projected := new(big.Int).Add(setOrZero(supply), amount)
	if projected.Cmp(r.Config.SupplyCap) > 0 {
		return ErrSupplyCapExceeded
	}
	return nil
}

func validateWithdraw(r *Reserve, amount, userBalance, available *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !r.Config.Active {
		return ErrReserveNotActive
	}
	if r.Config.Frozen {
		return ErrReserveFrozen
	}
	if userBalance == nil || amount.Cmp(userBalance) > 0 {
		return ErrInsufficientBalance
	}
	if available == nil || amount.Cmp(available) > 0 {
		return ErrInsufficientLiquidity
	}
	return nil
}

// validateBorrow gates a new borrow. amountInBase is the requested amount
// converted to the oracle base currency, rounded up.
func (e *Engine) validateBorrow(r *Reserve, onBehalfOf common.Address, cfg *UserConfiguration, amount, amountInBase *big.Int, mode InterestRateMode, available *big.Int, data *accountData) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !r.Config.Active {
		return ErrReserveNotActive
	}
	if r.Config.Frozen {
		return ErrReserveFrozen
	}
	if !r.Config.BorrowingEnabled {
		return ErrBorrowingDisabled
	}
	if !mode.Valid() {
		return ErrInvalidRateMode
	}
	if amount.Cmp(available) > 0 {
		return ErrInsufficientLiquidity
	}
	if err := e.validateBorrowCap(r, amount); err != nil {
		return err
	}

	if data.totalCollateral.Sign() == 0 {
		return ErrCollateralBalanceZero
	}
	projectedDebt := new(big.Int).Add(data.totalDebt, amountInBase)
	riskAdjusted := percentMulFloor(data.totalCollateral, data.avgThresholdBps)
	if wadDivFloor(riskAdjusted, projectedDebt).Cmp(wad) < 0 {
		return ErrHealthFactorTooLow
	}
	if amountInBase.Cmp(data.availableBorrows()) > 0 {
		return ErrCollateralCannotCover
	}

	if mode == RateModeStable {
		if !r.Config.StableRateEnabled {
			return ErrStableBorrowingDisabled
		}
		if err := e.validateStableCollateralHeuristic(r, onBehalfOf, cfg, amount); err != nil {
			return err
		}
		maxStable := percentMulFloor(available, e.cfg.MaxStableRateBorrowSizeBps)
		if amount.Cmp(maxStable) > 0 {
			return ErrStableBorrowSizeExceeded
		}
	}
	return nil
}

// validateBorrowCap rejects borrows that would push total reserve debt over
// the configured cap. A zero cap is unbounded.
func (e *Engine) validateBorrowCap(r *Reserve, amount *big.Int) error {
	if r.Config.BorrowCap == nil || r.Config.BorrowCap.Sign() == 0 {
		return nil
	}
	totalDebt, err := e.reserveTotalDebt(r)
	if err != nil {
		return err
	}
	projected := new(big.Int).Add(totalDebt, amount)
	if projected.Cmp(r.Config.BorrowCap) > 0 {
		return ErrBorrowCapExceeded
	}
	return nil
}

// validateStableCollateralHeuristic rejects stable borrowing when the
// borrowed asset itself backs the position: a user collateralised by the
// asset could otherwise lock a stable rate against liquidity they can pull.
// The borrow passes when the reserve is not the user's collateral, its LTV is
// zero, or the amount exceeds the user's own receipt balance.
func (e *Engine) validateStableCollateralHeuristic(r *Reserve, user common.Address, cfg *UserConfiguration, amount *big.Int) error {
	if !cfg.IsUsingAsCollateral(r.ID) || r.Config.LTVBps == 0 {
		return nil
	}
	receiptToken, err := e.receiptToken(r)
	if err != nil {
		return err
	}
	balance, err := receiptToken.BalanceOf(user)
	if err != nil {
		return err
	}
	if amount.Cmp(setOrZero(balance)) <= 0 {
		return ErrCollateralSameAsBorrow
	}
	return nil
}

func validateRepay(r *Reserve, amount *big.Int, mode InterestRateMode, stableDebt, variableDebt *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !r.Config.Active {
		return ErrReserveNotActive
	}
	if !mode.Valid() {
		return ErrInvalidRateMode
	}
	if mode == RateModeStable && (stableDebt == nil || stableDebt.Sign() == 0) {
		return ErrNoDebtInSelectedMode
	}
	if mode == RateModeVariable && (variableDebt == nil || variableDebt.Sign() == 0) {
		return ErrNoDebtInSelectedMode
	}
	return nil
}

// validateSwapRateMode gates a switch out of sourceMode. Switching into
// stable applies the stable entry conditions to the full swapped principal.
func (e *Engine) validateSwapRateMode(r *Reserve, user common.Address, cfg *UserConfiguration, stableDebt, variableDebt *big.Int, sourceMode InterestRateMode, available *big.Int) error {
	if !r.Config.Active {
		return ErrReserveNotActive
	}
	if r.Config.Frozen {
		return ErrReserveFrozen
	}
	switch sourceMode {
	case RateModeStable:
		if stableDebt == nil || stableDebt.Sign() == 0 {
			return ErrNoDebtInSelectedMode
		}
	case RateModeVariable:
		if variableDebt == nil || variableDebt.Sign() == 0 {
			return ErrNoDebtInSelectedMode
		}
		if !r.Config.StableRateEnabled {
			return ErrStableBorrowingDisabled
		}
		if err := e.validateStableCollateralHeuristic(r, user, cfg, variableDebt); err != nil {
			return err
		}
		maxStable := percentMulFloor(available, e.cfg.MaxStableRateBorrowSizeBps)
		if variableDebt.Cmp(maxStable) > 0 {
			return ErrStableBorrowSizeExceeded
		}
	default:
		return ErrInvalidRateMode
	}
	return nil
}

// validateRebalance allows a permissionless stable rate rebalance only when
// the pool is heavily used and suppliers earn well below the strategy
// ceiling, i.e. stable borrowers are underpaying relative to pool stress.
func (e *Engine) validateRebalance(r *Reserve, stableDebt *big.Int) error {
	if !r.Config.Active {
		return ErrReserveNotActive
	}
	if stableDebt == nil || stableDebt.Sign() == 0 {
		return ErrNoDebtInSelectedMode
	}

	available, err := e.availableLiquidity(r)
	if err != nil {
		return err
	}
	totalDebt, err := e.reserveTotalDebt(r)
	if err != nil {
		return err
	}
	if totalDebt.Sign() == 0 {
		return ErrRebalanceConditionsNotMet
	}
	totalLiquidity := new(big.Int).Add(available, totalDebt)
	usageThreshold := percentMulFloor(totalLiquidity, e.cfg.RebalanceUsageRatioBps)
	if totalDebt.Cmp(usageThreshold) < 0 {
		return ErrRebalanceConditionsNotMet
	}

	strategy, err := e.strategy(r)
	if err != nil {
		return err
	}
	rateCeiling := percentMulFloor(strategy.MaxVariableBorrowRate(), e.cfg.RebalanceLiquidityRateBps)
	if r.CurrentLiquidityRate.Cmp(rateCeiling) > 0 {
		return ErrRebalanceConditionsNotMet
	}
	return nil
}

func validateSetUseAsCollateral(r *Reserve, balance *big.Int) error {
	if !r.Config.Active {
		return ErrReserveNotActive
	}
	if balance == nil || balance.Sign() == 0 {
		return ErrCollateralBalanceZero
	}
	return nil
}

func validateFlashLoan(assets []common.Address, amounts []*big.Int, modes []InterestRateMode) error {
	if len(assets) == 0 || len(assets) != len(amounts) || len(assets) != len(modes) {
		return ErrInconsistentFlashLoan
	}
	for _, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
	}
	return nil
}

// reserveTotalDebt sums outstanding stable and variable debt on the reserve.
func (e *Engine) reserveTotalDebt(r *Reserve) (*big.Int, error) {
	stableToken, err := e.stableToken(r)
	if err != nil {
		return nil, err
	}
	variableToken, err := e.variableToken(r)
	if err != nil {
		return nil, err
	}
	totalStable, _, err := stableToken.TotalSupplyAndAverageRate()
	if err != nil {
		return nil, err
	}
	scaledVariable, err := variableToken.ScaledTotalSupply()
	if err != nil {
		return nil, err
	}
	totalDebt := setOrZero(totalStable)
	return totalDebt.Add(totalDebt, rayMul(scaledVariable, r.VariableBorrowIndex)), nil
}
