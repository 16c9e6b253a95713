package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
)

// updateReserveState accrues interest earned since the last update into both
// indexes using the currently cached rates, then stamps the update time. The
// call is idempotent within one second. The reserve factor share of the
// variable interest delta is recorded against the asset's fee accrual; the
// returned flag reports whether the accrual changed.
func (e *Engine) updateReserveState(r *Reserve) (*FeeAccrual, bool, error) {
	now := e.clock()
	if now <= r.LastUpdateTimestamp {
		return nil, false, nil
	}

	variableToken, err := e.variableToken(r)
	if err != nil {
		return nil, false, err
	}
	scaledVariable, err := variableToken.ScaledTotalSupply()
	if err != nil {
		return nil, false, err
	}

	previousVariableIndex := new(big.Int).Set(r.VariableBorrowIndex)

	if r.CurrentLiquidityRate.Sign() > 0 {
		factor := linearInterest(r.CurrentLiquidityRate, r.LastUpdateTimestamp, now)
		r.LiquidityIndex = rayMul(factor, r.LiquidityIndex)
	}
	if scaledVariable.Sign() > 0 && r.CurrentVariableBorrowRate.Sign() > 0 {
		factor := compoundedInterest(r.CurrentVariableBorrowRate, r.LastUpdateTimestamp, now)
		r.VariableBorrowIndex = rayMul(factor, r.VariableBorrowIndex)
	}

	var fees *FeeAccrual
	changed := false
	if r.Config.ReserveFactorBps > 0 && scaledVariable.Sign() > 0 {
		previousDebt := rayMul(scaledVariable, previousVariableIndex)
		currentDebt := rayMul(scaledVariable, r.VariableBorrowIndex)
		delta := new(big.Int).Sub(currentDebt, previousDebt)
		if delta.Sign() > 0 {
			share := percentMulFloor(delta, r.Config.ReserveFactorBps)
			if share.Sign() > 0 {
				fees, err = e.feeAccrual(r.Asset)
				if err != nil {
					return nil, false, err
				}
				fees.ProtocolFees = new(big.Int).Add(fees.ProtocolFees, share)
				changed = true
			}
		}
	}

	r.LastUpdateTimestamp = now
	return fees, changed, nil
}

// updateReserveRates recomputes the three reserve rates through the rate
// strategy, given the liquidity the current operation adds or removes. Must
// run after every balance change and before any external transfer.
func (e *Engine) updateReserveRates(r *Reserve, liquidityAdded, liquidityTaken *big.Int) error {
	strategy, err := e.strategy(r)
	if err != nil {
		return err
	}
	stableToken, err := e.stableToken(r)
	if err != nil {
		return err
	}
	variableToken, err := e.variableToken(r)
	if err != nil {
		return err
	}

	totalStable, averageStableRate, err := stableToken.TotalSupplyAndAverageRate()
	if err != nil {
		return err
	}
	scaledVariable, err := variableToken.ScaledTotalSupply()
	if err != nil {
		return err
	}
	totalVariable := rayMul(scaledVariable, r.VariableBorrowIndex)

	available, err := e.availableLiquidity(r)
	if err != nil {
		return err
	}
	if liquidityAdded != nil {
		available.Add(available, liquidityAdded)
	}
	if liquidityTaken != nil {
		available.Sub(available, liquidityTaken)
	}
	if available.Sign() < 0 {
		available.SetInt64(0)
	}

	liquidityRate, stableRate, variableRate, err := strategy.CalculateInterestRates(
		r.Asset, available, totalStable, totalVariable, averageStableRate, r.Config.ReserveFactorBps,
	)
	if err != nil {
		return err
	}
	r.CurrentLiquidityRate = setOrZero(liquidityRate)
	r.CurrentStableBorrowRate = setOrZero(stableRate)
	r.CurrentVariableBorrowRate = setOrZero(variableRate)

	e.emit(events.PoolReserveDataUpdated{
		Asset:               r.Asset,
		LiquidityRate:       new(big.Int).Set(r.CurrentLiquidityRate),
		StableBorrowRate:    new(big.Int).Set(r.CurrentStableBorrowRate),
		VariableBorrowRate:  new(big.Int).Set(r.CurrentVariableBorrowRate),
		LiquidityIndex:      new(big.Int).Set(r.LiquidityIndex),
		VariableBorrowIndex: new(big.Int).Set(r.VariableBorrowIndex),
	})
	return nil
}

// normalizedIncome projects the liquidity index as of now without mutating
// the reserve.
func (e *Engine) normalizedIncome(r *Reserve) *big.Int {
	now := e.clock()
	if now <= r.LastUpdateTimestamp {
		return new(big.Int).Set(r.LiquidityIndex)
	}
	return rayMul(linearInterest(r.CurrentLiquidityRate, r.LastUpdateTimestamp, now), r.LiquidityIndex)
}

// normalizedVariableDebt projects the variable borrow index as of now without
// mutating the reserve.
func (e *Engine) normalizedVariableDebt(r *Reserve) *big.Int {
	now := e.clock()
	if now <= r.LastUpdateTimestamp {
		return new(big.Int).Set(r.VariableBorrowIndex)
	}
	return rayMul(compoundedInterest(r.CurrentVariableBorrowRate, r.LastUpdateTimestamp, now), r.VariableBorrowIndex)
}

// cumulateToLiquidityIndex folds externally sourced yield, e.g. a flash loan
// premium, directly into the liquidity index without a strategy recompute.
func cumulateToLiquidityIndex(r *Reserve, totalReceiptSupply, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 || totalReceiptSupply == nil || totalReceiptSupply.Sign() == 0 {
		return
	}
	factor := rayDiv(amount, totalReceiptSupply)
	factor.Add(factor, ray)
	r.LiquidityIndex = rayMul(factor, r.LiquidityIndex)
}

// availableLiquidity reports the underlying held in the reserve's receipt
// token custody.
func (e *Engine) availableLiquidity(r *Reserve) (*big.Int, error) {
	balance, err := e.ledger.BalanceOf(r.Asset, r.ReceiptTokenAddress)
	if err != nil {
		return nil, err
	}
	return setOrZero(balance), nil
}

// feeAccrual loads the asset's treasury accrual, defaulting empty records.
func (e *Engine) feeAccrual(asset common.Address) (*FeeAccrual, error) {
	fees, err := e.state.GetFeeAccrual(asset)
	if err != nil {
		return nil, err
	}
	if fees == nil {
		fees = &FeeAccrual{}
	}
	if fees.ProtocolFees == nil {
		fees.ProtocolFees = big.NewInt(0)
	}
	return fees, nil
}

// persistAccrual writes the reserve and, when changed, its fee accrual.
func (e *Engine) persistAccrual(r *Reserve, fees *FeeAccrual, feesChanged bool) error {
	if feesChanged {
		if err := e.state.PutFeeAccrual(r.Asset, fees); err != nil {
			return err
		}
	}
	return e.state.PutReserve(r)
}
