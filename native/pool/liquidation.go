package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
)

// closeFactorBps caps how much of a borrower's debt a single liquidation may
// settle.
const closeFactorBps = 5_000

// LiquidationCall settles part of an unhealthy borrower's debt in exchange
// for a discounted slice of their collateral. The caller funds the debt
// repayment; receiveReceiptToken selects between taking the collateral as
// receipt tokens or as released underlying. Returns the debt actually covered
// and the collateral seized.
func (e *Engine) LiquidationCall(caller, collateralAsset, debtAsset, borrower common.Address, debtToCover *big.Int, receiveReceiptToken bool) (*big.Int, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var debtCovered, collateralSeized *big.Int
	err := e.run("liquidation", func() error {
		var err error
		debtCovered, collateralSeized, err = e.liquidationCall(caller, collateralAsset, debtAsset, borrower, debtToCover, receiveReceiptToken)
		return err
	})
	return debtCovered, collateralSeized, err
}

func (e *Engine) liquidationCall(caller, collateralAsset, debtAsset, borrower common.Address, debtToCover *big.Int, receiveReceiptToken bool) (*big.Int, *big.Int, error) {
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	collateralReserve, err := e.requireReserve(collateralAsset)
	if err != nil {
		return nil, nil, err
	}
	debtReserve, err := e.requireReserve(debtAsset)
	if err != nil {
		return nil, nil, err
	}
	if !collateralReserve.Config.Active || !debtReserve.Config.Active {
		return nil, nil, ErrReserveNotActive
	}

	cfg, err := e.userConfig(borrower)
	if err != nil {
		return nil, nil, err
	}
	data, err := e.accountData(borrower, cfg)
	if err != nil {
		return nil, nil, err
	}
	if data.healthFactor.Cmp(wad) >= 0 {
		return nil, nil, ErrHealthFactorNotLiquidatable
	}
	if collateralReserve.Config.LiquidationThresholdBps == 0 || !cfg.IsUsingAsCollateral(collateralReserve.ID) {
		return nil, nil, ErrCollateralCannotCover
	}

	stableToken, err := e.stableToken(debtReserve)
	if err != nil {
		return nil, nil, err
	}
	variableToken, err := e.variableToken(debtReserve)
	if err != nil {
		return nil, nil, err
	}
	stableDebt, err := stableToken.BalanceOf(borrower)
	if err != nil {
		return nil, nil, err
	}
	variableDebt, err := variableToken.BalanceOf(borrower)
	if err != nil {
		return nil, nil, err
	}
	stableDebt = setOrZero(stableDebt)
	variableDebt = setOrZero(variableDebt)
	totalDebt := new(big.Int).Add(stableDebt, variableDebt)
	if totalDebt.Sign() == 0 {
		return nil, nil, ErrNoDebtToRepay
	}

	actualDebt := percentMulFloor(totalDebt, closeFactorBps)
	if debtToCover.Cmp(actualDebt) < 0 {
		actualDebt = new(big.Int).Set(debtToCover)
	}

	collateralToken, err := e.receiptToken(collateralReserve)
	if err != nil {
		return nil, nil, err
	}
	borrowerCollateral, err := collateralToken.BalanceOf(borrower)
	if err != nil {
		return nil, nil, err
	}
	borrowerCollateral = setOrZero(borrowerCollateral)
	if borrowerCollateral.Sign() == 0 {
		return nil, nil, ErrCollateralBalanceZero
	}

	seized, debtNeeded, err := e.collateralToSeize(collateralReserve, debtReserve, actualDebt, borrowerCollateral)
	if err != nil {
		return nil, nil, err
	}
	actualDebt = debtNeeded

	if !receiveReceiptToken {
		available, err := e.availableLiquidity(collateralReserve)
		if err != nil {
			return nil, nil, err
		}
		if available.Cmp(seized) < 0 {
			return nil, nil, ErrInsufficientLiquidity
		}
	}

	// Debt side: burn variable first, then stable.
	debtFees, debtFeesChanged, err := e.updateReserveState(debtReserve)
	if err != nil {
		return nil, nil, err
	}
	remaining := new(big.Int).Set(actualDebt)
	if variableDebt.Sign() > 0 {
		fromVariable := remaining
		if fromVariable.Cmp(variableDebt) > 0 {
			fromVariable = variableDebt
		}
		if err := variableToken.Burn(borrower, fromVariable, debtReserve.VariableBorrowIndex); err != nil {
			return nil, nil, err
		}
		remaining = new(big.Int).Sub(remaining, fromVariable)
	}
	if remaining.Sign() > 0 {
		if err := stableToken.Burn(borrower, remaining); err != nil {
			return nil, nil, err
		}
	}
	if err := e.updateReserveRates(debtReserve, actualDebt, nil); err != nil {
		return nil, nil, err
	}
	if totalDebt.Cmp(actualDebt) == 0 {
		cfg.SetBorrowing(debtReserve.ID, false)
		if err := e.state.PutUserConfig(borrower, cfg); err != nil {
			return nil, nil, err
		}
	}
	if err := e.persistAccrual(debtReserve, debtFees, debtFeesChanged); err != nil {
		return nil, nil, err
	}

	// Collateral side.
	if receiveReceiptToken {
		liquidatorBalance, err := collateralToken.BalanceOf(caller)
		if err != nil {
			return nil, nil, err
		}
		if err := collateralToken.TransferOnLiquidation(borrower, caller, seized); err != nil {
			return nil, nil, err
		}
		if setOrZero(liquidatorBalance).Sign() == 0 {
			liquidatorCfg, err := e.userConfig(caller)
			if err != nil {
				return nil, nil, err
			}
			liquidatorCfg.SetUsingAsCollateral(collateralReserve.ID, true)
			if err := e.state.PutUserConfig(caller, liquidatorCfg); err != nil {
				return nil, nil, err
			}
			e.emit(events.PoolCollateralEnabled{Asset: collateralAsset, User: caller})
		}
	} else {
		collateralFees, collateralFeesChanged, err := e.updateReserveState(collateralReserve)
		if err != nil {
			return nil, nil, err
		}
		if err := e.updateReserveRates(collateralReserve, nil, seized); err != nil {
			return nil, nil, err
		}
		if err := e.persistAccrual(collateralReserve, collateralFees, collateralFeesChanged); err != nil {
			return nil, nil, err
		}
		if err := collateralToken.Burn(borrower, caller, seized, collateralReserve.LiquidityIndex); err != nil {
			return nil, nil, err
		}
	}

	if seized.Cmp(borrowerCollateral) == 0 && cfg.IsUsingAsCollateral(collateralReserve.ID) {
		cfg.SetUsingAsCollateral(collateralReserve.ID, false)
		if err := e.state.PutUserConfig(borrower, cfg); err != nil {
			return nil, nil, err
		}
		e.emit(events.PoolCollateralDisabled{Asset: collateralAsset, User: borrower})
	}

	// The liquidator funds the repayment into the debt reserve's custody.
	if err := e.ledger.Transfer(debtAsset, caller, debtReserve.ReceiptTokenAddress, actualDebt); err != nil {
		return nil, nil, err
	}

	e.logOp("liquidation",
		"collateral_asset", collateralAsset,
		"debt_asset", debtAsset,
		"borrower", borrower,
		"debt_covered", actualDebt.String(),
		"collateral_seized", seized.String(),
	)
	e.emit(events.PoolLiquidation{
		CollateralAsset:     collateralAsset,
		DebtAsset:           debtAsset,
		Borrower:            borrower,
		Liquidator:          caller,
		DebtCovered:         new(big.Int).Set(actualDebt),
		CollateralSeized:    new(big.Int).Set(seized),
		ReceiveReceiptToken: receiveReceiptToken,
	})
	return actualDebt, seized, nil
}

// collateralToSeize converts the debt amount into collateral units at oracle
// prices with the liquidation bonus applied, capping at the borrower's
// balance. When the cap binds, the debt actually covered shrinks to the
// amount the capped collateral pays for.
func (e *Engine) collateralToSeize(collateralReserve, debtReserve *Reserve, debtAmount, borrowerCollateral *big.Int) (seized, debtNeeded *big.Int, err error) {
	collateralPrice, err := e.oracle.AssetPrice(collateralReserve.Asset)
	if err != nil {
		return nil, nil, err
	}
	debtPrice, err := e.oracle.AssetPrice(debtReserve.Asset)
	if err != nil {
		return nil, nil, err
	}
	collateralUnit := e.assetUnit(collateralReserve)
	debtUnit := e.assetUnit(debtReserve)
	bonus := new(big.Int).SetUint64(collateralReserve.Config.LiquidationBonusBps)

	// seized = debtAmount * debtPrice * collateralUnit * bonusBps
	//        / (collateralPrice * debtUnit * 10000)
	numerator := new(big.Int).Mul(debtAmount, setOrZero(debtPrice))
	numerator.Mul(numerator, collateralUnit)
	numerator.Mul(numerator, bonus)
	denominator := new(big.Int).Mul(setOrZero(collateralPrice), debtUnit)
	denominator.Mul(denominator, basisPoints)
	if denominator.Sign() == 0 {
		return nil, nil, ErrCollateralCannotCover
	}
	seized = new(big.Int).Quo(numerator, denominator)

	if seized.Cmp(borrowerCollateral) <= 0 {
		return seized, debtAmount, nil
	}

	// Cap at the full balance and recompute how much debt that covers.
	seized = new(big.Int).Set(borrowerCollateral)
	numerator = new(big.Int).Mul(seized, setOrZero(collateralPrice))
	numerator.Mul(numerator, debtUnit)
	numerator.Mul(numerator, basisPoints)
	denominator = new(big.Int).Mul(setOrZero(debtPrice), collateralUnit)
	denominator.Mul(denominator, bonus)
	if denominator.Sign() == 0 {
		return nil, nil, ErrCollateralCannotCover
	}
	debtNeeded = new(big.Int).Quo(numerator, denominator)
	return seized, debtNeeded, nil
}
