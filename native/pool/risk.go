package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
)

// maxHealthFactor is the saturation sentinel reported when an account carries
// no debt.
var maxHealthFactor = new(big.Int).Set(ethmath.MaxBig256)

// accountData aggregates one account's risk position across every reserve it
// participates in. Monetary values are in the oracle's base currency;
// the health factor is wad scaled.
type accountData struct {
	totalCollateral *big.Int
	totalDebt       *big.Int
	avgLTVBps       uint64
	avgThresholdBps uint64
	healthFactor    *big.Int
}

// accountData walks the user's participation bitset and accumulates total
// collateral value, total debt value and the collateral weighted LTV and
// liquidation threshold. Collateral values round down, debt values round up.
func (e *Engine) accountData(user common.Address, cfg *UserConfiguration) (*accountData, error) {
	data := &accountData{
		totalCollateral: bigZero(),
		totalDebt:       bigZero(),
		healthFactor:    new(big.Int).Set(maxHealthFactor),
	}
	if cfg == nil || cfg.IsEmpty() {
		return data, nil
	}

	list, err := e.state.GetReserveList()
	if err != nil {
		return nil, err
	}

	weightedLTV := bigZero()
	weightedThreshold := bigZero()

	for i, asset := range list {
		id := uint8(i)
		if !cfg.UsingAsCollateralOrBorrowing(id) {
			continue
		}
		r, err := e.state.GetReserve(asset)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, ErrReserveNotFound
		}

		unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(r.Config.Decimals)), nil)
		price, err := e.oracle.AssetPrice(asset)
		if err != nil {
			return nil, err
		}

		if r.Config.LiquidationThresholdBps > 0 && cfg.IsUsingAsCollateral(id) {
			receiptToken, err := e.receiptToken(r)
			if err != nil {
				return nil, err
			}
			balance, err := receiptToken.BalanceOf(user)
			if err != nil {
				return nil, err
			}
			value := new(big.Int).Mul(setOrZero(price), setOrZero(balance))
			value.Quo(value, unit)

			data.totalCollateral.Add(data.totalCollateral, value)
			weightedLTV.Add(weightedLTV, new(big.Int).Mul(value, new(big.Int).SetUint64(r.Config.LTVBps)))
			weightedThreshold.Add(weightedThreshold, new(big.Int).Mul(value, new(big.Int).SetUint64(r.Config.LiquidationThresholdBps)))
		}

		if cfg.IsBorrowing(id) {
			debt, err := e.userTotalDebt(r, user)
			if err != nil {
				return nil, err
			}
			if debt.Sign() > 0 {
				value := divUp(new(big.Int).Mul(setOrZero(price), debt), unit)
				data.totalDebt.Add(data.totalDebt, value)
			}
		}
	}

	if data.totalCollateral.Sign() > 0 {
		data.avgLTVBps = new(big.Int).Quo(weightedLTV, data.totalCollateral).Uint64()
		data.avgThresholdBps = new(big.Int).Quo(weightedThreshold, data.totalCollateral).Uint64()
	}
	if data.totalDebt.Sign() > 0 {
		riskAdjusted := percentMulFloor(data.totalCollateral, data.avgThresholdBps)
		data.healthFactor = wadDivFloor(riskAdjusted, data.totalDebt)
	}
	return data, nil
}

// availableBorrows reports the base currency value the account may still
// borrow: collateral scaled by the average LTV, less outstanding debt,
// floored at zero.
func (d *accountData) availableBorrows() *big.Int {
	capacity := percentMulFloor(d.totalCollateral, d.avgLTVBps)
	capacity.Sub(capacity, d.totalDebt)
	if capacity.Sign() < 0 {
		capacity.SetInt64(0)
	}
	return capacity
}

// userTotalDebt sums the account's stable and variable debt on the reserve in
// underlying units.
func (e *Engine) userTotalDebt(r *Reserve, user common.Address) (*big.Int, error) {
	stableToken, err := e.stableToken(r)
	if err != nil {
		return nil, err
	}
	variableToken, err := e.variableToken(r)
	if err != nil {
		return nil, err
	}
	stableDebt, err := stableToken.BalanceOf(user)
	if err != nil {
		return nil, err
	}
	variableDebt, err := variableToken.BalanceOf(user)
	if err != nil {
		return nil, err
	}
	total := setOrZero(stableDebt)
	return total.Add(total, setOrZero(variableDebt)), nil
}

// balanceDecreaseAllowed reports whether removing the given collateral amount
// keeps the user's health factor at or above 1.0. Used by withdraw, collateral
// disabling and receipt token transfers.
func (e *Engine) balanceDecreaseAllowed(r *Reserve, user common.Address, amount *big.Int, cfg *UserConfiguration) (bool, error) {
	if cfg == nil || !cfg.IsBorrowingAny() || !cfg.IsUsingAsCollateral(r.ID) || r.Config.LiquidationThresholdBps == 0 {
		return true, nil
	}

	data, err := e.accountData(user, cfg)
	if err != nil {
		return false, err
	}
	if data.totalDebt.Sign() == 0 {
		return true, nil
	}

	price, err := e.oracle.AssetPrice(r.Asset)
	if err != nil {
		return false, err
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(r.Config.Decimals)), nil)
	amountValue := new(big.Int).Mul(setOrZero(price), setOrZero(amount))
	amountValue.Quo(amountValue, unit)

	collateralAfter := new(big.Int).Sub(data.totalCollateral, amountValue)
	if collateralAfter.Sign() <= 0 {
		return false, nil
	}

	// Re-weight the liquidation threshold without the removed value.
	weightedBefore := new(big.Int).Mul(data.totalCollateral, new(big.Int).SetUint64(data.avgThresholdBps))
	removed := new(big.Int).Mul(amountValue, new(big.Int).SetUint64(r.Config.LiquidationThresholdBps))
	weightedAfter := new(big.Int).Sub(weightedBefore, removed)
	if weightedAfter.Sign() <= 0 {
		return false, nil
	}
	thresholdAfter := new(big.Int).Quo(weightedAfter, collateralAfter).Uint64()

	riskAdjusted := percentMulFloor(collateralAfter, thresholdAfter)
	healthFactor := wadDivFloor(riskAdjusted, data.totalDebt)
	return healthFactor.Cmp(wad) >= 0, nil
}
