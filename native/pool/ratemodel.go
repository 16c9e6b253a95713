package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultRateStrategy implements RateStrategy with a kinked utilisation
// curve: the borrow rate climbs linearly up to the kink utilisation and
// steepens beyond it to pull liquidity back into the pool. Stable borrows pay
// a fixed spread over the variable rate.
type DefaultRateStrategy struct {
	addr         common.Address
	baseRate     *big.Rat
	slope1       *big.Rat
	slope2       *big.Rat
	kink         *big.Rat
	stableSpread *big.Rat
}

// NewDefaultRateStrategy constructs a strategy from decimal inputs, e.g. a 2%
// base rate is 0.02 and an 80% kink utilisation is 0.8.
func NewDefaultRateStrategy(addr common.Address, baseRate, slope1, slope2, kink, stableSpread float64) *DefaultRateStrategy {
	s := &DefaultRateStrategy{
		addr:         addr,
		baseRate:     new(big.Rat),
		slope1:       new(big.Rat),
		slope2:       new(big.Rat),
		kink:         new(big.Rat),
		stableSpread: new(big.Rat),
	}
	s.baseRate.SetFloat64(baseRate)
	s.slope1.SetFloat64(slope1)
	s.slope2.SetFloat64(slope2)
	s.kink.SetFloat64(kink)
	s.stableSpread.SetFloat64(stableSpread)
	return s
}

// Address implements the RateStrategy interface.
func (s *DefaultRateStrategy) Address() common.Address { return s.addr }

// utilisation computes totalDebt / (availableLiquidity + totalDebt). With no
// debt the utilisation is defined as zero.
func utilisation(availableLiquidity, totalDebt *big.Int) *big.Rat {
	if totalDebt == nil || totalDebt.Sign() == 0 {
		return new(big.Rat)
	}
	denominator := new(big.Int).Set(totalDebt)
	if availableLiquidity != nil && availableLiquidity.Sign() > 0 {
		denominator.Add(denominator, availableLiquidity)
	}
	return new(big.Rat).SetFrac(totalDebt, denominator)
}

// borrowRate derives the variable borrow rate for the given utilisation.
func (s *DefaultRateStrategy) borrowRate(u *big.Rat) *big.Rat {
	rate := new(big.Rat).Set(s.baseRate)
	if u.Sign() == 0 {
		return rate
	}
	if s.kink.Sign() == 0 || u.Cmp(s.kink) <= 0 {
		// Linear region before the kink.
		return rate.Add(rate, new(big.Rat).Mul(s.slope1, u))
	}
	rate.Add(rate, new(big.Rat).Mul(s.slope1, s.kink))
	excess := new(big.Rat).Sub(u, s.kink)
	return rate.Add(rate, new(big.Rat).Mul(s.slope2, excess))
}

// CalculateInterestRates implements the RateStrategy interface. The liquidity
// rate is the debt-weighted borrow rate earned by the pool, scaled by
// utilisation and net of the reserve factor.
func (s *DefaultRateStrategy) CalculateInterestRates(asset common.Address, availableLiquidity, totalStableDebt, totalVariableDebt, averageStableRate *big.Int, reserveFactorBps uint64) (*big.Int, *big.Int, *big.Int, error) {
	totalDebt := new(big.Int).Add(setOrZero(totalStableDebt), setOrZero(totalVariableDebt))

	u := utilisation(availableLiquidity, totalDebt)
	variableRat := s.borrowRate(u)
	stableRat := new(big.Rat).Add(variableRat, s.stableSpread)

	variableRate := ratToRay(variableRat)
	stableRate := ratToRay(stableRat)

	if totalDebt.Sign() == 0 {
		return big.NewInt(0), stableRate, variableRate, nil
	}

	// Debt weighted average of the rate paid by each borrow book.
	stableInterest := new(big.Int).Mul(setOrZero(totalStableDebt), setOrZero(averageStableRate))
	variableInterest := new(big.Int).Mul(setOrZero(totalVariableDebt), variableRate)
	overallRate := new(big.Int).Add(stableInterest, variableInterest)
	overallRate.Quo(overallRate, totalDebt)

	liquidityRat := new(big.Rat).SetInt(overallRate)
	liquidityRat.Mul(liquidityRat, u)
	if reserveFactorBps > 0 {
		keep := new(big.Rat).SetFrac(
			new(big.Int).Sub(basisPoints, new(big.Int).SetUint64(min(reserveFactorBps, 10_000))),
			basisPoints,
		)
		liquidityRat.Mul(liquidityRat, keep)
	}
	liquidityRate := new(big.Int).Quo(liquidityRat.Num(), liquidityRat.Denom())

	return liquidityRate, stableRate, variableRate, nil
}

// MaxVariableBorrowRate implements the RateStrategy interface.
func (s *DefaultRateStrategy) MaxVariableBorrowRate() *big.Int {
	maxRate := new(big.Rat).Add(s.baseRate, s.slope1)
	maxRate.Add(maxRate, s.slope2)
	return ratToRay(maxRate)
}
