package pool

import "math/big"

var (
	basisPoints     = big.NewInt(10_000)
	halfBasisPoints = big.NewInt(5_000)
	ray             = mustBigInt("1000000000000000000000000000") // 1e27 precision
	halfRay         = new(big.Int).Rsh(ray, 1)
	wad             = mustBigInt("1000000000000000000") // 1e18 precision
)

const secondsPerYear = 31_536_000

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// rayMul multiplies two ray-scaled values rounding half up.
func rayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfRay)
	product.Quo(product, ray)
	return product
}

// rayDiv divides two ray-scaled values rounding half up.
func rayDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, ray)
	numerator.Add(numerator, halfUp(b))
	numerator.Quo(numerator, b)
	return numerator
}

// percentMul applies a basis point percentage rounding half up.
func percentMul(value *big.Int, bps uint64) *big.Int {
	if value == nil || value.Sign() == 0 || bps == 0 {
		return big.NewInt(0)
	}
	result := new(big.Int).Mul(value, new(big.Int).SetUint64(bps))
	result.Add(result, halfBasisPoints)
	result.Quo(result, basisPoints)
	return result
}

// percentMulFloor applies a basis point percentage rounding towards zero. Used
// where rounding down is the conservative direction, e.g. borrow capacity.
func percentMulFloor(value *big.Int, bps uint64) *big.Int {
	if value == nil || value.Sign() == 0 || bps == 0 {
		return big.NewInt(0)
	}
	result := new(big.Int).Mul(value, new(big.Int).SetUint64(bps))
	result.Quo(result, basisPoints)
	return result
}

// divUp divides rounding away from zero. Debt-side conversions always round
// up so accrued obligations are never understated.
func divUp(a, b *big.Int) *big.Int {
	if a == nil || a.Sign() == 0 || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Add(a, b)
	numerator.Sub(numerator, big.NewInt(1))
	numerator.Quo(numerator, b)
	return numerator
}

// wadDivFloor divides two wad-scaled values rounding towards zero.
func wadDivFloor(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, wad)
	numerator.Quo(numerator, b)
	return numerator
}

// linearInterest computes 1 + rate*dt/secondsPerYear in ray for the elapsed
// window. Used for the liquidity index.
func linearInterest(rate *big.Int, lastUpdate, now uint64) *big.Int {
	if rate == nil || rate.Sign() == 0 || now <= lastUpdate {
		return new(big.Int).Set(ray)
	}
	delta := new(big.Int).SetUint64(now - lastUpdate)
	accrued := new(big.Int).Mul(rate, delta)
	accrued.Quo(accrued, big.NewInt(secondsPerYear))
	return accrued.Add(accrued, ray)
}

// compoundedInterest approximates (1 + rate/secondsPerYear)^dt in ray with a
// third order binomial expansion. Used for the variable borrow index.
func compoundedInterest(rate *big.Int, lastUpdate, now uint64) *big.Int {
	if rate == nil || rate.Sign() == 0 || now <= lastUpdate {
		return new(big.Int).Set(ray)
	}
	exp := new(big.Int).SetUint64(now - lastUpdate)
	expMinusOne := new(big.Int).Sub(exp, big.NewInt(1))
	if expMinusOne.Sign() < 0 {
		expMinusOne.SetInt64(0)
	}
	expMinusTwo := new(big.Int).Sub(exp, big.NewInt(2))
	if expMinusTwo.Sign() < 0 {
		expMinusTwo.SetInt64(0)
	}

	ratePerSecond := new(big.Int).Quo(rate, big.NewInt(secondsPerYear))
	basePowerTwo := rayMul(ratePerSecond, ratePerSecond)
	basePowerThree := rayMul(basePowerTwo, ratePerSecond)

	firstTerm := new(big.Int).Mul(ratePerSecond, exp)

	secondTerm := new(big.Int).Mul(exp, expMinusOne)
	secondTerm.Mul(secondTerm, basePowerTwo)
	secondTerm.Quo(secondTerm, big.NewInt(2))

	thirdTerm := new(big.Int).Mul(exp, expMinusOne)
	thirdTerm.Mul(thirdTerm, expMinusTwo)
	thirdTerm.Mul(thirdTerm, basePowerThree)
	thirdTerm.Quo(thirdTerm, big.NewInt(6))

	result := new(big.Int).Add(ray, firstTerm)
	result.Add(result, secondTerm)
	result.Add(result, thirdTerm)
	return result
}

// ratToRay converts a rational into ray fixed point rounding half up.
func ratToRay(r *big.Rat) *big.Int {
	if r == nil || r.Sign() <= 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(ray))
	num := scaled.Num()
	den := scaled.Denom()
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(new(big.Int).Add(num, halfUp(den)), den)
}

func halfUp(x *big.Int) *big.Int {
	if x == nil || x.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Rsh(x, 1)
}

// bigZero returns a fresh zero so callers can mutate the result freely.
func bigZero() *big.Int { return big.NewInt(0) }

// setOrZero deep-copies a big.Int, treating nil as zero.
func setOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
