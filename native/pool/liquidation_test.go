package pool

import (
	"errors"
	"math/big"
	"testing"

	"lendpool/core/events"
)

// setupUnderwaterBorrower lists WETH and DAI, has alice borrow 12000 DAI
// against 10 WETH and then drops the WETH price until her health factor sits
// below one.
func setupUnderwaterBorrower(t *testing.T) *testPool {
	t.Helper()
	tp := newTestPool(t)
	tp.listReserve(assetWETH, defaultReserveConfig(), wei(2_000))
	tp.listReserve(assetDAI, defaultReserveConfig(), wei(1))

	tp.deposit(assetWETH, alice, wei(10))
	tp.deposit(assetDAI, bob, wei(20_000))
	if err := tp.engine.Borrow(alice, assetDAI, wei(12_000), RateModeVariable, alice, 0); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// 10 * 1400 * 0.85 = 11900 of risk adjusted collateral against 12000 of
	// debt.
	tp.oracle.prices[assetWETH] = wei(1_400)
	return tp
}

func TestLiquidationRepaysDebtAndSeizesCollateral(t *testing.T) {
	tp := setupUnderwaterBorrower(t)
	tp.fund(assetDAI, bob, wei(6_000))

	debtCovered, seized, err := tp.engine.LiquidationCall(bob, assetWETH, assetDAI, alice, MaxAmount, false)
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	if debtCovered.Cmp(wei(6_000)) != 0 {
		t.Fatalf("debt covered = %s, want %s", debtCovered, wei(6_000))
	}
	// 6000 DAI at a 5% bonus buys 6300 / 1400 = 4.5 WETH.
	wantSeized := new(big.Int).Div(wei(45), big.NewInt(10))
	if seized.Cmp(wantSeized) != 0 {
		t.Fatalf("seized = %s, want %s", seized, wantSeized)
	}

	if got := tp.underlying(assetWETH, bob); got.Cmp(wantSeized) != 0 {
		t.Fatalf("liquidator received %s, want %s", got, wantSeized)
	}
	wantRemaining := new(big.Int).Sub(wei(10), wantSeized)
	if got := tp.receiptBalance(assetWETH, alice); got.Cmp(wantRemaining) != 0 {
		t.Fatalf("borrower collateral = %s, want %s", got, wantRemaining)
	}
	if got := tp.variableDebt(assetDAI, alice); got.Cmp(wei(6_000)) != 0 {
		t.Fatalf("remaining debt = %s, want %s", got, wei(6_000))
	}
	if seen := tp.emitter.typesSeen(); seen[events.TypePoolLiquidation] != 1 {
		t.Fatalf("liquidation events = %d, want 1", seen[events.TypePoolLiquidation])
	}

	data, err := tp.engine.GetUserAccountData(alice)
	if err != nil {
		t.Fatalf("account data: %v", err)
	}
	if data.HealthFactor.Cmp(wad) < 0 {
		t.Fatalf("health factor = %s, expected recovery above 1", data.HealthFactor)
	}
}

func TestLiquidationHonoursCloseFactor(t *testing.T) {
	tp := setupUnderwaterBorrower(t)
	tp.fund(assetDAI, bob, wei(12_000))

	debtCovered, _, err := tp.engine.LiquidationCall(bob, assetWETH, assetDAI, alice, wei(12_000), false)
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	if debtCovered.Cmp(wei(6_000)) != 0 {
		t.Fatalf("debt covered = %s, want close factor cap %s", debtCovered, wei(6_000))
	}
}

func TestLiquidationReceiveReceiptTokens(t *testing.T) {
	tp := setupUnderwaterBorrower(t)
	tp.fund(assetDAI, bob, wei(6_000))

	custodyBefore := tp.underlying(assetWETH, tp.receipts[assetWETH].addr)
	_, seized, err := tp.engine.LiquidationCall(bob, assetWETH, assetDAI, alice, MaxAmount, true)
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}

	if got := tp.receiptBalance(assetWETH, bob); got.Cmp(seized) != 0 {
		t.Fatalf("liquidator receipt balance = %s, want %s", got, seized)
	}
	if !tp.userConfiguration(bob).IsUsingAsCollateral(tp.reserveID(assetWETH)) {
		t.Fatal("liquidator's first receipt balance should flag collateral")
	}
	if got := tp.underlying(assetWETH, tp.receipts[assetWETH].addr); got.Cmp(custodyBefore) != 0 {
		t.Fatal("custody should not move when collateral stays tokenised")
	}
}

func TestLiquidationRejectsHealthyBorrower(t *testing.T) {
	tp := setupUnderwaterBorrower(t)
	tp.oracle.prices[assetWETH] = wei(2_000)

	_, _, err := tp.engine.LiquidationCall(bob, assetWETH, assetDAI, alice, wei(6_000), false)
	if !errors.Is(err, ErrHealthFactorNotLiquidatable) {
		t.Fatalf("err = %v, want ErrHealthFactorNotLiquidatable", err)
	}
}

func TestLiquidationRejectsUnusedCollateral(t *testing.T) {
	tp := setupUnderwaterBorrower(t)
	tp.fund(assetDAI, bob, wei(6_000))

	// Alice does not use DAI as collateral.
	_, _, err := tp.engine.LiquidationCall(bob, assetDAI, assetDAI, alice, wei(6_000), false)
	if !errors.Is(err, ErrCollateralCannotCover) {
		t.Fatalf("err = %v, want ErrCollateralCannotCover", err)
	}
}

func TestLiquidationRejectsZeroCover(t *testing.T) {
	tp := setupUnderwaterBorrower(t)

	_, _, err := tp.engine.LiquidationCall(bob, assetWETH, assetDAI, alice, big.NewInt(0), false)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}
