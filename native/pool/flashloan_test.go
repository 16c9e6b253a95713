package pool

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
)

type fakeFlashReceiver struct {
	addr     common.Address
	called   bool
	callback func(assets []common.Address, amounts, premiums []*big.Int) error
}

func (r *fakeFlashReceiver) Address() common.Address { return r.addr }

func (r *fakeFlashReceiver) ExecuteOperation(assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) error {
	r.called = true
	if r.callback != nil {
		return r.callback(assets, amounts, premiums)
	}
	return nil
}

func flashPremium(amount *big.Int) *big.Int {
	premium := new(big.Int).Mul(amount, big.NewInt(defaultFlashLoanPremiumBps))
	return premium.Quo(premium, big.NewInt(10_000))
}

func TestFlashLoanRepaysWithPremium(t *testing.T) {
	tp := newTestPool(t)
	tp.listReserve(assetDAI, defaultReserveConfig(), wei(1))
	tp.deposit(assetDAI, bob, wei(10_000))

	receiver := &fakeFlashReceiver{addr: common.HexToAddress("0x00000000000000000000000000000000000000f1")}
	tp.fund(assetDAI, receiver.addr, wei(10))

	amount := wei(1_000)
	premium := flashPremium(amount)
	err := tp.engine.FlashLoan(carol, receiver, []common.Address{assetDAI}, []*big.Int{amount}, []InterestRateMode{RateModeNone}, carol, nil, 0)
	if err != nil {
		t.Fatalf("flash loan: %v", err)
	}
	if !receiver.called {
		t.Fatal("receiver callback was not invoked")
	}

	wantCustody := new(big.Int).Add(wei(10_000), premium)
	if got := tp.underlying(assetDAI, tp.receipts[assetDAI].addr); got.Cmp(wantCustody) != 0 {
		t.Fatalf("custody = %s, want %s", got, wantCustody)
	}
	income, err := tp.engine.GetReserveNormalizedIncome(assetDAI)
	if err != nil {
		t.Fatalf("normalized income: %v", err)
	}
	if income.Cmp(ray) <= 0 {
		t.Fatal("premium should cumulate into the liquidity index")
	}
	if seen := tp.emitter.typesSeen(); seen[events.TypePoolFlashLoan] != 1 {
		t.Fatalf("flash loan events = %d, want 1", seen[events.TypePoolFlashLoan])
	}
}

func TestFlashLoanReceiverFailure(t *testing.T) {
	tp := newTestPool(t)
	tp.listReserve(assetDAI, defaultReserveConfig(), wei(1))
	tp.deposit(assetDAI, bob, wei(10_000))

	receiver := &fakeFlashReceiver{
		addr: common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		callback: func([]common.Address, []*big.Int, []*big.Int) error {
			return fmt.Errorf("arbitrage failed")
		},
	}
	err := tp.engine.FlashLoan(carol, receiver, []common.Address{assetDAI}, []*big.Int{wei(100)}, []InterestRateMode{RateModeNone}, carol, nil, 0)
	if !errors.Is(err, ErrFlashLoanReceiverFailed) {
		t.Fatalf("err = %v, want ErrFlashLoanReceiverFailed", err)
	}
}

func TestFlashLoanConvertsToDebt(t *testing.T) {
	tp := newTestPool(t)
	tp.listReserve(assetWETH, defaultReserveConfig(), wei(2_000))
	tp.listReserve(assetDAI, defaultReserveConfig(), wei(1))
	tp.deposit(assetWETH, alice, wei(10))
	tp.deposit(assetDAI, bob, wei(10_000))

	receiver := &fakeFlashReceiver{addr: common.HexToAddress("0x00000000000000000000000000000000000000f1")}
	amount := wei(1_000)
	err := tp.engine.FlashLoan(carol, receiver, []common.Address{assetDAI}, []*big.Int{amount}, []InterestRateMode{RateModeVariable}, alice, nil, 0)
	if err != nil {
		t.Fatalf("flash loan: %v", err)
	}

	// The receiver keeps the funds and alice carries the debt.
	if got := tp.underlying(assetDAI, receiver.addr); got.Cmp(amount) != 0 {
		t.Fatalf("receiver balance = %s, want %s", got, amount)
	}
	if got := tp.variableDebt(assetDAI, alice); got.Cmp(amount) != 0 {
		t.Fatalf("variable debt = %s, want %s", got, amount)
	}
	if !tp.userConfiguration(alice).IsBorrowing(tp.reserveID(assetDAI)) {
		t.Fatal("borrowing flag should be set for the debtor")
	}
}

func TestFlashLoanValidatesShape(t *testing.T) {
	tp := newTestPool(t)
	tp.listReserve(assetDAI, defaultReserveConfig(), wei(1))
	tp.deposit(assetDAI, bob, wei(100))
	receiver := &fakeFlashReceiver{addr: common.HexToAddress("0x00000000000000000000000000000000000000f1")}

	err := tp.engine.FlashLoan(carol, receiver, []common.Address{assetDAI}, nil, []InterestRateMode{RateModeNone}, carol, nil, 0)
	if !errors.Is(err, ErrInconsistentFlashLoan) {
		t.Fatalf("err = %v, want ErrInconsistentFlashLoan", err)
	}
	err = tp.engine.FlashLoan(carol, receiver, []common.Address{assetDAI}, []*big.Int{big.NewInt(0)}, []InterestRateMode{RateModeNone}, carol, nil, 0)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
	err = tp.engine.FlashLoan(carol, receiver, []common.Address{assetDAI}, []*big.Int{wei(101)}, []InterestRateMode{RateModeNone}, carol, nil, 0)
	if !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("err = %v, want ErrInsufficientLiquidity", err)
	}
}

func TestFlashLoanReceiverMayReenterThePool(t *testing.T) {
	tp := newTestPool(t)
	tp.listReserve(assetDAI, defaultReserveConfig(), wei(1))
	tp.deposit(assetDAI, bob, wei(10_000))

	amount := wei(1_000)
	premium := flashPremium(amount)
	receiver := &fakeFlashReceiver{addr: common.HexToAddress("0x00000000000000000000000000000000000000f1")}
	receiver.callback = func([]common.Address, []*big.Int, []*big.Int) error {
		// Deposits into the pool mid-loan; the engine must not hold its
		// lock across the callback.
		return tp.engine.Deposit(receiver.addr, assetDAI, wei(100), receiver.addr, 0)
	}
	tp.fund(assetDAI, receiver.addr, new(big.Int).Add(wei(100), premium))

	err := tp.engine.FlashLoan(carol, receiver, []common.Address{assetDAI}, []*big.Int{amount}, []InterestRateMode{RateModeNone}, carol, nil, 0)
	if err != nil {
		t.Fatalf("flash loan: %v", err)
	}
	if got := tp.receiptBalance(assetDAI, receiver.addr); got.Sign() == 0 {
		t.Fatal("mid-loan deposit should be credited")
	}
	wantCustody := new(big.Int).Add(wei(10_100), premium)
	if got := tp.underlying(assetDAI, tp.receipts[assetDAI].addr); got.Cmp(wantCustody) != 0 {
		t.Fatalf("custody = %s, want %s", got, wantCustody)
	}
}

func TestFlashLoanDebtModeRequiresCollateral(t *testing.T) {
	tp := newTestPool(t)
	tp.listReserve(assetDAI, defaultReserveConfig(), wei(1))
	tp.deposit(assetDAI, bob, wei(10_000))

	receiver := &fakeFlashReceiver{addr: common.HexToAddress("0x00000000000000000000000000000000000000f1")}
	err := tp.engine.FlashLoan(carol, receiver, []common.Address{assetDAI}, []*big.Int{wei(1_000)}, []InterestRateMode{RateModeVariable}, alice, nil, 0)
	if !errors.Is(err, ErrCollateralBalanceZero) {
		t.Fatalf("err = %v, want ErrCollateralBalanceZero", err)
	}
	if got := tp.variableDebt(assetDAI, alice); got.Sign() != 0 {
		t.Fatalf("variable debt = %s, want none", got)
	}
	if tp.userConfiguration(alice).IsBorrowing(tp.reserveID(assetDAI)) {
		t.Fatal("borrowing flag should not be set for a rejected conversion")
	}
}

func TestFlashLoanDebtModeHonoursBorrowLimits(t *testing.T) {
	tp := newTestPool(t)
	tp.listReserve(assetWETH, defaultReserveConfig(), wei(2_000))
	tp.listReserve(assetDAI, defaultReserveConfig(), wei(1))
	tp.deposit(assetWETH, alice, wei(10))
	tp.deposit(assetDAI, bob, wei(20_000))

	// 20000 collateral at 80% loan to value caps debt at 16000.
	receiver := &fakeFlashReceiver{addr: common.HexToAddress("0x00000000000000000000000000000000000000f1")}
	err := tp.engine.FlashLoan(carol, receiver, []common.Address{assetDAI}, []*big.Int{wei(17_000)}, []InterestRateMode{RateModeVariable}, alice, nil, 0)
	if !errors.Is(err, ErrCollateralCannotCover) {
		t.Fatalf("err = %v, want ErrCollateralCannotCover", err)
	}
	if got := tp.variableDebt(assetDAI, alice); got.Sign() != 0 {
		t.Fatalf("variable debt = %s, want none", got)
	}
}

func TestFlashLoanDoesNotDistortRatesWhenRepaid(t *testing.T) {
	tp := newTestPool(t)
	tp.listReserve(assetWETH, defaultReserveConfig(), wei(2_000))
	tp.listReserve(assetDAI, defaultReserveConfig(), wei(1))
	tp.deposit(assetWETH, alice, wei(10))
	tp.deposit(assetDAI, bob, wei(8_000))
	if err := tp.engine.Borrow(alice, assetDAI, wei(4_000), RateModeVariable, alice, 0); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	before, err := tp.engine.GetReserveData(assetDAI)
	if err != nil {
		t.Fatalf("reserve data: %v", err)
	}

	amount := wei(2_000)
	receiver := &fakeFlashReceiver{addr: common.HexToAddress("0x00000000000000000000000000000000000000f1")}
	tp.fund(assetDAI, receiver.addr, flashPremium(amount))
	err = tp.engine.FlashLoan(carol, receiver, []common.Address{assetDAI}, []*big.Int{amount}, []InterestRateMode{RateModeNone}, carol, nil, 0)
	if err != nil {
		t.Fatalf("flash loan: %v", err)
	}

	// A fully repaid loan leaves utilisation where it was, modulo the
	// premium easing it slightly; the persisted rate must not climb.
	after, err := tp.engine.GetReserveData(assetDAI)
	if err != nil {
		t.Fatalf("reserve data: %v", err)
	}
	if after.CurrentVariableBorrowRate.Cmp(before.CurrentVariableBorrowRate) > 0 {
		t.Fatalf("variable rate rose from %s to %s across a repaid flash loan",
			before.CurrentVariableBorrowRate, after.CurrentVariableBorrowRate)
	}
	if after.CurrentVariableBorrowRate.Sign() == 0 {
		t.Fatal("variable rate should stay positive while debt is open")
	}
}

func TestFlashLoanChecksEveryAssetBeforeRelease(t *testing.T) {
	tp := newTestPool(t)
	tp.listReserve(assetWETH, defaultReserveConfig(), wei(2_000))
	tp.listReserve(assetDAI, defaultReserveConfig(), wei(1))
	tp.deposit(assetWETH, alice, wei(100))
	tp.deposit(assetDAI, bob, wei(100))

	receiver := &fakeFlashReceiver{addr: common.HexToAddress("0x00000000000000000000000000000000000000f1")}
	err := tp.engine.FlashLoan(carol, receiver,
		[]common.Address{assetWETH, assetDAI},
		[]*big.Int{wei(50), wei(500)},
		[]InterestRateMode{RateModeNone, RateModeNone},
		carol, nil, 0)
	if !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("err = %v, want ErrInsufficientLiquidity", err)
	}
	if receiver.called {
		t.Fatal("callback must not run when a check fails")
	}
	if got := tp.underlying(assetWETH, tp.receipts[assetWETH].addr); got.Cmp(wei(100)) != 0 {
		t.Fatalf("custody = %s, want untouched 100", got)
	}
	if got := tp.underlying(assetWETH, receiver.addr); got.Sign() != 0 {
		t.Fatalf("receiver balance = %s, want nothing released", got)
	}
}
