package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
	"lendpool/observability/metrics"
)

// FlashLoan releases the requested amounts to the receiver, invokes its
// callback, then settles each asset: mode none pulls amount plus premium back
// and credits the premium to suppliers through the liquidity index, while a
// debt mode leaves the funds with the receiver and opens debt for onBehalfOf.
//
// The engine mutex is not held across the callback so the receiver is free to
// deposit, repay or borrow against the pool before returning.
func (e *Engine) FlashLoan(caller common.Address, receiver FlashLoanReceiver, assets []common.Address, amounts []*big.Int, modes []InterestRateMode, onBehalfOf common.Address, params []byte, referral uint16) error {
	const op = "flash_loan"

	e.mu.Lock()
	if err := e.operationAllowed(); err != nil {
		e.mu.Unlock()
		metrics.Pool().ObserveRejection(op)
		return err
	}
	if err := validateFlashLoan(assets, amounts, modes); err != nil {
		e.mu.Unlock()
		metrics.Pool().ObserveRejection(op)
		return err
	}

	// Every asset is checked before any funds move so a rejection on the last
	// asset cannot strand earlier releases with the receiver.
	premiums := make([]*big.Int, len(assets))
	receiptTokens := make([]ReceiptToken, len(assets))
	for i, asset := range assets {
		r, err := e.requireReserve(asset)
		if err != nil {
			e.mu.Unlock()
			metrics.Pool().ObserveRejection(op)
			return err
		}
		if !r.Config.Active {
			e.mu.Unlock()
			metrics.Pool().ObserveRejection(op)
			return ErrReserveNotActive
		}
		available, err := e.availableLiquidity(r)
		if err != nil {
			e.mu.Unlock()
			metrics.Pool().ObserveRejection(op)
			return err
		}
		if available.Cmp(amounts[i]) < 0 {
			e.mu.Unlock()
			metrics.Pool().ObserveRejection(op)
			return ErrInsufficientLiquidity
		}
		premiums[i] = percentMulFloor(amounts[i], e.cfg.FlashLoanPremiumBps)

		receiptTokens[i], err = e.receiptToken(r)
		if err != nil {
			e.mu.Unlock()
			metrics.Pool().ObserveRejection(op)
			return err
		}
	}
	for i := range assets {
		if err := receiptTokens[i].TransferUnderlyingTo(receiver.Address(), amounts[i]); err != nil {
			e.mu.Unlock()
			metrics.Pool().ObserveRejection(op)
			return err
		}
	}
	e.mu.Unlock()

	callbackErr := receiver.ExecuteOperation(assets, amounts, premiums, caller, params)

	e.mu.Lock()
	defer e.mu.Unlock()
	if callbackErr != nil {
		metrics.Pool().ObserveRejection(op)
		return fmt.Errorf("%w: %v", ErrFlashLoanReceiverFailed, callbackErr)
	}

	for i, asset := range assets {
		if err := e.settleFlashLoan(caller, receiver, asset, amounts[i], premiums[i], modes[i], onBehalfOf, referral); err != nil {
			metrics.Pool().ObserveRejection(op)
			return err
		}
	}
	metrics.Pool().ObserveOperation(op)
	return nil
}

func (e *Engine) settleFlashLoan(caller common.Address, receiver FlashLoanReceiver, asset common.Address, amount, premium *big.Int, mode InterestRateMode, onBehalfOf common.Address, referral uint16) error {
	r, err := e.requireReserve(asset)
	if err != nil {
		return err
	}

	if mode == RateModeNone {
		fees, feesChanged, err := e.updateReserveState(r)
		if err != nil {
			return err
		}
		receiptToken, err := e.receiptToken(r)
		if err != nil {
			return err
		}
		totalSupply, err := receiptToken.TotalSupply()
		if err != nil {
			return err
		}
		cumulateToLiquidityIndex(r, totalSupply, premium)
		// The principal is still with the receiver; the pull-back below
		// restores amount plus premium, so that is the liquidity delta.
		repayment := new(big.Int).Add(amount, premium)
		if err := e.updateReserveRates(r, repayment, nil); err != nil {
			return err
		}
		if err := e.persistAccrual(r, fees, feesChanged); err != nil {
			return err
		}
		if err := e.ledger.Transfer(asset, receiver.Address(), r.ReceiptTokenAddress, repayment); err != nil {
			return err
		}
	} else {
		// The receiver keeps the funds and onBehalfOf takes on debt for the
		// principal, passing the same checks as a plain borrow.
		cfg, err := e.userConfig(onBehalfOf)
		if err != nil {
			return err
		}
		price, err := e.oracle.AssetPrice(asset)
		if err != nil {
			return err
		}
		amountInBase := divUp(new(big.Int).Mul(setOrZero(price), setOrZero(amount)), e.assetUnit(r))
		available, err := e.availableLiquidity(r)
		if err != nil {
			return err
		}
		// The principal already left custody for this very position, so it
		// still counts as the liquidity backing the borrow.
		available = new(big.Int).Add(available, amount)
		data, err := e.accountData(onBehalfOf, cfg)
		if err != nil {
			return err
		}
		if err := e.validateBorrow(r, onBehalfOf, cfg, amount, amountInBase, mode, available, data); err != nil {
			return err
		}
		if err := e.executeBorrow(r, cfg, borrowInput{
			caller:            receiver.Address(),
			onBehalfOf:        onBehalfOf,
			amount:            amount,
			mode:              mode,
			releaseUnderlying: false,
			referral:          referral,
		}); err != nil {
			return err
		}
	}

	e.logOp("flash_loan", "asset", asset, "amount", amount.String(), "premium", premium.String(), "mode", uint8(mode))
	metrics.Pool().ObserveFlashLoan()
	e.emit(events.PoolFlashLoan{
		Receiver:  receiver.Address(),
		Initiator: caller,
		Asset:     asset,
		Amount:    new(big.Int).Set(amount),
		Premium:   new(big.Int).Set(premium),
		RateMode:  uint8(mode),
		Referral:  referral,
	})
	return nil
}
