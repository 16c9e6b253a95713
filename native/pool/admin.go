package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
	"lendpool/observability/metrics"
)

// InitReserve registers a new reserve together with its receipt token, debt
// tokens and rate strategy. Indexes start at one ray. Configurator only.
func (e *Engine) InitReserve(caller, asset common.Address, receipt ReceiptToken, stable StableDebtToken, variable VariableDebtToken, strategy RateStrategy, cfg ReserveConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.configurator {
		return ErrNotConfigurator
	}
	existing, err := e.state.GetReserve(asset)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrReserveAlreadyInitialized
	}
	list, err := e.state.GetReserveList()
	if err != nil {
		return err
	}
	if len(list) >= maxReserves {
		return ErrReserveListFull
	}

	r := &Reserve{
		Asset:                    asset,
		ID:                       uint8(len(list)),
		Config:                   cfg.Clone(),
		LiquidityIndex:           new(big.Int).Set(ray),
		VariableBorrowIndex:      new(big.Int).Set(ray),
		LastUpdateTimestamp:      e.clock(),
		ReceiptTokenAddress:      receipt.Address(),
		StableDebtTokenAddress:   stable.Address(),
		VariableDebtTokenAddress: variable.Address(),
		RateStrategyAddress:      strategy.Address(),
	}
	r.ensureDefaults()

	e.receiptTokens[receipt.Address()] = receipt
	e.stableTokens[stable.Address()] = stable
	e.variableTokens[variable.Address()] = variable
	e.strategies[strategy.Address()] = strategy

	if err := e.state.PutReserve(r); err != nil {
		return err
	}
	if err := e.state.PutReserveList(append(list, asset)); err != nil {
		return err
	}

	e.logOp("init_reserve", "asset", asset, "id", r.ID)
	e.emit(events.PoolReserveInitialized{
		Asset:             asset,
		ReserveID:         r.ID,
		ReceiptToken:      receipt.Address(),
		StableDebtToken:   stable.Address(),
		VariableDebtToken: variable.Address(),
		RateStrategy:      strategy.Address(),
	})
	return nil
}

// SetConfiguration replaces a reserve's risk parameters. Configurator only.
func (e *Engine) SetConfiguration(caller, asset common.Address, cfg ReserveConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.configurator {
		return ErrNotConfigurator
	}
	r, err := e.requireReserve(asset)
	if err != nil {
		return err
	}
	r.Config = cfg.Clone()
	return e.state.PutReserve(r)
}

// SetReserveInterestRateStrategy swaps the rate strategy used by a reserve.
// Configurator only.
func (e *Engine) SetReserveInterestRateStrategy(caller, asset common.Address, strategy RateStrategy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.configurator {
		return ErrNotConfigurator
	}
	r, err := e.requireReserve(asset)
	if err != nil {
		return err
	}
	e.strategies[strategy.Address()] = strategy
	r.RateStrategyAddress = strategy.Address()
	return e.state.PutReserve(r)
}

// SetPause halts or resumes every user-facing pool operation. Configurator
// only.
func (e *Engine) SetPause(caller common.Address, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.configurator {
		return ErrNotConfigurator
	}
	e.paused = paused
	metrics.Pool().SetPaused(paused)
	if paused {
		e.emit(events.PoolPaused{})
	} else {
		e.emit(events.PoolUnpaused{})
	}
	return nil
}

// WithdrawProtocolFees moves accrued reserve-factor fees out of the pool to
// the recipient. Configurator only.
func (e *Engine) WithdrawProtocolFees(caller, asset, recipient common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.configurator {
		return ErrNotConfigurator
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	r, err := e.requireReserve(asset)
	if err != nil {
		return err
	}
	fees, err := e.feeAccrual(asset)
	if err != nil {
		return err
	}
	if fees.ProtocolFees.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	available, err := e.availableLiquidity(r)
	if err != nil {
		return err
	}
	if available.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	receiptToken, err := e.receiptToken(r)
	if err != nil {
		return err
	}
	if err := receiptToken.TransferUnderlyingTo(recipient, amount); err != nil {
		return err
	}
	fees.ProtocolFees = new(big.Int).Sub(fees.ProtocolFees, amount)
	return e.state.PutFeeAccrual(asset, fees)
}

// Configurator returns the administrative address the engine was constructed
// with.
func (e *Engine) Configurator() common.Address {
	return e.configurator
}
