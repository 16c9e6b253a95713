package pool

import (
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"

	"lendpool/core/events"
	nativecommon "lendpool/native/common"
	"lendpool/observability/metrics"
)

const moduleName = "pool"

// MaxAmount resolves to the caller's full balance when passed as the amount
// of a withdraw or repay.
var MaxAmount = new(big.Int).Set(ethmath.MaxBig256)

// Engine orchestrates the primary state transitions for the lending pool:
// every mutating entry point runs validate, accrue, mutate, re-price and only
// then moves funds, so a re-entrant collaborator call observes fully updated
// accounting.
type Engine struct {
	mu    sync.Mutex
	state engineState

	oracle  PriceOracle
	ledger  UnderlyingLedger
	emitter events.Emitter
	pauses  nativecommon.PauseView
	logger  *slog.Logger

	cfg          Config
	configurator common.Address
	paused       bool
	clock        func() uint64

	receiptTokens  map[common.Address]ReceiptToken
	stableTokens   map[common.Address]StableDebtToken
	variableTokens map[common.Address]VariableDebtToken
	strategies     map[common.Address]RateStrategy
}

// NewEngine constructs a pool engine administered by the configurator
// address.
func NewEngine(configurator common.Address, cfg Config) *Engine {
	cfg.EnsureDefaults()
	return &Engine{
		cfg:            cfg,
		configurator:   configurator,
		emitter:        events.NoopEmitter{},
		clock:          func() uint64 { return uint64(time.Now().Unix()) },
		receiptTokens:  make(map[common.Address]ReceiptToken),
		stableTokens:   make(map[common.Address]StableDebtToken),
		variableTokens: make(map[common.Address]VariableDebtToken),
		strategies:     make(map[common.Address]RateStrategy),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle wires the price lookup collaborator.
func (e *Engine) SetOracle(oracle PriceOracle) { e.oracle = oracle }

// SetLedger wires the underlying asset ledger.
func (e *Engine) SetLedger(ledger UnderlyingLedger) { e.ledger = ledger }

// SetEmitter wires the event sink; nil restores the discarding default.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the operator pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetLogger wires an optional structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) { e.logger = logger }

// SetClock overrides the time source; intended for tests.
func (e *Engine) SetClock(clock func() uint64) {
	if clock != nil {
		e.clock = clock
	}
}

func (e *Engine) emit(event events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}

func (e *Engine) logOp(op string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(op, args...)
	}
}

// operationAllowed gates every mutating entry point before any side effect.
func (e *Engine) operationAllowed() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.paused {
		return ErrPoolPaused
	}
	return nil
}

// run wraps one mutating operation with the pause gate, metrics and logging.
func (e *Engine) run(op string, fn func() error) error {
	if err := e.operationAllowed(); err != nil {
		metrics.Pool().ObserveRejection(op)
		return err
	}
	if err := fn(); err != nil {
		metrics.Pool().ObserveRejection(op)
		return err
	}
	metrics.Pool().ObserveOperation(op)
	return nil
}

// --- collaborator resolution ---

func (e *Engine) receiptToken(r *Reserve) (ReceiptToken, error) {
	token, ok := e.receiptTokens[r.ReceiptTokenAddress]
	if !ok {
		return nil, ErrCollaboratorNotRegistered
	}
	return token, nil
}

func (e *Engine) stableToken(r *Reserve) (StableDebtToken, error) {
	token, ok := e.stableTokens[r.StableDebtTokenAddress]
	if !ok {
		return nil, ErrCollaboratorNotRegistered
	}
	return token, nil
}

func (e *Engine) variableToken(r *Reserve) (VariableDebtToken, error) {
	token, ok := e.variableTokens[r.VariableDebtTokenAddress]
	if !ok {
		return nil, ErrCollaboratorNotRegistered
	}
	return token, nil
}

func (e *Engine) strategy(r *Reserve) (RateStrategy, error) {
	strategy, ok := e.strategies[r.RateStrategyAddress]
	if !ok {
		return nil, ErrCollaboratorNotRegistered
	}
	return strategy, nil
}

func (e *Engine) requireReserve(asset common.Address) (*Reserve, error) {
	r, err := e.state.GetReserve(asset)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrReserveNotFound
	}
	r.ensureDefaults()
	return r, nil
}

// userConfig loads the account's participation bitset, creating an empty one
// lazily on first use.
func (e *Engine) userConfig(user common.Address) (*UserConfiguration, error) {
	cfg, err := e.state.GetUserConfig(user)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &UserConfiguration{}
	}
	return cfg, nil
}

func (e *Engine) assetUnit(r *Reserve) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(r.Config.Decimals)), nil)
}

// --- deposit ---

// Deposit supplies underlying into the reserve and mints receipt tokens to
// onBehalfOf at the current liquidity index. The first deposit flags the
// reserve as collateral for the receiver.
func (e *Engine) Deposit(caller, asset common.Address, amount *big.Int, onBehalfOf common.Address, referral uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run("deposit", func() error {
		return e.deposit(caller, asset, amount, onBehalfOf, referral)
	})
}

func (e *Engine) deposit(caller, asset common.Address, amount *big.Int, onBehalfOf common.Address, referral uint16) error {
	r, err := e.requireReserve(asset)
	if err != nil {
		return err
	}
	if err := validateDeposit(r, amount); err != nil {
		return err
	}
	if err := e.validateSupplyCap(r, amount); err != nil {
		return err
	}

	fees, feesChanged, err := e.updateReserveState(r)
	if err != nil {
		return err
	}
	if err := e.updateReserveRates(r, amount, nil); err != nil {
		return err
	}
	if err := e.persistAccrual(r, fees, feesChanged); err != nil {
		return err
	}

	receiptToken, err := e.receiptToken(r)
	if err != nil {
		return err
	}
	firstDeposit, err := receiptToken.Mint(onBehalfOf, amount, r.LiquidityIndex)
	if err != nil {
		return err
	}
	if firstDeposit {
		cfg, err := e.userConfig(onBehalfOf)
		if err != nil {
			return err
		}
		cfg.SetUsingAsCollateral(r.ID, true)
		if err := e.state.PutUserConfig(onBehalfOf, cfg); err != nil {
			return err
		}
		e.emit(events.PoolCollateralEnabled{Asset: asset, User: onBehalfOf})
	}

	if err := e.ledger.Transfer(asset, caller, r.ReceiptTokenAddress, amount); err != nil {
		return err
	}

	e.logOp("deposit", "asset", asset, "amount", amount.String(), "on_behalf_of", onBehalfOf)
	e.emit(events.PoolDeposit{Asset: asset, Caller: caller, OnBehalfOf: onBehalfOf, Amount: new(big.Int).Set(amount), Referral: referral})
	return nil
}

// --- withdraw ---

// Withdraw burns receipt tokens and releases the underlying to the target
// address. Passing MaxAmount withdraws the caller's full balance.
func (e *Engine) Withdraw(caller, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var withdrawn *big.Int
	err := e.run("withdraw", func() error {
		var err error
		withdrawn, err = e.withdraw(caller, asset, amount, to)
		return err
	})
	return withdrawn, err
}

func (e *Engine) withdraw(caller, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error) {
	r, err := e.requireReserve(asset)
	if err != nil {
		return nil, err
	}
	receiptToken, err := e.receiptToken(r)
	if err != nil {
		return nil, err
	}
	userBalance, err := receiptToken.BalanceOf(caller)
	if err != nil {
		return nil, err
	}
	userBalance = setOrZero(userBalance)

	target := setOrZero(amount)
	if amount != nil && amount.Cmp(MaxAmount) == 0 {
		target = new(big.Int).Set(userBalance)
	}

	available, err := e.availableLiquidity(r)
	if err != nil {
		return nil, err
	}
	if err := validateWithdraw(r, target, userBalance, available); err != nil {
		return nil, err
	}

	cfg, err := e.userConfig(caller)
	if err != nil {
		return nil, err
	}
	allowed, err := e.balanceDecreaseAllowed(r, caller, target, cfg)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrHealthFactorTooLow
	}

	fees, feesChanged, err := e.updateReserveState(r)
	if err != nil {
		return nil, err
	}
	if err := e.updateReserveRates(r, nil, target); err != nil {
		return nil, err
	}
	if err := e.persistAccrual(r, fees, feesChanged); err != nil {
		return nil, err
	}

	if target.Cmp(userBalance) == 0 && cfg.IsUsingAsCollateral(r.ID) {
		cfg.SetUsingAsCollateral(r.ID, false)
		if err := e.state.PutUserConfig(caller, cfg); err != nil {
			return nil, err
		}
		e.emit(events.PoolCollateralDisabled{Asset: asset, User: caller})
	}

	if err := receiptToken.Burn(caller, to, target, r.LiquidityIndex); err != nil {
		return nil, err
	}

	e.logOp("withdraw", "asset", asset, "amount", target.String(), "to", to)
	e.emit(events.PoolWithdraw{Asset: asset, User: caller, To: to, Amount: new(big.Int).Set(target)})
	return target, nil
}

// --- borrow ---

type borrowInput struct {
	caller            common.Address
	onBehalfOf        common.Address
	amount            *big.Int
	mode              InterestRateMode
	releaseUnderlying bool
	referral          uint16
}

// Borrow opens debt in the chosen rate mode against onBehalfOf's collateral
// and releases the underlying to the caller.
func (e *Engine) Borrow(caller, asset common.Address, amount *big.Int, mode InterestRateMode, onBehalfOf common.Address, referral uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run("borrow", func() error {
		return e.borrow(caller, asset, amount, mode, onBehalfOf, referral)
	})
}

func (e *Engine) borrow(caller, asset common.Address, amount *big.Int, mode InterestRateMode, onBehalfOf common.Address, referral uint16) error {
	r, err := e.requireReserve(asset)
	if err != nil {
		return err
	}
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
	data, err := e.accountData(onBehalfOf, cfg)
	if err != nil {
		return err
	}
	if err := e.validateBorrow(r, onBehalfOf, cfg, amount, amountInBase, mode, available, data); err != nil {
		return err
	}

	return e.executeBorrow(r, cfg, borrowInput{
		caller:            caller,
		onBehalfOf:        onBehalfOf,
		amount:            amount,
		mode:              mode,
		releaseUnderlying: true,
		referral:          referral,
	})
}

// executeBorrow is the shared debt-opening routine used by Borrow and by
// flash loans converting released funds into debt.
func (e *Engine) executeBorrow(r *Reserve, cfg *UserConfiguration, in borrowInput) error {
	fees, feesChanged, err := e.updateReserveState(r)
	if err != nil {
		return err
	}

	var firstBorrow bool
	var appliedRate *big.Int
	switch in.mode {
	case RateModeStable:
		appliedRate = new(big.Int).Set(r.CurrentStableBorrowRate)
		stableToken, err := e.stableToken(r)
		if err != nil {
			return err
		}
		firstBorrow, err = stableToken.Mint(in.caller, in.onBehalfOf, in.amount, appliedRate)
		if err != nil {
			return err
		}
	case RateModeVariable:
		variableToken, err := e.variableToken(r)
		if err != nil {
			return err
		}
		firstBorrow, err = variableToken.Mint(in.caller, in.onBehalfOf, in.amount, r.VariableBorrowIndex)
		if err != nil {
			return err
		}
	default:
		return ErrInvalidRateMode
	}

	if firstBorrow {
		cfg.SetBorrowing(r.ID, true)
		if err := e.state.PutUserConfig(in.onBehalfOf, cfg); err != nil {
			return err
		}
	}

	var taken *big.Int
	if in.releaseUnderlying {
		taken = in.amount
	}
	if err := e.updateReserveRates(r, nil, taken); err != nil {
		return err
	}
	if in.mode == RateModeVariable {
		appliedRate = new(big.Int).Set(r.CurrentVariableBorrowRate)
	}
	if err := e.persistAccrual(r, fees, feesChanged); err != nil {
		return err
	}

	if in.releaseUnderlying {
		receiptToken, err := e.receiptToken(r)
		if err != nil {
			return err
		}
		if err := receiptToken.TransferUnderlyingTo(in.caller, in.amount); err != nil {
			return err
		}
	}

	e.logOp("borrow", "asset", r.Asset, "amount", in.amount.String(), "mode", uint8(in.mode))
	e.emit(events.PoolBorrow{
		Asset:      r.Asset,
		Caller:     in.caller,
		OnBehalfOf: in.onBehalfOf,
		Amount:     new(big.Int).Set(in.amount),
		RateMode:   uint8(in.mode),
		Rate:       appliedRate,
		Referral:   in.referral,
	})
	return nil
}

// --- repay ---

// Repay settles onBehalfOf's debt in the chosen mode with funds pulled from
// the caller. Passing MaxAmount repays the full outstanding debt in that
// mode. The amount actually repaid is returned.
func (e *Engine) Repay(caller, asset common.Address, amount *big.Int, mode InterestRateMode, onBehalfOf common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var repaid *big.Int
	err := e.run("repay", func() error {
		var err error
		repaid, err = e.repay(caller, asset, amount, mode, onBehalfOf)
		return err
	})
	return repaid, err
}

func (e *Engine) repay(caller, asset common.Address, amount *big.Int, mode InterestRateMode, onBehalfOf common.Address) (*big.Int, error) {
	r, err := e.requireReserve(asset)
	if err != nil {
		return nil, err
	}
	stableToken, err := e.stableToken(r)
	if err != nil {
		return nil, err
	}
	variableToken, err := e.variableToken(r)
	if err != nil {
		return nil, err
	}
	stableDebt, err := stableToken.BalanceOf(onBehalfOf)
	if err != nil {
		return nil, err
	}
	variableDebt, err := variableToken.BalanceOf(onBehalfOf)
	if err != nil {
		return nil, err
	}
	stableDebt = setOrZero(stableDebt)
	variableDebt = setOrZero(variableDebt)

	if err := validateRepay(r, amount, mode, stableDebt, variableDebt); err != nil {
		return nil, err
	}

	debtInMode := stableDebt
	if mode == RateModeVariable {
		debtInMode = variableDebt
	}
	target := setOrZero(amount)
	if amount.Cmp(MaxAmount) == 0 || target.Cmp(debtInMode) > 0 {
		target = new(big.Int).Set(debtInMode)
	}

	fees, feesChanged, err := e.updateReserveState(r)
	if err != nil {
		return nil, err
	}

	if mode == RateModeStable {
		if err := stableToken.Burn(onBehalfOf, target); err != nil {
			return nil, err
		}
	} else {
		if err := variableToken.Burn(onBehalfOf, target, r.VariableBorrowIndex); err != nil {
			return nil, err
		}
	}

	if err := e.updateReserveRates(r, target, nil); err != nil {
		return nil, err
	}

	remaining := new(big.Int).Add(stableDebt, variableDebt)
	remaining.Sub(remaining, target)
	if remaining.Sign() == 0 {
		cfg, err := e.userConfig(onBehalfOf)
		if err != nil {
			return nil, err
		}
		cfg.SetBorrowing(r.ID, false)
		if err := e.state.PutUserConfig(onBehalfOf, cfg); err != nil {
			return nil, err
		}
	}

	if err := e.persistAccrual(r, fees, feesChanged); err != nil {
		return nil, err
	}

	if err := e.ledger.Transfer(asset, caller, r.ReceiptTokenAddress, target); err != nil {
		return nil, err
	}

	e.logOp("repay", "asset", asset, "amount", target.String(), "on_behalf_of", onBehalfOf)
	e.emit(events.PoolRepay{Asset: asset, User: onBehalfOf, Payer: caller, Amount: new(big.Int).Set(target)})
	return target, nil
}

// --- rate mode swap ---

// SwapBorrowRateMode moves the caller's full debt out of sourceMode into the
// other mode, preserving the principal at the swap instant.
func (e *Engine) SwapBorrowRateMode(caller, asset common.Address, sourceMode InterestRateMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run("swap_rate_mode", func() error {
		return e.swapBorrowRateMode(caller, asset, sourceMode)
	})
}

func (e *Engine) swapBorrowRateMode(caller, asset common.Address, sourceMode InterestRateMode) error {
	r, err := e.requireReserve(asset)
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
	stableDebt, err := stableToken.BalanceOf(caller)
	if err != nil {
		return err
	}
	variableDebt, err := variableToken.BalanceOf(caller)
	if err != nil {
		return err
	}
	stableDebt = setOrZero(stableDebt)
	variableDebt = setOrZero(variableDebt)

	cfg, err := e.userConfig(caller)
	if err != nil {
		return err
	}
	available, err := e.availableLiquidity(r)
	if err != nil {
		return err
	}
	if err := e.validateSwapRateMode(r, caller, cfg, stableDebt, variableDebt, sourceMode, available); err != nil {
		return err
	}

	fees, feesChanged, err := e.updateReserveState(r)
	if err != nil {
		return err
	}

	var targetMode InterestRateMode
	if sourceMode == RateModeStable {
		targetMode = RateModeVariable
		if err := stableToken.Burn(caller, stableDebt); err != nil {
			return err
		}
		if _, err := variableToken.Mint(caller, caller, stableDebt, r.VariableBorrowIndex); err != nil {
			return err
		}
	} else {
		targetMode = RateModeStable
		if err := variableToken.Burn(caller, variableDebt, r.VariableBorrowIndex); err != nil {
			return err
		}
		if _, err := stableToken.Mint(caller, caller, variableDebt, r.CurrentStableBorrowRate); err != nil {
			return err
		}
	}

	if err := e.updateReserveRates(r, nil, nil); err != nil {
		return err
	}
	if err := e.persistAccrual(r, fees, feesChanged); err != nil {
		return err
	}

	e.logOp("swap_rate_mode", "asset", asset, "user", caller, "target_mode", uint8(targetMode))
	e.emit(events.PoolSwapRateMode{Asset: asset, User: caller, RateMode: uint8(targetMode)})
	return nil
}

// --- stable rate rebalance ---

// RebalanceStableBorrowRate re-mints a user's stable debt at the current
// stable rate. Permissionless, but gated on pool stress conditions.
func (e *Engine) RebalanceStableBorrowRate(caller, asset, user common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run("rebalance_stable_rate", func() error {
		return e.rebalanceStableBorrowRate(caller, asset, user)
	})
}

func (e *Engine) rebalanceStableBorrowRate(caller, asset, user common.Address) error {
	r, err := e.requireReserve(asset)
	if err != nil {
		return err
	}
	stableToken, err := e.stableToken(r)
	if err != nil {
		return err
	}
	stableDebt, err := stableToken.BalanceOf(user)
	if err != nil {
		return err
	}
	stableDebt = setOrZero(stableDebt)

	if err := e.validateRebalance(r, stableDebt); err != nil {
		return err
	}

	fees, feesChanged, err := e.updateReserveState(r)
	if err != nil {
		return err
	}

	if err := stableToken.Burn(user, stableDebt); err != nil {
		return err
	}
	if _, err := stableToken.Mint(user, user, stableDebt, r.CurrentStableBorrowRate); err != nil {
		return err
	}

	if err := e.updateReserveRates(r, nil, nil); err != nil {
		return err
	}
	if err := e.persistAccrual(r, fees, feesChanged); err != nil {
		return err
	}

	e.logOp("rebalance_stable_rate", "asset", asset, "user", user, "caller", caller)
	e.emit(events.PoolRebalanceStableRate{Asset: asset, User: user, Caller: caller})
	return nil
}

// --- collateral toggling ---

// SetUserUseReserveAsCollateral toggles whether the caller's receipt balance
// backs their borrows. Disabling requires the position to stay healthy.
func (e *Engine) SetUserUseReserveAsCollateral(caller, asset common.Address, useAsCollateral bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run("set_collateral", func() error {
		return e.setUserUseReserveAsCollateral(caller, asset, useAsCollateral)
	})
}

func (e *Engine) setUserUseReserveAsCollateral(caller, asset common.Address, useAsCollateral bool) error {
	r, err := e.requireReserve(asset)
	if err != nil {
		return err
	}
	receiptToken, err := e.receiptToken(r)
	if err != nil {
		return err
	}
	balance, err := receiptToken.BalanceOf(caller)
	if err != nil {
		return err
	}
	balance = setOrZero(balance)
	if err := validateSetUseAsCollateral(r, balance); err != nil {
		return err
	}

	cfg, err := e.userConfig(caller)
	if err != nil {
		return err
	}
	if !useAsCollateral {
		allowed, err := e.balanceDecreaseAllowed(r, caller, balance, cfg)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrHealthFactorTooLow
		}
	}

	cfg.SetUsingAsCollateral(r.ID, useAsCollateral)
	if err := e.state.PutUserConfig(caller, cfg); err != nil {
		return err
	}

	if useAsCollateral {
		e.emit(events.PoolCollateralEnabled{Asset: asset, User: caller})
	} else {
		e.emit(events.PoolCollateralDisabled{Asset: asset, User: caller})
	}
	return nil
}

// --- receipt token transfer hook ---

// FinalizeTransfer is invoked by a reserve's receipt token on peer-to-peer
// transfers. It enforces the sender's post-transfer health and toggles
// collateral bits on balance zero-crossings.
func (e *Engine) FinalizeTransfer(caller, asset, from, to common.Address, amount, balanceFromBefore, balanceToBefore *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run("finalize_transfer", func() error {
		return e.finalizeTransfer(caller, asset, from, to, amount, balanceFromBefore, balanceToBefore)
	})
}

func (e *Engine) finalizeTransfer(caller, asset, from, to common.Address, amount, balanceFromBefore, balanceToBefore *big.Int) error {
	r, err := e.requireReserve(asset)
	if err != nil {
		return err
	}
	if caller != r.ReceiptTokenAddress {
		return ErrCallerNotReceiptToken
	}
	if from == to || amount == nil || amount.Sign() == 0 {
		return nil
	}

	fromCfg, err := e.userConfig(from)
	if err != nil {
		return err
	}
	allowed, err := e.balanceDecreaseAllowed(r, from, amount, fromCfg)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrHealthFactorTooLow
	}

	balanceAfter := new(big.Int).Sub(setOrZero(balanceFromBefore), amount)
	if balanceAfter.Sign() == 0 && fromCfg.IsUsingAsCollateral(r.ID) {
		fromCfg.SetUsingAsCollateral(r.ID, false)
		if err := e.state.PutUserConfig(from, fromCfg); err != nil {
			return err
		}
		e.emit(events.PoolCollateralDisabled{Asset: asset, User: from})
	}

	if balanceToBefore == nil || balanceToBefore.Sign() == 0 {
		toCfg, err := e.userConfig(to)
		if err != nil {
			return err
		}
		toCfg.SetUsingAsCollateral(r.ID, true)
		if err := e.state.PutUserConfig(to, toCfg); err != nil {
			return err
		}
		e.emit(events.PoolCollateralEnabled{Asset: asset, User: to})
	}
	return nil
}
