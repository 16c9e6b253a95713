package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// InterestRateMode selects which debt book an operation targets.
type InterestRateMode uint8

const (
	RateModeNone InterestRateMode = iota
	RateModeStable
	RateModeVariable
)

// Valid reports whether the mode names an actual debt book.
func (m InterestRateMode) Valid() bool {
	return m == RateModeStable || m == RateModeVariable
}

// maxReserves bounds the reserve list; ids are assigned once and never reused.
const maxReserves = 128

// ReserveConfig carries the governance controlled risk settings of a reserve.
// Percentages are expressed in basis points for deterministic accounting.
type ReserveConfig struct {
	Decimals                uint8
	LTVBps                  uint64
	LiquidationThresholdBps uint64
	LiquidationBonusBps     uint64
	ReserveFactorBps        uint64
	Active                  bool
	Frozen                  bool
	BorrowingEnabled        bool
	StableRateEnabled       bool
	// BorrowCap and SupplyCap bound the reserve in underlying units. A nil or
	// zero cap means unbounded.
	BorrowCap *big.Int
	SupplyCap *big.Int
}

// Clone returns a deep copy of the reserve configuration.
func (c ReserveConfig) Clone() ReserveConfig {
	clone := c
	if c.BorrowCap != nil {
		clone.BorrowCap = new(big.Int).Set(c.BorrowCap)
	}
	if c.SupplyCap != nil {
		clone.SupplyCap = new(big.Int).Set(c.SupplyCap)
	}
	return clone
}

// Reserve captures the accrual state and configuration for one listed asset.
// Indexes are ray-scaled monotonic accumulators starting at 1.0; rates are
// ray-scaled yearly rates.
type Reserve struct {
	Asset common.Address
	// ID is the small integer slot of the reserve inside user bitsets.
	ID     uint8
	Config ReserveConfig
	// LiquidityIndex converts scaled receipt balances into present value.
	LiquidityIndex *big.Int
	// VariableBorrowIndex converts scaled variable debt into present value.
	VariableBorrowIndex *big.Int
	// CurrentLiquidityRate is the yearly rate paid to suppliers.
	CurrentLiquidityRate *big.Int
	// CurrentVariableBorrowRate is the yearly rate charged on variable debt.
	CurrentVariableBorrowRate *big.Int
	// CurrentStableBorrowRate is the yearly rate offered on new stable debt.
	CurrentStableBorrowRate *big.Int
	// LastUpdateTimestamp records the unix second when the indexes were last
	// refreshed.
	LastUpdateTimestamp uint64
	// Collaborator addresses. The engine resolves these through its token
	// registry; the addresses themselves are the persisted identity.
	ReceiptTokenAddress      common.Address
	StableDebtTokenAddress   common.Address
	VariableDebtTokenAddress common.Address
	RateStrategyAddress      common.Address
}

// ensureDefaults populates nil accumulator fields so decoded records are safe
// to operate on.
func (r *Reserve) ensureDefaults() {
	if r.LiquidityIndex == nil || r.LiquidityIndex.Sign() == 0 {
		r.LiquidityIndex = new(big.Int).Set(ray)
	}
	if r.VariableBorrowIndex == nil || r.VariableBorrowIndex.Sign() == 0 {
		r.VariableBorrowIndex = new(big.Int).Set(ray)
	}
	if r.CurrentLiquidityRate == nil {
		r.CurrentLiquidityRate = big.NewInt(0)
	}
	if r.CurrentVariableBorrowRate == nil {
		r.CurrentVariableBorrowRate = big.NewInt(0)
	}
	if r.CurrentStableBorrowRate == nil {
		r.CurrentStableBorrowRate = big.NewInt(0)
	}
}

// Clone returns a deep copy safe to hand to callers.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Config = r.Config.Clone()
	if r.LiquidityIndex != nil {
		clone.LiquidityIndex = new(big.Int).Set(r.LiquidityIndex)
	}
	if r.VariableBorrowIndex != nil {
		clone.VariableBorrowIndex = new(big.Int).Set(r.VariableBorrowIndex)
	}
	if r.CurrentLiquidityRate != nil {
		clone.CurrentLiquidityRate = new(big.Int).Set(r.CurrentLiquidityRate)
	}
	if r.CurrentVariableBorrowRate != nil {
		clone.CurrentVariableBorrowRate = new(big.Int).Set(r.CurrentVariableBorrowRate)
	}
	if r.CurrentStableBorrowRate != nil {
		clone.CurrentStableBorrowRate = new(big.Int).Set(r.CurrentStableBorrowRate)
	}
	return &clone
}

// FeeAccrual tracks the reserve factor share of borrow interest collected for
// the protocol treasury, denominated in underlying units of the asset.
type FeeAccrual struct {
	ProtocolFees *big.Int
}

// Clone returns a deep copy of the fee accrual record.
func (f *FeeAccrual) Clone() *FeeAccrual {
	if f == nil {
		return nil
	}
	clone := &FeeAccrual{}
	if f.ProtocolFees != nil {
		clone.ProtocolFees = new(big.Int).Set(f.ProtocolFees)
	}
	return clone
}

// UserAccountData is the aggregate risk view of one account across every
// reserve it participates in. Values are in the oracle's base currency unit.
type UserAccountData struct {
	TotalCollateral             *big.Int
	TotalDebt                   *big.Int
	AvailableBorrows            *big.Int
	CurrentLiquidationThreshold uint64
	LTV                         uint64
	// HealthFactor is wad-scaled; saturates to MaxBig256 when there is no
	// debt.
	HealthFactor *big.Int
}

// PriceOracle quotes assets in a common wad-scaled base currency unit.
type PriceOracle interface {
	AssetPrice(asset common.Address) (*big.Int, error)
}

// RateStrategy recomputes reserve rates from post-operation liquidity.
// Returned rates are ray-scaled yearly rates.
type RateStrategy interface {
	Address() common.Address
	CalculateInterestRates(asset common.Address, availableLiquidity, totalStableDebt, totalVariableDebt, averageStableRate *big.Int, reserveFactorBps uint64) (liquidityRate, stableRate, variableRate *big.Int, err error)
	MaxVariableBorrowRate() *big.Int
}

// ReceiptToken is the supplier-side claim on a reserve, value-indexed by the
// liquidity index. The token contract holds custody of the underlying.
type ReceiptToken interface {
	Address() common.Address
	// Mint credits scaled balance at the given liquidity index and reports
	// whether this is the holder's first deposit.
	Mint(user common.Address, amount, index *big.Int) (bool, error)
	// Burn debits scaled balance and releases the underlying to the target.
	Burn(user, to common.Address, amount, index *big.Int) error
	BalanceOf(user common.Address) (*big.Int, error)
	TotalSupply() (*big.Int, error)
	// TransferUnderlyingTo releases custody funds without touching balances.
	TransferUnderlyingTo(to common.Address, amount *big.Int) error
	// TransferOnLiquidation moves balance between holders without the sender
	// health checks of a regular transfer.
	TransferOnLiquidation(from, to common.Address, amount *big.Int) error
}

// StableDebtToken records debt accruing at a fixed per-position rate.
type StableDebtToken interface {
	Address() common.Address
	// Mint opens debt at the given yearly rate and reports whether this is
	// the account's first stable borrow.
	Mint(caller, onBehalfOf common.Address, amount, rate *big.Int) (bool, error)
	Burn(user common.Address, amount *big.Int) error
	BalanceOf(user common.Address) (*big.Int, error)
	TotalSupplyAndAverageRate() (*big.Int, *big.Int, error)
}

// VariableDebtToken records debt indexed by the shared variable borrow index.
type VariableDebtToken interface {
	Address() common.Address
	Mint(caller, onBehalfOf common.Address, amount, index *big.Int) (bool, error)
	Burn(user common.Address, amount, index *big.Int) error
	BalanceOf(user common.Address) (*big.Int, error)
	ScaledTotalSupply() (*big.Int, error)
}

// UnderlyingLedger moves the fungible underlying assets between accounts.
// Direct unsolicited transfers into pool custody are not represented here;
// every movement happens through an engine operation.
type UnderlyingLedger interface {
	Transfer(asset, from, to common.Address, amount *big.Int) error
	BalanceOf(asset, holder common.Address) (*big.Int, error)
}

// FlashLoanReceiver is invoked once per flash loan with every borrowed asset,
// after all funds have been released. A non-nil error rejects the whole loan.
type FlashLoanReceiver interface {
	Address() common.Address
	ExecuteOperation(assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) error
}
