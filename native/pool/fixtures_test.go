package pool

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/core/events"
	"lendpool/storage"
)

var (
	testConfigurator = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	assetWETH        = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	assetDAI         = common.HexToAddress("0x0000000000000000000000000000000000000e02")
	alice            = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob              = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	carol            = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func wei(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// derivedAddress produces a deterministic collaborator address for an asset.
func derivedAddress(asset common.Address, tag byte) common.Address {
	var addr common.Address
	copy(addr[:], asset[:])
	addr[0] = tag
	return addr
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *captureEmitter) typesSeen() map[string]int {
	seen := make(map[string]int)
	for _, evt := range c.events {
		seen[evt.EventType()]++
	}
	return seen
}

type fakeOracle struct {
	prices map[common.Address]*big.Int
}

func (o *fakeOracle) AssetPrice(asset common.Address) (*big.Int, error) {
	price, ok := o.prices[asset]
	if !ok {
		return nil, fmt.Errorf("oracle: no price for %s", asset.Hex())
	}
	return new(big.Int).Set(price), nil
}

type fakeLedger struct {
	balances map[common.Address]map[common.Address]*big.Int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (l *fakeLedger) credit(asset, holder common.Address, amount *big.Int) {
	book, ok := l.balances[asset]
	if !ok {
		book = make(map[common.Address]*big.Int)
		l.balances[asset] = book
	}
	current, ok := book[holder]
	if !ok {
		current = big.NewInt(0)
	}
	book[holder] = new(big.Int).Add(current, amount)
}

func (l *fakeLedger) Transfer(asset, from, to common.Address, amount *big.Int) error {
	book, ok := l.balances[asset]
	if !ok {
		return fmt.Errorf("ledger: unknown asset %s", asset.Hex())
	}
	balance, ok := book[from]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: insufficient balance for %s", from.Hex())
	}
	book[from] = new(big.Int).Sub(balance, amount)
	l.credit(asset, to, amount)
	return nil
}

func (l *fakeLedger) BalanceOf(asset, holder common.Address) (*big.Int, error) {
	book, ok := l.balances[asset]
	if !ok {
		return big.NewInt(0), nil
	}
	balance, ok := book[holder]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// fakeReceiptToken tracks scaled balances and asks the engine for the current
// normalized income when converting to face value, the way a live receipt
// token queries the pool.
type fakeReceiptToken struct {
	addr        common.Address
	asset       common.Address
	engine      *Engine
	ledger      *fakeLedger
	scaled      map[common.Address]*big.Int
	scaledTotal *big.Int
}

func (t *fakeReceiptToken) Address() common.Address { return t.addr }

func (t *fakeReceiptToken) index() (*big.Int, error) {
	return t.engine.GetReserveNormalizedIncome(t.asset)
}

func (t *fakeReceiptToken) Mint(user common.Address, amount, index *big.Int) (bool, error) {
	scaledAmount := rayDiv(amount, index)
	current, ok := t.scaled[user]
	first := !ok || current.Sign() == 0
	if !ok {
		current = big.NewInt(0)
	}
	t.scaled[user] = new(big.Int).Add(current, scaledAmount)
	t.scaledTotal = new(big.Int).Add(t.scaledTotal, scaledAmount)
	return first, nil
}

func (t *fakeReceiptToken) Burn(user, to common.Address, amount, index *big.Int) error {
	scaledAmount := rayDiv(amount, index)
	current, ok := t.scaled[user]
	if !ok || current.Cmp(scaledAmount) < 0 {
		// Absorb one unit of rounding drift on full withdrawals.
		if ok && new(big.Int).Sub(scaledAmount, current).Cmp(big.NewInt(1)) <= 0 {
			scaledAmount = current
		} else {
			return fmt.Errorf("receipt token: burn exceeds balance for %s", user.Hex())
		}
	}
	t.scaled[user] = new(big.Int).Sub(current, scaledAmount)
	t.scaledTotal = new(big.Int).Sub(t.scaledTotal, scaledAmount)
	return t.ledger.Transfer(t.asset, t.addr, to, amount)
}

func (t *fakeReceiptToken) BalanceOf(user common.Address) (*big.Int, error) {
	current, ok := t.scaled[user]
	if !ok {
		return big.NewInt(0), nil
	}
	index, err := t.index()
	if err != nil {
		return nil, err
	}
	return rayMul(current, index), nil
}

func (t *fakeReceiptToken) TotalSupply() (*big.Int, error) {
	index, err := t.index()
	if err != nil {
		return nil, err
	}
	return rayMul(t.scaledTotal, index), nil
}

func (t *fakeReceiptToken) TransferUnderlyingTo(to common.Address, amount *big.Int) error {
	return t.ledger.Transfer(t.asset, t.addr, to, amount)
}

func (t *fakeReceiptToken) TransferOnLiquidation(from, to common.Address, amount *big.Int) error {
	index, err := t.index()
	if err != nil {
		return err
	}
	scaledAmount := rayDiv(amount, index)
	current, ok := t.scaled[from]
	if !ok || current.Cmp(scaledAmount) < 0 {
		return fmt.Errorf("receipt token: liquidation transfer exceeds balance for %s", from.Hex())
	}
	t.scaled[from] = new(big.Int).Sub(current, scaledAmount)
	receiver, ok := t.scaled[to]
	if !ok {
		receiver = big.NewInt(0)
	}
	t.scaled[to] = new(big.Int).Add(receiver, scaledAmount)
	return nil
}

// fakeStableDebtToken keeps face value balances with the rate frozen per
// position, which is enough resolution for engine tests.
type fakeStableDebtToken struct {
	addr     common.Address
	balances map[common.Address]*big.Int
	rates    map[common.Address]*big.Int
	total    *big.Int
}

func (t *fakeStableDebtToken) Address() common.Address { return t.addr }

func (t *fakeStableDebtToken) Mint(caller, onBehalfOf common.Address, amount, rate *big.Int) (bool, error) {
	current, ok := t.balances[onBehalfOf]
	first := !ok || current.Sign() == 0
	if !ok {
		current = big.NewInt(0)
	}
	t.balances[onBehalfOf] = new(big.Int).Add(current, amount)
	t.rates[onBehalfOf] = new(big.Int).Set(rate)
	t.total = new(big.Int).Add(t.total, amount)
	return first, nil
}

func (t *fakeStableDebtToken) Burn(user common.Address, amount *big.Int) error {
	current, ok := t.balances[user]
	if !ok || current.Cmp(amount) < 0 {
		return fmt.Errorf("stable debt token: burn exceeds balance for %s", user.Hex())
	}
	t.balances[user] = new(big.Int).Sub(current, amount)
	t.total = new(big.Int).Sub(t.total, amount)
	return nil
}

func (t *fakeStableDebtToken) BalanceOf(user common.Address) (*big.Int, error) {
	current, ok := t.balances[user]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(current), nil
}

func (t *fakeStableDebtToken) TotalSupplyAndAverageRate() (*big.Int, *big.Int, error) {
	if t.total.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	weighted := big.NewInt(0)
	for user, balance := range t.balances {
		weighted.Add(weighted, new(big.Int).Mul(balance, t.rates[user]))
	}
	return new(big.Int).Set(t.total), weighted.Quo(weighted, t.total), nil
}

// fakeVariableDebtToken mirrors the scaled bookkeeping of the receipt token
// against the variable borrow index.
type fakeVariableDebtToken struct {
	addr        common.Address
	asset       common.Address
	engine      *Engine
	scaled      map[common.Address]*big.Int
	scaledTotal *big.Int
}

func (t *fakeVariableDebtToken) Address() common.Address { return t.addr }

func (t *fakeVariableDebtToken) index() (*big.Int, error) {
	return t.engine.GetReserveNormalizedVariableDebt(t.asset)
}

func (t *fakeVariableDebtToken) Mint(caller, onBehalfOf common.Address, amount, index *big.Int) (bool, error) {
	scaledAmount := rayDiv(amount, index)
	current, ok := t.scaled[onBehalfOf]
	first := !ok || current.Sign() == 0
	if !ok {
		current = big.NewInt(0)
	}
	t.scaled[onBehalfOf] = new(big.Int).Add(current, scaledAmount)
	t.scaledTotal = new(big.Int).Add(t.scaledTotal, scaledAmount)
	return first, nil
}

func (t *fakeVariableDebtToken) Burn(user common.Address, amount, index *big.Int) error {
	scaledAmount := rayDiv(amount, index)
	current, ok := t.scaled[user]
	if !ok || current.Cmp(scaledAmount) < 0 {
		if ok && new(big.Int).Sub(scaledAmount, current).Cmp(big.NewInt(1)) <= 0 {
			scaledAmount = current
		} else {
			return fmt.Errorf("variable debt token: burn exceeds balance for %s", user.Hex())
		}
	}
	t.scaled[user] = new(big.Int).Sub(current, scaledAmount)
	t.scaledTotal = new(big.Int).Sub(t.scaledTotal, scaledAmount)
	return nil
}

func (t *fakeVariableDebtToken) BalanceOf(user common.Address) (*big.Int, error) {
	current, ok := t.scaled[user]
	if !ok {
		return big.NewInt(0), nil
	}
	index, err := t.index()
	if err != nil {
		return nil, err
	}
	return rayMul(current, index), nil
}

func (t *fakeVariableDebtToken) ScaledTotalSupply() (*big.Int, error) {
	return new(big.Int).Set(t.scaledTotal), nil
}

// testPool wires an engine against in-memory state, ledgers and tokens with a
// controllable clock.
type testPool struct {
	t       *testing.T
	engine  *Engine
	ledger  *fakeLedger
	oracle  *fakeOracle
	emitter *captureEmitter
	now     uint64

	receipts  map[common.Address]*fakeReceiptToken
	stables   map[common.Address]*fakeStableDebtToken
	variables map[common.Address]*fakeVariableDebtToken
}

func newTestPool(t *testing.T) *testPool {
	t.Helper()
	tp := &testPool{
		t:         t,
		ledger:    newFakeLedger(),
		oracle:    &fakeOracle{prices: make(map[common.Address]*big.Int)},
		emitter:   &captureEmitter{},
		now:       1_700_000_000,
		receipts:  make(map[common.Address]*fakeReceiptToken),
		stables:   make(map[common.Address]*fakeStableDebtToken),
		variables: make(map[common.Address]*fakeVariableDebtToken),
	}
	engine := NewEngine(testConfigurator, DefaultConfig())
	engine.SetState(NewKVState(storage.NewMemDB()))
	engine.SetOracle(tp.oracle)
	engine.SetLedger(tp.ledger)
	engine.SetEmitter(tp.emitter)
	engine.SetClock(func() uint64 { return tp.now })
	tp.engine = engine
	return tp
}

func (tp *testPool) advance(seconds uint64) {
	tp.now += seconds
}

func defaultReserveConfig() ReserveConfig {
	return ReserveConfig{
		Decimals:                18,
		LTVBps:                  8_000,
		LiquidationThresholdBps: 8_500,
		LiquidationBonusBps:     10_500,
		ReserveFactorBps:        1_000,
		Active:                  true,
		BorrowingEnabled:        true,
		StableRateEnabled:       true,
	}
}

func (tp *testPool) listReserve(asset common.Address, cfg ReserveConfig, price *big.Int) {
	tp.t.Helper()
	receipt := &fakeReceiptToken{
		addr:        derivedAddress(asset, 0xa1),
		asset:       asset,
		engine:      tp.engine,
		ledger:      tp.ledger,
		scaled:      make(map[common.Address]*big.Int),
		scaledTotal: big.NewInt(0),
	}
	stable := &fakeStableDebtToken{
		addr:     derivedAddress(asset, 0xa2),
		balances: make(map[common.Address]*big.Int),
		rates:    make(map[common.Address]*big.Int),
		total:    big.NewInt(0),
	}
	variable := &fakeVariableDebtToken{
		addr:        derivedAddress(asset, 0xa3),
		asset:       asset,
		engine:      tp.engine,
		scaled:      make(map[common.Address]*big.Int),
		scaledTotal: big.NewInt(0),
	}
	strategy := NewDefaultRateStrategy(derivedAddress(asset, 0xa4), 0, 0.04, 0.75, 0.80, 0.02)

	if err := tp.engine.InitReserve(testConfigurator, asset, receipt, stable, variable, strategy, cfg); err != nil {
		tp.t.Fatalf("init reserve %s: %v", asset.Hex(), err)
	}
	tp.oracle.prices[asset] = price
	tp.receipts[asset] = receipt
	tp.stables[asset] = stable
	tp.variables[asset] = variable
	tp.ledger.credit(asset, receipt.addr, big.NewInt(0))
}

func (tp *testPool) fund(asset, holder common.Address, amount *big.Int) {
	tp.ledger.credit(asset, holder, amount)
}

func (tp *testPool) deposit(asset, user common.Address, amount *big.Int) {
	tp.t.Helper()
	tp.fund(asset, user, amount)
	if err := tp.engine.Deposit(user, asset, amount, user, 0); err != nil {
		tp.t.Fatalf("deposit %s: %v", asset.Hex(), err)
	}
}

func (tp *testPool) receiptBalance(asset, user common.Address) *big.Int {
	tp.t.Helper()
	balance, err := tp.receipts[asset].BalanceOf(user)
	if err != nil {
		tp.t.Fatalf("receipt balance: %v", err)
	}
	return balance
}

func (tp *testPool) variableDebt(asset, user common.Address) *big.Int {
	tp.t.Helper()
	balance, err := tp.variables[asset].BalanceOf(user)
	if err != nil {
		tp.t.Fatalf("variable debt: %v", err)
	}
	return balance
}

func (tp *testPool) stableDebt(asset, user common.Address) *big.Int {
	tp.t.Helper()
	balance, err := tp.stables[asset].BalanceOf(user)
	if err != nil {
		tp.t.Fatalf("stable debt: %v", err)
	}
	return balance
}

func (tp *testPool) underlying(asset, holder common.Address) *big.Int {
	tp.t.Helper()
	balance, err := tp.ledger.BalanceOf(asset, holder)
	if err != nil {
		tp.t.Fatalf("ledger balance: %v", err)
	}
	return balance
}

func (tp *testPool) userConfiguration(user common.Address) UserConfiguration {
	tp.t.Helper()
	cfg, err := tp.engine.GetUserConfiguration(user)
	if err != nil {
		tp.t.Fatalf("user configuration: %v", err)
	}
	return cfg
}

func (tp *testPool) reserveID(asset common.Address) uint8 {
	tp.t.Helper()
	r, err := tp.engine.GetReserveData(asset)
	if err != nil {
		tp.t.Fatalf("reserve data: %v", err)
	}
	return r.ID
}
