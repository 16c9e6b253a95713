package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Read-only queries. These do not take the engine mutex so that reserve
// collaborators may call back into them mid-operation; the host is expected
// to serialise mutations externally the same way it serialises transactions.

// GetReserveData returns a copy of the reserve's accrual state and
// configuration.
func (e *Engine) GetReserveData(asset common.Address) (*Reserve, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	r, err := e.requireReserve(asset)
	if err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

// GetConfiguration returns the reserve's risk parameters.
func (e *Engine) GetConfiguration(asset common.Address) (ReserveConfig, error) {
	if e == nil || e.state == nil {
		return ReserveConfig{}, ErrNilState
	}
	r, err := e.requireReserve(asset)
	if err != nil {
		return ReserveConfig{}, err
	}
	return r.Config.Clone(), nil
}

// GetUserConfiguration returns the account's participation bitset.
func (e *Engine) GetUserConfiguration(user common.Address) (UserConfiguration, error) {
	if e == nil || e.state == nil {
		return UserConfiguration{}, ErrNilState
	}
	cfg, err := e.userConfig(user)
	if err != nil {
		return UserConfiguration{}, err
	}
	return *cfg, nil
}

// GetUserAccountData aggregates the account's collateral, debt, borrowing
// power and health factor across every reserve it participates in.
func (e *Engine) GetUserAccountData(user common.Address) (*UserAccountData, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	cfg, err := e.userConfig(user)
	if err != nil {
		return nil, err
	}
	data, err := e.accountData(user, cfg)
	if err != nil {
		return nil, err
	}
	return &UserAccountData{
		TotalCollateral:             new(big.Int).Set(data.totalCollateral),
		TotalDebt:                   new(big.Int).Set(data.totalDebt),
		AvailableBorrows:            data.availableBorrows(),
		CurrentLiquidationThreshold: data.avgThresholdBps,
		LTV:                         data.avgLTVBps,
		HealthFactor:                new(big.Int).Set(data.healthFactor),
	}, nil
}

// GetReserveNormalizedIncome projects the liquidity index to the current
// timestamp without persisting.
func (e *Engine) GetReserveNormalizedIncome(asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	r, err := e.requireReserve(asset)
	if err != nil {
		return nil, err
	}
	return e.normalizedIncome(r), nil
}

// GetReserveNormalizedVariableDebt projects the variable borrow index to the
// current timestamp without persisting.
func (e *Engine) GetReserveNormalizedVariableDebt(asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	r, err := e.requireReserve(asset)
	if err != nil {
		return nil, err
	}
	return e.normalizedVariableDebt(r), nil
}

// GetReservesList returns the listed assets ordered by reserve id.
func (e *Engine) GetReservesList() ([]common.Address, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.GetReserveList()
}

// ProtocolFees returns the accrued treasury fees for an asset in underlying
// units.
func (e *Engine) ProtocolFees(asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	fees, err := e.feeAccrual(asset)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(fees.ProtocolFees), nil
}

// Paused reports whether the pool is halted.
func (e *Engine) Paused() bool {
	return e != nil && e.paused
}
