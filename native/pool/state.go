package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"lendpool/storage"
)

// engineState is the persistence surface the engine runs against. Records are
// owned exclusively by the engine; collaborators never mutate them directly.
// Absent records are reported as nil without error.
type engineState interface {
	GetReserve(asset common.Address) (*Reserve, error)
	PutReserve(reserve *Reserve) error
	GetUserConfig(user common.Address) (*UserConfiguration, error)
	PutUserConfig(user common.Address, config *UserConfiguration) error
	GetReserveList() ([]common.Address, error)
	PutReserveList(list []common.Address) error
	GetFeeAccrual(asset common.Address) (*FeeAccrual, error)
	PutFeeAccrual(asset common.Address, fees *FeeAccrual) error
}

// Storage key prefixes for persisted pool state.
var (
	reserveKeyPrefix = []byte("lend/resv/")
	userKeyPrefix    = []byte("lend/user/")
	feesKeyPrefix    = []byte("lend/fees/")
	reserveListKey   = []byte("lend/list")
)

// KVState stores pool records RLP-encoded in a key-value database.
type KVState struct {
	db storage.Database
}

// NewKVState wraps the given database as engine state.
func NewKVState(db storage.Database) *KVState {
	return &KVState{db: db}
}

type reserveRecord struct {
	Asset                     common.Address
	ID                        uint8
	Config                    reserveConfigRecord
	LiquidityIndex            *big.Int
	VariableBorrowIndex       *big.Int
	CurrentLiquidityRate      *big.Int
	CurrentVariableBorrowRate *big.Int
	CurrentStableBorrowRate   *big.Int
	LastUpdateTimestamp       uint64
	ReceiptTokenAddress       common.Address
	StableDebtTokenAddress    common.Address
	VariableDebtTokenAddress  common.Address
	RateStrategyAddress       common.Address
}

type reserveConfigRecord struct {
	Decimals                uint8
	LTVBps                  uint64
	LiquidationThresholdBps uint64
	LiquidationBonusBps     uint64
	ReserveFactorBps        uint64
	Active                  bool
	Frozen                  bool
	BorrowingEnabled        bool
	StableRateEnabled       bool
	BorrowCap               *big.Int
	SupplyCap               *big.Int
}

type feeAccrualRecord struct {
	ProtocolFees *big.Int
}

type userConfigRecord struct {
	Word0 uint64
	Word1 uint64
	Word2 uint64
	Word3 uint64
}

func newReserveRecord(r *Reserve) *reserveRecord {
	return &reserveRecord{
		Asset: r.Asset,
		ID:    r.ID,
		Config: reserveConfigRecord{
			Decimals:                r.Config.Decimals,
			LTVBps:                  r.Config.LTVBps,
			LiquidationThresholdBps: r.Config.LiquidationThresholdBps,
			LiquidationBonusBps:     r.Config.LiquidationBonusBps,
			ReserveFactorBps:        r.Config.ReserveFactorBps,
			Active:                  r.Config.Active,
			Frozen:                  r.Config.Frozen,
			BorrowingEnabled:        r.Config.BorrowingEnabled,
			StableRateEnabled:       r.Config.StableRateEnabled,
			BorrowCap:               setOrZero(r.Config.BorrowCap),
			SupplyCap:               setOrZero(r.Config.SupplyCap),
		},
		LiquidityIndex:            setOrZero(r.LiquidityIndex),
		VariableBorrowIndex:       setOrZero(r.VariableBorrowIndex),
		CurrentLiquidityRate:      setOrZero(r.CurrentLiquidityRate),
		CurrentVariableBorrowRate: setOrZero(r.CurrentVariableBorrowRate),
		CurrentStableBorrowRate:   setOrZero(r.CurrentStableBorrowRate),
		LastUpdateTimestamp:       r.LastUpdateTimestamp,
		ReceiptTokenAddress:       r.ReceiptTokenAddress,
		StableDebtTokenAddress:    r.StableDebtTokenAddress,
		VariableDebtTokenAddress:  r.VariableDebtTokenAddress,
		RateStrategyAddress:       r.RateStrategyAddress,
	}
}

func (rec *reserveRecord) toReserve() *Reserve {
	reserve := &Reserve{
		Asset: rec.Asset,
		ID:    rec.ID,
		Config: ReserveConfig{
			Decimals:                rec.Config.Decimals,
			LTVBps:                  rec.Config.LTVBps,
			LiquidationThresholdBps: rec.Config.LiquidationThresholdBps,
			LiquidationBonusBps:     rec.Config.LiquidationBonusBps,
			ReserveFactorBps:        rec.Config.ReserveFactorBps,
			Active:                  rec.Config.Active,
			Frozen:                  rec.Config.Frozen,
			BorrowingEnabled:        rec.Config.BorrowingEnabled,
			StableRateEnabled:       rec.Config.StableRateEnabled,
			BorrowCap:               setOrZero(rec.Config.BorrowCap),
			SupplyCap:               setOrZero(rec.Config.SupplyCap),
		},
		LiquidityIndex:            setOrZero(rec.LiquidityIndex),
		VariableBorrowIndex:       setOrZero(rec.VariableBorrowIndex),
		CurrentLiquidityRate:      setOrZero(rec.CurrentLiquidityRate),
		CurrentVariableBorrowRate: setOrZero(rec.CurrentVariableBorrowRate),
		CurrentStableBorrowRate:   setOrZero(rec.CurrentStableBorrowRate),
		LastUpdateTimestamp:       rec.LastUpdateTimestamp,
		ReceiptTokenAddress:       rec.ReceiptTokenAddress,
		StableDebtTokenAddress:    rec.StableDebtTokenAddress,
		VariableDebtTokenAddress:  rec.VariableDebtTokenAddress,
		RateStrategyAddress:       rec.RateStrategyAddress,
	}
	reserve.ensureDefaults()
	return reserve
}

func keyFor(prefix []byte, addr common.Address) []byte {
	key := make([]byte, 0, len(prefix)+common.AddressLength)
	key = append(key, prefix...)
	return append(key, addr.Bytes()...)
}

// GetReserve loads a reserve record; nil when the asset is not listed.
func (s *KVState) GetReserve(asset common.Address) (*Reserve, error) {
	raw, err := s.db.Get(keyFor(reserveKeyPrefix, asset))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load reserve: %w", err)
	}
	var record reserveRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, fmt.Errorf("decode reserve: %w", err)
	}
	return record.toReserve(), nil
}

// PutReserve stores the reserve record under its asset key.
func (s *KVState) PutReserve(reserve *Reserve) error {
	if reserve == nil {
		return nil
	}
	raw, err := rlp.EncodeToBytes(newReserveRecord(reserve))
	if err != nil {
		return fmt.Errorf("encode reserve: %w", err)
	}
	return s.db.Put(keyFor(reserveKeyPrefix, reserve.Asset), raw)
}

// GetUserConfig loads a user's participation bitset; nil when the account has
// never interacted with the pool.
func (s *KVState) GetUserConfig(user common.Address) (*UserConfiguration, error) {
	raw, err := s.db.Get(keyFor(userKeyPrefix, user))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load user config: %w", err)
	}
	var record userConfigRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, fmt.Errorf("decode user config: %w", err)
	}
	return &UserConfiguration{Data: [4]uint64{record.Word0, record.Word1, record.Word2, record.Word3}}, nil
}

// PutUserConfig stores the user's participation bitset.
func (s *KVState) PutUserConfig(user common.Address, config *UserConfiguration) error {
	if config == nil {
		return nil
	}
	record := userConfigRecord{
		Word0: config.Data[0],
		Word1: config.Data[1],
		Word2: config.Data[2],
		Word3: config.Data[3],
	}
	raw, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return fmt.Errorf("encode user config: %w", err)
	}
	return s.db.Put(keyFor(userKeyPrefix, user), raw)
}

// GetReserveList loads the append-only id to asset mapping.
func (s *KVState) GetReserveList() ([]common.Address, error) {
	raw, err := s.db.Get(reserveListKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load reserve list: %w", err)
	}
	var list []common.Address
	if err := rlp.DecodeBytes(raw, &list); err != nil {
		return nil, fmt.Errorf("decode reserve list: %w", err)
	}
	return list, nil
}

// PutReserveList stores the id to asset mapping.
func (s *KVState) PutReserveList(list []common.Address) error {
	raw, err := rlp.EncodeToBytes(list)
	if err != nil {
		return fmt.Errorf("encode reserve list: %w", err)
	}
	return s.db.Put(reserveListKey, raw)
}

// GetFeeAccrual loads the treasury accrual for an asset; nil when nothing has
// accrued yet.
func (s *KVState) GetFeeAccrual(asset common.Address) (*FeeAccrual, error) {
	raw, err := s.db.Get(keyFor(feesKeyPrefix, asset))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load fee accrual: %w", err)
	}
	var record feeAccrualRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, fmt.Errorf("decode fee accrual: %w", err)
	}
	return &FeeAccrual{ProtocolFees: setOrZero(record.ProtocolFees)}, nil
}

// PutFeeAccrual stores the treasury accrual for an asset.
func (s *KVState) PutFeeAccrual(asset common.Address, fees *FeeAccrual) error {
	if fees == nil {
		return nil
	}
	record := feeAccrualRecord{ProtocolFees: setOrZero(fees.ProtocolFees)}
	raw, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return fmt.Errorf("encode fee accrual: %w", err)
	}
	return s.db.Put(keyFor(feesKeyPrefix, asset), raw)
}
