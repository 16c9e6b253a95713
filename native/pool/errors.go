package pool

import "errors"

// Configuration errors.
var (
	ErrNilState                  = errors.New("pool engine: state not configured")
	ErrNotConfigurator           = errors.New("pool engine: caller is not the configurator")
	ErrReserveNotFound           = errors.New("pool engine: reserve not initialised")
	ErrReserveAlreadyInitialized = errors.New("pool engine: reserve already initialised")
	ErrReserveListFull           = errors.New("pool engine: reserve list is full")
	ErrReserveNotActive          = errors.New("pool engine: reserve is not active")
	ErrReserveFrozen             = errors.New("pool engine: reserve is frozen")
	ErrCollaboratorNotRegistered = errors.New("pool engine: reserve collaborator not registered")
)

// Pause errors.
var (
	ErrPoolPaused = errors.New("pool engine: pool is paused")
)

// Validation errors.
var (
	ErrInvalidAmount               = errors.New("pool engine: amount must be positive")
	ErrInvalidRateMode             = errors.New("pool engine: unsupported interest rate mode")
	ErrBorrowingDisabled           = errors.New("pool engine: borrowing is disabled on reserve")
	ErrStableBorrowingDisabled     = errors.New("pool engine: stable borrowing is disabled on reserve")
	ErrHealthFactorTooLow          = errors.New("pool engine: health factor below threshold")
	ErrHealthFactorNotLiquidatable = errors.New("pool engine: borrower not eligible for liquidation")
	ErrCollateralCannotCover       = errors.New("pool engine: collateral cannot cover new borrow")
	ErrCollateralBalanceZero       = errors.New("pool engine: underlying balance is zero")
	ErrCollateralSameAsBorrow      = errors.New("pool engine: collateral is the same as the borrowed asset")
	ErrStableBorrowSizeExceeded    = errors.New("pool engine: stable borrow exceeds the allowed size")
	ErrNoDebtInSelectedMode        = errors.New("pool engine: no outstanding debt in the selected mode")
	ErrNoDebtToRepay               = errors.New("pool engine: no outstanding debt to repay")
	ErrRebalanceConditionsNotMet   = errors.New("pool engine: rebalance conditions not met")
	ErrBorrowCapExceeded           = errors.New("pool engine: borrow cap exceeded")
	ErrSupplyCapExceeded           = errors.New("pool engine: supply cap exceeded")
	ErrInconsistentFlashLoan       = errors.New("pool engine: inconsistent flash loan parameters")
)

// Liquidity errors.
var (
	ErrInsufficientLiquidity = errors.New("pool engine: insufficient available liquidity")
	ErrInsufficientBalance   = errors.New("pool engine: insufficient balance")
)

// External call errors.
var (
	ErrFlashLoanReceiverFailed = errors.New("pool engine: flash loan receiver rejected the operation")
	ErrCallerNotReceiptToken   = errors.New("pool engine: caller is not the reserve receipt token")
)
