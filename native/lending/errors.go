package lending

import "errors"

// Business rejections. They leave protocol state untouched and are safe to
// surface to callers verbatim.
var (
	ErrInvalidAmount            = errors.New("lending: amount must be positive")
	ErrAssetNotLendable         = errors.New("lending: asset cannot be lent")
	ErrAssetNotCollateralizable = errors.New("lending: asset cannot be used as collateral")
	ErrNoCollateral             = errors.New("lending: no collateral deposited")
	ErrInsufficientCollateral   = errors.New("lending: insufficient collateral")
	ErrInsufficientLiquidity    = errors.New("lending: insufficient liquidity")
	ErrExceedsDebt              = errors.New("lending: repay amount exceeds debt")
	ErrPositionHealthy          = errors.New("lending: position is healthy")
	ErrPositionNotFound         = errors.New("lending: position not found")
	ErrNoLoan                   = errors.New("lending: no loan found")
	ErrPoolNotFound             = errors.New("lending: pool not found")
	ErrUnknownAsset             = errors.New("lending: unknown asset")
)

// ErrAssetNotConfigured marks a configuration fault: an asset that passed the
// catalog gate has no pool, price or risk schedule behind it.
var ErrAssetNotConfigured = errors.New("lending: asset not configured")

var rejections = []error{
	ErrInvalidAmount,
	ErrAssetNotLendable,
	ErrAssetNotCollateralizable,
	ErrNoCollateral,
	ErrInsufficientCollateral,
	ErrInsufficientLiquidity,
	ErrExceedsDebt,
	ErrPositionHealthy,
	ErrPositionNotFound,
	ErrNoLoan,
	ErrPoolNotFound,
	ErrUnknownAsset,
}

// IsRejection reports whether err is an expected business-rule rejection as
// opposed to a configuration fault.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
