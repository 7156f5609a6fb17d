package sale

import "errors"

// Configuration errors.
var (
	ErrNotInitialized  = errors.New("sale: not initialized")
	ErrInitialized     = errors.New("sale: already initialized")
	ErrUnauthorized    = errors.New("sale: caller is not the sale owner")
	ErrBadRound        = errors.New("sale: invalid round")
	ErrBadWindow       = errors.New("sale: round ends before it starts")
	ErrBadContainer    = errors.New("sale: invalid container")
	ErrLengthMismatch  = errors.New("sale: array length mismatch")
	ErrEmptyBatch      = errors.New("sale: empty batch")
	ErrInvalidAddress  = errors.New("sale: invalid address")
	ErrInvalidBook     = errors.New("sale: invalid book")
	ErrBookExists      = errors.New("sale: book already registered")
	ErrDuplicateBook   = errors.New("sale: duplicate book id")
	ErrAssetNotInVault = errors.New("sale: book asset not held by the sale vault")
)

// Request errors.
var (
	ErrNoActiveRound          = errors.New("sale: no active round")
	ErrZeroQuantity           = errors.New("sale: quantity must be > 0")
	ErrQuantityCap            = errors.New("sale: quantity exceeds per-call cap")
	ErrInsufficientAllowance  = errors.New("sale: insufficient allowance")
	ErrAllowanceBelowMinted   = errors.New("sale: allowance below already minted count")
	ErrInvalidProof           = errors.New("sale: invalid eligibility proof")
	ErrPaymentModeUnavailable = errors.New("sale: payment mode unavailable")
	ErrPriceOverflow          = errors.New("sale: price overflow")
	ErrInsufficientPayment    = errors.New("sale: insufficient payment")
	ErrTransferFailed         = errors.New("sale: transfer failed")
	ErrPoolExhausted          = errors.New("sale: pool exhausted")
	ErrBookAllocated          = errors.New("sale: book already allocated")
	ErrBookQueued             = errors.New("sale: book already queued in another container")
	ErrUnknownBook            = errors.New("sale: unknown book")
	ErrOwnerMismatch          = errors.New("sale: caller does not hold book")
	ErrAlreadyOpened          = errors.New("sale: book already opened")
	ErrReentrant              = errors.New("sale: reentrant call")
)
