package ledger

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidPortion    = errors.New("invalid portion")
	ErrNoPosition        = errors.New("no position")
	ErrInvalidSize       = errors.New("invalid size")
	ErrInvalidLeverage   = errors.New("invalid leverage")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrSideMismatch      = errors.New("position side mismatch")
	ErrOrderNotFound     = errors.New("pending order not found")
	ErrInvalidOrder      = errors.New("invalid pending order")
)
