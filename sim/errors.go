package sim

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/execsim/ledger"
)

// Rejection conditions returned by the simulator. All are local and
// non-retryable; a rejected decision leaves the account unchanged.
var (
	ErrInvalidDecision   = errors.New("invalid decision")
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	ErrInvalidPortion    = ledger.ErrInvalidPortion
	ErrNoPosition        = ledger.ErrNoPosition
)

// IsRejection reports whether err is one of the rejection conditions a
// driver should log and skip rather than abort on.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidPortion) ||
		errors.Is(err, ErrNoPosition)
}

// asRejection reports ledger argument errors raised while applying a decision
// as ErrInvalidDecision, so drivers skip the decision instead of aborting.
func asRejection(err error) error {
	if IsRejection(err) {
		return err
	}
	if errors.Is(err, ledger.ErrInvalidSize) ||
		errors.Is(err, ledger.ErrInvalidPrice) ||
		errors.Is(err, ledger.ErrInvalidLeverage) ||
		errors.Is(err, ledger.ErrInvalidOrder) {
		return fmt.Errorf("%w: %w", ErrInvalidDecision, err)
	}
	return err
}
