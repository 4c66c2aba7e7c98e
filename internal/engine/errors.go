package engine

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrZeroInput is returned for zero or missing input amounts.
	ErrZeroInput = errors.New("input amount is zero")

	// ErrUnauthorizedCaller is returned for a missing recipient.
	ErrUnauthorizedCaller = errors.New("recipient missing or invalid")

	// ErrInsufficientLiquidity is returned when the computed liquidity
	// for a mint is not strictly positive.
	ErrInsufficientLiquidity = errors.New("computed liquidity is zero")

	// ErrPositionAlreadyBurned is returned when burning a position
	// that already holds zero liquidity.
	ErrPositionAlreadyBurned = errors.New("position already burned")

	// ErrSessionNotOpen rejects session callbacks that do not
	// originate from an active Execute call.
	ErrSessionNotOpen = errors.New("session callback outside open session")

	// ErrInvalidTickRange is returned for caller-supplied ranges that
	// remain degenerate after alignment.
	ErrInvalidTickRange = errors.New("tick range is invalid")

	// ErrUnknownMode is returned for an unrecognized request tag.
	ErrUnknownMode = errors.New("unknown request mode")

	// errDeltaSign flags a balance delta whose sign contradicts what
	// the handler assumed. Session-aborting, never retried.
	errDeltaSign = errors.New("unexpected balance delta sign")
)

// InsufficientOutputError reports a swap that produced less than the
// caller's minimum-output threshold.
type InsufficientOutputError struct {
	Expected *big.Int
	Actual   *big.Int
}

func (e *InsufficientOutputError) Error() string {
	return fmt.Sprintf("insufficient output: expected %s, got %s", e.Expected, e.Actual)
}
