package engine

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"liquidityNest/internal/ledger"
	"liquidityNest/internal/tickmath"
)

// Quote estimates the paired-asset output for amountIn using only the
// pool's current spot rate. No execution price impact is simulated,
// so callers must apply a safety margin before using the estimate as
// a minimum-output threshold.
func (e *Engine) Quote(pool ledger.PoolKey, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrZeroInput
	}

	spot, err := e.ledger.SpotState(pool)
	if err != nil {
		return nil, fmt.Errorf("spot state: %w", err)
	}

	priceN := new(big.Int).Mul(spot.SqrtPriceX96, spot.SqrtPriceX96)
	q192 := new(big.Int).Mul(tickmath.Q96, tickmath.Q96)

	out := new(big.Int)
	if zeroForOne {
		out.Mul(amountIn, priceN)
		out.Div(out, q192)
	} else {
		out.Mul(amountIn, q192)
		out.Div(out, priceN)
	}
	return out, nil
}

// ApplyMargin discounts an estimate by marginBps basis points,
// producing a minimum-output threshold. Typical margins are 200-500
// bps over a spot-rate quote.
func ApplyMargin(estimate *big.Int, marginBps int64) (*big.Int, error) {
	if estimate == nil || estimate.Sign() < 0 {
		return nil, fmt.Errorf("estimate must be non-negative")
	}
	if marginBps < 0 || marginBps >= 10_000 {
		return nil, fmt.Errorf("margin %d bps out of range [0, 10000)", marginBps)
	}

	value := decimal.NewFromBigInt(estimate, 0)
	factor := decimal.New(10_000-marginBps, -4)
	return value.Mul(factor).BigInt(), nil
}
