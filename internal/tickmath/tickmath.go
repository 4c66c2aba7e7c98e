package tickmath

import (
	"fmt"
	"math/big"
)

// Tick bounds matching the usable sqrt price range.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// Q96 is the fixed point scale for sqrt prices.
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

const floatPrec = 256

// Align snaps a tick down to the nearest multiple of spacing.
func Align(tick, spacing int32) int32 {
	if spacing <= 0 {
		return tick
	}
	q := tick / spacing
	if tick%spacing != 0 && tick < 0 {
		q--
	}
	return q * spacing
}

// SqrtPriceAtTick returns sqrt(1.0001^tick) in Q64.96 format.
func SqrtPriceAtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick %d out of range [%d, %d]", tick, MinTick, MaxTick)
	}

	base, _, err := big.ParseFloat("1.0001", 10, floatPrec, big.ToNearestEven)
	if err != nil {
		return nil, fmt.Errorf("parse base: %w", err)
	}

	abs := tick
	if abs < 0 {
		abs = -abs
	}

	ratio := powFloat(base, uint32(abs))
	if tick < 0 {
		ratio = new(big.Float).SetPrec(floatPrec).Quo(big.NewFloat(1).SetPrec(floatPrec), ratio)
	}

	sqrt := new(big.Float).SetPrec(floatPrec).Sqrt(ratio)
	sqrt.Mul(sqrt, new(big.Float).SetPrec(floatPrec).SetInt(Q96))

	out, _ := sqrt.Int(nil)
	if out.Sign() <= 0 {
		return nil, fmt.Errorf("sqrt price underflow at tick %d", tick)
	}
	return out, nil
}

// TickAtSqrtPrice returns the largest tick whose sqrt price does not
// exceed sqrtPriceX96, found by binary search.
func TickAtSqrtPrice(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0, fmt.Errorf("sqrt price must be positive")
	}

	low, high := MinTick, MaxTick
	for low < high {
		mid := low + (high-low+1)/2
		sqrtMid, err := SqrtPriceAtTick(mid)
		if err != nil {
			return 0, err
		}
		if sqrtMid.Cmp(sqrtPriceX96) <= 0 {
			low = mid
		} else {
			high = mid - 1
		}
	}
	return low, nil
}

func powFloat(base *big.Float, exp uint32) *big.Float {
	result := big.NewFloat(1).SetPrec(floatPrec)
	acc := new(big.Float).SetPrec(floatPrec).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			result.Mul(result, acc)
		}
		acc.Mul(acc, acc)
		exp >>= 1
	}
	return result
}

// LiquidityForAmounts returns the largest liquidity fundable by
// amount0 and amount1 at the current sqrt price for the given range.
func LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return liquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtP.Cmp(sqrtB) < 0:
		l0 := liquidityForAmount0(sqrtP, sqrtB, amount0)
		l1 := liquidityForAmount1(sqrtA, sqrtP, amount1)
		if l0.Cmp(l1) < 0 {
			return l0
		}
		return l1
	default:
		return liquidityForAmount1(sqrtA, sqrtB, amount1)
	}
}

// AmountsForLiquidity returns the asset amounts backing liquidity over
// the given range at the current sqrt price. Both values are floored
// so that they never exceed what LiquidityForAmounts was funded with.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (*big.Int, *big.Int) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return amount0ForLiquidity(sqrtA, sqrtB, liquidity), big.NewInt(0)
	case sqrtP.Cmp(sqrtB) < 0:
		return amount0ForLiquidity(sqrtP, sqrtB, liquidity), amount1ForLiquidity(sqrtA, sqrtP, liquidity)
	default:
		return big.NewInt(0), amount1ForLiquidity(sqrtA, sqrtB, liquidity)
	}
}

// liquidity0 = amount0 * sqrtA * sqrtB / Q96 / (sqrtB - sqrtA)
func liquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) *big.Int {
	span := new(big.Int).Sub(sqrtB, sqrtA)
	if span.Sign() <= 0 || amount0 == nil || amount0.Sign() <= 0 {
		return big.NewInt(0)
	}
	l := new(big.Int).Mul(amount0, sqrtA)
	l.Mul(l, sqrtB)
	l.Div(l, Q96)
	return l.Div(l, span)
}

// liquidity1 = amount1 * Q96 / (sqrtB - sqrtA)
func liquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) *big.Int {
	span := new(big.Int).Sub(sqrtB, sqrtA)
	if span.Sign() <= 0 || amount1 == nil || amount1.Sign() <= 0 {
		return big.NewInt(0)
	}
	l := new(big.Int).Mul(amount1, Q96)
	return l.Div(l, span)
}

// amount0 = liquidity * Q96 * (sqrtB - sqrtA) / (sqrtA * sqrtB)
func amount0ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	span := new(big.Int).Sub(sqrtB, sqrtA)
	if span.Sign() <= 0 || liquidity.Sign() <= 0 {
		return big.NewInt(0)
	}
	n := new(big.Int).Mul(liquidity, Q96)
	n.Mul(n, span)
	d := new(big.Int).Mul(sqrtA, sqrtB)
	return n.Div(n, d)
}

// amount1 = liquidity * (sqrtB - sqrtA) / Q96
func amount1ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	span := new(big.Int).Sub(sqrtB, sqrtA)
	if span.Sign() <= 0 || liquidity.Sign() <= 0 {
		return big.NewInt(0)
	}
	n := new(big.Int).Mul(liquidity, span)
	return n.Div(n, Q96)
}
