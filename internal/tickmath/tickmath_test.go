package tickmath

import (
	"math/big"
	"testing"
)

func TestAlign(t *testing.T) {
	cases := []struct {
		tick    int32
		spacing int32
		want    int32
	}{
		{100, 60, 60},
		{120, 60, 120},
		{-100, 60, -120},
		{-120, 60, -120},
		{0, 60, 0},
		{59, 60, 0},
		{-1, 60, -60},
		{7, 10, 0},
		{-7, 10, -10},
	}

	for _, tc := range cases {
		if got := Align(tc.tick, tc.spacing); got != tc.want {
			t.Fatalf("Align(%d, %d) = %d, want %d", tc.tick, tc.spacing, got, tc.want)
		}
	}
}

func TestSqrtPriceAtTickZero(t *testing.T) {
	got, err := SqrtPriceAtTick(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(Q96) != 0 {
		t.Fatalf("sqrt price at tick 0 = %s, want %s", got, Q96)
	}
}

func TestSqrtPriceMonotonic(t *testing.T) {
	ticks := []int32{-887272, -100000, -60, -1, 0, 1, 60, 100000, 887272}

	var prev *big.Int
	for _, tick := range ticks {
		got, err := SqrtPriceAtTick(tick)
		if err != nil {
			t.Fatalf("tick %d: unexpected error: %v", tick, err)
		}
		if prev != nil && got.Cmp(prev) <= 0 {
			t.Fatalf("sqrt price not increasing at tick %d: %s <= %s", tick, got, prev)
		}
		prev = got
	}
}

func TestSqrtPriceOutOfRange(t *testing.T) {
	if _, err := SqrtPriceAtTick(MaxTick + 1); err == nil {
		t.Fatalf("expected error above MaxTick")
	}
	if _, err := SqrtPriceAtTick(MinTick - 1); err == nil {
		t.Fatalf("expected error below MinTick")
	}
}

func TestTickAtSqrtPriceRoundTrip(t *testing.T) {
	for _, tick := range []int32{-6000, -60, 0, 60, 6000} {
		sqrt, err := SqrtPriceAtTick(tick)
		if err != nil {
			t.Fatalf("tick %d: unexpected error: %v", tick, err)
		}
		got, err := TickAtSqrtPrice(sqrt)
		if err != nil {
			t.Fatalf("tick %d: unexpected error: %v", tick, err)
		}
		if got != tick {
			t.Fatalf("round trip tick %d -> %d", tick, got)
		}
	}
}

func TestLiquidityAmountsRoundTrip(t *testing.T) {
	sqrtP, err := SqrtPriceAtTick(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sqrtA, err := SqrtPriceAtTick(-600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sqrtB, err := SqrtPriceAtTick(600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amount0 := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	amount1 := new(big.Int).Set(amount0)

	liquidity := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1)
	if liquidity.Sign() <= 0 {
		t.Fatalf("expected positive liquidity, got %s", liquidity)
	}

	got0, got1 := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity)
	if got0.Cmp(amount0) > 0 {
		t.Fatalf("amount0 exceeds funding: %s > %s", got0, amount0)
	}
	if got1.Cmp(amount1) > 0 {
		t.Fatalf("amount1 exceeds funding: %s > %s", got1, amount1)
	}
	if got0.Sign() <= 0 || got1.Sign() <= 0 {
		t.Fatalf("expected both amounts positive in range, got %s / %s", got0, got1)
	}
}

func TestLiquidityOneSided(t *testing.T) {
	sqrtA, err := SqrtPriceAtTick(600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sqrtB, err := SqrtPriceAtTick(1200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sqrtP, err := SqrtPriceAtTick(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amount0 := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// Price below the range: only asset0 funds the position.
	liquidity := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, big.NewInt(0))
	if liquidity.Sign() <= 0 {
		t.Fatalf("expected positive liquidity, got %s", liquidity)
	}

	got0, got1 := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity)
	if got1.Sign() != 0 {
		t.Fatalf("expected zero amount1 below range, got %s", got1)
	}
	if got0.Sign() <= 0 || got0.Cmp(amount0) > 0 {
		t.Fatalf("amount0 out of bounds: %s", got0)
	}
}
