package engine

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquidityNest/internal/bridge"
	"liquidityNest/internal/ledger"
	"liquidityNest/internal/ledger/memledger"
	"liquidityNest/internal/registry"
)

var (
	fundingAsset = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	asset0       = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	asset1       = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	engineAddr   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	bridgeAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	adminAddr    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	recipient    = common.HexToAddress("0x0000000000000000000000000000000000000011")
)

type harness struct {
	ledger *memledger.Ledger
	engine *Engine
	reg    *registry.Registry

	targetPool ledger.PoolKey
	auxPool0   ledger.PoolKey
	auxPool1   ledger.PoolKey
}

func eth(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return wei.Mul(wei, big.NewInt(n))
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	led := memledger.New(1, nil)

	targetPool := ledger.PoolKey{Asset0: asset0, Asset1: asset1, Fee: 5000, TickSpacing: 60}
	auxPool0 := ledger.PoolKey{Asset0: fundingAsset, Asset1: asset0, Fee: 5000, TickSpacing: 60}
	auxPool1 := ledger.PoolKey{Asset0: fundingAsset, Asset1: asset1, Fee: 5000, TickSpacing: 60}

	startPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	for _, pool := range []ledger.PoolKey{targetPool, auxPool0, auxPool1} {
		if err := led.InitPool(pool, startPrice); err != nil {
			t.Fatalf("init pool: %v", err)
		}
	}

	reg, err := registry.New(registry.Config{
		Admin:  adminAddr,
		Bridge: bridgeAddr,
	}, registry.NewMemoryStore(), nil, nil)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	posBridge, err := bridge.New(bridgeAddr, reg, nil)
	if err != nil {
		t.Fatalf("build bridge: %v", err)
	}
	led.RegisterBridge(targetPool, posBridge)

	eng, err := New(Config{
		Identity:     engineAddr,
		FundingAsset: fundingAsset,
		TargetPool:   targetPool,
		AuxPool0:     auxPool0,
		AuxPool1:     auxPool1,
		RangeWidth:   600,
	}, led, led, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	return &harness{
		ledger:     led,
		engine:     eng,
		reg:        reg,
		targetPool: targetPool,
		auxPool0:   auxPool0,
		auxPool1:   auxPool1,
	}
}

func TestConvertAndMint(t *testing.T) {
	h := newHarness(t)

	funding := eth(100)
	h.ledger.Credit(fundingAsset, engineAddr, funding)

	half := new(big.Int).Div(funding, big.NewInt(2))
	quote0, err := h.engine.Quote(h.auxPool0, true, half)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	min0, err := ApplyMargin(quote0, 300)
	if err != nil {
		t.Fatalf("apply margin: %v", err)
	}
	min1 := new(big.Int).Set(min0)

	result, err := h.engine.Execute(ConvertAndMintRequest{
		Recipient: recipient,
		AmountIn:  funding,
		MinOut0:   min0,
		MinOut1:   min1,
		TickLower: -600,
		TickUpper: 600,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Liquidity.Sign() <= 0 {
		t.Fatalf("liquidity = %s, want > 0", result.Liquidity)
	}

	held, err := h.ledger.PositionLiquidity(engineAddr, h.targetPool, -600, 600, result.PositionID)
	if err != nil {
		t.Fatalf("position liquidity: %v", err)
	}
	if held.Cmp(result.Liquidity) != 0 {
		t.Fatalf("ledger holds %s liquidity, result says %s", held, result.Liquidity)
	}

	// The funding deposit is fully consumed.
	if got := h.ledger.Balance(fundingAsset, engineAddr); got.Sign() != 0 {
		t.Fatalf("engine funding balance = %s, want 0", got)
	}

	// The bridge must have hatched a record for the recipient.
	id, exists, err := h.reg.CurrentID(recipient)
	if err != nil {
		t.Fatalf("current id: %v", err)
	}
	if !exists {
		t.Fatal("no asset record after mint")
	}
	record, err := h.reg.Record(id)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.Health != 100 {
		t.Fatalf("health = %d, want 100", record.Health)
	}
	if record.PositionID != result.PositionID {
		t.Fatalf("record position id = %s, want %s", record.PositionID.Hex(), result.PositionID.Hex())
	}
}

func TestConvertAndMintThresholdAbort(t *testing.T) {
	h := newHarness(t)

	funding := eth(100)
	h.ledger.Credit(fundingAsset, engineAddr, funding)

	// Demanding the full spot quote with zero margin cannot be met
	// once the swap fee applies.
	half := new(big.Int).Div(funding, big.NewInt(2))

	_, err := h.engine.Execute(ConvertAndMintRequest{
		Recipient: recipient,
		AmountIn:  funding,
		MinOut0:   half,
		MinOut1:   half,
		TickLower: -600,
		TickUpper: 600,
	})

	var insufficient *InsufficientOutputError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientOutputError, got %v", err)
	}

	// The abort leaves the funding deposit untouched.
	if got := h.ledger.Balance(fundingAsset, engineAddr); got.Cmp(funding) != 0 {
		t.Fatalf("engine funding balance = %s, want %s", got, funding)
	}
	if _, exists, err := h.reg.CurrentID(recipient); err != nil || exists {
		t.Fatalf("record must not exist after abort (exists=%v err=%v)", exists, err)
	}
}

func TestConvertAndMintAutoRange(t *testing.T) {
	h := newHarness(t)
	h.ledger.Credit(fundingAsset, engineAddr, eth(100))

	result, err := h.engine.Execute(ConvertAndMintRequest{
		Recipient: recipient,
		AmountIn:  eth(100),
		MinOut0:   big.NewInt(0),
		MinOut1:   big.NewInt(0),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// At tick 0 with width 600 and spacing 60 the auto range is
	// [-600, 600], which contains the current tick.
	held, err := h.ledger.PositionLiquidity(engineAddr, h.targetPool, -600, 600, result.PositionID)
	if err != nil {
		t.Fatalf("position liquidity: %v", err)
	}
	if held.Cmp(result.Liquidity) != 0 {
		t.Fatalf("auto range position holds %s, want %s", held, result.Liquidity)
	}
}

func TestConvertAndMintUnderfundedVaultAborts(t *testing.T) {
	h := newHarness(t)

	// Half of the requested amount: swaps and the mint succeed, then
	// settlement comes up short and the whole session must revert,
	// including the registry record hatched by the mint.
	h.ledger.Credit(fundingAsset, engineAddr, eth(50))

	_, err := h.engine.Execute(ConvertAndMintRequest{
		Recipient: recipient,
		AmountIn:  eth(100),
		MinOut0:   big.NewInt(0),
		MinOut1:   big.NewInt(0),
		TickLower: -600,
		TickUpper: 600,
	})
	if !errors.Is(err, memledger.ErrInsufficientVault) {
		t.Fatalf("expected ErrInsufficientVault, got %v", err)
	}

	if got := h.ledger.Balance(fundingAsset, engineAddr); got.Cmp(eth(50)) != 0 {
		t.Fatalf("engine funding balance = %s, want %s", got, eth(50))
	}
	if _, exists, err := h.reg.CurrentID(recipient); err != nil || exists {
		t.Fatalf("record must not survive the aborted session (exists=%v err=%v)", exists, err)
	}
	if total, err := h.reg.TotalHatched(); err != nil || total != 0 {
		t.Fatalf("total hatched = %d (err=%v), want 0", total, err)
	}
}

func TestMintFromBalances(t *testing.T) {
	h := newHarness(t)

	amount0 := eth(40)
	amount1 := eth(50)
	h.ledger.Credit(asset0, engineAddr, amount0)
	h.ledger.Credit(asset1, engineAddr, amount1)

	result, err := h.engine.Execute(MintFromBalancesRequest{
		Recipient: recipient,
		Amount0:   amount0,
		Amount1:   amount1,
		TickLower: -600,
		TickUpper: 600,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Liquidity.Sign() <= 0 {
		t.Fatalf("liquidity = %s, want > 0", result.Liquidity)
	}

	// Everything not locked in the position refunds to the recipient;
	// the engine keeps nothing.
	if got := h.ledger.Balance(asset0, engineAddr); got.Sign() != 0 {
		t.Fatalf("engine asset0 balance = %s, want 0", got)
	}
	if got := h.ledger.Balance(asset1, engineAddr); got.Sign() != 0 {
		t.Fatalf("engine asset1 balance = %s, want 0", got)
	}

	// 40/50 over a symmetric range locks the smaller side fully, so
	// the asset1 surplus lands with the recipient.
	if got := h.ledger.Balance(asset1, recipient); got.Sign() <= 0 {
		t.Fatalf("recipient asset1 refund = %s, want > 0", got)
	}
}

func TestMintFromSingleAsset(t *testing.T) {
	h := newHarness(t)

	amountIn := eth(80)
	h.ledger.Credit(asset0, engineAddr, amountIn)

	half := new(big.Int).Div(amountIn, big.NewInt(2))
	quote, err := h.engine.Quote(h.targetPool, true, half)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	minPaired, err := ApplyMargin(quote, 300)
	if err != nil {
		t.Fatalf("apply margin: %v", err)
	}

	result, err := h.engine.Execute(MintFromSingleAssetRequest{
		Recipient:    recipient,
		AmountIn:     amountIn,
		MinPairedOut: minPaired,
		TickLower:    -600,
		TickUpper:    600,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Liquidity.Sign() <= 0 {
		t.Fatalf("liquidity = %s, want > 0", result.Liquidity)
	}

	held, err := h.ledger.PositionLiquidity(engineAddr, h.targetPool, -600, 600, result.PositionID)
	if err != nil {
		t.Fatalf("position liquidity: %v", err)
	}
	if held.Cmp(result.Liquidity) != 0 {
		t.Fatalf("ledger holds %s liquidity, result says %s", held, result.Liquidity)
	}
	if got := h.ledger.Balance(asset0, engineAddr); got.Sign() != 0 {
		t.Fatalf("engine asset0 balance = %s, want 0", got)
	}
}

func TestBurnAndConvert(t *testing.T) {
	h := newHarness(t)

	amount0 := eth(40)
	amount1 := eth(40)
	h.ledger.Credit(asset0, engineAddr, amount0)
	h.ledger.Credit(asset1, engineAddr, amount1)

	mint, err := h.engine.Execute(MintFromBalancesRequest{
		Recipient: recipient,
		Amount0:   amount0,
		Amount1:   amount1,
		TickLower: -600,
		TickUpper: 600,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	before1 := h.ledger.Balance(asset1, recipient)

	burn, err := h.engine.Execute(BurnAndConvertRequest{
		Recipient: recipient,
		TickLower: -600,
		TickUpper: 600,
		Salt:      mint.PositionID,
		MinOut:    big.NewInt(0),
	})
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if burn.Liquidity.Cmp(mint.Liquidity) != 0 {
		t.Fatalf("burned %s liquidity, minted %s", burn.Liquidity, mint.Liquidity)
	}
	if burn.AmountOut.Sign() <= 0 {
		t.Fatalf("amount out = %s, want > 0", burn.AmountOut)
	}

	// All proceeds arrive as asset1.
	after1 := h.ledger.Balance(asset1, recipient)
	gained := new(big.Int).Sub(after1, before1)
	if gained.Cmp(burn.AmountOut) != 0 {
		t.Fatalf("recipient gained %s asset1, result says %s", gained, burn.AmountOut)
	}

	held, err := h.ledger.PositionLiquidity(engineAddr, h.targetPool, -600, 600, mint.PositionID)
	if err != nil {
		t.Fatalf("position liquidity: %v", err)
	}
	if held.Sign() != 0 {
		t.Fatalf("position liquidity after burn = %s, want 0", held)
	}
}

func TestBurnAndConvertTwiceRejected(t *testing.T) {
	h := newHarness(t)

	h.ledger.Credit(asset0, engineAddr, eth(40))
	h.ledger.Credit(asset1, engineAddr, eth(40))

	mint, err := h.engine.Execute(MintFromBalancesRequest{
		Recipient: recipient,
		Amount0:   eth(40),
		Amount1:   eth(40),
		TickLower: -600,
		TickUpper: 600,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	burnReq := BurnAndConvertRequest{
		Recipient: recipient,
		TickLower: -600,
		TickUpper: 600,
		Salt:      mint.PositionID,
		MinOut:    big.NewInt(0),
	}
	if _, err := h.engine.Execute(burnReq); err != nil {
		t.Fatalf("first burn: %v", err)
	}

	before1 := h.ledger.Balance(asset1, recipient)
	if _, err := h.engine.Execute(burnReq); !errors.Is(err, ErrPositionAlreadyBurned) {
		t.Fatalf("expected ErrPositionAlreadyBurned, got %v", err)
	}
	if got := h.ledger.Balance(asset1, recipient); got.Cmp(before1) != 0 {
		t.Fatalf("second burn moved funds: %s vs %s", got, before1)
	}
}

func TestAutoRange(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		tick  int32
		lower int32
		upper int32
	}{
		{0, -600, 600},
		{30, -600, 600},
		{-30, -660, 540},
		{59, -600, 600},
		{-59, -660, 540},
		{600, 0, 1200},
	}
	for _, tc := range cases {
		lower, upper := h.engine.autoRange(tc.tick)
		if lower != tc.lower || upper != tc.upper {
			t.Fatalf("autoRange(%d) = [%d, %d], want [%d, %d]", tc.tick, lower, upper, tc.lower, tc.upper)
		}
		if lower > tc.tick || tc.tick >= upper {
			t.Fatalf("autoRange(%d) = [%d, %d] does not contain the tick", tc.tick, lower, upper)
		}
	}

	// A width narrower than the spacing degenerates the upper bound,
	// which must widen by one spacing to keep containing the tick.
	narrow, err := New(Config{
		Identity:     engineAddr,
		FundingAsset: fundingAsset,
		TargetPool:   h.targetPool,
		AuxPool0:     h.auxPool0,
		AuxPool1:     h.auxPool1,
		RangeWidth:   10,
	}, h.ledger, h.ledger, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	lower, upper := narrow.autoRange(5)
	if lower != -60 || upper != 60 {
		t.Fatalf("narrow autoRange(5) = [%d, %d], want [-60, 60]", lower, upper)
	}
}

func TestExecuteValidation(t *testing.T) {
	h := newHarness(t)

	if _, err := h.engine.Execute(ConvertAndMintRequest{AmountIn: eth(1)}); !errors.Is(err, ErrUnauthorizedCaller) {
		t.Fatalf("expected ErrUnauthorizedCaller, got %v", err)
	}
	if _, err := h.engine.Execute(ConvertAndMintRequest{Recipient: recipient}); !errors.Is(err, ErrZeroInput) {
		t.Fatalf("expected ErrZeroInput, got %v", err)
	}
	if _, err := h.engine.Execute(ConvertAndMintRequest{Recipient: recipient, AmountIn: big.NewInt(-1)}); !errors.Is(err, ErrZeroInput) {
		t.Fatalf("expected ErrZeroInput for negative amount, got %v", err)
	}
	if _, err := h.engine.Execute(MintFromBalancesRequest{Recipient: recipient}); !errors.Is(err, ErrZeroInput) {
		t.Fatalf("expected ErrZeroInput for empty pair, got %v", err)
	}
	if _, err := h.engine.Execute(MintFromBalancesRequest{
		Recipient: recipient,
		Amount0:   eth(1),
		TickLower: 600,
		TickUpper: -600,
	}); !errors.Is(err, ErrInvalidTickRange) {
		t.Fatalf("expected ErrInvalidTickRange, got %v", err)
	}
}

func TestHandleSessionOutsideExecute(t *testing.T) {
	h := newHarness(t)

	raw, err := EncodeRequest(ConvertAndMintRequest{
		Recipient: recipient,
		AmountIn:  eth(1),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := h.engine.HandleSession(raw); !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("expected ErrSessionNotOpen, got %v", err)
	}
}

func TestApplyMargin(t *testing.T) {
	got, err := ApplyMargin(big.NewInt(10_000), 300)
	if err != nil {
		t.Fatalf("apply margin: %v", err)
	}
	if got.Cmp(big.NewInt(9_700)) != 0 {
		t.Fatalf("ApplyMargin(10000, 300) = %s, want 9700", got)
	}

	got, err = ApplyMargin(big.NewInt(10_000), 0)
	if err != nil {
		t.Fatalf("apply margin: %v", err)
	}
	if got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("ApplyMargin(10000, 0) = %s, want 10000", got)
	}

	if _, err := ApplyMargin(big.NewInt(1), 10_000); err == nil {
		t.Fatal("expected error for margin >= 10000 bps")
	}
	if _, err := ApplyMargin(big.NewInt(-1), 100); err == nil {
		t.Fatal("expected error for negative estimate")
	}
}
