package engine

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"liquidityNest/internal/ledger"
	"liquidityNest/internal/tickmath"
)

// handleConvertAndMint splits the funding amount 50/50, swaps both
// halves through the auxiliary pools, opens a position sized by the
// proceeds and forwards any surplus to the recipient.
func (e *Engine) handleConvertAndMint(s *session, r ConvertAndMintRequest) (*Result, error) {
	half0 := new(big.Int).Div(r.AmountIn, big.NewInt(2))
	half1 := new(big.Int).Sub(r.AmountIn, half0)

	out0, err := s.swapExactIn(e.cfg.AuxPool0, e.cfg.FundingAsset, half0)
	if err != nil {
		return nil, err
	}
	if out0.Cmp(amountOrZero(r.MinOut0)) < 0 {
		return nil, &InsufficientOutputError{Expected: r.MinOut0, Actual: out0}
	}

	out1, err := s.swapExactIn(e.cfg.AuxPool1, e.cfg.FundingAsset, half1)
	if err != nil {
		return nil, err
	}
	if out1.Cmp(amountOrZero(r.MinOut1)) < 0 {
		return nil, &InsufficientOutputError{Expected: r.MinOut1, Actual: out1}
	}

	spot, err := e.ledger.SpotState(e.cfg.TargetPool)
	if err != nil {
		return nil, fmt.Errorf("spot state: %w", err)
	}

	var lower, upper int32
	if r.TickLower == 0 && r.TickUpper == 0 {
		lower, upper = e.autoRange(spot.Tick)
	} else {
		lower, upper, err = e.alignRange(r.TickLower, r.TickUpper)
		if err != nil {
			return nil, err
		}
	}

	liquidity, err := e.liquidityFor(spot, lower, upper, out0, out1)
	if err != nil {
		return nil, err
	}

	salt := e.derivePositionID(r.Recipient, lower, upper)
	meta := &ledger.OpeningMeta{Owner: r.Recipient, PositionID: salt}
	if _, _, err := s.mint(e.cfg.TargetPool, lower, upper, liquidity, salt, meta); err != nil {
		return nil, err
	}

	// Funding nets negative and is settled from the caller's deposit;
	// swap proceeds beyond the position's requirement net positive and
	// flow to the recipient.
	if err := s.settleAll(r.Recipient); err != nil {
		return nil, err
	}

	e.logger.Debug("convert-and-mint",
		zap.String("liquidity", liquidity.String()),
		zap.Int32("tick_lower", lower),
		zap.Int32("tick_upper", upper),
	)

	return &Result{Liquidity: liquidity, PositionID: salt, AmountOut: big.NewInt(0)}, nil
}

// handleMintFromBalances opens a position from a pre-funded pair,
// settles exactly what the position requires and refunds the rest.
func (e *Engine) handleMintFromBalances(s *session, r MintFromBalancesRequest) (*Result, error) {
	amount0 := amountOrZero(r.Amount0)
	amount1 := amountOrZero(r.Amount1)

	lower, upper, err := e.alignRange(r.TickLower, r.TickUpper)
	if err != nil {
		return nil, err
	}

	spot, err := e.ledger.SpotState(e.cfg.TargetPool)
	if err != nil {
		return nil, fmt.Errorf("spot state: %w", err)
	}

	liquidity, err := e.liquidityFor(spot, lower, upper, amount0, amount1)
	if err != nil {
		return nil, err
	}

	salt := e.derivePositionID(r.Recipient, lower, upper)
	meta := &ledger.OpeningMeta{
		Owner:            r.Recipient,
		RequestedAssetID: r.RequestedAssetID,
		PositionID:       salt,
	}
	if _, _, err := s.mint(e.cfg.TargetPool, lower, upper, liquidity, salt, meta); err != nil {
		return nil, err
	}

	if err := s.settleAll(r.Recipient); err != nil {
		return nil, err
	}
	if err := s.refundLeftover(e.cfg.TargetPool.Asset0, r.Recipient, amount0); err != nil {
		return nil, err
	}
	if err := s.refundLeftover(e.cfg.TargetPool.Asset1, r.Recipient, amount1); err != nil {
		return nil, err
	}

	return &Result{Liquidity: liquidity, PositionID: salt, AmountOut: big.NewInt(0)}, nil
}

// handleMintFromSingleAsset swaps half the input into the paired
// asset, then mints like MintFromBalances.
func (e *Engine) handleMintFromSingleAsset(s *session, r MintFromSingleAssetRequest) (*Result, error) {
	half := new(big.Int).Div(r.AmountIn, big.NewInt(2))
	remaining := new(big.Int).Sub(r.AmountIn, half)

	paired, err := s.swapExactIn(e.cfg.TargetPool, e.cfg.TargetPool.Asset0, half)
	if err != nil {
		return nil, err
	}
	if paired.Cmp(amountOrZero(r.MinPairedOut)) < 0 {
		return nil, &InsufficientOutputError{Expected: r.MinPairedOut, Actual: paired}
	}

	lower, upper, err := e.alignRange(r.TickLower, r.TickUpper)
	if err != nil {
		return nil, err
	}

	spot, err := e.ledger.SpotState(e.cfg.TargetPool)
	if err != nil {
		return nil, fmt.Errorf("spot state: %w", err)
	}

	liquidity, err := e.liquidityFor(spot, lower, upper, remaining, paired)
	if err != nil {
		return nil, err
	}

	salt := e.derivePositionID(r.Recipient, lower, upper)
	meta := &ledger.OpeningMeta{
		Owner:            r.Recipient,
		RequestedAssetID: r.RequestedAssetID,
		PositionID:       salt,
	}
	if _, _, err := s.mint(e.cfg.TargetPool, lower, upper, liquidity, salt, meta); err != nil {
		return nil, err
	}

	// Surplus of the paired asset nets positive and reaches the
	// recipient through settlement; unspent input refunds from the
	// vault afterwards.
	if err := s.settleAll(r.Recipient); err != nil {
		return nil, err
	}
	if err := s.refundLeftover(e.cfg.TargetPool.Asset0, r.Recipient, r.AmountIn); err != nil {
		return nil, err
	}

	return &Result{Liquidity: liquidity, PositionID: salt, AmountOut: big.NewInt(0)}, nil
}

// handleBurnAndConvert removes the position entirely, converts all
// proceeds into asset1 and forwards the total to the recipient.
func (e *Engine) handleBurnAndConvert(s *session, r BurnAndConvertRequest) (*Result, error) {
	if r.TickLower >= r.TickUpper {
		return nil, ErrInvalidTickRange
	}

	held, err := e.ledger.PositionLiquidity(e.cfg.Identity, e.cfg.TargetPool, r.TickLower, r.TickUpper, r.Salt)
	if err != nil {
		return nil, fmt.Errorf("position liquidity: %w", err)
	}
	if held.Sign() == 0 {
		return nil, ErrPositionAlreadyBurned
	}

	amount0, amount1, err := s.burn(e.cfg.TargetPool, r.TickLower, r.TickUpper, held, r.Salt)
	if err != nil {
		return nil, err
	}

	converted := big.NewInt(0)
	if amount0.Sign() > 0 {
		converted, err = s.swapExactIn(e.cfg.TargetPool, e.cfg.TargetPool.Asset0, amount0)
		if err != nil {
			return nil, err
		}
	}

	total := new(big.Int).Add(amount1, converted)
	if total.Cmp(amountOrZero(r.MinOut)) < 0 {
		return nil, &InsufficientOutputError{Expected: r.MinOut, Actual: total}
	}

	if err := s.settleAll(r.Recipient); err != nil {
		return nil, err
	}

	e.logger.Debug("burn-and-convert",
		zap.String("burned", held.String()),
		zap.String("amount_out", total.String()),
	)

	return &Result{Liquidity: held, PositionID: r.Salt, AmountOut: total}, nil
}

// liquidityFor computes the strictly positive liquidity obtainable
// from the two amounts over the range at the current rate.
func (e *Engine) liquidityFor(spot ledger.SpotState, lower, upper int32, amount0, amount1 *big.Int) (*big.Int, error) {
	sqrtA, err := tickmath.SqrtPriceAtTick(lower)
	if err != nil {
		return nil, err
	}
	sqrtB, err := tickmath.SqrtPriceAtTick(upper)
	if err != nil {
		return nil, err
	}

	liquidity := tickmath.LiquidityForAmounts(spot.SqrtPriceX96, sqrtA, sqrtB, amount0, amount1)
	if liquidity.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	return liquidity, nil
}
