package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityNest/internal/ledger"
)

// session accumulates the running net delta per asset kind for one
// unit of work. Every primitive's delta is folded in as it happens;
// settleAll drives each net to exactly zero at the end of a handler.
type session struct {
	engine  *Engine
	deltas  map[common.Address]*big.Int
	order   []common.Address
	settled map[common.Address]*big.Int
}

func newSession(e *Engine) *session {
	return &session{
		engine:  e,
		deltas:  make(map[common.Address]*big.Int),
		settled: make(map[common.Address]*big.Int),
	}
}

func (s *session) add(asset common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	current, ok := s.deltas[asset]
	if !ok {
		current = big.NewInt(0)
		s.order = append(s.order, asset)
	}
	s.deltas[asset] = new(big.Int).Add(current, amount)
}

func (s *session) apply(pool ledger.PoolKey, delta ledger.BalanceDelta) {
	s.add(pool.Asset0, delta.Amount0)
	s.add(pool.Asset1, delta.Amount1)
}

func (s *session) net(asset common.Address) *big.Int {
	if current, ok := s.deltas[asset]; ok {
		return new(big.Int).Set(current)
	}
	return big.NewInt(0)
}

// settledAmount reports how much of an asset settleAll paid into the
// ledger, used by handlers to compute vault refunds.
func (s *session) settledAmount(asset common.Address) *big.Int {
	if amount, ok := s.settled[asset]; ok {
		return new(big.Int).Set(amount)
	}
	return big.NewInt(0)
}

// swapExactIn spends amountIn of assetIn against pool and returns the
// output amount. A delta whose sign contradicts the swap direction is
// unrecoverable and aborts the session.
func (s *session) swapExactIn(pool ledger.PoolKey, assetIn common.Address, amountIn *big.Int) (*big.Int, error) {
	zeroForOne, err := directionFor(pool, assetIn)
	if err != nil {
		return nil, err
	}

	delta, err := s.engine.ledger.Swap(pool, zeroForOne, amountIn)
	if err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}

	in, out := delta.Amount0, delta.Amount1
	if !zeroForOne {
		in, out = out, in
	}
	if in.Sign() > 0 || out.Sign() < 0 {
		return nil, fmt.Errorf("%w: swap in=%s out=%s", errDeltaSign, in, out)
	}

	s.apply(pool, delta)
	return new(big.Int).Set(out), nil
}

// mint adds liquidity and returns the per-asset amounts the position
// requires. Both deltas must be non-positive.
func (s *session) mint(pool ledger.PoolKey, lower, upper int32, liquidity *big.Int, salt common.Hash, meta *ledger.OpeningMeta) (*big.Int, *big.Int, error) {
	delta, err := s.engine.ledger.AdjustLiquidity(pool, lower, upper, liquidity, salt, meta)
	if err != nil {
		return nil, nil, fmt.Errorf("adjust liquidity: %w", err)
	}
	if delta.Amount0.Sign() > 0 || delta.Amount1.Sign() > 0 {
		return nil, nil, fmt.Errorf("%w: mint deltas %s / %s", errDeltaSign, delta.Amount0, delta.Amount1)
	}

	s.apply(pool, delta)
	return new(big.Int).Neg(delta.Amount0), new(big.Int).Neg(delta.Amount1), nil
}

// burn removes liquidity and returns the per-asset proceeds. Both
// deltas must be non-negative.
func (s *session) burn(pool ledger.PoolKey, lower, upper int32, liquidity *big.Int, salt common.Hash) (*big.Int, *big.Int, error) {
	delta, err := s.engine.ledger.AdjustLiquidity(pool, lower, upper, new(big.Int).Neg(liquidity), salt, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("adjust liquidity: %w", err)
	}
	if delta.Amount0.Sign() < 0 || delta.Amount1.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: burn deltas %s / %s", errDeltaSign, delta.Amount0, delta.Amount1)
	}

	s.apply(pool, delta)
	return new(big.Int).Set(delta.Amount0), new(big.Int).Set(delta.Amount1), nil
}

// settleAll zeroes every remaining net delta: negative nets are paid
// out of the engine's vault balance, positive nets are withdrawn to
// the recipient. Assets settle in first-touch order so the sequence
// is deterministic.
func (s *session) settleAll(recipient common.Address) error {
	for _, asset := range s.order {
		net := s.net(asset)
		switch {
		case net.Sign() < 0:
			owed := new(big.Int).Neg(net)
			if err := s.engine.ledger.Settle(asset, owed); err != nil {
				return fmt.Errorf("settle %s: %w", asset.Hex(), err)
			}
			s.add(asset, owed)
			s.settled[asset] = new(big.Int).Add(s.settledAmount(asset), owed)
		case net.Sign() > 0:
			if err := s.engine.ledger.Withdraw(asset, recipient, net); err != nil {
				return fmt.Errorf("withdraw %s: %w", asset.Hex(), err)
			}
			s.add(asset, new(big.Int).Neg(net))
		}
	}
	return nil
}

// refundLeftover returns unused vault funds to the recipient: what
// the caller provided minus what settlement actually consumed.
func (s *session) refundLeftover(asset, recipient common.Address, provided *big.Int) error {
	leftover := new(big.Int).Sub(provided, s.settledAmount(asset))
	if leftover.Sign() <= 0 {
		return nil
	}
	if err := s.engine.vault.Transfer(asset, s.engine.cfg.Identity, recipient, leftover); err != nil {
		return fmt.Errorf("refund %s: %w", asset.Hex(), err)
	}
	return nil
}
