// Package memledger is an in-memory ledger used by tests and the demo
// command. It implements flash accounting: all balance deltas produced
// inside a session must net to exactly zero by session close, or every
// effect of the session is rolled back.
package memledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityNest/internal/ledger"
	"liquidityNest/internal/tickmath"
)

var (
	ErrReentrantSession  = errors.New("session already open")
	ErrNoSession         = errors.New("no open session")
	ErrPoolNotFound      = errors.New("pool not found")
	ErrPoolExists        = errors.New("pool already initialized")
	ErrNonZeroDelta      = errors.New("session closed with non-zero delta")
	ErrInvalidTickRange  = errors.New("invalid tick range")
	ErrInsufficientVault = errors.New("insufficient vault balance")
	ErrPositionBalance   = errors.New("position liquidity insufficient")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

const feeDenominator = 1_000_000

type poolState struct {
	key          ledger.PoolKey
	sqrtPriceX96 *big.Int
	tick         int32
	liquidity    *big.Int
}

// pendingNote is a position-opening notification queued during a
// session and delivered to its bridge only if the session commits.
type pendingNote struct {
	pool   ledger.PoolKey
	bridge ledger.PositionBridge
	meta   ledger.OpeningMeta
}

// Ledger is the in-memory accounting service.
type Ledger struct {
	mu         sync.Mutex
	locationID uint64
	logger     *zap.Logger

	pools     map[common.Hash]*poolState
	positions map[common.Hash]*big.Int
	bridges   map[common.Hash]ledger.PositionBridge
	balances  map[common.Address]map[common.Address]*big.Int

	sessionOpen   bool
	sessionCaller common.Address
	deltas        map[common.Address]*big.Int
	notes         []pendingNote
}

// New builds an empty ledger identified by locationID.
func New(locationID uint64, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		locationID: locationID,
		logger:     logger,
		pools:      make(map[common.Hash]*poolState),
		positions:  make(map[common.Hash]*big.Int),
		bridges:    make(map[common.Hash]ledger.PositionBridge),
		balances:   make(map[common.Address]map[common.Address]*big.Int),
	}
}

// LocationID reports the ledger instance identifier forwarded to
// position bridges.
func (l *Ledger) LocationID() uint64 {
	return l.locationID
}

// InitPool creates a pool at the given starting sqrt price.
func (l *Ledger) InitPool(key ledger.PoolKey, sqrtPriceX96 *big.Int) error {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return fmt.Errorf("init pool: sqrt price must be positive")
	}
	tick, err := tickmath.TickAtSqrtPrice(sqrtPriceX96)
	if err != nil {
		return fmt.Errorf("init pool: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := key.ID()
	if _, ok := l.pools[id]; ok {
		return ErrPoolExists
	}
	l.pools[id] = &poolState{
		key:          key,
		sqrtPriceX96: new(big.Int).Set(sqrtPriceX96),
		tick:         tick,
		liquidity:    big.NewInt(0),
	}
	return nil
}

// RegisterBridge attaches a position bridge to a pool. Opening
// metadata on AdjustLiquidity for that pool is forwarded to it at
// session close.
func (l *Ledger) RegisterBridge(key ledger.PoolKey, bridge ledger.PositionBridge) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bridges[key.ID()] = bridge
}

// Credit funds an account's vault balance directly. Test and demo
// setup helper standing in for an external token transfer.
func (l *Ledger) Credit(asset, owner common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addBalance(asset, owner, amount)
}

// Balance implements ledger.Vault.
func (l *Ledger) Balance(asset, owner common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if byOwner, ok := l.balances[asset]; ok {
		if bal, ok := byOwner[owner]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return big.NewInt(0)
}

// Transfer implements ledger.Vault.
func (l *Ledger) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balanceOf(asset, from).Cmp(amount) < 0 {
		return ErrInsufficientVault
	}
	l.addBalance(asset, from, new(big.Int).Neg(amount))
	l.addBalance(asset, to, amount)
	return nil
}

// OpenSession runs one atomic unit of work. On handler error or a
// non-zero closing delta the entire ledger state is restored.
func (l *Ledger) OpenSession(caller common.Address, handler ledger.SessionHandler, req []byte) ([]byte, error) {
	l.mu.Lock()
	if l.sessionOpen {
		l.mu.Unlock()
		return nil, ErrReentrantSession
	}
	l.sessionOpen = true
	l.sessionCaller = caller
	l.deltas = make(map[common.Address]*big.Int)
	l.notes = nil
	snap := l.snapshot()
	l.mu.Unlock()

	closeSession := func() {
		l.mu.Lock()
		l.sessionOpen = false
		l.sessionCaller = common.Address{}
		l.deltas = nil
		l.notes = nil
		l.mu.Unlock()
	}

	result, err := handler.HandleSession(req)
	if err != nil {
		l.restore(snap)
		closeSession()
		return nil, err
	}

	l.mu.Lock()
	for asset, delta := range l.deltas {
		if delta.Sign() != 0 {
			l.mu.Unlock()
			l.restore(snap)
			closeSession()
			return nil, fmt.Errorf("%w: asset=%s delta=%s", ErrNonZeroDelta, asset.Hex(), delta)
		}
	}
	notes := l.notes
	l.mu.Unlock()

	// Bridge notifications deliver only after the zero-delta check, so
	// an aborted session leaves no trace outside the ledger. A bridge
	// error still fails the whole session.
	for _, note := range notes {
		if note.bridge == nil {
			continue
		}
		if err := note.bridge.PositionOpened(l.locationID, note.pool, note.meta); err != nil {
			l.restore(snap)
			closeSession()
			return nil, fmt.Errorf("position bridge: %w", err)
		}
	}
	closeSession()

	return result, nil
}

// Swap trades amountIn at the pool's spot rate, charging the pool fee.
func (l *Ledger) Swap(pool ledger.PoolKey, zeroForOne bool, amountIn *big.Int) (ledger.BalanceDelta, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return ledger.ZeroDelta(), ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.sessionOpen {
		return ledger.ZeroDelta(), ErrNoSession
	}
	state, ok := l.pools[pool.ID()]
	if !ok {
		return ledger.ZeroDelta(), ErrPoolNotFound
	}

	out := spotOutput(state.sqrtPriceX96, zeroForOne, amountIn, pool.Fee)

	delta := ledger.ZeroDelta()
	if zeroForOne {
		delta.Amount0 = new(big.Int).Neg(amountIn)
		delta.Amount1 = out
	} else {
		delta.Amount0 = out
		delta.Amount1 = new(big.Int).Neg(amountIn)
	}

	l.applyDelta(pool, delta)
	return delta, nil
}

// AdjustLiquidity adds or removes liquidity for the session caller's
// position. Opening metadata queues a bridge notification that is
// delivered when the session commits.
func (l *Ledger) AdjustLiquidity(pool ledger.PoolKey, lower, upper int32, liquidityDelta *big.Int, salt common.Hash, meta *ledger.OpeningMeta) (ledger.BalanceDelta, error) {
	if liquidityDelta == nil || liquidityDelta.Sign() == 0 {
		return ledger.ZeroDelta(), ErrInvalidAmount
	}
	if lower >= upper || lower < tickmath.MinTick || upper > tickmath.MaxTick {
		return ledger.ZeroDelta(), ErrInvalidTickRange
	}

	l.mu.Lock()

	if !l.sessionOpen {
		l.mu.Unlock()
		return ledger.ZeroDelta(), ErrNoSession
	}
	state, ok := l.pools[pool.ID()]
	if !ok {
		l.mu.Unlock()
		return ledger.ZeroDelta(), ErrPoolNotFound
	}

	sqrtA, err := tickmath.SqrtPriceAtTick(lower)
	if err != nil {
		l.mu.Unlock()
		return ledger.ZeroDelta(), err
	}
	sqrtB, err := tickmath.SqrtPriceAtTick(upper)
	if err != nil {
		l.mu.Unlock()
		return ledger.ZeroDelta(), err
	}

	absLiquidity := new(big.Int).Abs(liquidityDelta)
	amount0, amount1 := tickmath.AmountsForLiquidity(state.sqrtPriceX96, sqrtA, sqrtB, absLiquidity)

	posKey := positionKey(l.sessionCaller, pool.ID(), lower, upper, salt)
	held := l.positions[posKey]
	if held == nil {
		held = big.NewInt(0)
	}

	delta := ledger.ZeroDelta()
	if liquidityDelta.Sign() > 0 {
		delta.Amount0 = new(big.Int).Neg(amount0)
		delta.Amount1 = new(big.Int).Neg(amount1)
	} else {
		if held.Cmp(absLiquidity) < 0 {
			l.mu.Unlock()
			return ledger.ZeroDelta(), ErrPositionBalance
		}
		delta.Amount0 = amount0
		delta.Amount1 = amount1
	}

	l.positions[posKey] = new(big.Int).Add(held, liquidityDelta)
	if lower <= state.tick && state.tick < upper {
		state.liquidity = new(big.Int).Add(state.liquidity, liquidityDelta)
	}
	l.applyDelta(pool, delta)

	if meta != nil {
		l.notes = append(l.notes, pendingNote{
			pool:   pool,
			bridge: l.bridges[pool.ID()],
			meta:   *meta,
		})
	}
	l.mu.Unlock()

	return delta, nil
}

// Settle pays amount out of the session caller's vault balance.
func (l *Ledger) Settle(asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.sessionOpen {
		return ErrNoSession
	}
	if l.balanceOf(asset, l.sessionCaller).Cmp(amount) < 0 {
		return ErrInsufficientVault
	}

	l.addBalance(asset, l.sessionCaller, new(big.Int).Neg(amount))
	l.addDelta(asset, amount)
	return nil
}

// Withdraw pays amount of asset to recipient out of a positive delta.
func (l *Ledger) Withdraw(asset common.Address, recipient common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.sessionOpen {
		return ErrNoSession
	}

	l.addBalance(asset, recipient, amount)
	l.addDelta(asset, new(big.Int).Neg(amount))
	return nil
}

// SpotState reports the pool's current sqrt price and tick.
func (l *Ledger) SpotState(pool ledger.PoolKey) (ledger.SpotState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.pools[pool.ID()]
	if !ok {
		return ledger.SpotState{}, ErrPoolNotFound
	}
	return ledger.SpotState{
		SqrtPriceX96: new(big.Int).Set(state.sqrtPriceX96),
		Tick:         state.tick,
	}, nil
}

// PositionLiquidity reports the liquidity held by a position.
func (l *Ledger) PositionLiquidity(owner common.Address, pool ledger.PoolKey, lower, upper int32, salt common.Hash) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pools[pool.ID()]; !ok {
		return nil, ErrPoolNotFound
	}
	held := l.positions[positionKey(owner, pool.ID(), lower, upper, salt)]
	if held == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(held), nil
}

func (l *Ledger) applyDelta(pool ledger.PoolKey, delta ledger.BalanceDelta) {
	l.addDelta(pool.Asset0, delta.Amount0)
	l.addDelta(pool.Asset1, delta.Amount1)
}

func (l *Ledger) addDelta(asset common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	current, ok := l.deltas[asset]
	if !ok {
		current = big.NewInt(0)
	}
	l.deltas[asset] = new(big.Int).Add(current, amount)
}

func (l *Ledger) balanceOf(asset, owner common.Address) *big.Int {
	if byOwner, ok := l.balances[asset]; ok {
		if bal, ok := byOwner[owner]; ok {
			return bal
		}
	}
	return big.NewInt(0)
}

func (l *Ledger) addBalance(asset, owner common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	byOwner, ok := l.balances[asset]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		l.balances[asset] = byOwner
	}
	current, ok := byOwner[owner]
	if !ok {
		current = big.NewInt(0)
	}
	byOwner[owner] = new(big.Int).Add(current, amount)
}

// spotOutput prices amountIn at the current sqrt price with the pool
// fee applied. No execution price impact is simulated.
func spotOutput(sqrtPriceX96 *big.Int, zeroForOne bool, amountIn *big.Int, fee uint32) *big.Int {
	priceN := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	q192 := new(big.Int).Mul(tickmath.Q96, tickmath.Q96)

	out := new(big.Int)
	if zeroForOne {
		out.Mul(amountIn, priceN)
		out.Div(out, q192)
	} else {
		out.Mul(amountIn, q192)
		out.Div(out, priceN)
	}

	out.Mul(out, big.NewInt(feeDenominator-int64(fee)))
	return out.Div(out, big.NewInt(feeDenominator))
}
