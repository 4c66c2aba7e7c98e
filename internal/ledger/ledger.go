package ledger

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolKey identifies a pool by its ordered asset pair, fee tier and
// tick spacing. The pool id is derived from these fields only.
type PoolKey struct {
	Asset0      common.Address `json:"asset0"`
	Asset1      common.Address `json:"asset1"`
	Fee         uint32         `json:"fee"`
	TickSpacing int32          `json:"tick_spacing"`
}

// ID returns the canonical pool identifier.
func (k PoolKey) ID() common.Hash {
	buf := make([]byte, 0, 48)
	buf = append(buf, k.Asset0.Bytes()...)
	buf = append(buf, k.Asset1.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, k.Fee)
	buf = binary.BigEndian.AppendUint32(buf, uint32(k.TickSpacing))
	return crypto.Keccak256Hash(buf)
}

// BalanceDelta is the signed per-asset amount a session participant is
// owed (positive) or owes (negative) after one ledger operation.
type BalanceDelta struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// ZeroDelta returns an all-zero balance delta.
func ZeroDelta() BalanceDelta {
	return BalanceDelta{Amount0: big.NewInt(0), Amount1: big.NewInt(0)}
}

// SpotState is the current price coordinate of a pool.
type SpotState struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

// OpeningMeta is carried through AdjustLiquidity when a position is
// opened and forwarded to the pool's registered position bridge.
type OpeningMeta struct {
	Owner            common.Address `json:"owner"`
	RequestedAssetID common.Hash    `json:"requested_asset_id"`
	PositionID       common.Hash    `json:"position_id"`
}

// SessionHandler is re-entered by the ledger while a session is open.
type SessionHandler interface {
	HandleSession(req []byte) ([]byte, error)
}

// PositionBridge is notified of position openings recorded by
// AdjustLiquidity. Delivery happens when the session commits, after
// all deltas net to zero; an error fails the whole session.
type PositionBridge interface {
	PositionOpened(locationID uint64, pool PoolKey, meta OpeningMeta) error
}

// Ledger is the external shared accounting service. All mutating
// operations are only valid inside an open session; effects commit
// together when the session closes or not at all.
type Ledger interface {
	// OpenSession runs one atomic unit of work on behalf of caller. The
	// handler is re-entered exactly once with req. Every net per-asset
	// delta accumulated by the handler must be zero by return.
	OpenSession(caller common.Address, handler SessionHandler, req []byte) ([]byte, error)

	// Swap trades amountIn of one pool asset for the other. zeroForOne
	// selects the direction. The returned delta is negative for the
	// input asset and positive for the output asset.
	Swap(pool PoolKey, zeroForOne bool, amountIn *big.Int) (BalanceDelta, error)

	// AdjustLiquidity adds (positive delta) or removes (negative delta)
	// liquidity for the session caller's position identified by the
	// tick range and salt. meta, when non-nil, marks a position opening
	// and is forwarded to the registered bridge for the pool.
	AdjustLiquidity(pool PoolKey, lower, upper int32, liquidityDelta *big.Int, salt common.Hash, meta *OpeningMeta) (BalanceDelta, error)

	// Settle pays amount of asset out of the session caller's vault
	// balance, reducing a negative delta toward zero.
	Settle(asset common.Address, amount *big.Int) error

	// Withdraw pays amount of asset to recipient, reducing a positive
	// delta toward zero.
	Withdraw(asset common.Address, recipient common.Address, amount *big.Int) error

	// SpotState reports the pool's current rate and tick.
	SpotState(pool PoolKey) (SpotState, error)

	// PositionLiquidity reports the liquidity held by the session
	// caller's position. Zero for a position that was never opened or
	// was fully burned.
	PositionLiquidity(owner common.Address, pool PoolKey, lower, upper int32, salt common.Hash) (*big.Int, error)
}

// Vault is the token custody surface next to the ledger: balances held
// outside any session, funded by callers and drawn on by Settle.
type Vault interface {
	Balance(asset, owner common.Address) *big.Int
	Transfer(asset, from, to common.Address, amount *big.Int) error
}
