package memledger

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ledgerSnapshot is a deep copy of all mutable ledger state, taken at
// session open and restored when the session fails.
type ledgerSnapshot struct {
	pools     map[common.Hash]*poolState
	positions map[common.Hash]*big.Int
	balances  map[common.Address]map[common.Address]*big.Int
}

func (l *Ledger) snapshot() *ledgerSnapshot {
	snap := &ledgerSnapshot{
		pools:     make(map[common.Hash]*poolState, len(l.pools)),
		positions: make(map[common.Hash]*big.Int, len(l.positions)),
		balances:  make(map[common.Address]map[common.Address]*big.Int, len(l.balances)),
	}
	for id, state := range l.pools {
		snap.pools[id] = &poolState{
			key:          state.key,
			sqrtPriceX96: new(big.Int).Set(state.sqrtPriceX96),
			tick:         state.tick,
			liquidity:    new(big.Int).Set(state.liquidity),
		}
	}
	for key, liquidity := range l.positions {
		snap.positions[key] = new(big.Int).Set(liquidity)
	}
	for asset, byOwner := range l.balances {
		copied := make(map[common.Address]*big.Int, len(byOwner))
		for owner, bal := range byOwner {
			copied[owner] = new(big.Int).Set(bal)
		}
		snap.balances[asset] = copied
	}
	return snap
}

func (l *Ledger) restore(snap *ledgerSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pools = snap.pools
	l.positions = snap.positions
	l.balances = snap.balances
}

// positionKey derives the storage key for a position from its owner,
// pool, tick range and salt.
func positionKey(owner common.Address, poolID common.Hash, lower, upper int32, salt common.Hash) common.Hash {
	buf := make([]byte, 0, 92)
	buf = append(buf, owner.Bytes()...)
	buf = append(buf, poolID.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(lower))
	buf = binary.BigEndian.AppendUint32(buf, uint32(upper))
	buf = append(buf, salt.Bytes()...)
	return crypto.Keccak256Hash(buf)
}
