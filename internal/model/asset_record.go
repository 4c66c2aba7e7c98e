package model

import "github.com/ethereum/go-ethereum/common"

// AssetRecord is the registry's per-owner mutable record. Exactly one
// record exists per owner identity on a given ledger instance.
type AssetRecord struct {
	ID         common.Hash    `json:"id"`
	Owner      common.Address `json:"owner"`
	Health     int            `json:"health"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
	LocationID uint64         `json:"location_id"`
	PoolID     common.Hash    `json:"pool_id"`
	PositionID common.Hash    `json:"position_id"`
}
