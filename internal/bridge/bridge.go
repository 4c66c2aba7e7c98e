// Package bridge forwards position-opening metadata from the ledger to
// the identity registry. The ledger invokes it when a session commits,
// so a registry record only ever appears for a session whose ledger
// effects also commit; any error it returns aborts the whole session.
package bridge

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityNest/internal/ledger"
	"liquidityNest/internal/registry"
)

// Bridge carries opening metadata to the registry's hatch entry point.
type Bridge struct {
	identity common.Address
	registry *registry.Registry
	logger   *zap.Logger
}

// New builds a bridge calling the registry under the given identity.
// The identity must match the registry's configured bridge address for
// hatch calls to be accepted.
func New(identity common.Address, reg *registry.Registry, logger *zap.Logger) (*Bridge, error) {
	if identity == (common.Address{}) {
		return nil, fmt.Errorf("bridge identity is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{identity: identity, registry: reg, logger: logger}, nil
}

// PositionOpened implements ledger.PositionBridge.
func (b *Bridge) PositionOpened(locationID uint64, pool ledger.PoolKey, meta ledger.OpeningMeta) error {
	if meta.Owner == (common.Address{}) {
		return registry.ErrZeroOwner
	}
	if meta.PositionID == (common.Hash{}) {
		return registry.ErrZeroPosition
	}

	assetID, outcome, err := b.registry.Hatch(
		b.identity,
		meta.Owner,
		meta.RequestedAssetID,
		locationID,
		pool.ID(),
		meta.PositionID,
	)
	if err != nil {
		return fmt.Errorf("hatch: %w", err)
	}

	b.logger.Debug("position opened",
		zap.String("asset_id", assetID.Hex()),
		zap.String("owner", meta.Owner.Hex()),
		zap.String("position_id", meta.PositionID.Hex()),
		zap.String("outcome", string(outcome)),
	)
	return nil
}
