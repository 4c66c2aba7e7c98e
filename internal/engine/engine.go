// Package engine executes one of four liquidity entry modes per call,
// fully inside one atomic ledger session. All balance deltas produced
// by a mode's sub-operations are reconciled to exactly zero before the
// session closes; any failure aborts with no partial state.
package engine

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"liquidityNest/internal/ledger"
	"liquidityNest/internal/tickmath"
)

// Config is the engine's immutable configuration.
type Config struct {
	// Identity is the engine's account on the ledger. Positions are
	// held and settlements are paid under this identity.
	Identity common.Address

	// FundingAsset is the asset converted by ConvertAndMint.
	FundingAsset common.Address

	// TargetPool is the pool positions are opened against.
	TargetPool ledger.PoolKey

	// AuxPool0 and AuxPool1 pair the funding asset with the target
	// pool's asset0 and asset1 respectively.
	AuxPool0 ledger.PoolKey
	AuxPool1 ledger.PoolKey

	// RangeWidth is the half width, in ticks, of auto-centered ranges.
	RangeWidth int32
}

// Engine orchestrates mode execution against the ledger.
type Engine struct {
	cfg    Config
	ledger ledger.Ledger
	vault  ledger.Vault
	logger *zap.Logger

	// Session guard: executing is set for the duration of Execute,
	// inSession while the ledger is re-entered. Both must hold for
	// HandleSession to run; the ledger serializes sessions so no
	// further locking is needed.
	executing bool
	inSession bool

	// counter disambiguates position ids derived within the same
	// time unit.
	counter uint64
}

// New validates the configuration and builds an engine.
func New(cfg Config, l ledger.Ledger, vault ledger.Vault, logger *zap.Logger) (*Engine, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if vault == nil {
		return nil, fmt.Errorf("vault is required")
	}
	if cfg.Identity == (common.Address{}) {
		return nil, fmt.Errorf("engine identity is required")
	}
	if cfg.TargetPool.TickSpacing <= 0 {
		return nil, fmt.Errorf("target pool tick spacing must be positive")
	}
	if cfg.RangeWidth <= 0 {
		return nil, fmt.Errorf("range width must be positive")
	}
	if !poolHasAsset(cfg.AuxPool0, cfg.FundingAsset) || !poolHasAsset(cfg.AuxPool0, cfg.TargetPool.Asset0) {
		return nil, fmt.Errorf("aux pool 0 must pair funding asset with target asset0")
	}
	if !poolHasAsset(cfg.AuxPool1, cfg.FundingAsset) || !poolHasAsset(cfg.AuxPool1, cfg.TargetPool.Asset1) {
		return nil, fmt.Errorf("aux pool 1 must pair funding asset with target asset1")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, ledger: l, vault: vault, logger: logger}, nil
}

// Execute runs one request as one atomic unit of work. Validation
// that needs no ledger interaction happens before the session opens.
func (e *Engine) Execute(req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	encoded, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	e.logger.Info("session open",
		zap.String("session_id", sessionID),
		zap.Uint8("mode", uint8(req.Mode())),
	)

	e.executing = true
	raw, err := e.ledger.OpenSession(e.cfg.Identity, e, encoded)
	e.executing = false

	if err != nil {
		e.logger.Warn("session aborted",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, err
	}

	result, err := decodeResult(raw)
	if err != nil {
		return nil, err
	}

	e.logger.Info("session closed",
		zap.String("session_id", sessionID),
		zap.String("liquidity", result.Liquidity.String()),
		zap.String("position_id", result.PositionID.Hex()),
	)
	return result, nil
}

// HandleSession implements ledger.SessionHandler. Only the ledger may
// re-enter here, and only while an Execute call holds the session.
func (e *Engine) HandleSession(raw []byte) ([]byte, error) {
	if !e.executing || e.inSession {
		return nil, ErrSessionNotOpen
	}
	e.inSession = true
	defer func() { e.inSession = false }()

	req, err := DecodeRequest(raw)
	if err != nil {
		return nil, err
	}

	s := newSession(e)

	var result *Result
	switch r := req.(type) {
	case ConvertAndMintRequest:
		result, err = e.handleConvertAndMint(s, r)
	case MintFromBalancesRequest:
		result, err = e.handleMintFromBalances(s, r)
	case MintFromSingleAssetRequest:
		result, err = e.handleMintFromSingleAsset(s, r)
	case BurnAndConvertRequest:
		result, err = e.handleBurnAndConvert(s, r)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMode, req)
	}
	if err != nil {
		return nil, err
	}

	return encodeResult(result)
}

func validateRequest(req Request) error {
	switch r := req.(type) {
	case ConvertAndMintRequest:
		if r.Recipient == (common.Address{}) {
			return ErrUnauthorizedCaller
		}
		if r.AmountIn == nil || r.AmountIn.Sign() <= 0 {
			return ErrZeroInput
		}
	case MintFromBalancesRequest:
		if r.Recipient == (common.Address{}) {
			return ErrUnauthorizedCaller
		}
		if amountOrZero(r.Amount0).Sign() <= 0 && amountOrZero(r.Amount1).Sign() <= 0 {
			return ErrZeroInput
		}
	case MintFromSingleAssetRequest:
		if r.Recipient == (common.Address{}) {
			return ErrUnauthorizedCaller
		}
		if r.AmountIn == nil || r.AmountIn.Sign() <= 0 {
			return ErrZeroInput
		}
	case BurnAndConvertRequest:
		if r.Recipient == (common.Address{}) {
			return ErrUnauthorizedCaller
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnknownMode, req)
	}
	return nil
}

// derivePositionID hashes the recipient, range, a time marker and the
// engine's monotonic counter. The counter guarantees distinct ids for
// identical inputs within the same time unit.
func (e *Engine) derivePositionID(recipient common.Address, lower, upper int32) common.Hash {
	e.counter++
	buf := make([]byte, 0, 44)
	buf = append(buf, recipient.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(lower))
	buf = binary.BigEndian.AppendUint32(buf, uint32(upper))
	buf = binary.BigEndian.AppendUint64(buf, uint64(time.Now().Unix()))
	buf = binary.BigEndian.AppendUint64(buf, e.counter)
	return crypto.Keccak256Hash(buf)
}

// alignRange snaps caller-supplied bounds to the pool spacing and
// validates ordering.
func (e *Engine) alignRange(lower, upper int32) (int32, int32, error) {
	spacing := e.cfg.TargetPool.TickSpacing
	lower = tickmath.Align(lower, spacing)
	upper = tickmath.Align(upper, spacing)
	if lower >= upper {
		return 0, 0, ErrInvalidTickRange
	}
	return lower, upper, nil
}

// autoRange centers an aligned range of 2*RangeWidth ticks around the
// current tick, guaranteeing the bounds contain it.
func (e *Engine) autoRange(tick int32) (int32, int32) {
	spacing := e.cfg.TargetPool.TickSpacing
	// Align floors, so lower always lands at or below the tick; only
	// the upper bound can degenerate, when the width is narrower than
	// the spacing.
	lower := tickmath.Align(tick-e.cfg.RangeWidth, spacing)
	upper := tickmath.Align(tick+e.cfg.RangeWidth, spacing)
	if upper <= tick {
		upper += spacing
	}
	if lower < tickmath.MinTick {
		lower = tickmath.Align(tickmath.MinTick+spacing, spacing)
	}
	if upper > tickmath.MaxTick {
		upper = tickmath.Align(tickmath.MaxTick, spacing)
	}
	return lower, upper
}

// directionFor resolves the swap direction that spends assetIn.
func directionFor(pool ledger.PoolKey, assetIn common.Address) (bool, error) {
	switch assetIn {
	case pool.Asset0:
		return true, nil
	case pool.Asset1:
		return false, nil
	default:
		return false, fmt.Errorf("asset %s not in pool", assetIn.Hex())
	}
}

func poolHasAsset(pool ledger.PoolKey, asset common.Address) bool {
	return pool.Asset0 == asset || pool.Asset1 == asset
}

func amountOrZero(value *big.Int) *big.Int {
	if value == nil {
		return big.NewInt(0)
	}
	return value
}
