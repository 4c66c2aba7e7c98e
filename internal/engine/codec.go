package engine

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Mode tags the four request shapes on the wire. The ledger's session
// callback is single-entry, so one encoded request must serve all
// four; a one-byte prefix selects the decode path.
type Mode byte

const (
	ModeConvertAndMint      Mode = 0x01
	ModeMintFromBalances    Mode = 0x02
	ModeMintFromSingleAsset Mode = 0x03
	ModeBurnAndConvert      Mode = 0x04
)

// Request is one of the four entry modes.
type Request interface {
	Mode() Mode
}

// ConvertAndMintRequest splits a funding amount, swaps both halves
// into the target pair and opens a position for the recipient.
type ConvertAndMintRequest struct {
	Recipient common.Address
	AmountIn  *big.Int
	MinOut0   *big.Int
	MinOut1   *big.Int
	// TickLower/TickUpper both zero selects an auto-centered range.
	TickLower int32
	TickUpper int32
}

func (ConvertAndMintRequest) Mode() Mode { return ModeConvertAndMint }

// MintFromBalancesRequest opens a position from a pre-funded asset
// pair. RequestedAssetID zero auto-derives the registry id; a
// non-zero id binds the position to an existing or planned record.
type MintFromBalancesRequest struct {
	Recipient        common.Address
	Amount0          *big.Int
	Amount1          *big.Int
	TickLower        int32
	TickUpper        int32
	RequestedAssetID common.Hash
}

func (MintFromBalancesRequest) Mode() Mode { return ModeMintFromBalances }

// MintFromSingleAssetRequest swaps half of a single pre-funded asset
// into its pair, then mints like MintFromBalances.
type MintFromSingleAssetRequest struct {
	Recipient        common.Address
	AmountIn         *big.Int
	MinPairedOut     *big.Int
	TickLower        int32
	TickUpper        int32
	RequestedAssetID common.Hash
}

func (MintFromSingleAssetRequest) Mode() Mode { return ModeMintFromSingleAsset }

// BurnAndConvertRequest removes a position entirely, converts both
// proceeds into asset1 and forwards the total to the recipient.
type BurnAndConvertRequest struct {
	Recipient common.Address
	TickLower int32
	TickUpper int32
	Salt      common.Hash
	MinOut    *big.Int
}

func (BurnAndConvertRequest) Mode() Mode { return ModeBurnAndConvert }

// Result is returned by Execute for every mode.
type Result struct {
	Liquidity  *big.Int
	PositionID common.Hash
	AmountOut  *big.Int
}

// Wire shapes carry amounts as decimal strings.

type convertAndMintWire struct {
	Recipient string `json:"recipient"`
	AmountIn  string `json:"amount_in"`
	MinOut0   string `json:"min_out0"`
	MinOut1   string `json:"min_out1"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
}

type mintFromBalancesWire struct {
	Recipient        string `json:"recipient"`
	Amount0          string `json:"amount0"`
	Amount1          string `json:"amount1"`
	TickLower        int32  `json:"tick_lower"`
	TickUpper        int32  `json:"tick_upper"`
	RequestedAssetID string `json:"requested_asset_id"`
}

type mintFromSingleAssetWire struct {
	Recipient        string `json:"recipient"`
	AmountIn         string `json:"amount_in"`
	MinPairedOut     string `json:"min_paired_out"`
	TickLower        int32  `json:"tick_lower"`
	TickUpper        int32  `json:"tick_upper"`
	RequestedAssetID string `json:"requested_asset_id"`
}

type burnAndConvertWire struct {
	Recipient string `json:"recipient"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Salt      string `json:"salt"`
	MinOut    string `json:"min_out"`
}

type resultWire struct {
	Liquidity  string `json:"liquidity"`
	PositionID string `json:"position_id"`
	AmountOut  string `json:"amount_out"`
}

// EncodeRequest serializes a request with its one-byte mode prefix.
func EncodeRequest(req Request) ([]byte, error) {
	var (
		body interface{}
		err  error
	)

	switch r := req.(type) {
	case ConvertAndMintRequest:
		body = convertAndMintWire{
			Recipient: r.Recipient.Hex(),
			AmountIn:  formatAmount(r.AmountIn),
			MinOut0:   formatAmount(r.MinOut0),
			MinOut1:   formatAmount(r.MinOut1),
			TickLower: r.TickLower,
			TickUpper: r.TickUpper,
		}
	case MintFromBalancesRequest:
		body = mintFromBalancesWire{
			Recipient:        r.Recipient.Hex(),
			Amount0:          formatAmount(r.Amount0),
			Amount1:          formatAmount(r.Amount1),
			TickLower:        r.TickLower,
			TickUpper:        r.TickUpper,
			RequestedAssetID: r.RequestedAssetID.Hex(),
		}
	case MintFromSingleAssetRequest:
		body = mintFromSingleAssetWire{
			Recipient:        r.Recipient.Hex(),
			AmountIn:         formatAmount(r.AmountIn),
			MinPairedOut:     formatAmount(r.MinPairedOut),
			TickLower:        r.TickLower,
			TickUpper:        r.TickUpper,
			RequestedAssetID: r.RequestedAssetID.Hex(),
		}
	case BurnAndConvertRequest:
		body = burnAndConvertWire{
			Recipient: r.Recipient.Hex(),
			TickLower: r.TickLower,
			TickUpper: r.TickUpper,
			Salt:      r.Salt.Hex(),
			MinOut:    formatAmount(r.MinOut),
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMode, req)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return append([]byte{byte(req.Mode())}, encoded...), nil
}

// DecodeRequest reads the mode prefix and decodes the matching shape.
func DecodeRequest(raw []byte) (Request, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("request too short: %d bytes", len(raw))
	}

	mode := Mode(raw[0])
	body := raw[1:]

	switch mode {
	case ModeConvertAndMint:
		var w convertAndMintWire
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("decode convert-and-mint: %w", err)
		}
		amountIn, err := parseAmount(w.AmountIn)
		if err != nil {
			return nil, err
		}
		min0, err := parseAmount(w.MinOut0)
		if err != nil {
			return nil, err
		}
		min1, err := parseAmount(w.MinOut1)
		if err != nil {
			return nil, err
		}
		return ConvertAndMintRequest{
			Recipient: common.HexToAddress(w.Recipient),
			AmountIn:  amountIn,
			MinOut0:   min0,
			MinOut1:   min1,
			TickLower: w.TickLower,
			TickUpper: w.TickUpper,
		}, nil

	case ModeMintFromBalances:
		var w mintFromBalancesWire
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("decode mint-from-balances: %w", err)
		}
		amount0, err := parseAmount(w.Amount0)
		if err != nil {
			return nil, err
		}
		amount1, err := parseAmount(w.Amount1)
		if err != nil {
			return nil, err
		}
		return MintFromBalancesRequest{
			Recipient:        common.HexToAddress(w.Recipient),
			Amount0:          amount0,
			Amount1:          amount1,
			TickLower:        w.TickLower,
			TickUpper:        w.TickUpper,
			RequestedAssetID: common.HexToHash(w.RequestedAssetID),
		}, nil

	case ModeMintFromSingleAsset:
		var w mintFromSingleAssetWire
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("decode mint-from-single-asset: %w", err)
		}
		amountIn, err := parseAmount(w.AmountIn)
		if err != nil {
			return nil, err
		}
		minPaired, err := parseAmount(w.MinPairedOut)
		if err != nil {
			return nil, err
		}
		return MintFromSingleAssetRequest{
			Recipient:        common.HexToAddress(w.Recipient),
			AmountIn:         amountIn,
			MinPairedOut:     minPaired,
			TickLower:        w.TickLower,
			TickUpper:        w.TickUpper,
			RequestedAssetID: common.HexToHash(w.RequestedAssetID),
		}, nil

	case ModeBurnAndConvert:
		var w burnAndConvertWire
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("decode burn-and-convert: %w", err)
		}
		minOut, err := parseAmount(w.MinOut)
		if err != nil {
			return nil, err
		}
		return BurnAndConvertRequest{
			Recipient: common.HexToAddress(w.Recipient),
			TickLower: w.TickLower,
			TickUpper: w.TickUpper,
			Salt:      common.HexToHash(w.Salt),
			MinOut:    minOut,
		}, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMode, byte(mode))
	}
}

func encodeResult(res *Result) ([]byte, error) {
	encoded, err := json.Marshal(resultWire{
		Liquidity:  formatAmount(res.Liquidity),
		PositionID: res.PositionID.Hex(),
		AmountOut:  formatAmount(res.AmountOut),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return encoded, nil
}

func decodeResult(raw []byte) (*Result, error) {
	var w resultWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	liquidity, err := parseAmount(w.Liquidity)
	if err != nil {
		return nil, err
	}
	amountOut, err := parseAmount(w.AmountOut)
	if err != nil {
		return nil, err
	}
	return &Result{
		Liquidity:  liquidity,
		PositionID: common.HexToHash(w.PositionID),
		AmountOut:  amountOut,
	}, nil
}

func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}

func formatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
