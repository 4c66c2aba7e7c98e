package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquidityNest/internal/bridge"
	"liquidityNest/internal/config"
	"liquidityNest/internal/engine"
	"liquidityNest/internal/ledger"
	"liquidityNest/internal/ledger/memledger"
	"liquidityNest/internal/registry"
	"liquidityNest/internal/storage"
	"liquidityNest/internal/storage/postgres"
)

// Demo account identities.
var (
	fundingAsset = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	asset0       = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	asset1       = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	engineAddr   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	bridgeAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	adminAddr    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	updaterAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	caller       = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func main() {
	root := &cobra.Command{
		Use:          "nest",
		Short:        "Liquidity position engine and asset registry",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a convert-and-mint / burn-and-convert round trip against an in-memory ledger",
		RunE:  runDemo,
	}

	demoCmd.Flags().Uint64("location-id", 1, "ledger location identifier")
	demoCmd.Flags().String("pg-dsn", "", "Postgres DSN for the registry store (empty: in-memory)")
	demoCmd.Flags().String("event-log", "./data/registry_events.jsonl", "registry event journal path")
	demoCmd.Flags().Uint32("fee", 5000, "pool fee in ppm")
	demoCmd.Flags().Int32("tick-spacing", 60, "pool tick spacing")
	demoCmd.Flags().Int32("range-width", 600, "half width of auto-centered ranges, in ticks")
	demoCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(demoCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDemo(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	led := memledger.New(cfg.LocationID, logger)

	targetPool := ledger.PoolKey{Asset0: asset0, Asset1: asset1, Fee: cfg.Fee, TickSpacing: cfg.TickSpacing}
	auxPool0 := ledger.PoolKey{Asset0: fundingAsset, Asset1: asset0, Fee: cfg.Fee, TickSpacing: cfg.TickSpacing}
	auxPool1 := ledger.PoolKey{Asset0: fundingAsset, Asset1: asset1, Fee: cfg.Fee, TickSpacing: cfg.TickSpacing}

	// All pools start at price 1.
	startPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	for _, pool := range []ledger.PoolKey{targetPool, auxPool0, auxPool1} {
		if err := led.InitPool(pool, startPrice); err != nil {
			return fmt.Errorf("init pool: %w", err)
		}
	}

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var sink storage.EventSink
	if cfg.EventLog != "" {
		sink = storage.NewJsonlSink(cfg.EventLog)
	}

	reg, err := registry.New(registry.Config{
		Admin:   adminAddr,
		Bridge:  bridgeAddr,
		Updater: updaterAddr,
	}, store, sink, logger)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	posBridge, err := bridge.New(bridgeAddr, reg, logger)
	if err != nil {
		return fmt.Errorf("build bridge: %w", err)
	}
	led.RegisterBridge(targetPool, posBridge)

	eng, err := engine.New(engine.Config{
		Identity:     engineAddr,
		FundingAsset: fundingAsset,
		TargetPool:   targetPool,
		AuxPool0:     auxPool0,
		AuxPool1:     auxPool1,
		RangeWidth:   cfg.RangeWidth,
	}, led, led, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	// The caller funds the engine's vault balance, standing in for the
	// token transfer that precedes a real invocation.
	funding := new(big.Int).Mul(big.NewInt(100), exp10(18))
	led.Credit(fundingAsset, engineAddr, funding)

	half := new(big.Int).Div(funding, big.NewInt(2))
	quote0, err := eng.Quote(auxPool0, true, half)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}
	quote1, err := eng.Quote(auxPool1, true, half)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}
	min0, err := engine.ApplyMargin(quote0, 300)
	if err != nil {
		return err
	}
	min1, err := engine.ApplyMargin(quote1, 300)
	if err != nil {
		return err
	}

	lower := -cfg.RangeWidth
	upper := cfg.RangeWidth
	mintResult, err := eng.Execute(engine.ConvertAndMintRequest{
		Recipient: caller,
		AmountIn:  funding,
		MinOut0:   min0,
		MinOut1:   min1,
		TickLower: lower,
		TickUpper: upper,
	})
	if err != nil {
		return fmt.Errorf("convert-and-mint: %w", err)
	}

	assetID, _, err := reg.CurrentID(caller)
	if err != nil {
		return fmt.Errorf("current id: %w", err)
	}
	record, err := reg.Record(assetID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}

	logger.Info("position minted",
		zap.String("liquidity", mintResult.Liquidity.String()),
		zap.String("position_id", mintResult.PositionID.Hex()),
		zap.String("asset_id", assetID.Hex()),
		zap.Int("health", record.Health),
	)

	burnResult, err := eng.Execute(engine.BurnAndConvertRequest{
		Recipient: caller,
		TickLower: lower,
		TickUpper: upper,
		Salt:      record.PositionID,
		MinOut:    big.NewInt(0),
	})
	if err != nil {
		return fmt.Errorf("burn-and-convert: %w", err)
	}

	logger.Info("position burned",
		zap.String("liquidity", burnResult.Liquidity.String()),
		zap.String("amount_out", burnResult.AmountOut.String()),
	)

	return nil
}

func buildStore(ctx context.Context, cfg config.Config) (registry.Store, func(), error) {
	if cfg.PGDSN == "" {
		return registry.NewMemoryStore(), func() {}, nil
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
