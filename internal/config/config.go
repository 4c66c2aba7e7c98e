package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LocationID  uint64
	PGDSN       string
	EventLog    string
	Fee         uint32
	TickSpacing int32
	RangeWidth  int32
	LogLevel    string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("location-id", uint64(1))
	v.SetDefault("event-log", "./data/registry_events.jsonl")
	v.SetDefault("fee", uint32(5000))
	v.SetDefault("tick-spacing", int32(60))
	v.SetDefault("range-width", int32(600))
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LocationID:  v.GetUint64("location-id"),
		PGDSN:       v.GetString("pg-dsn"),
		EventLog:    v.GetString("event-log"),
		Fee:         v.GetUint32("fee"),
		TickSpacing: v.GetInt32("tick-spacing"),
		RangeWidth:  v.GetInt32("range-width"),
		LogLevel:    v.GetString("log-level"),
	}

	if cfg.TickSpacing <= 0 {
		return Config{}, fmt.Errorf("tick spacing must be positive")
	}
	if cfg.RangeWidth <= 0 {
		return Config{}, fmt.Errorf("range width must be positive")
	}

	return cfg, nil
}
