package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Ra1nbowF/dex-onchain-analytics-sub000/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
// Pool declarations come from the config file only; everything else can be
// overridden per run.
type Config struct {
	RPCURL       string
	PGDSN        string
	OutDir       string
	Pools        []model.TrackedPool
	Interval     time.Duration
	WashWindow   time.Duration
	BatchSize    uint64
	Lookback     uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Workers      int
	OracleURL    string
	OracleTTL    time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ANALYTICS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("interval", time.Minute)
	v.SetDefault("wash-window", 24*time.Hour)
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("lookback", uint64(2000))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("oracle-ttl", 30*time.Second)
	v.SetDefault("out", "./data")
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
		RPCURL:       v.GetString("rpc"),
		PGDSN:        v.GetString("pg-dsn"),
		OutDir:       v.GetString("out"),
		Interval:     v.GetDuration("interval"),
		WashWindow:   v.GetDuration("wash-window"),
		BatchSize:    v.GetUint64("batch-size"),
		Lookback:     v.GetUint64("lookback"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Workers:      v.GetInt("workers"),
		OracleURL:    v.GetString("oracle-url"),
		OracleTTL:    v.GetDuration("oracle-ttl"),
		LogLevel:     v.GetString("log-level"),
	}

	if err := v.UnmarshalKey("pools", &cfg.Pools); err != nil {
		return Config{}, fmt.Errorf("decode pools: %w", err)
	}

	return cfg, nil
}

// Validate checks the fields every subcommand needs.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if len(c.Pools) == 0 {
		return fmt.Errorf("at least one pool must be configured")
	}
	seen := make(map[string]struct{}, len(c.Pools))
	for i, pool := range c.Pools {
		if err := validatePool(pool); err != nil {
			return fmt.Errorf("pool %d: %w", i, err)
		}
		// One engine per address; a duplicate declaration would share it
		// across concurrent cycles.
		addr := strings.ToLower(pool.Address)
		if _, ok := seen[addr]; ok {
			return fmt.Errorf("pool %d: address %s declared more than once", i, pool.Address)
		}
		seen[addr] = struct{}{}
	}
	return nil
}

func validatePool(pool model.TrackedPool) error {
	if pool.Address == "" {
		return fmt.Errorf("address is required")
	}
	if pool.Token0 == "" || pool.Token1 == "" {
		return fmt.Errorf("token0 and token1 are required")
	}
	switch pool.Protocol {
	case model.ProtocolV2, model.ProtocolV3:
	default:
		return fmt.Errorf("unknown protocol %q", pool.Protocol)
	}
	if len(pool.Track) == 0 {
		return fmt.Errorf("track list is empty")
	}
	for _, kind := range pool.Track {
		switch kind {
		case model.KindTransfer, model.KindSwap, model.KindV2Liquidity, model.KindV3Liquidity:
		default:
			return fmt.Errorf("unknown event kind %q", kind)
		}
		// V2 pools default to themselves as LP token later in setup.
		if kind == model.KindV2Liquidity && pool.LPToken == "" && pool.Protocol != model.ProtocolV2 {
			return fmt.Errorf("lp_token is required when tracking v2 liquidity")
		}
	}
	return nil
}
