// Copyright 2025 Veilchain Protocol
//
// Node and wallet configuration: YAML with ${VAR_NAME} environment
// substitution, carried over from pkg/config/anchor_config.go's
// Duration/UnmarshalYAML/substituteEnvVars trio unchanged, retargeted
// from anchor/consensus/monitoring sections to the chain engine,
// wallet store, fees and logging this node actually runs.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a veild node process.
type Config struct {
	Environment string `yaml:"environment"`

	Chain  ChainSettings  `yaml:"chain"`
	Wallet WalletSettings `yaml:"wallet"`
	Fees   FeeSettings    `yaml:"fees"`
	Log    LogSettings    `yaml:"log"`
}

// ChainSettings parameterizes the chain state engine (spec.md §4.D,
// §6 "Genesis").
type ChainSettings struct {
	// StorePath is the path the cometbft-db backed block store opens.
	StorePath string `yaml:"store_path"`
	// GenesisPrevious is a seed string; cmd/veild hashes it under the
	// "veilchain genesis" prefix to get the hash the first block's
	// Previous field must equal.
	GenesisPrevious string `yaml:"genesis_previous"`
	// BondingTime is added to a stake's creation timestamp to compute
	// bonding_until.
	BondingTime Duration `yaml:"bonding_time"`
	// StakeEpochs is added to the current epoch to compute
	// active_until_epoch.
	StakeEpochs uint64 `yaml:"stake_epochs"`
}

// WalletSettings parameterizes the wallet store and its account
// reconciliation loops (spec.md §4.G).
type WalletSettings struct {
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	MaxIdleTime     Duration `yaml:"max_idle_time"`
	MaxLifetime     Duration `yaml:"max_lifetime"`
	PendingUTXOTime Duration `yaml:"pending_utxo_time"`
	ResendInterval  Duration `yaml:"resend_tx_interval"`
}

// FeeSettings are the admission-checklist minimums (spec.md §4.E step 2).
type FeeSettings struct {
	PaymentFee int64 `yaml:"payment_fee"`
	StakeFee   int64 `yaml:"stake_fee"`
}

// LogSettings names a logger format and level; cmd/veild builds its
// cometbft logger without reading them.
type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration wraps time.Duration for YAML unmarshaling, e.g. "5m",
// "720h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Load reads a YAML config file from path, substituting ${VAR_NAME}
// and ${VAR_NAME:-default} references against the process environment
// before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Chain.StakeEpochs == 0 {
		c.Chain.StakeEpochs = 12
	}
	if c.Wallet.MaxOpenConns == 0 {
		c.Wallet.MaxOpenConns = 10
	}
	if c.Wallet.MaxIdleConns == 0 {
		c.Wallet.MaxIdleConns = 2
	}
	if c.Wallet.PendingUTXOTime == 0 {
		c.Wallet.PendingUTXOTime = Duration(10 * time.Minute)
	}
	if c.Wallet.ResendInterval == 0 {
		c.Wallet.ResendInterval = Duration(30 * time.Second)
	}
	if c.Fees.PaymentFee == 0 {
		c.Fees.PaymentFee = 1
	}
	if c.Fees.StakeFee == 0 {
		c.Fees.StakeFee = 1
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
