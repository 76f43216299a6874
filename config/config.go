package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/capwatch/account"
	"github.com/rustyeddy/capwatch/journal"
	"github.com/rustyeddy/capwatch/risk"
)

// Config represents a complete capwatch run.
type Config struct {
	Account    AccountConfig    `json:"account" yaml:"account"`
	Watchers   WatcherConfig    `json:"watchers" yaml:"watchers"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// AccountConfig contains the capital the engine starts with
type AccountConfig struct {
	Allocation      decimal.Decimal  `json:"allocation" yaml:"allocation"`
	Leverage        int              `json:"leverage,omitempty" yaml:"leverage,omitempty"`
	MaxPositionSize *decimal.Decimal `json:"max_position_size,omitempty" yaml:"max_position_size,omitempty"`
	ExchangeType    string           `json:"exchange_type,omitempty" yaml:"exchange_type,omitempty"` // "CEX" or "DEX"
}

// WatcherConfig contains the risk thresholds. Drawdown and percentage stop
// loss are percentages; the absolute stop loss is in quote currency.
type WatcherConfig struct {
	MaxDrawdown      *decimal.Decimal `json:"max_drawdown,omitempty" yaml:"max_drawdown,omitempty"`
	AbsStopLoss      *decimal.Decimal `json:"abs_stop_loss,omitempty" yaml:"abs_stop_loss,omitempty"`
	PercStopLoss     *decimal.Decimal `json:"perc_stop_loss,omitempty" yaml:"perc_stop_loss,omitempty"`
	ExitPositionMode string           `json:"exit_position_mode,omitempty" yaml:"exit_position_mode,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	FillsFile  string `json:"fills_file,omitempty" yaml:"fills_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	AbortsFile string `json:"aborts_file,omitempty" yaml:"aborts_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// SimulationConfig is a scripted price path used by `capwatch run`
type SimulationConfig struct {
	Steps []PriceStep `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// PriceStep pushes a price and optionally books a fill right after it
type PriceStep struct {
	Price decimal.Decimal `json:"price" yaml:"price"`
	Delay string          `json:"delay,omitempty" yaml:"delay,omitempty"` // e.g., "1s", "250ms"
	Fill  *FillStep       `json:"fill,omitempty" yaml:"fill,omitempty"`
}

// FillStep is a fill booked during a simulation step. A missing price
// means the step price.
type FillStep struct {
	Amount decimal.Decimal  `json:"amount" yaml:"amount"`
	Price  *decimal.Decimal `json:"price,omitempty" yaml:"price,omitempty"`
}

type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

// ParseDuration converts the delay string to time.Duration
func (ps PriceStep) ParseDuration() (time.Duration, error) {
	if ps.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(ps.Delay)
}

// FillPrice resolves the price a step's fill is booked at.
func (ps PriceStep) FillPrice() decimal.Decimal {
	if ps.Fill != nil && ps.Fill.Price != nil {
		return *ps.Fill.Price
	}
	return ps.Price
}

// LoadFromFile loads configuration from a file (YAML or JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML or JSON based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !c.Account.Allocation.IsPositive() {
		return fmt.Errorf("account.allocation must be positive")
	}
	if c.Account.Leverage < 0 {
		return fmt.Errorf("account.leverage must not be negative")
	}
	if c.Account.MaxPositionSize != nil && !c.Account.MaxPositionSize.IsPositive() {
		return fmt.Errorf("account.max_position_size must be positive")
	}
	switch strings.ToUpper(c.Account.ExchangeType) {
	case "", string(account.CEX), string(account.DEX):
	default:
		return fmt.Errorf("account.exchange_type must be 'CEX' or 'DEX'")
	}

	for name, v := range map[string]*decimal.Decimal{
		"watchers.max_drawdown":   c.Watchers.MaxDrawdown,
		"watchers.abs_stop_loss":  c.Watchers.AbsStopLoss,
		"watchers.perc_stop_loss": c.Watchers.PercStopLoss,
	} {
		if v != nil && v.IsNegative() {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if _, err := risk.ParseExitMode(c.Watchers.ExitPositionMode); err != nil {
		return fmt.Errorf("watchers.exit_position_mode: %w", err)
	}

	switch c.Journal.Type {
	case "csv":
		if c.Journal.FillsFile == "" || c.Journal.EquityFile == "" || c.Journal.AbortsFile == "" {
			return fmt.Errorf("journal fills_file, equity_file and aborts_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "", "none":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	for i, st := range c.Simulation.Steps {
		if !st.Price.IsPositive() {
			return fmt.Errorf("simulation.steps[%d].price must be positive", i)
		}
		if _, err := st.ParseDuration(); err != nil {
			return fmt.Errorf("simulation.steps[%d].delay: %w", i, err)
		}
		if st.Fill != nil && st.Fill.Amount.IsZero() {
			return fmt.Errorf("simulation.steps[%d].fill.amount must not be zero", i)
		}
	}

	if c.Log.Level != "" {
		if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	return nil
}

// EngineConfig converts the account section for account.New.
func (c *Config) EngineConfig() account.Config {
	return account.Config{
		Allocation:      c.Account.Allocation,
		Leverage:        c.Account.Leverage,
		MaxPositionSize: c.Account.MaxPositionSize,
		ExchangeType:    account.ExchangeType(strings.ToUpper(c.Account.ExchangeType)),
	}
}

// WatcherOptions converts the watchers section. An invalid exit mode,
// which Validate rejects, falls back to closing at market.
func (c *Config) WatcherOptions() risk.Options {
	mode, err := risk.ParseExitMode(c.Watchers.ExitPositionMode)
	if err != nil {
		mode = risk.ExitCloseAtMarket
	}
	return risk.Options{
		MaxDrawdown:      c.Watchers.MaxDrawdown,
		AbsStopLoss:      c.Watchers.AbsStopLoss,
		PercStopLoss:     c.Watchers.PercStopLoss,
		ExitPositionMode: mode,
	}
}

// OpenJournal builds the journal selected by the journal section.
func (c *Config) OpenJournal() (journal.Journal, error) {
	switch c.Journal.Type {
	case "csv":
		j, err := journal.NewCSV(c.Journal.FillsFile, c.Journal.EquityFile, c.Journal.AbortsFile)
		if err != nil {
			return nil, err
		}
		return j, nil
	case "sqlite":
		j, err := journal.NewSQLite(c.Journal.DBPath)
		if err != nil {
			return nil, err
		}
		return j, nil
	}
	return journal.Nop{}, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	dd := decimal.NewFromInt(10)
	perc := decimal.NewFromInt(5)
	return &Config{
		Account: AccountConfig{
			Allocation:   decimal.NewFromInt(1000),
			Leverage:     1,
			ExchangeType: string(account.CEX),
		},
		Watchers: WatcherConfig{
			MaxDrawdown:      &dd,
			PercStopLoss:     &perc,
			ExitPositionMode: string(risk.ExitCloseAtMarket),
		},
		Journal: JournalConfig{
			Type:       "csv",
			FillsFile:  "./fills.csv",
			EquityFile: "./equity.csv",
			AbortsFile: "./aborts.csv",
		},
		Simulation: SimulationConfig{
			Steps: []PriceStep{
				{Price: decimal.NewFromInt(50), Fill: &FillStep{Amount: decimal.NewFromInt(10)}},
				{Price: decimal.NewFromInt(55), Delay: "1s"},
				{Price: decimal.NewFromInt(45), Delay: "1s"},
			},
		},
		Log: LogConfig{Level: "info"},
	}
}
