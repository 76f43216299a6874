package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/capwatch/account"
	"github.com/rustyeddy/capwatch/journal"
	"github.com/rustyeddy/capwatch/risk"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "1000", cfg.Account.Allocation.String())
	assert.Equal(t, "csv", cfg.Journal.Type)
	assert.Len(t, cfg.Simulation.Steps, 3)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	neg := decimal.NewFromInt(-1)
	zero := decimal.Zero

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"missing allocation", func(c *Config) { c.Account.Allocation = decimal.Zero }, "account.allocation must be positive"},
		{"negative leverage", func(c *Config) { c.Account.Leverage = -2 }, "account.leverage must not be negative"},
		{"zero max position", func(c *Config) { c.Account.MaxPositionSize = &zero }, "account.max_position_size must be positive"},
		{"unknown exchange", func(c *Config) { c.Account.ExchangeType = "OTC" }, "account.exchange_type"},
		{"lowercase exchange", func(c *Config) { c.Account.ExchangeType = "dex" }, ""},
		{"negative drawdown", func(c *Config) { c.Watchers.MaxDrawdown = &neg }, "watchers.max_drawdown must not be negative"},
		{"bad exit mode", func(c *Config) { c.Watchers.ExitPositionMode = "PANIC" }, "watchers.exit_position_mode"},
		{"bad journal type", func(c *Config) { c.Journal.Type = "postgres" }, "journal.type must be"},
		{"csv missing file", func(c *Config) { c.Journal.AbortsFile = "" }, "required for CSV type"},
		{"sqlite missing path", func(c *Config) { c.Journal = JournalConfig{Type: "sqlite"} }, "db_path required"},
		{"no journal", func(c *Config) { c.Journal = JournalConfig{Type: "none"} }, ""},
		{"bad step price", func(c *Config) { c.Simulation.Steps[1].Price = decimal.Zero }, "simulation.steps[1].price"},
		{"bad step delay", func(c *Config) { c.Simulation.Steps[2].Delay = "soon" }, "simulation.steps[2].delay"},
		{"zero fill", func(c *Config) { c.Simulation.Steps[0].Fill.Amount = decimal.Zero }, "simulation.steps[0].fill.amount"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := `
account:
  allocation: 2500.50
  leverage: 3
  max_position_size: 100
  exchange_type: DEX
watchers:
  max_drawdown: 12.5
  abs_stop_loss: 200
  exit_position_mode: LEAVE_OPEN
journal:
  type: none
simulation:
  steps:
    - price: 50
      fill: {amount: -4, price: 49.5}
    - price: 51
      delay: 250ms
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "2500.5", cfg.Account.Allocation.String())
	assert.Equal(t, 3, cfg.Account.Leverage)
	require.NotNil(t, cfg.Account.MaxPositionSize)
	assert.Equal(t, "100", cfg.Account.MaxPositionSize.String())
	assert.Nil(t, cfg.Watchers.PercStopLoss)

	require.Len(t, cfg.Simulation.Steps, 2)
	assert.Equal(t, "-4", cfg.Simulation.Steps[0].Fill.Amount.String())
	assert.Equal(t, "49.5", cfg.Simulation.Steps[0].FillPrice().String())
	assert.Equal(t, "51", cfg.Simulation.Steps[1].FillPrice().String())
	dur, err := cfg.Simulation.Steps[1].ParseDuration()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, dur)

	ec := cfg.EngineConfig()
	assert.Equal(t, account.DEX, ec.ExchangeType)
	assert.Equal(t, 3, ec.Leverage)

	opts := cfg.WatcherOptions()
	assert.Equal(t, risk.ExitLeaveOpen, opts.ExitPositionMode)
	assert.Equal(t, "12.5", opts.MaxDrawdown.String())
	assert.Nil(t, opts.PercStopLoss)
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	data := `{"account": {"allocation": "1000"}, "journal": {"type": "none"}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1000", cfg.Account.Allocation.String())
	assert.Equal(t, risk.ExitCloseAtMarket, cfg.WatcherOptions().ExitPositionMode)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  allocation: 0\n"), 0644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"cfg.yaml", "cfg.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := Default()
			require.NoError(t, cfg.SaveToFile(path))

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.True(t, cfg.Account.Allocation.Equal(loaded.Account.Allocation))
			assert.True(t, cfg.Watchers.MaxDrawdown.Equal(*loaded.Watchers.MaxDrawdown))
			assert.Equal(t, cfg.Journal, loaded.Journal)
			require.Len(t, loaded.Simulation.Steps, len(cfg.Simulation.Steps))
			assert.Equal(t, "1s", loaded.Simulation.Steps[1].Delay)
		})
	}
}

func TestOpenJournal(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.Journal = JournalConfig{Type: "none"}
	j, err := cfg.OpenJournal()
	require.NoError(t, err)
	assert.IsType(t, journal.Nop{}, j)

	cfg.Journal = JournalConfig{
		Type:       "csv",
		FillsFile:  filepath.Join(dir, "fills.csv"),
		EquityFile: filepath.Join(dir, "equity.csv"),
		AbortsFile: filepath.Join(dir, "aborts.csv"),
	}
	j, err = cfg.OpenJournal()
	require.NoError(t, err)
	assert.IsType(t, &journal.CSV{}, j)
	require.NoError(t, j.Close())

	cfg.Journal = JournalConfig{Type: "sqlite", DBPath: filepath.Join(dir, "capwatch.db")}
	j, err = cfg.OpenJournal()
	require.NoError(t, err)
	assert.IsType(t, &journal.SQLite{}, j)
	require.NoError(t, j.Close())
}
