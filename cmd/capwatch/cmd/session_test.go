package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/capwatch/config"
	"github.com/rustyeddy/capwatch/journal"
	"github.com/rustyeddy/capwatch/risk"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func step(price string, fill string) config.PriceStep {
	st := config.PriceStep{Price: dec(price)}
	if fill != "" {
		st.Fill = &config.FillStep{Amount: dec(fill)}
	}
	return st
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	logger.SetLevel(logrus.PanicLevel)
	dd := dec("10")
	return &config.Config{
		Account:  config.AccountConfig{Allocation: dec("1000")},
		Watchers: config.WatcherConfig{MaxDrawdown: &dd},
		Journal:  config.JournalConfig{Type: "sqlite", DBPath: filepath.Join(t.TempDir(), "run.sqlite")},
	}
}

var start = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestSessionAbortClosesAtMarket(t *testing.T) {
	cfg := testConfig(t)
	s, err := newSession(context.Background(), cfg, "")
	require.NoError(t, err)

	steps := []config.PriceStep{step("100", "10"), step("95", ""), step("88", ""), step("120", "")}
	require.NoError(t, runSteps(s, steps, start, false))

	require.NotNil(t, s.abort)
	assert.Equal(t, risk.ExitCloseAtMarket, s.abort.mode)
	assert.Contains(t, s.abort.message, "Drawdown triggered")

	last, ok := s.feed.Last()
	require.True(t, ok)
	assert.Equal(t, "88", last.Price.String(), "steps after the abort are skipped")

	require.NoError(t, s.finish())
	assert.True(t, s.engine.PositionSize().IsZero())
	assert.Equal(t, "880", s.engine.AvailableFunds().String())

	var out bytes.Buffer
	s.summary(&out)
	assert.Contains(t, out.String(), "Aborted: Drawdown triggered")
	assert.Contains(t, out.String(), "Available Funds: $880.00")

	runID := s.runID
	s.close()

	db, err := journal.NewSQLite(cfg.Journal.DBPath)
	require.NoError(t, err)
	defer db.Close()
	aborts, err := db.ListAborts(runID)
	require.NoError(t, err)
	require.Len(t, aborts, 1)
	assert.Equal(t, "CLOSE_AT_MARKET", aborts[0].ExitMode)

	fills, err := db.ListFills(runID)
	require.NoError(t, err)
	assert.Len(t, fills, 2)
}

func TestSessionLeaveOpen(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watchers.ExitPositionMode = string(risk.ExitLeaveOpen)
	s, err := newSession(context.Background(), cfg, "")
	require.NoError(t, err)
	defer s.close()

	require.NoError(t, runSteps(s, []config.PriceStep{step("100", "10"), step("80", "")}, start, false))
	require.NotNil(t, s.abort)
	require.NoError(t, s.finish())
	assert.Equal(t, "10", s.engine.PositionSize().String())
}

func TestSessionRejectedFillContinues(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal = config.JournalConfig{Type: "none"}
	s, err := newSession(context.Background(), cfg, "")
	require.NoError(t, err)
	defer s.close()

	steps := []config.PriceStep{step("50", "30"), step("50", "10"), step("55", "")}
	require.NoError(t, runSteps(s, steps, start, false))
	assert.Nil(t, s.abort)
	assert.Equal(t, "10", s.engine.PositionSize().String())
	assert.Equal(t, "1050", s.engine.EquityCurve().String())
}

func TestSessionLiquidationAborts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Account.Leverage = 2
	cfg.Watchers = config.WatcherConfig{}
	s, err := newSession(context.Background(), cfg, "")
	require.NoError(t, err)
	defer s.close()

	steps := []config.PriceStep{step("30", ""), {Price: dec("30"), Fill: &config.FillStep{Amount: dec("30"), Price: ptr(dec("50"))}}, step("50", ""), step("60", "")}
	require.NoError(t, runSteps(s, steps, start, false))

	require.NotNil(t, s.abort)
	assert.Equal(t, risk.ExitLiquidation, s.abort.mode)
	assert.True(t, s.engine.Liquidated())
	last, _ := s.feed.Last()
	assert.Equal(t, "50", last.Price.String())
}

func TestSessionLiquidationOverridesLeaveOpen(t *testing.T) {
	cfg := testConfig(t)
	cfg.Account.Leverage = 2
	dd := dec("5")
	cfg.Watchers = config.WatcherConfig{MaxDrawdown: &dd, ExitPositionMode: string(risk.ExitLeaveOpen)}
	s, err := newSession(context.Background(), cfg, "")
	require.NoError(t, err)

	require.NoError(t, runSteps(s, []config.PriceStep{step("50", "30"), step("45", "")}, start, false))

	require.NotNil(t, s.abort)
	assert.Equal(t, risk.ExitLiquidation, s.abort.mode)
	assert.True(t, s.engine.Liquidated())

	require.NoError(t, s.finish())
	assert.True(t, s.engine.PositionSize().IsZero())
	assert.Equal(t, "925", s.engine.AvailableFunds().String())

	runID := s.runID
	s.close()

	db, err := journal.NewSQLite(cfg.Journal.DBPath)
	require.NoError(t, err)
	defer db.Close()
	aborts, err := db.ListAborts(runID)
	require.NoError(t, err)
	require.Len(t, aborts, 2)
	assert.Equal(t, "LEAVE_OPEN", aborts[0].ExitMode)
	assert.Equal(t, "LIQUIDATION", aborts[1].ExitMode)
}

func TestSessionJournalFailureKeepsRunning(t *testing.T) {
	cfg := testConfig(t)
	s, err := newSession(context.Background(), cfg, "")
	require.NoError(t, err)
	defer s.close()

	// every later write fails with "database is closed"
	require.NoError(t, s.journal.Close())

	steps := []config.PriceStep{step("50", "10"), step("55", "-10"), step("60", "")}
	require.NoError(t, runSteps(s, steps, start, false))
	assert.True(t, s.engine.PositionSize().IsZero())
	assert.Equal(t, "1050", s.engine.AvailableFunds().String())
}

func TestSessionCloseReleasesSubscriptions(t *testing.T) {
	cfg := testConfig(t)
	s, err := newSession(context.Background(), cfg, "")
	require.NoError(t, err)
	assert.Equal(t, 2, s.engine.Observers(), "collector and drawdown watcher")

	s.sup.Close()
	assert.Equal(t, 1, s.engine.Observers())
	s.cancelMetrics()
	assert.Equal(t, 0, s.engine.Observers())

	s.close()
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func TestApplyLogLevel(t *testing.T) {
	t.Setenv(logLevelEnv, "")
	logLevelFlag = ""
	require.NoError(t, applyLogLevel("warn"))
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	t.Setenv(logLevelEnv, "debug")
	require.NoError(t, applyLogLevel("warn"))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logLevelFlag = "error"
	defer func() { logLevelFlag = "" }()
	require.NoError(t, applyLogLevel("warn"))
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel())

	logLevelFlag = "shout"
	assert.Error(t, applyLogLevel(""))
}
