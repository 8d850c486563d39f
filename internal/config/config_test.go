package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
accounts:
  - id: "acct-1"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9982", cfg.App.HTTPAddr)
	assert.Equal(t, "data/vigil.db", cfg.Storage.Path)
	assert.Equal(t, 20, cfg.Venue.RateLimit)
	assert.Equal(t, "30s", cfg.Pipeline.Interval)
	assert.Equal(t, 300, cfg.Liquidation.CooldownSeconds)
	assert.Equal(t, 0.5, cfg.Liquidation.ReduceFraction)
	assert.Equal(t, "perpetual", cfg.Accounts[0].DefaultClass)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
app:
  log_level: debug
pipeline:
  interval: "2m"
`)
	main := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
pipeline:
  interval: "1m"
accounts:
  - id: "acct-1"
`)

	cfg, err := Load(main)
	require.NoError(t, err)

	// main file wins over included base
	assert.Equal(t, "1m", cfg.Pipeline.Interval)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoadRejectsMissingAccounts(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
app:
  log_level: info
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accounts")
}

func TestLoadRejectsDuplicateAccounts(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
accounts:
  - id: "acct-1"
  - id: "acct-1"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadRejectsBadInterval(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
pipeline:
  interval: "soon"
accounts:
  - id: "acct-1"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsTimeoutLongerThanInterval(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
pipeline:
  interval: "30s"
  cycle_timeout: "45s"
accounts:
  - id: "acct-1"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsIncompleteTelegram(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
notify:
  telegram:
    enabled: true
accounts:
  - id: "acct-1"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestPipelineDurations(t *testing.T) {
	p := PipelineConfig{Interval: "1m", CycleTimeout: "20s"}
	assert.Equal(t, time.Minute, p.IntervalDuration())
	assert.Equal(t, 20*time.Second, p.CycleTimeoutDuration())
}

func TestLimitsDocumentAccountOverride(t *testing.T) {
	doc := LimitsDocument{
		Defaults: DefaultRiskLimits(),
		Accounts: map[string]RiskLimits{
			"acct-tight": {Zones: ZoneThresholds{WarningPct: 30, CriticalPct: 50, LiquidationPct: 70}},
		},
	}

	base := doc.For("acct-other")
	assert.Equal(t, 75.0, base.Zones.CriticalPct)

	tight := doc.For("acct-tight")
	assert.Equal(t, 50.0, tight.Zones.CriticalPct)
	// untouched fields inherit the defaults
	assert.Equal(t, base.QtyEpsilon, tight.QtyEpsilon)
	assert.Equal(t, base.Margin, tight.Margin)
}

func TestParamsForUnknownClassFallsBack(t *testing.T) {
	limits := RiskLimits{Margin: map[string]MarginParams{"perpetual": {Rate: 0.2}}}
	assert.Equal(t, 0.2, limits.ParamsFor("perpetual").Rate)
	assert.Equal(t, DefaultRiskLimits().Margin["futures"], limits.ParamsFor("futures"))
}
