package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLimits(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "risk_limits.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewLimitsProviderEmptyPathUsesDefaults(t *testing.T) {
	p, err := NewLimitsProvider("")
	require.NoError(t, err)

	limits := p.For("any")
	assert.Equal(t, 1e-8, limits.QtyEpsilon)
	assert.Equal(t, 90.0, limits.Zones.LiquidationPct)
}

func TestNewLimitsProviderLoadsDocument(t *testing.T) {
	path := writeLimits(t, `{
	  "defaults": {
	    "qty_epsilon": 1e-6,
	    "price_tolerance_pct": 1.0,
	    "zones": {"warning_pct": 40, "critical_pct": 70, "liquidation_pct": 85},
	    "margin": {"perpetual": {"rate": 0.2, "min_margin": 5}}
	  },
	  "accounts": {
	    "acct-tight": {
	      "zones": {"warning_pct": 30, "critical_pct": 50, "liquidation_pct": 70}
	    }
	  }
	}`)

	p, err := NewLimitsProvider(path)
	require.NoError(t, err)

	base := p.For("acct-other")
	assert.Equal(t, 1e-6, base.QtyEpsilon)
	assert.Equal(t, 70.0, base.Zones.CriticalPct)
	assert.Equal(t, 0.2, base.ParamsFor("perpetual").Rate)

	tight := p.For("acct-tight")
	assert.Equal(t, 50.0, tight.Zones.CriticalPct)
	assert.Equal(t, 1e-6, tight.QtyEpsilon)
}

func TestNewLimitsProviderRejectsSchemaViolation(t *testing.T) {
	// negative epsilon violates exclusiveMinimum
	path := writeLimits(t, `{
	  "defaults": {
	    "qty_epsilon": -1,
	    "zones": {"warning_pct": 40, "critical_pct": 70, "liquidation_pct": 85}
	  }
	}`)

	_, err := NewLimitsProvider(path)
	require.Error(t, err)
}

func TestNewLimitsProviderRejectsUnorderedZones(t *testing.T) {
	path := writeLimits(t, `{
	  "defaults": {
	    "zones": {"warning_pct": 80, "critical_pct": 70, "liquidation_pct": 85}
	  }
	}`)

	_, err := NewLimitsProvider(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly increasing")
}

func TestNewLimitsProviderRejectsMissingDefaults(t *testing.T) {
	path := writeLimits(t, `{"accounts": {}}`)

	_, err := NewLimitsProvider(path)
	require.Error(t, err)
}

func TestNewLimitsProviderRejectsUnknownKeys(t *testing.T) {
	path := writeLimits(t, `{
	  "defaults": {
	    "zones": {"warning_pct": 40, "critical_pct": 70, "liquidation_pct": 85},
	    "qty_epsilom": 1e-8
	  }
	}`)

	_, err := NewLimitsProvider(path)
	require.Error(t, err)
}
