// Package loader owns the hot-reloadable risk-limits document. Matching
// epsilons, zone thresholds and margin rates are tuned empirically per
// instrument class, so they live in an external file that is schema-validated
// on every load and watched for changes.
package loader

import (
	"fmt"
	"strings"
	"sync"

	"vigil/internal/config"
	"vigil/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
)

const limitsSchema = `{
  "type": "object",
  "properties": {
    "defaults": {"$ref": "#/$defs/limits"},
    "accounts": {
      "type": "object",
      "additionalProperties": {"$ref": "#/$defs/limits"}
    }
  },
  "required": ["defaults"],
  "$defs": {
    "limits": {
      "type": "object",
      "properties": {
        "qty_epsilon": {"type": "number", "exclusiveMinimum": 0},
        "price_tolerance_pct": {"type": "number", "exclusiveMinimum": 0},
        "zones": {
          "type": "object",
          "properties": {
            "warning_pct": {"type": "number", "minimum": 0, "maximum": 100},
            "critical_pct": {"type": "number", "minimum": 0, "maximum": 100},
            "liquidation_pct": {"type": "number", "minimum": 0, "maximum": 100}
          },
          "required": ["warning_pct", "critical_pct", "liquidation_pct"]
        },
        "margin": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "properties": {
              "rate": {"type": "number", "exclusiveMinimum": 0},
              "min_margin": {"type": "number", "minimum": 0}
            },
            "required": ["rate"]
          }
        }
      },
      "additionalProperties": false
    }
  }
}`

// LimitsProvider serves the current risk limits per account and reloads the
// backing file on change. An invalid update keeps the previous document.
type LimitsProvider struct {
	mu   sync.RWMutex
	doc  config.LimitsDocument
	path string
}

// NewLimitsProvider loads and validates the document at path, then watches it.
// An empty path yields a provider pinned to the compiled-in defaults.
func NewLimitsProvider(path string) (*LimitsProvider, error) {
	p := &LimitsProvider{path: strings.TrimSpace(path)}
	if p.path == "" {
		p.doc = config.LimitsDocument{Defaults: config.DefaultRiskLimits()}
		return p, nil
	}
	v := viper.New()
	v.SetConfigFile(p.path)
	if err := p.reload(v); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := p.reload(v); err != nil {
			logger.Errorf("risk limits reload failed (%s): %v", evt.Name, err)
			return
		}
		logger.Infof("risk limits reloaded from %s", p.path)
	})
	v.WatchConfig()
	return p, nil
}

func (p *LimitsProvider) reload(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read risk limits failed: %w", err)
	}
	settings := v.AllSettings()
	if err := validateAgainstSchema(settings); err != nil {
		return err
	}
	var doc config.LimitsDocument
	if err := decodeLimits(settings, &doc); err != nil {
		return fmt.Errorf("parse risk limits failed: %w", err)
	}
	if err := checkZoneOrder(doc); err != nil {
		return err
	}
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	return nil
}

// For resolves the effective limits for one account.
func (p *LimitsProvider) For(accountID string) config.RiskLimits {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc.For(accountID)
}

func validateAgainstSchema(settings map[string]any) error {
	schema, err := jsonschema.CompileString("risk_limits.schema.json", limitsSchema)
	if err != nil {
		return fmt.Errorf("compile risk limits schema failed: %w", err)
	}
	if err := schema.Validate(normalizeForSchema(settings)); err != nil {
		return fmt.Errorf("risk limits document invalid: %w", err)
	}
	return nil
}

// decodeLimits maps the viper settings tree onto the typed document using the
// json tag names.
func decodeLimits(settings map[string]any, out *config.LimitsDocument) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(settings)
}

func checkZoneOrder(doc config.LimitsDocument) error {
	check := func(scope string, z config.ZoneThresholds) error {
		if z == (config.ZoneThresholds{}) {
			return nil
		}
		if !(z.WarningPct < z.CriticalPct && z.CriticalPct < z.LiquidationPct) {
			return fmt.Errorf("risk limits %s: zone thresholds must be strictly increasing (%.1f/%.1f/%.1f)",
				scope, z.WarningPct, z.CriticalPct, z.LiquidationPct)
		}
		return nil
	}
	if err := check("defaults", doc.Defaults.Zones); err != nil {
		return err
	}
	for id, l := range doc.Accounts {
		if err := check("accounts."+id, l.Zones); err != nil {
			return err
		}
	}
	return nil
}

// normalizeForSchema converts viper's map[string]any tree (which may contain
// ints where the schema expects numbers) into plain JSON-compatible values.
func normalizeForSchema(node any) any {
	switch val := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeForSchema(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeForSchema(v)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}
