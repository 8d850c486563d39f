package config

import (
	"fmt"
	"strings"
	"time"

	"vigil/internal/scheduler"
)

func validate(c *Config) error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("accounts requires at least one entry")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for _, acct := range c.Accounts {
		id := strings.TrimSpace(acct.ID)
		if id == "" {
			return fmt.Errorf("accounts contains entry without id")
		}
		if seen[id] {
			return fmt.Errorf("duplicate account id %q", id)
		}
		seen[id] = true
		switch acct.DefaultClass {
		case "options", "futures", "perpetual":
		default:
			return fmt.Errorf("accounts.%s: unknown default_class %q", id, acct.DefaultClass)
		}
	}
	interval, ok := scheduler.ParseIntervalDuration(c.Pipeline.Interval)
	if !ok {
		return fmt.Errorf("pipeline.interval invalid: %q", c.Pipeline.Interval)
	}
	timeout, ok := scheduler.ParseIntervalDuration(c.Pipeline.CycleTimeout)
	if !ok {
		return fmt.Errorf("pipeline.cycle_timeout invalid: %q", c.Pipeline.CycleTimeout)
	}
	if timeout >= interval {
		return fmt.Errorf("pipeline.cycle_timeout (%s) must be shorter than pipeline.interval (%s)", timeout, interval)
	}
	if c.Notify.Telegram.Enabled {
		if strings.TrimSpace(c.Notify.Telegram.BotToken) == "" || strings.TrimSpace(c.Notify.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram enabled but bot_token/chat_id missing")
		}
	}
	return nil
}

// IntervalDuration returns the parsed pipeline interval. Validation has
// already guaranteed it parses.
func (p PipelineConfig) IntervalDuration() time.Duration {
	d, _ := scheduler.ParseIntervalDuration(p.Interval)
	return d
}

func (p PipelineConfig) CycleTimeoutDuration() time.Duration {
	d, _ := scheduler.ParseIntervalDuration(p.CycleTimeout)
	return d
}
