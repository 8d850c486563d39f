package config

import "time"

// Config is the main configuration carrier for the risk daemon.
type Config struct {
	App         AppConfig         `toml:"app"`
	Storage     StorageConfig     `toml:"storage"`
	Venue       VenueConfig       `toml:"venue"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Liquidation LiquidationConfig `toml:"liquidation"`
	Notify      NotifyConfig      `toml:"notify"`
	Accounts    []AccountConfig   `toml:"accounts"`
}

type AppConfig struct {
	Env        string `toml:"env"`
	LogLevel   string `toml:"log_level"`
	HTTPAddr   string `toml:"http_addr"`
	LogPath    string `toml:"log_path"`
	LimitsPath string `toml:"risk_limits_path"`
}

type StorageConfig struct {
	Path         string `toml:"path"`
	CycleLogPath string `toml:"cycle_log_path"`
}

type VenueConfig struct {
	StatePath        string `toml:"state_path"` // file-backed gateway document
	RateLimit        int    `toml:"rate_limit"` // calls per window
	RateWindowSecs   int    `toml:"rate_window_seconds"`
	BreakerThreshold int    `toml:"breaker_threshold"` // consecutive failures before opening
	BreakerTimeout   int    `toml:"breaker_timeout_seconds"`
}

func (v VenueConfig) RateWindow() time.Duration {
	return time.Duration(v.RateWindowSecs) * time.Second
}

func (v VenueConfig) BreakerCooloff() time.Duration {
	return time.Duration(v.BreakerTimeout) * time.Second
}

type PipelineConfig struct {
	Interval       string `toml:"interval"`       // e.g. "30s", "1m"
	CycleTimeout   string `toml:"cycle_timeout"`  // deadline per cycle; overruns go STALE
	RunImmediately bool   `toml:"run_immediately"`
}

type LiquidationConfig struct {
	CooldownSeconds   int     `toml:"cooldown_seconds"`
	ReduceFraction    float64 `toml:"reduce_fraction"`     // partial close size in CRITICAL
	MinImprovementPct float64 `toml:"min_improvement_pct"` // usage_pct points required to leave cooldown
	MaxRetries        int     `toml:"max_retries"`
}

func (l LiquidationConfig) Cooldown() time.Duration {
	return time.Duration(l.CooldownSeconds) * time.Second
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// AccountConfig declares one brokerage account the pipeline supervises.
type AccountConfig struct {
	ID           string `toml:"id"`
	DefaultClass string `toml:"default_class"` // instrument class assumed for unattributed venue exposure
}
