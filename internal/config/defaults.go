package config

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9982"
	defaultLimitsPath       = "configs/risk_limits.json"
	defaultStoragePath      = "data/vigil.db"
	defaultVenueStatePath   = "data/venue_state.json"
	defaultCycleLogPath     = "data/cycle_log.db"
	defaultRateLimit        = 20
	defaultRateWindowSecs   = 10
	defaultBreakerThreshold = 5
	defaultBreakerTimeout   = 60
	defaultInterval         = "30s"
	defaultCycleTimeout     = "20s"
	defaultCooldownSecs     = 300
	defaultReduceFraction   = 0.5
	defaultMinImprovement   = 5.0
	defaultMaxRetries       = 3
	defaultInstrumentClass  = "perpetual"
)

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.App.LimitsPath == "" {
		c.App.LimitsPath = defaultLimitsPath
	}
	if c.Storage.Path == "" {
		c.Storage.Path = defaultStoragePath
	}
	if c.Storage.CycleLogPath == "" {
		c.Storage.CycleLogPath = defaultCycleLogPath
	}
	if c.Venue.StatePath == "" {
		c.Venue.StatePath = defaultVenueStatePath
	}
	if c.Venue.RateLimit <= 0 {
		c.Venue.RateLimit = defaultRateLimit
	}
	if c.Venue.RateWindowSecs <= 0 {
		c.Venue.RateWindowSecs = defaultRateWindowSecs
	}
	if c.Venue.BreakerThreshold <= 0 {
		c.Venue.BreakerThreshold = defaultBreakerThreshold
	}
	if c.Venue.BreakerTimeout <= 0 {
		c.Venue.BreakerTimeout = defaultBreakerTimeout
	}
	if c.Pipeline.Interval == "" {
		c.Pipeline.Interval = defaultInterval
	}
	if c.Pipeline.CycleTimeout == "" {
		c.Pipeline.CycleTimeout = defaultCycleTimeout
	}
	if c.Liquidation.CooldownSeconds <= 0 {
		c.Liquidation.CooldownSeconds = defaultCooldownSecs
	}
	if c.Liquidation.ReduceFraction <= 0 || c.Liquidation.ReduceFraction > 1 {
		c.Liquidation.ReduceFraction = defaultReduceFraction
	}
	if c.Liquidation.MinImprovementPct <= 0 {
		c.Liquidation.MinImprovementPct = defaultMinImprovement
	}
	if c.Liquidation.MaxRetries <= 0 {
		c.Liquidation.MaxRetries = defaultMaxRetries
	}
	for i := range c.Accounts {
		if c.Accounts[i].DefaultClass == "" {
			c.Accounts[i].DefaultClass = defaultInstrumentClass
		}
	}
}
