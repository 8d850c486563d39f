package notifier

import (
	"context"

	"vigil/internal/logger"
	"vigil/internal/types"
)

// Log writes alerts to the process log. Used when no push channel is
// configured, and as the fallback when push delivery fails upstream.
type Log struct{}

func (Log) Emit(_ context.Context, alert types.MarginAlert) error {
	switch alert.Level {
	case types.AlertCritical, types.AlertLiquidation:
		logger.Errorf("alert account=%s level=%s %s", alert.AccountID, alert.Level, alert.Message)
	case types.AlertWarning:
		logger.Warnf("alert account=%s level=%s %s", alert.AccountID, alert.Level, alert.Message)
	default:
		logger.Infof("alert account=%s level=%s %s", alert.AccountID, alert.Level, alert.Message)
	}
	return nil
}
