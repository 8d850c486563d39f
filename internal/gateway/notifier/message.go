package notifier

import (
	"fmt"
	"strings"

	"vigil/internal/types"
)

const maxMessageLen = 3800

func levelIcon(level types.AlertLevel) string {
	switch level {
	case types.AlertInfo:
		return "ℹ️"
	case types.AlertWarning:
		return "⚠️"
	case types.AlertCritical:
		return "🚨"
	case types.AlertLiquidation:
		return "🔴"
	default:
		return "•"
	}
}

// FormatAlert renders one alert as a single push message.
func FormatAlert(alert types.MarginAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] account=%s\n", levelIcon(alert.Level), alert.Level, alert.AccountID)
	b.WriteString(strings.TrimSpace(alert.Message))
	if !alert.CreatedAt.IsZero() {
		b.WriteString("\n" + alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	out := b.String()
	if len(out) > maxMessageLen {
		out = out[:maxMessageLen]
	}
	return out
}
