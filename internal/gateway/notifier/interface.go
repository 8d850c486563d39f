package notifier

import (
	"context"

	"vigil/internal/types"
)

// Notifier delivers margin alerts. Implementations must be safe for
// concurrent use; delivery failures are logged, never propagated into the
// risk pipeline.
type Notifier interface {
	Emit(ctx context.Context, alert types.MarginAlert) error
}

// TextNotifier is the minimal transport under the alert formatter, so the
// formatter does not depend on a concrete channel.
type TextNotifier interface {
	SendText(text string) error
}
