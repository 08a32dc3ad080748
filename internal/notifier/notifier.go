// Package notifier adapts the alert fan-out manager to the core.Notifier
// contract: three fire-and-forget channels, info/error/trade.
package notifier

import (
	"context"
	"fmt"

	"gridbot/internal/alert"
	"gridbot/internal/core"
)

// GridNotifier implements core.Notifier on top of an alert.AlertManager,
// the way the teacher's AlertManager fans a single Alert() call out to
// every registered channel without waiting for delivery.
type GridNotifier struct {
	manager *alert.AlertManager
}

// New builds a GridNotifier over an already-configured alert manager
// (with whichever channels — Slack, Telegram, webhook — were added).
func New(manager *alert.AlertManager) *GridNotifier {
	return &GridNotifier{manager: manager}
}

func toStringFields(fields map[string]interface{}) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// Info sends an informational message to every channel.
func (n *GridNotifier) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	n.manager.Alert(ctx, "grid bot", msg, alert.Info, toStringFields(fields))
}

// Error sends an error message to every channel. Per spec.md §6.2 and
// §7, failures here must never propagate back into the sync loop —
// AlertManager.Alert already swallows per-channel send errors.
func (n *GridNotifier) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	n.manager.Alert(ctx, "grid bot", msg, alert.Error, toStringFields(fields))
}

// Trade sends a trade notification formatted for the given side.
func (n *GridNotifier) Trade(ctx context.Context, side core.Side, msg string, fields map[string]interface{}) {
	title := fmt.Sprintf("%s fill", side)
	n.manager.Alert(ctx, title, msg, alert.Info, toStringFields(fields))
}

var _ core.Notifier = (*GridNotifier)(nil)
