package sim

import (
	"time"

	"github.com/rustyeddy/margin/position"
)

// triggersLocked closes any of the touched positions whose stop-loss or
// take-profit the last tick crossed. The positions were just marked, so
// they settle at the tick price. Stop-loss wins when both are crossed.
func (e *Engine) triggersLocked(touched []string, now time.Time) []closedEvent {
	var events []closedEvent
	for _, pid := range touched {
		p, err := e.book.Get(pid)
		if err != nil {
			continue
		}
		reason := triggerReason(p)
		if reason == "" {
			continue
		}
		closed, err := e.closeLocked(pid, reason, now)
		if err != nil {
			continue
		}
		events = append(events, closedEvent{pos: closed, reason: reason})
	}
	return events
}

func triggerReason(p position.Position) string {
	switch {
	case p.HitStopLoss(p.CurrentPrice):
		return ReasonStopLoss
	case p.HitTakeProfit(p.CurrentPrice):
		return ReasonTakeProfit
	}
	return ""
}
