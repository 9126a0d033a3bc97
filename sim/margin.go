package sim

import (
	"time"

	"github.com/rustyeddy/margin/position"
)

// stopOutLocked force-closes the worst open position, one at a time, while
// the margin level is below the configured stop-out level.
func (e *Engine) stopOutLocked(now time.Time) []closedEvent {
	var events []closedEvent
	for {
		used := e.book.MarginUsed()
		if !used.IsPositive() {
			return events
		}
		level := e.acct.MarginLevel(used, e.book.UnrealizedPnL())
		if level.GreaterThanOrEqual(e.cfg.StopOutLevel) {
			return events
		}

		worst, ok := worstPosition(e.book.Snapshot())
		if !ok {
			return events
		}
		closed, err := e.closeLocked(worst.ID, ReasonStopOut, now)
		if err != nil {
			return events
		}
		events = append(events, closedEvent{pos: closed, reason: ReasonStopOut})
	}
}

func worstPosition(open []position.Position) (position.Position, bool) {
	if len(open) == 0 {
		return position.Position{}, false
	}
	worst := open[0]
	for _, p := range open[1:] {
		if p.UnrealizedPnL.LessThan(worst.UnrealizedPnL) {
			worst = p
		}
	}
	return worst, true
}
