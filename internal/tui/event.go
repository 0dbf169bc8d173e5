package tui

import (
	"time"

	"github.com/epalmerini/camelhole/internal/trace"
)

// Event is a parsed exchange event enriched with UI bookkeeping.
type Event struct {
	ID         int
	Historical bool      // replayed from the session store, not live
	ReceivedAt time.Time // arrival in the TUI, not the trace timestamp
	trace.ExchangeEvent
}
