package testutil

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Epoch is the fixed start time of test clocks.
var Epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// NewClock returns a fake clock set to Epoch.
func NewClock() clockwork.FakeClock {
	return clockwork.NewFakeClockAt(Epoch)
}
