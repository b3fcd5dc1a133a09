package jobs

import "time"

// DefaultTickPeriod is how often the recognition clock refreshes.
const DefaultTickPeriod = 100 * time.Millisecond

// Tracker measures wall time of the recognition stage. It is owned by the
// coordinator loop and is not safe for concurrent use.
type Tracker struct {
	period  time.Duration
	now     func() time.Time
	ticker  *time.Ticker
	started time.Time
	elapsed time.Duration
}

// NewTracker creates a stopped tracker. A nil now uses time.Now.
func NewTracker(period time.Duration, now func() time.Time) *Tracker {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{period: period, now: now}
}

// Start zeroes elapsed time and begins ticking. Restarting a running
// tracker replaces its ticker.
func (t *Tracker) Start() {
	t.halt()
	t.elapsed = 0
	t.started = t.now()
	t.ticker = time.NewTicker(t.period)
}

// Stop cancels ticking and leaves elapsed at the last computed tick.
func (t *Tracker) Stop() time.Duration {
	t.halt()
	return t.elapsed
}

// Reset stops the tracker and zeroes elapsed time.
func (t *Tracker) Reset() {
	t.halt()
	t.elapsed = 0
}

// C returns the tick channel, or nil when stopped so a select never fires.
func (t *Tracker) C() <-chan time.Time {
	if t.ticker == nil {
		return nil
	}
	return t.ticker.C
}

// Tick refreshes elapsed time from the clock. It is a no-op when stopped.
func (t *Tracker) Tick() time.Duration {
	if t.ticker != nil {
		t.elapsed = t.now().Sub(t.started)
	}
	return t.elapsed
}

// Elapsed returns the last computed elapsed time.
func (t *Tracker) Elapsed() time.Duration {
	return t.elapsed
}

// Running reports whether the tracker is ticking.
func (t *Tracker) Running() bool {
	return t.ticker != nil
}

func (t *Tracker) halt() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}
