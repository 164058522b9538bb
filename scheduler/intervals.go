package scheduler

import "time"

// Intervals holds every periodic task's period. Tests override
// individual fields to avoid waiting on real wall-clock tickers.
type Intervals struct {
	Heartbeat       time.Duration
	PresenceRefresh time.Duration
	OfflineDrain    time.Duration
	PendingRetry    time.Duration
	SeenIDGC        time.Duration
}

// OnlineWindow is how recently a friend must have been seen to count as
// online for the purposes of the presence-refresh edge detection.
const OnlineWindow = 5 * time.Minute

// SeenIDMaxAge is how long a seen-id record is kept before GC considers
// it prunable.
const SeenIDMaxAge = 30 * 24 * time.Hour

// GracePeriod bounds how long Stop waits for in-flight tasks before
// returning anyway.
const GracePeriod = 10 * time.Second

// DefaultIntervals returns the production task periods.
func DefaultIntervals() Intervals {
	return Intervals{
		Heartbeat:       60 * time.Second,
		PresenceRefresh: 30 * time.Second,
		OfflineDrain:    60 * time.Second,
		PendingRetry:    60 * time.Second,
		SeenIDGC:        1 * time.Hour,
	}
}
