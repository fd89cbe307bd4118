package utils

import (
	"time"
)

// Webhook retry intervals, indexed by the number of attempts already made.
// After the first failed attempt the next delivery waits 60s, then 5m, and
// so on until the attempt budget is spent.
var (
	webhookRetryIntervals     = []time.Duration{0, 60 * time.Second, 300 * time.Second, 1800 * time.Second, 7200 * time.Second}
	webhookRetryIntervalsTest = []time.Duration{0, 5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second}
)

// RetryIntervals returns the webhook backoff table. The accelerated table is
// used when testMode is set so retry behavior can be observed in seconds
// rather than hours.
func RetryIntervals(testMode bool) []time.Duration {
	if testMode {
		return webhookRetryIntervalsTest
	}
	return webhookRetryIntervals
}

// NextRetryAt computes the wall-clock time of the next delivery attempt
// given how many attempts have been made, or nil when the attempt budget is
// spent.
func NextRetryAt(now time.Time, attempts int, testMode bool) *time.Time {
	intervals := RetryIntervals(testMode)
	if attempts < 0 || attempts >= len(intervals) {
		return nil
	}
	t := now.Add(intervals[attempts])
	return &t
}
