// Package timepolicy decides when an attempt's time window has elapsed.
//
// Every caller goes through IsExpired with one of the named buffers below so
// the grace periods cannot drift apart between call sites.
package timepolicy

import "time"

const (
	// SubmitBuffer is the grace period applied to the candidate's own submit
	// and autosave requests.
	SubmitBuffer = 10 * time.Second

	// ResumeBuffer is applied when a candidate returns to an attempt and we
	// decide whether to resume it or force-submit it.
	ResumeBuffer = 30 * time.Second

	// SweepBuffer is applied by the background sweep for abandoned attempts.
	SweepBuffer = 60 * time.Second
)

// Deadline is the nominal end of the attempt window, without any buffer.
func Deadline(startedAt time.Time, durationMinutes int) time.Time {
	return startedAt.Add(time.Duration(durationMinutes) * time.Minute)
}

// IsExpired reports whether now is strictly past startedAt + duration + buffer.
func IsExpired(startedAt time.Time, durationMinutes int, buffer time.Duration, now time.Time) bool {
	return now.After(Deadline(startedAt, durationMinutes).Add(buffer))
}

// Remaining returns the time left before the nominal deadline, floored at zero.
func Remaining(startedAt time.Time, durationMinutes int, now time.Time) time.Duration {
	left := Deadline(startedAt, durationMinutes).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
