// Package lease implements the Lease Clock described in spec.md §4.3: the
// pure timestamp arithmetic that governs how long an assignment's ownership
// is valid and when it must be renewed. It holds no state of its own —
// exactly like the teacher's pkg/health.Config, which is a value threaded
// into a Status rather than a stateful singleton.
package lease

import "time"

// Clock computes lease timestamps for one configured duration/threshold/grace
// triple. A zero Clock is not useful; use New.
type Clock struct {
	duration         time.Duration
	renewalThreshold time.Duration
	grace            time.Duration
}

// New constructs a Clock. duration is the lease length (spec.md default 5m,
// 10m in long-latency environments); renewalThreshold is how long before
// expiry a renewal is due (default 1m); grace bounds tolerated clock skew
// (default 30s, must not exceed the protocol's assumed worst case).
func New(duration, renewalThreshold, grace time.Duration) Clock {
	return Clock{duration: duration, renewalThreshold: renewalThreshold, grace: grace}
}

// NewLease returns the expiry timestamp for a lease starting now.
func (c Clock) NewLease(now time.Time) time.Time {
	return now.Add(c.duration)
}

// IsExpired reports whether lease has expired once grace is accounted for:
// true iff now + grace >= lease, per spec.md §4.3.
func (c Clock) IsExpired(lease, now time.Time) bool {
	return !now.Add(c.grace).Before(lease)
}

// IsOrphan reports whether lease has strictly passed, making the assignment
// eligible for takeover per spec.md §4.4 (no grace applied here — orphan
// detection for claim races is stricter than expiry-with-skew-tolerance).
func (c Clock) IsOrphan(lease, now time.Time) bool {
	return now.After(lease)
}

// SleepUntilRenewal returns how long to wait before renewing lease, clamped
// to zero: lease - renewalThreshold - now, per spec.md §4.3.
func (c Clock) SleepUntilRenewal(lease, now time.Time) time.Duration {
	d := lease.Sub(now) - c.renewalThreshold
	if d < 0 {
		return 0
	}
	return d
}

// Grace returns the configured grace period. The Healer does not use it;
// its staleness check adds only its own HealerGrace to the lease expiry.
func (c Clock) Grace() time.Duration { return c.grace }

// Duration returns the configured lease duration.
func (c Clock) Duration() time.Duration { return c.duration }
