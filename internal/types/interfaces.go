package types

import "time"

// Clock abstracts time for testability. The entitlement resolver's expiry
// comparisons and the session layer both depend on it.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
