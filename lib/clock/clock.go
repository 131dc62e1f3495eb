// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock provides the time operations Cloister needs: reading the
// current time and waiting for a deadline.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. Equivalent to time.After. If d <= 0, the
	// channel receives immediately.
	After(d time.Duration) <-chan time.Time
}
