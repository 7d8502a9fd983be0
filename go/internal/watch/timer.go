// Package watch owns the timers that bound a match session: the creator's
// waiting-room expiry and the teardown that runs when a session abandons its
// match. Every timer and subscription is owned by the session value and torn
// down with it, so no stale callback can fire against an abandoned match.
package watch

import "github.com/jonboulle/clockwork"

// StopAndDrain safely stops a timer and drains its channel to prevent
// goroutine leaks. This follows the pattern recommended in the
// time.Timer.Stop() documentation.
func StopAndDrain(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
