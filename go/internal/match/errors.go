package match

import "errors"

// ErrNotFound is returned when a match id is unknown. A miss on the waiting
// queue is the expected "nothing available yet" case, not an alarm.
var ErrNotFound = errors.New("match not found")

// ErrMatchUnavailable is returned when a claim loses the race: the match was
// taken, failed, or deleted between discovery and the claim. Callers resume
// searching immediately.
var ErrMatchUnavailable = errors.New("match no longer available")

// ErrInvalidTransition is returned for status updates that would move a match
// backwards along its lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")
