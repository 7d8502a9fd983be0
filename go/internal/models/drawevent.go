package models

import "time"

// PathPoint is a single pointer coordinate within a stroke.
type PathPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DrawEvent is a transient batch of path points relayed from the guesser to
// the creator. It is consumed immediately by the peer's rendering surface and
// discarded; no replay log is kept.
type DrawEvent struct {
	Seq       int64       `json:"seq"`
	Points    []PathPoint `json:"points"`
	EndStroke bool        `json:"end_stroke,omitempty"`
	SentAt    time.Time   `json:"sent_at"`
}
