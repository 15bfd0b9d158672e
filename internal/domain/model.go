// Package domain defines the entities produced by the trajectory pipeline and
// the contracts its storage backends implement.
package domain

import "time"

// InvalidAltitude is the sentinel stored when an altitude reading is
// unreadable or outside the plausible range.
const InvalidAltitude = -777

// User is one dataset participant, keyed by their directory name under the
// dataset root.
type User struct {
	ID        string
	HasLabels bool
}

// Activity is one contiguous recorded trip, demarcated by the first and last
// timestamps of a single trajectory file.
type Activity struct {
	ID        string
	UserID    string
	Mode      string // transportation mode; empty when unlabeled
	StartTime time.Time
	EndTime   time.Time

	// SourceFile is the cleaned trajectory file the activity was derived
	// from. It drives trackpoint extraction and is never persisted.
	SourceFile string
}

// TrackPoint is a single GPS fix within an activity. Altitude is in feet.
type TrackPoint struct {
	ActivityID string
	UserID     string
	Lat        float64
	Lon        float64
	Altitude   int
	Time       time.Time
}
