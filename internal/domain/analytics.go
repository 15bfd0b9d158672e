package domain

import "context"

// Entity names accepted by Analytics.FirstRows.
const (
	EntityUsers       = "users"
	EntityActivities  = "activities"
	EntityTrackPoints = "trackpoints"
)

// Table is a generic tabular query result used for row samples.
type Table struct {
	Headers []string
	Rows    [][]string
}

// EntityCounts holds per-entity row counts.
type EntityCounts struct {
	Users       int64
	Activities  int64
	TrackPoints int64
}

// UserCount pairs a user with an activity count.
type UserCount struct {
	UserID string
	Count  int64
}

// ModeCount pairs a transportation mode with an activity count.
type ModeCount struct {
	Mode  string
	Count int64
}

// YearCount pairs a year with an activity count.
type YearCount struct {
	Year  int
	Count int64
}

// YearHours pairs a year with a total of recorded hours.
type YearHours struct {
	Year  int
	Hours int64
}

// UserGain pairs a user with a total altitude gain in meters.
type UserGain struct {
	UserID string
	Meters int64
}

// UserMode pairs a user with their most used transportation mode.
type UserMode struct {
	UserID string
	Mode   string
}

// BoundingBox is a latitude/longitude rectangle with inclusive edges.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether the point lies inside the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Analytics captures the fixed query battery the report runs against a
// backing store.
type Analytics interface {
	FirstRows(ctx context.Context, entity string, limit int) (Table, error)
	Counts(ctx context.Context) (EntityCounts, error)
	AverageActivitiesPerUser(ctx context.Context) (float64, error)
	TopUsersByActivityCount(ctx context.Context, n int) ([]UserCount, error)
	UsersByTransportMode(ctx context.Context, mode string) ([]string, error)
	TransportModeCounts(ctx context.Context) ([]ModeCount, error)
	YearWithMostActivities(ctx context.Context) (YearCount, error)
	YearWithMostHours(ctx context.Context) (YearHours, error)
	TotalDistanceWalked(ctx context.Context, userID string, year int) (float64, error)
	TopUsersByAltitudeGain(ctx context.Context, n int) ([]UserGain, error)
	UsersWithInvalidActivities(ctx context.Context) ([]UserCount, error)
	UsersInBoundingBox(ctx context.Context, box BoundingBox) ([]string, error)
	MostUsedTransportModes(ctx context.Context) ([]UserMode, error)
}
