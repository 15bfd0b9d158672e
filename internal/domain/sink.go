package domain

import "context"

// Sink captures the narrow insert surface the pipeline needs from a backing
// store. Both the Postgres and Mongo backends implement it.
type Sink interface {
	// EnsureSchema creates tables or collections, constraints, and indexes
	// if they do not already exist.
	EnsureSchema(ctx context.Context) error

	// InsertUser persists a user. Inserting an existing user is a no-op.
	InsertUser(ctx context.Context, user User) error

	// InsertActivities bulk-inserts activities and returns their store
	// identifiers aligned one-to-one with the input. An activity that
	// violates the (user_id, start_time) uniqueness constraint is skipped
	// and resolved to the identifier of the existing row.
	InsertActivities(ctx context.Context, activities []Activity) ([]string, error)

	// InsertTrackPoints bulk-inserts trackpoints and returns the number
	// actually inserted. Duplicates on (activity_id, timestamp) are
	// silently skipped; other per-record failures are logged without
	// aborting the batch.
	InsertTrackPoints(ctx context.Context, points []TrackPoint) (int, error)

	Close(ctx context.Context) error
}
