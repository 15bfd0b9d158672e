// Package mongo provides the MongoDB-backed sink and analytics for the
// trajectory pipeline. Trackpoints are stored as GeoJSON points so the
// bounding-box query can use a 2dsphere index.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"example.com/geolife/internal/domain"
)

const (
	usersCollection       = "users"
	activitiesCollection  = "activities"
	trackpointsCollection = "trackpoints"
)

// Repository implements domain.Sink and domain.Analytics on MongoDB.
type Repository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *log.Logger
}

// NewRepository constructs a Repository bound to the named database.
func NewRepository(client *mongo.Client, database string, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.New(log.Writer(), "[mongo] ", log.LstdFlags)
	}
	return &Repository{client: client, db: client.Database(database), logger: logger}
}

// EnsureSchema creates the collections with their validators and the unique
// and geospatial indexes. Existing collections are reused.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for name, validator := range collectionValidators {
		err := r.db.CreateCollection(ctx, name, options.CreateCollection().SetValidator(validator))
		if err != nil && !isNamespaceExists(err) {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
	}

	activityIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "start_time", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := r.db.Collection(activitiesCollection).Indexes().CreateMany(ctx, activityIndexes); err != nil {
		return fmt.Errorf("creating activity indexes: %w", err)
	}

	trackpointIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "activity_id", Value: 1}, {Key: "recorded_at", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
	}
	if _, err := r.db.Collection(trackpointsCollection).Indexes().CreateMany(ctx, trackpointIndexes); err != nil {
		return fmt.Errorf("creating trackpoint indexes: %w", err)
	}

	return nil
}

// InsertUser persists a user document, skipping silently on duplicates.
func (r *Repository) InsertUser(ctx context.Context, user domain.User) error {
	doc := bson.D{
		{Key: "_id", Value: user.ID},
		{Key: "has_labels", Value: user.HasLabels},
	}
	_, err := r.db.Collection(usersCollection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		r.logger.Printf("user %s already exists, skipping insertion", user.ID)
		return nil
	}
	return err
}

// InsertActivities bulk-inserts activity documents with generated string
// identifiers, returning the identifiers aligned with the input. Duplicates
// on (user_id, start_time) resolve to the identifier of the existing
// document; other write errors are reported.
func (r *Repository) InsertActivities(ctx context.Context, activities []domain.Activity) ([]string, error) {
	ids := make([]string, len(activities))
	docs := make([]interface{}, len(activities))
	for i, activity := range activities {
		ids[i] = uuid.NewString()
		doc := bson.D{
			{Key: "_id", Value: ids[i]},
			{Key: "user_id", Value: activity.UserID},
			{Key: "start_time", Value: activity.StartTime},
			{Key: "end_time", Value: activity.EndTime},
		}
		if activity.Mode != "" {
			doc = append(doc, bson.E{Key: "transportation_mode", Value: activity.Mode})
		}
		docs[i] = doc
	}

	_, err := r.db.Collection(activitiesCollection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		bulkErr, ok := err.(mongo.BulkWriteException)
		if !ok {
			return nil, err
		}
		duplicates := 0
		for _, writeErr := range bulkErr.WriteErrors {
			if !isDuplicateWriteError(writeErr) {
				r.logger.Printf("non-duplicate error inserting activity: %v", writeErr)
				continue
			}
			duplicates++
			idx := writeErr.Index
			if idx < 0 || idx >= len(activities) {
				continue
			}
			existing, lookupErr := r.findActivityID(ctx, activities[idx])
			if lookupErr != nil {
				return nil, lookupErr
			}
			ids[idx] = existing
		}
		if duplicates > 0 {
			r.logger.Printf("skipped %d duplicate activities", duplicates)
		}
	}
	return ids, nil
}

// InsertTrackPoints bulk-inserts trackpoint documents unordered, counting
// duplicates as skips and logging any other write errors.
func (r *Repository) InsertTrackPoints(ctx context.Context, points []domain.TrackPoint) (int, error) {
	docs := make([]interface{}, len(points))
	for i, p := range points {
		docs[i] = bson.D{
			{Key: "activity_id", Value: p.ActivityID},
			{Key: "user_id", Value: p.UserID},
			{Key: "location", Value: bson.D{
				{Key: "type", Value: "Point"},
				{Key: "coordinates", Value: bson.A{p.Lon, p.Lat}},
			}},
			{Key: "altitude", Value: p.Altitude},
			{Key: "recorded_at", Value: p.Time},
		}
	}

	result, err := r.db.Collection(trackpointsCollection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	inserted := 0
	if result != nil {
		inserted = len(result.InsertedIDs)
	}
	if err != nil {
		bulkErr, ok := err.(mongo.BulkWriteException)
		if !ok {
			return inserted, err
		}
		duplicates := 0
		failed := 0
		for _, writeErr := range bulkErr.WriteErrors {
			if isDuplicateWriteError(writeErr) {
				duplicates++
			} else {
				failed++
				r.logger.Printf("non-duplicate error inserting trackpoint: %v", writeErr)
			}
		}
		if duplicates > 0 {
			r.logger.Printf("skipped %d duplicate trackpoints", duplicates)
		}
		inserted = len(points) - duplicates - failed
	}
	return inserted, nil
}

// Close disconnects the client.
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *Repository) findActivityID(ctx context.Context, activity domain.Activity) (string, error) {
	filter := bson.D{
		{Key: "user_id", Value: activity.UserID},
		{Key: "start_time", Value: activity.StartTime},
	}
	var doc struct {
		ID string `bson:"_id"`
	}
	if err := r.db.Collection(activitiesCollection).FindOne(ctx, filter).Decode(&doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

func isDuplicateWriteError(writeErr mongo.BulkWriteError) bool {
	return writeErr.Code == 11000
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == 48
	}
	return false
}
