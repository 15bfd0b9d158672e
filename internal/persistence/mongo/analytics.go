package mongo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"example.com/geolife/internal/domain"
	"example.com/geolife/internal/geo"
)

const (
	feetToMeters      = 0.3048
	validAltitudeMin  = -505
	invalidGapSeconds = 300
)

// firstRowFields fixes the column order for row samples per collection.
var firstRowFields = map[string][]string{
	usersCollection:       {"_id", "has_labels"},
	activitiesCollection:  {"_id", "user_id", "transportation_mode", "start_time", "end_time"},
	trackpointsCollection: {"_id", "activity_id", "user_id", "location", "altitude", "recorded_at"},
}

// FirstRows returns up to limit documents from the named collection in
// natural order, rendered as strings.
func (r *Repository) FirstRows(ctx context.Context, entity string, limit int) (domain.Table, error) {
	fields, ok := firstRowFields[entity]
	if !ok {
		return domain.Table{}, fmt.Errorf("unknown entity %q", entity)
	}

	cursor, err := r.db.Collection(entity).Find(ctx, bson.D{}, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return domain.Table{}, err
	}
	defer cursor.Close(ctx)

	table := domain.Table{Headers: fields}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return domain.Table{}, err
		}
		row := make([]string, len(fields))
		for i, field := range fields {
			row[i] = formatValue(doc[field])
		}
		table.Rows = append(table.Rows, row)
	}
	return table, cursor.Err()
}

// Counts returns the document count of each collection.
func (r *Repository) Counts(ctx context.Context) (domain.EntityCounts, error) {
	var counts domain.EntityCounts
	var err error
	if counts.Users, err = r.db.Collection(usersCollection).CountDocuments(ctx, bson.D{}); err != nil {
		return counts, err
	}
	if counts.Activities, err = r.db.Collection(activitiesCollection).CountDocuments(ctx, bson.D{}); err != nil {
		return counts, err
	}
	if counts.TrackPoints, err = r.db.Collection(trackpointsCollection).CountDocuments(ctx, bson.D{}); err != nil {
		return counts, err
	}
	return counts, nil
}

// AverageActivitiesPerUser averages activity counts over users that have at
// least one activity.
func (r *Repository) AverageActivitiesPerUser(ctx context.Context) (float64, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$user_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "average", Value: bson.D{{Key: "$avg", Value: "$count"}}},
		}}},
	}
	cursor, err := r.db.Collection(activitiesCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return 0, cursor.Err()
	}
	var doc struct {
		Average float64 `bson:"average"`
	}
	if err := cursor.Decode(&doc); err != nil {
		return 0, err
	}
	return doc.Average, nil
}

// TopUsersByActivityCount returns the n users with the most activities.
func (r *Repository) TopUsersByActivityCount(ctx context.Context, n int) ([]domain.UserCount, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$user_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$limit", Value: n}},
	}
	return r.aggregateUserCounts(ctx, activitiesCollection, pipeline)
}

// UsersByTransportMode returns the distinct users that have at least one
// activity labeled with the given mode, sorted by user id.
func (r *Repository) UsersByTransportMode(ctx context.Context, mode string) ([]string, error) {
	values, err := r.db.Collection(activitiesCollection).Distinct(ctx, "user_id", bson.D{
		{Key: "transportation_mode", Value: mode},
	})
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			users = append(users, s)
		}
	}
	sort.Strings(users)
	return users, nil
}

// TransportModeCounts counts labeled activities per transportation mode.
func (r *Repository) TransportModeCounts(ctx context.Context) ([]domain.ModeCount, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "transportation_mode", Value: bson.D{{Key: "$exists", Value: true}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$transportation_mode"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	cursor, err := r.db.Collection(activitiesCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var modes []domain.ModeCount
	for cursor.Next(ctx) {
		var doc struct {
			Mode  string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		modes = append(modes, domain.ModeCount{Mode: doc.Mode, Count: doc.Count})
	}
	return modes, cursor.Err()
}

// YearWithMostActivities returns the start year with the most activities.
func (r *Repository) YearWithMostActivities(ctx context.Context) (domain.YearCount, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$year", Value: "$start_time"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$limit", Value: 1}},
	}
	cursor, err := r.db.Collection(activitiesCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return domain.YearCount{}, err
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return domain.YearCount{}, cursor.Err()
	}
	var doc struct {
		Year  int   `bson:"_id"`
		Count int64 `bson:"count"`
	}
	if err := cursor.Decode(&doc); err != nil {
		return domain.YearCount{}, err
	}
	return domain.YearCount{Year: doc.Year, Count: doc.Count}, nil
}

// YearWithMostHours returns the start year whose activities total the most
// recorded hours, each activity floored to whole hours.
func (r *Repository) YearWithMostHours(ctx context.Context) (domain.YearHours, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "year", Value: bson.D{{Key: "$year", Value: "$start_time"}}},
			{Key: "hours", Value: bson.D{{Key: "$floor", Value: bson.D{{Key: "$divide", Value: bson.A{
				bson.D{{Key: "$subtract", Value: bson.A{"$end_time", "$start_time"}}},
				3600000,
			}}}}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$year"},
			{Key: "hours", Value: bson.D{{Key: "$sum", Value: "$hours"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "hours", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$limit", Value: 1}},
	}
	cursor, err := r.db.Collection(activitiesCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return domain.YearHours{}, err
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return domain.YearHours{}, cursor.Err()
	}
	var doc struct {
		Year  int     `bson:"_id"`
		Hours float64 `bson:"hours"`
	}
	if err := cursor.Decode(&doc); err != nil {
		return domain.YearHours{}, err
	}
	return domain.YearHours{Year: doc.Year, Hours: int64(doc.Hours)}, nil
}

// TotalDistanceWalked sums the haversine distance in kilometers over the
// ordered trackpoints of the user's walking activities in the given year.
func (r *Repository) TotalDistanceWalked(ctx context.Context, userID string, year int) (float64, error) {
	filter := bson.D{
		{Key: "user_id", Value: userID},
		{Key: "transportation_mode", Value: "walk"},
		{Key: "$expr", Value: bson.D{{Key: "$eq", Value: bson.A{
			bson.D{{Key: "$year", Value: "$start_time"}},
			year,
		}}}},
	}
	cursor, err := r.db.Collection(activitiesCollection).Find(ctx, filter)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var activityIDs []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return 0, err
		}
		activityIDs = append(activityIDs, doc.ID)
	}
	if err := cursor.Err(); err != nil {
		return 0, err
	}

	total := 0.0
	for _, id := range activityIDs {
		distance, err := r.activityDistanceKm(ctx, id)
		if err != nil {
			return 0, err
		}
		total += distance
	}
	return total, nil
}

func (r *Repository) activityDistanceKm(ctx context.Context, activityID string) (float64, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "recorded_at", Value: 1}}).
		SetProjection(bson.D{{Key: "location.coordinates", Value: 1}})
	cursor, err := r.db.Collection(trackpointsCollection).Find(ctx, bson.D{
		{Key: "activity_id", Value: activityID},
	}, opts)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	total := 0.0
	havePrev := false
	var prevLat, prevLon float64
	for cursor.Next(ctx) {
		var doc struct {
			Location struct {
				Coordinates []float64 `bson:"coordinates"`
			} `bson:"location"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return 0, err
		}
		if len(doc.Location.Coordinates) < 2 {
			continue
		}
		lon, lat := doc.Location.Coordinates[0], doc.Location.Coordinates[1]
		if havePrev {
			total += geo.HaversineKm(prevLat, prevLon, lat, lon)
		}
		prevLat, prevLon = lat, lon
		havePrev = true
	}
	return total, cursor.Err()
}

// TopUsersByAltitudeGain returns the n users who gained the most altitude,
// summing positive deltas between consecutive valid readings per activity
// and converting feet to meters.
func (r *Repository) TopUsersByAltitudeGain(ctx context.Context, n int) ([]domain.UserGain, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "altitude", Value: bson.D{{Key: "$gt", Value: validAltitudeMin}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "activity_id", Value: 1}, {Key: "recorded_at", Value: 1}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$activity_id"},
			{Key: "user_id", Value: bson.D{{Key: "$first", Value: "$user_id"}}},
			{Key: "altitudes", Value: bson.D{{Key: "$push", Value: "$altitude"}}},
		}}},
	}
	cursor, err := r.db.Collection(trackpointsCollection).Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	gainFeet := make(map[string]float64)
	for cursor.Next(ctx) {
		var doc struct {
			UserID    string    `bson:"user_id"`
			Altitudes []float64 `bson:"altitudes"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		for i := 1; i < len(doc.Altitudes); i++ {
			if delta := doc.Altitudes[i] - doc.Altitudes[i-1]; delta > 0 {
				gainFeet[doc.UserID] += delta
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	gains := make([]domain.UserGain, 0, len(gainFeet))
	for userID, feet := range gainFeet {
		gains = append(gains, domain.UserGain{UserID: userID, Meters: roundToInt64(feet * feetToMeters)})
	}
	sort.Slice(gains, func(i, j int) bool {
		if gains[i].Meters != gains[j].Meters {
			return gains[i].Meters > gains[j].Meters
		}
		return gains[i].UserID < gains[j].UserID
	})
	if len(gains) > n {
		gains = gains[:n]
	}
	return gains, nil
}

// UsersWithInvalidActivities counts, per user, the activities containing a
// gap of at least five minutes between consecutive trackpoints.
func (r *Repository) UsersWithInvalidActivities(ctx context.Context) ([]domain.UserCount, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$sort", Value: bson.D{{Key: "activity_id", Value: 1}, {Key: "recorded_at", Value: 1}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$activity_id"},
			{Key: "user_id", Value: bson.D{{Key: "$first", Value: "$user_id"}}},
			{Key: "times", Value: bson.D{{Key: "$push", Value: "$recorded_at"}}},
		}}},
	}
	cursor, err := r.db.Collection(trackpointsCollection).Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	invalid := make(map[string]int64)
	for cursor.Next(ctx) {
		var doc struct {
			UserID string      `bson:"user_id"`
			Times  []time.Time `bson:"times"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		for i := 1; i < len(doc.Times); i++ {
			if doc.Times[i].Sub(doc.Times[i-1]) >= invalidGapSeconds*time.Second {
				invalid[doc.UserID]++
				break
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	counts := make([]domain.UserCount, 0, len(invalid))
	for userID, count := range invalid {
		counts = append(counts, domain.UserCount{UserID: userID, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].UserID < counts[j].UserID
	})
	return counts, nil
}

// UsersInBoundingBox returns the distinct users with a trackpoint inside the
// box, using the 2dsphere index.
func (r *Repository) UsersInBoundingBox(ctx context.Context, box domain.BoundingBox) ([]string, error) {
	polygon := bson.A{bson.A{
		bson.A{box.MinLon, box.MinLat},
		bson.A{box.MaxLon, box.MinLat},
		bson.A{box.MaxLon, box.MaxLat},
		bson.A{box.MinLon, box.MaxLat},
		bson.A{box.MinLon, box.MinLat},
	}}
	values, err := r.db.Collection(trackpointsCollection).Distinct(ctx, "user_id", bson.D{
		{Key: "location", Value: bson.D{
			{Key: "$geoWithin", Value: bson.D{
				{Key: "$geometry", Value: bson.D{
					{Key: "type", Value: "Polygon"},
					{Key: "coordinates", Value: polygon},
				}},
			}},
		}},
	})
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			users = append(users, s)
		}
	}
	sort.Strings(users)
	return users, nil
}

// MostUsedTransportModes returns, per user with labeled activities, the mode
// used most often. Ties resolve to the alphabetically first mode.
func (r *Repository) MostUsedTransportModes(ctx context.Context) ([]domain.UserMode, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "transportation_mode", Value: bson.D{{Key: "$exists", Value: true}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "user_id", Value: "$user_id"},
				{Key: "mode", Value: "$transportation_mode"},
			}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "_id.user_id", Value: 1},
			{Key: "count", Value: -1},
			{Key: "_id.mode", Value: 1},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id.user_id"},
			{Key: "mode", Value: bson.D{{Key: "$first", Value: "$_id.mode"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
	cursor, err := r.db.Collection(activitiesCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var modes []domain.UserMode
	for cursor.Next(ctx) {
		var doc struct {
			UserID string `bson:"_id"`
			Mode   string `bson:"mode"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		modes = append(modes, domain.UserMode{UserID: doc.UserID, Mode: doc.Mode})
	}
	return modes, cursor.Err()
}

func (r *Repository) aggregateUserCounts(ctx context.Context, collection string, pipeline mongo.Pipeline) ([]domain.UserCount, error) {
	cursor, err := r.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var counts []domain.UserCount
	for cursor.Next(ctx) {
		var doc struct {
			UserID string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		counts = append(counts, domain.UserCount{UserID: doc.UserID, Count: doc.Count})
	}
	return counts, cursor.Err()
}

func roundToInt64(v float64) int64 {
	if v < 0 {
		return int64(v - 0.5)
	}
	return int64(v + 0.5)
}

func formatValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case primitive.DateTime:
		return value.Time().UTC().Format("2006-01-02 15:04:05")
	case time.Time:
		return value.UTC().Format("2006-01-02 15:04:05")
	case bson.M:
		if coords, ok := value["coordinates"].(bson.A); ok && len(coords) == 2 {
			return fmt.Sprintf("(%v, %v)", coords[1], coords[0])
		}
		return fmt.Sprint(value)
	default:
		return fmt.Sprint(value)
	}
}
