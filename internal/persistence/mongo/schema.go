package mongo

import "go.mongodb.org/mongo-driver/bson"

// collectionValidators holds the $jsonSchema validator applied to each
// collection at creation time.
var collectionValidators = map[string]bson.M{
	usersCollection: {
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": []string{"_id", "has_labels"},
			"properties": bson.M{
				"_id":        bson.M{"bsonType": "string"},
				"has_labels": bson.M{"bsonType": "bool"},
			},
		},
	},
	activitiesCollection: {
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": []string{"_id", "user_id", "start_time", "end_time"},
			"properties": bson.M{
				"_id":                 bson.M{"bsonType": "string"},
				"user_id":             bson.M{"bsonType": "string"},
				"transportation_mode": bson.M{"bsonType": "string"},
				"start_time":          bson.M{"bsonType": "date"},
				"end_time":            bson.M{"bsonType": "date"},
			},
		},
	},
	trackpointsCollection: {
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": []string{"activity_id", "user_id", "location", "altitude", "recorded_at"},
			"properties": bson.M{
				"activity_id": bson.M{"bsonType": "string"},
				"user_id":     bson.M{"bsonType": "string"},
				"location": bson.M{
					"bsonType": "object",
					"required": []string{"type", "coordinates"},
					"properties": bson.M{
						"type":        bson.M{"enum": []string{"Point"}},
						"coordinates": bson.M{"bsonType": "array"},
					},
				},
				"altitude":    bson.M{"bsonType": []string{"int", "long", "double"}},
				"recorded_at": bson.M{"bsonType": "date"},
			},
		},
	},
}
