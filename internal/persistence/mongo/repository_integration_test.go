//go:build integration
// +build integration

package mongo

import (
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	mongodbcontainer "github.com/testcontainers/testcontainers-go/modules/mongodb"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"example.com/geolife/internal/domain"
)

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, cleanup := setupRepository(t, ctx)
	defer cleanup()

	user := domain.User{ID: "010", HasLabels: true}
	require.NoError(t, repo.InsertUser(ctx, user))
	// Re-running the ingest must not fail on the existing document.
	require.NoError(t, repo.InsertUser(ctx, user))

	activities := []domain.Activity{
		{
			UserID:    "010",
			Mode:      "walk",
			StartTime: time.Date(2008, 10, 23, 10, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2008, 10, 23, 10, 30, 0, 0, time.UTC),
		},
		{
			UserID:    "010",
			StartTime: time.Date(2008, 10, 24, 8, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2008, 10, 24, 9, 0, 0, 0, time.UTC),
		},
	}

	ids, err := repo.InsertActivities(ctx, activities)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.NotEqual(t, ids[0], ids[1])

	// Duplicates on (user_id, start_time) resolve to the stored identifiers.
	again, err := repo.InsertActivities(ctx, activities)
	require.NoError(t, err)
	require.Equal(t, ids, again)

	points := []domain.TrackPoint{
		{ActivityID: ids[0], UserID: "010", Lat: 39.916, Lon: 116.397, Altitude: 100, Time: time.Date(2008, 10, 23, 10, 0, 0, 0, time.UTC)},
		{ActivityID: ids[0], UserID: "010", Lat: 39.917, Lon: 116.398, Altitude: 150, Time: time.Date(2008, 10, 23, 10, 1, 0, 0, time.UTC)},
	}
	inserted, err := repo.InsertTrackPoints(ctx, points)
	require.NoError(t, err)
	require.Equal(t, 2, inserted)

	inserted, err = repo.InsertTrackPoints(ctx, points)
	require.NoError(t, err)
	require.Equal(t, 0, inserted)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.EntityCounts{Users: 1, Activities: 2, TrackPoints: 2}, counts)
}

func TestAnalyticsAggregations(t *testing.T) {
	ctx := context.Background()
	repo, cleanup := setupRepository(t, ctx)
	defer cleanup()

	require.NoError(t, repo.InsertUser(ctx, domain.User{ID: "112", HasLabels: true}))
	require.NoError(t, repo.InsertUser(ctx, domain.User{ID: "113"}))

	walkStart := time.Date(2008, 6, 1, 10, 0, 0, 0, time.UTC)
	gapStart := time.Date(2009, 3, 1, 8, 0, 0, 0, time.UTC)

	ids, err := repo.InsertActivities(ctx, []domain.Activity{
		{UserID: "112", Mode: "walk", StartTime: walkStart, EndTime: walkStart.Add(90 * time.Minute)},
		{UserID: "113", StartTime: gapStart, EndTime: gapStart.Add(2 * time.Hour)},
	})
	require.NoError(t, err)

	points := []domain.TrackPoint{
		{ActivityID: ids[0], UserID: "112", Lat: 39.916, Lon: 116.397, Altitude: 100, Time: walkStart},
		{ActivityID: ids[0], UserID: "112", Lat: 39.9162, Lon: 116.3972, Altitude: 200, Time: walkStart.Add(time.Minute)},
		{ActivityID: ids[0], UserID: "112", Lat: 39.9164, Lon: 116.3974, Altitude: 400, Time: walkStart.Add(2 * time.Minute)},
		{ActivityID: ids[0], UserID: "112", Lat: 39.9165, Lon: 116.3975, Altitude: -777, Time: walkStart.Add(3 * time.Minute)},
		{ActivityID: ids[1], UserID: "113", Lat: 39.5, Lon: 116.0, Altitude: 90, Time: gapStart},
		{ActivityID: ids[1], UserID: "113", Lat: 39.5, Lon: 116.0, Altitude: 90, Time: gapStart.Add(6 * time.Minute)},
	}
	inserted, err := repo.InsertTrackPoints(ctx, points)
	require.NoError(t, err)
	require.Equal(t, len(points), inserted)

	t.Run("average activities per user", func(t *testing.T) {
		avg, err := repo.AverageActivitiesPerUser(ctx)
		require.NoError(t, err)
		require.InDelta(t, 1.0, avg, 1e-9)
	})

	t.Run("year with most activities", func(t *testing.T) {
		year, err := repo.YearWithMostActivities(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, year.Count)
	})

	t.Run("year with most hours", func(t *testing.T) {
		year, err := repo.YearWithMostHours(ctx)
		require.NoError(t, err)
		// The 2009 activity floors to 2 hours, the 2008 one to 1.
		require.Equal(t, 2009, year.Year)
		require.EqualValues(t, 2, year.Hours)
	})

	t.Run("total distance walked", func(t *testing.T) {
		distance, err := repo.TotalDistanceWalked(ctx, "112", 2008)
		require.NoError(t, err)
		require.Greater(t, distance, 0.0)
		require.Less(t, distance, 1.0)
	})

	t.Run("top users by altitude gain", func(t *testing.T) {
		gains, err := repo.TopUsersByAltitudeGain(ctx, 20)
		require.NoError(t, err)
		require.NotEmpty(t, gains)
		require.Equal(t, "112", gains[0].UserID)
		require.EqualValues(t, 91, gains[0].Meters)
	})

	t.Run("users with invalid activities", func(t *testing.T) {
		invalid, err := repo.UsersWithInvalidActivities(ctx)
		require.NoError(t, err)
		require.Equal(t, []domain.UserCount{{UserID: "113", Count: 1}}, invalid)
	})

	t.Run("users in bounding box", func(t *testing.T) {
		box := domain.BoundingBox{MinLat: 39.9155, MaxLat: 39.9165, MinLon: 116.3965, MaxLon: 116.3975}
		users, err := repo.UsersInBoundingBox(ctx, box)
		require.NoError(t, err)
		require.Equal(t, []string{"112"}, users)
	})

	t.Run("most used transport modes", func(t *testing.T) {
		modes, err := repo.MostUsedTransportModes(ctx)
		require.NoError(t, err)
		require.Equal(t, []domain.UserMode{{UserID: "112", Mode: "walk"}}, modes)
	})
}

func setupRepository(t *testing.T, ctx context.Context) (*Repository, func()) {
	t.Helper()

	container, err := mongodbcontainer.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	repo := NewRepository(client, "geolife_test", log.New(testWriter{t}, "", 0))
	require.NoError(t, repo.EnsureSchema(ctx))

	cleanup := func() {
		_ = client.Disconnect(ctx)
		_ = container.Terminate(ctx)
	}
	return repo, cleanup
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
