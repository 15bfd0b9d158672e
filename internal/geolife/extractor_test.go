package geolife

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/geolife/internal/domain"
)

func writeCleanFile(t *testing.T, dir, name, rows string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
	return path
}

func TestExtractorActivities(t *testing.T) {
	datasetPath := t.TempDir()
	trajectoryDir := filepath.Join(datasetPath, "010", TrajectoryDirName)
	require.NoError(t, os.MkdirAll(trajectoryDir, 0o755))

	writeCleanFile(t, trajectoryDir, "20081023.plt",
		"39.9,116.3,492,2008-10-23 10:00:00\n"+
			"39.9,116.3,492,2008-10-23 10:05:00\n")
	writeCleanFile(t, trajectoryDir, "20081024.plt",
		"39.9,116.3,492,2008-10-24 08:00:00\n"+
			"39.9,116.3,492,2008-10-24 08:30:00\n")
	writeCleanFile(t, trajectoryDir, "empty.plt", "")
	writeCleanFile(t, trajectoryDir, "notes.txt", "not a trajectory\n")

	labels := map[LabelKey]string{
		{
			Start: time.Date(2008, 10, 23, 10, 0, 0, 0, time.UTC),
			End:   time.Date(2008, 10, 23, 10, 5, 0, 0, time.UTC),
		}: "walk",
	}

	e := NewExtractor(log.New(testWriter{t}, "", 0))
	activities := e.Activities(datasetPath, domain.User{ID: "010", HasLabels: true}, labels)

	require.Len(t, activities, 2)

	require.Equal(t, "010", activities[0].UserID)
	require.Equal(t, "walk", activities[0].Mode)
	require.Equal(t, time.Date(2008, 10, 23, 10, 0, 0, 0, time.UTC), activities[0].StartTime)
	require.Equal(t, time.Date(2008, 10, 23, 10, 5, 0, 0, time.UTC), activities[0].EndTime)
	require.Equal(t, filepath.Join(trajectoryDir, "20081023.plt"), activities[0].SourceFile)

	// No exact label match leaves the activity unlabeled.
	require.Empty(t, activities[1].Mode)
	require.Equal(t, time.Date(2008, 10, 24, 8, 0, 0, 0, time.UTC), activities[1].StartTime)
}

func TestExtractorActivitiesMissingTrajectoryDir(t *testing.T) {
	e := NewExtractor(log.New(testWriter{t}, "", 0))
	activities := e.Activities(t.TempDir(), domain.User{ID: "000"}, nil)
	require.Empty(t, activities)
}

func TestExtractorTrackPoints(t *testing.T) {
	dir := t.TempDir()
	path := writeCleanFile(t, dir, "20081023.plt",
		"39.984702,116.318417,492,2008-10-23 02:53:04\n"+
			"garbage line\n"+
			"39.984683,116.31845,-777,2008-10-23 02:53:10\n")

	activity := domain.Activity{
		ID:         "activity-1",
		UserID:     "010",
		SourceFile: path,
	}

	e := NewExtractor(log.New(testWriter{t}, "", 0))
	points, skipped, err := e.TrackPoints(activity)
	require.NoError(t, err)

	require.Equal(t, 1, skipped)
	require.Len(t, points, 2)

	require.Equal(t, "activity-1", points[0].ActivityID)
	require.Equal(t, "010", points[0].UserID)
	require.Equal(t, 39.984702, points[0].Lat)
	require.Equal(t, 116.318417, points[0].Lon)
	require.Equal(t, 492, points[0].Altitude)
	require.Equal(t, time.Date(2008, 10, 23, 2, 53, 4, 0, time.UTC), points[0].Time)

	require.Equal(t, -777, points[1].Altitude)
}

func TestExtractorTrackPointsMissingFile(t *testing.T) {
	e := NewExtractor(log.New(testWriter{t}, "", 0))
	_, _, err := e.TrackPoints(domain.Activity{SourceFile: filepath.Join(t.TempDir(), "missing.plt")})
	require.Error(t, err)
}
