package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/geolife/internal/domain"
	"example.com/geolife/internal/geolife"
)

type stubSink struct {
	users       []domain.User
	activities  []domain.Activity
	points      []domain.TrackPoint
	userErr     error
	activityErr error
}

func (s *stubSink) EnsureSchema(context.Context) error { return nil }

func (s *stubSink) InsertUser(_ context.Context, user domain.User) error {
	if s.userErr != nil {
		return s.userErr
	}
	s.users = append(s.users, user)
	return nil
}

func (s *stubSink) InsertActivities(_ context.Context, activities []domain.Activity) ([]string, error) {
	if s.activityErr != nil {
		return nil, s.activityErr
	}
	ids := make([]string, len(activities))
	for i := range activities {
		ids[i] = fmt.Sprintf("activity-%d", len(s.activities)+i)
	}
	s.activities = append(s.activities, activities...)
	return ids, nil
}

func (s *stubSink) InsertTrackPoints(_ context.Context, points []domain.TrackPoint) (int, error) {
	s.points = append(s.points, points...)
	return len(points), nil
}

func (s *stubSink) Close(context.Context) error { return nil }

// writeDataset builds a two-user dataset: user 010 is labeled with one
// raw trajectory file, user 000 is unlabeled with one raw file.
func writeDataset(t *testing.T) (datasetPath, labeledIDsPath string) {
	t.Helper()
	dir := t.TempDir()
	datasetPath = filepath.Join(dir, "Data")

	rawHeader := "Geolife trajectory\nWGS 84\nAltitude is in Feet\nReserved 3\n0,2,255,My Track,0,0,2182589,16744261\n0\n"

	labeledDir := filepath.Join(datasetPath, "010", geolife.TrajectoryDirName)
	require.NoError(t, os.MkdirAll(labeledDir, 0o755))
	rows := "39.984702,116.318417,0,492,39744.1,2008-10-23,10:00:00\n" +
		"39.984683,116.31845,0,492,39744.1,2008-10-23,10:05:00\n"
	require.NoError(t, os.WriteFile(filepath.Join(labeledDir, "20081023.plt"), []byte(rawHeader+rows), 0o644))

	labelFile := "Start Time\tEnd Time\tTransportation Mode\n" +
		"2008/10/23 10:00:00\t2008/10/23 10:05:00\twalk\n"
	require.NoError(t, os.WriteFile(filepath.Join(datasetPath, "010", geolife.LabelFileName), []byte(labelFile), 0o644))

	unlabeledDir := filepath.Join(datasetPath, "000", geolife.TrajectoryDirName)
	require.NoError(t, os.MkdirAll(unlabeledDir, 0o755))
	rows = "40.0,116.4,0,100,39745.1,2008-10-24,08:00:00\n"
	require.NoError(t, os.WriteFile(filepath.Join(unlabeledDir, "20081024.plt"), []byte(rawHeader+rows), 0o644))

	labeledIDsPath = filepath.Join(dir, "labeled_ids.txt")
	require.NoError(t, os.WriteFile(labeledIDsPath, []byte("010\n"), 0o644))
	return datasetPath, labeledIDsPath
}

func newTestService(t *testing.T, sink domain.Sink, datasetPath, labeledIDsPath string) *Service {
	t.Helper()
	logger := log.New(testWriter{t}, "", 0)
	normalizer := geolife.NewNormalizer(geolife.DefaultCleaningConfig(), logger)
	return New(sink, normalizer, datasetPath, labeledIDsPath, logger)
}

func TestCleanThenIngest(t *testing.T) {
	datasetPath, labeledIDsPath := writeDataset(t)
	sink := &stubSink{}
	service := newTestService(t, sink, datasetPath, labeledIDsPath)

	ctx := context.Background()

	cleanSummary, err := service.Clean(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, cleanSummary.FilesCleaned)
	require.Equal(t, 0, cleanSummary.FilesRemoved)

	summary, err := service.Ingest(ctx)
	require.NoError(t, err)

	require.Equal(t, 2, summary.Users)
	require.Equal(t, 2, summary.Activities)
	require.Equal(t, 3, summary.TrackPoints)
	require.Equal(t, 0, summary.SkippedRows)

	require.Len(t, sink.users, 2)
	require.Equal(t, "000", sink.users[0].ID)
	require.False(t, sink.users[0].HasLabels)
	require.Equal(t, "010", sink.users[1].ID)
	require.True(t, sink.users[1].HasLabels)

	require.Len(t, sink.activities, 2)
	require.Empty(t, sink.activities[0].Mode)
	require.Equal(t, "walk", sink.activities[1].Mode)

	require.Len(t, sink.points, 3)
	for _, p := range sink.points {
		require.NotEmpty(t, p.ActivityID)
		require.NotEmpty(t, p.UserID)
	}
}

func TestIngestSkipsUserOnInsertError(t *testing.T) {
	datasetPath, labeledIDsPath := writeDataset(t)
	sink := &stubSink{userErr: errors.New("user insert failed")}
	service := newTestService(t, sink, datasetPath, labeledIDsPath)

	summary, err := service.Ingest(context.Background())
	require.NoError(t, err)

	require.Equal(t, 0, summary.Users)
	require.Equal(t, 0, summary.Activities)
	require.Empty(t, sink.activities)
}

func TestIngestSkipsActivitiesOnInsertError(t *testing.T) {
	datasetPath, labeledIDsPath := writeDataset(t)
	sink := &stubSink{activityErr: errors.New("activity insert failed")}
	service := newTestService(t, sink, datasetPath, labeledIDsPath)

	_, err := service.Clean(context.Background())
	require.NoError(t, err)

	summary, err := service.Ingest(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, summary.Users)
	require.Equal(t, 0, summary.Activities)
	require.Equal(t, 0, summary.TrackPoints)
	require.Empty(t, sink.points)
}

func TestIngestFailsWithoutDataset(t *testing.T) {
	dir := t.TempDir()
	labeledIDsPath := filepath.Join(dir, "labeled_ids.txt")
	require.NoError(t, os.WriteFile(labeledIDsPath, []byte(""), 0o644))

	sink := &stubSink{}
	service := newTestService(t, sink, filepath.Join(dir, "missing"), labeledIDsPath)

	_, err := service.Ingest(context.Background())
	require.Error(t, err)
}

func TestIngestStopsOnCanceledContext(t *testing.T) {
	datasetPath, labeledIDsPath := writeDataset(t)
	sink := &stubSink{}
	service := newTestService(t, sink, datasetPath, labeledIDsPath)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Ingest(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, sink.users)
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
