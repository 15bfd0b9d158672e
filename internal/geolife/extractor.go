package geolife

import (
	"bufio"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"example.com/geolife/internal/domain"
)

// Extractor derives activity and trackpoint records from a user's cleaned
// trajectory files. A single file's I/O or parse failure is isolated to that
// file; the extractor always returns whatever it could read.
type Extractor struct {
	logger *log.Logger
}

// NewExtractor constructs an Extractor.
func NewExtractor(logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.New(log.Writer(), "[extractor] ", log.LstdFlags)
	}
	return &Extractor{logger: logger}
}

// Activities derives one activity per trajectory file under the user's
// Trajectory directory. Files with no data rows are skipped. The mode is
// attached only on an exact (start, end) label match.
func (e *Extractor) Activities(datasetPath string, user domain.User, labels map[LabelKey]string) []domain.Activity {
	dir := filepath.Join(datasetPath, user.ID, TrajectoryDirName)

	entries, err := os.ReadDir(dir)
	if err != nil {
		e.logger.Printf("cannot list trajectory directory for user %s: %v", user.ID, err)
		return nil
	}

	activities := make([]domain.Activity, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".plt") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		start, end, err := ReadFirstLast(path)
		if err != nil {
			if errors.Is(err, ErrEmptyFile) {
				e.logger.Printf("activity file %s contains no data; skipping", path)
			} else {
				e.logger.Printf("error reading activity file %s: %v", path, err)
			}
			continue
		}

		activities = append(activities, domain.Activity{
			UserID:     user.ID,
			Mode:       labels[LabelKey{Start: start, End: end}],
			StartTime:  start,
			EndTime:    end,
			SourceFile: path,
		})
	}

	sort.Slice(activities, func(i, j int) bool {
		return activities[i].StartTime.Before(activities[j].StartTime)
	})
	return activities
}

// TrackPoints re-reads an activity's source file and emits one trackpoint per
// data row, tagged with the activity's store identifier. Malformed rows are
// skipped; the skip count is returned alongside the points.
func (e *Extractor) TrackPoints(activity domain.Activity) ([]domain.TrackPoint, int, error) {
	f, err := os.Open(activity.SourceFile)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var points []domain.TrackPoint
	skipped := 0
	lineNo := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		point, err := ParseTrackPoint(line, lineNo)
		if err != nil {
			skipped++
			continue
		}

		points = append(points, domain.TrackPoint{
			ActivityID: activity.ID,
			UserID:     activity.UserID,
			Lat:        point.Lat,
			Lon:        point.Lon,
			Altitude:   point.Altitude,
			Time:       point.Time,
		})
	}
	if err := scanner.Err(); err != nil {
		return points, skipped, err
	}

	if skipped > 0 {
		e.logger.Printf("skipped %d malformed rows in %s", skipped, activity.SourceFile)
	}
	return points, skipped, nil
}
