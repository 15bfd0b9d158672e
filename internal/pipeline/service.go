// Package pipeline orchestrates the dataset passes: in-place file cleaning
// followed by user-at-a-time extraction and loading into a domain.Sink.
package pipeline

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"example.com/geolife/internal/domain"
	"example.com/geolife/internal/geolife"
	"example.com/geolife/internal/observability"
)

// Service runs the cleaning and ingest phases against one backing store.
type Service struct {
	sink           domain.Sink
	normalizer     *geolife.Normalizer
	extractor      *geolife.Extractor
	datasetPath    string
	labeledIDsPath string
	logger         *log.Logger
}

// New constructs a Service.
func New(sink domain.Sink, normalizer *geolife.Normalizer, datasetPath, labeledIDsPath string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[pipeline] ", log.LstdFlags|log.Lshortfile)
	}
	return &Service{
		sink:           sink,
		normalizer:     normalizer,
		extractor:      geolife.NewExtractor(logger),
		datasetPath:    datasetPath,
		labeledIDsPath: labeledIDsPath,
		logger:         logger,
	}
}

// IngestSummary reports what a full ingest pass accomplished.
type IngestSummary struct {
	Users       int
	Activities  int
	TrackPoints int
	SkippedRows int
}

// Clean normalizes every trajectory file under the dataset root. Safe to run
// repeatedly: already-cleaned files are detected and left alone.
func (s *Service) Clean(ctx context.Context) (geolife.CleanSummary, error) {
	if err := ctx.Err(); err != nil {
		return geolife.CleanSummary{}, err
	}

	summary, err := s.normalizer.CleanDataset(s.datasetPath)
	recordCleanSummary(summary.Deleted, summary.Updated, summary.FilesRemoved)
	return summary, err
}

// Ingest loads users, activities, and trackpoints into the sink, one user at
// a time. Per-file and per-user failures are logged and skipped; only failing
// to enumerate the user directories aborts the pass.
func (s *Service) Ingest(ctx context.Context) (IngestSummary, error) {
	var summary IngestSummary

	users, err := geolife.ScanUsers(s.datasetPath, s.labeledIDsPath)
	if err != nil {
		return summary, err
	}
	s.logger.Printf("found %d users in the dataset", len(users))

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		s.ingestUser(ctx, user, &summary)
	}

	observability.RecordIngestCompleted(time.Now())
	s.logger.Printf("ingest done: %d users, %d activities, %d trackpoints, %d rows skipped",
		summary.Users, summary.Activities, summary.TrackPoints, summary.SkippedRows)
	return summary, nil
}

func (s *Service) ingestUser(ctx context.Context, user domain.User, summary *IngestSummary) {
	if err := s.sink.InsertUser(ctx, user); err != nil {
		s.logger.Printf("error inserting user %s: %v", user.ID, err)
		return
	}
	summary.Users++
	usersIngestedCounter.Inc()

	labels := s.resolveLabels(user)

	activities := s.extractor.Activities(s.datasetPath, user, labels)
	if len(activities) == 0 {
		return
	}

	ids, err := s.sink.InsertActivities(ctx, activities)
	if err != nil {
		s.logger.Printf("error inserting activities for user %s: %v", user.ID, err)
		return
	}
	summary.Activities += len(activities)
	activitiesIngestedCounter.Add(float64(len(activities)))

	var points []domain.TrackPoint
	var watermark time.Time
	for i := range activities {
		activities[i].ID = ids[i]

		filePoints, skipped, err := s.extractor.TrackPoints(activities[i])
		summary.SkippedRows += skipped
		if err != nil {
			s.logger.Printf("error extracting trackpoints from %s: %v", activities[i].SourceFile, err)
			recordFileError("trackpoints")
			continue
		}
		points = append(points, filePoints...)
		if len(filePoints) > 0 {
			if last := filePoints[len(filePoints)-1].Time; last.After(watermark) {
				watermark = last
			}
		}
	}

	if len(points) == 0 {
		s.logger.Printf("no trackpoints found for user %s", user.ID)
		return
	}

	inserted, err := s.sink.InsertTrackPoints(ctx, points)
	if err != nil {
		s.logger.Printf("error inserting trackpoints for user %s: %v", user.ID, err)
		return
	}
	summary.TrackPoints += inserted
	trackpointsIngestedCounter.Add(float64(inserted))
	observability.RecordTrackPointWatermark(watermark)
	s.logger.Printf("inserted %d of %d trackpoints for user %s", inserted, len(points), user.ID)
}

// resolveLabels builds the label lookup for a labeled user. Any failure
// degrades to whatever was read before the error; the user is never aborted.
func (s *Service) resolveLabels(user domain.User) map[geolife.LabelKey]string {
	if !user.HasLabels {
		return nil
	}

	path := filepath.Join(s.datasetPath, user.ID, geolife.LabelFileName)
	labels, err := geolife.BuildLabelLookup(path)
	if err != nil {
		s.logger.Printf("error reading label file for user %s: %v", user.ID, err)
		recordFileError("labels")
		return labels
	}
	if len(labels) == 0 {
		s.logger.Printf("user %s is marked for labels, but no labels were found at %s", user.ID, path)
	}
	return labels
}
