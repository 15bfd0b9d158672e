// Package postgres provides the Postgres-backed sink and analytics for the
// trajectory pipeline.
package postgres

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/geolife/internal/domain"
)

const insertTrackPointStmt = `INSERT INTO trackpoints (activity_id, lat, lon, altitude, recorded_at)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (activity_id, recorded_at) DO NOTHING`

// Repository implements domain.Sink and domain.Analytics on Postgres.
type Repository struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.New(log.Writer(), "[postgres] ", log.LstdFlags)
	}
	return &Repository{pool: pool, logger: logger}
}

// EnsureSchema creates the tables and indexes if they do not already exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaDDL)
	return err
}

// InsertUser persists a user, skipping silently when the user already exists.
func (r *Repository) InsertUser(ctx context.Context, user domain.User) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, has_labels) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		user.ID, user.HasLabels,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.Printf("user %s already exists, skipping insertion", user.ID)
	}
	return nil
}

// InsertActivities bulk-inserts activities inside one transaction, returning
// identifiers aligned with the input. A (user_id, start_time) conflict is
// resolved to the existing row's identifier.
func (r *Repository) InsertActivities(ctx context.Context, activities []domain.Activity) ([]string, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const insert = `INSERT INTO activities (id, user_id, transportation_mode, start_time, end_time)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (user_id, start_time) DO NOTHING
        RETURNING id`

	ids := make([]string, len(activities))
	duplicates := 0
	for i, activity := range activities {
		var id string
		err := tx.QueryRow(ctx, insert,
			uuid.NewString(),
			activity.UserID,
			nullIfEmpty(activity.Mode),
			activity.StartTime,
			activity.EndTime,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			duplicates++
			err = tx.QueryRow(ctx,
				`SELECT id FROM activities WHERE user_id = $1 AND start_time = $2`,
				activity.UserID, activity.StartTime,
			).Scan(&id)
		}
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if duplicates > 0 {
		r.logger.Printf("skipped %d duplicate activities", duplicates)
	}
	return ids, nil
}

// InsertTrackPoints bulk-inserts trackpoints, skipping duplicates on
// (activity_id, recorded_at). If the batch fails it falls back to individual
// inserts so one bad record does not sink the rest.
func (r *Repository) InsertTrackPoints(ctx context.Context, points []domain.TrackPoint) (int, error) {
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(insertTrackPointStmt, p.ActivityID, p.Lat, p.Lon, p.Altitude, p.Time)
	}

	br := r.pool.SendBatch(ctx, batch)
	inserted := 0
	var batchErr error
	for range points {
		tag, err := br.Exec()
		if err != nil {
			batchErr = err
			break
		}
		inserted += int(tag.RowsAffected())
	}
	closeErr := br.Close()
	if batchErr == nil {
		batchErr = closeErr
	}
	if batchErr == nil {
		return inserted, nil
	}

	r.logger.Printf("error in bulk insert: %v; falling back to individual inserts", batchErr)
	return r.insertTrackPointsIndividual(ctx, points)
}

func (r *Repository) insertTrackPointsIndividual(ctx context.Context, points []domain.TrackPoint) (int, error) {
	inserted := 0
	for _, p := range points {
		tag, err := r.pool.Exec(ctx, insertTrackPointStmt, p.ActivityID, p.Lat, p.Lon, p.Altitude, p.Time)
		if err != nil {
			r.logger.Printf("error inserting trackpoint for activity %s at %s: %v", p.ActivityID, p.Time, err)
			continue
		}
		inserted += int(tag.RowsAffected())
	}
	r.logger.Printf("inserted %d/%d trackpoints in individual mode", inserted, len(points))
	return inserted, nil
}

// Close releases the connection pool.
func (r *Repository) Close(context.Context) error {
	r.pool.Close()
	return nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
