package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/geolife/internal/domain"
	"example.com/geolife/internal/geo"
)

// entityTables maps Analytics entity names to table names. FirstRows only
// accepts names from this map, so the table name can be interpolated safely.
var entityTables = map[string]string{
	domain.EntityUsers:       "users",
	domain.EntityActivities:  "activities",
	domain.EntityTrackPoints: "trackpoints",
}

// FirstRows returns the first rows of an entity's table as display strings.
func (r *Repository) FirstRows(ctx context.Context, entity string, limit int) (domain.Table, error) {
	table, ok := entityTables[entity]
	if !ok {
		return domain.Table{}, fmt.Errorf("unknown entity %q", entity)
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT * FROM %s LIMIT $1`, table), limit)
	if err != nil {
		return domain.Table{}, err
	}
	defer rows.Close()

	var result domain.Table
	for _, fd := range rows.FieldDescriptions() {
		result.Headers = append(result.Headers, fd.Name)
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return domain.Table{}, err
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// Counts returns the row counts of the three entity tables.
func (r *Repository) Counts(ctx context.Context) (domain.EntityCounts, error) {
	var counts domain.EntityCounts
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&counts.Users); err != nil {
		return counts, err
	}
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activities`).Scan(&counts.Activities); err != nil {
		return counts, err
	}
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trackpoints`).Scan(&counts.TrackPoints); err != nil {
		return counts, err
	}
	return counts, nil
}

// AverageActivitiesPerUser returns the mean activity count over users that
// have at least one activity.
func (r *Repository) AverageActivitiesPerUser(ctx context.Context) (float64, error) {
	const query = `
        SELECT COALESCE(AVG(activity_count), 0)::float8
        FROM (
            SELECT COUNT(*) AS activity_count
            FROM activities
            GROUP BY user_id
        ) AS user_activity_counts`

	var avg float64
	err := r.pool.QueryRow(ctx, query).Scan(&avg)
	return avg, err
}

// TopUsersByActivityCount returns the n users with the most activities.
func (r *Repository) TopUsersByActivityCount(ctx context.Context, n int) ([]domain.UserCount, error) {
	const query = `
        SELECT user_id, COUNT(*) AS activity_count
        FROM activities
        GROUP BY user_id
        ORDER BY activity_count DESC
        LIMIT $1`

	return r.queryUserCounts(ctx, query, n)
}

// UsersByTransportMode returns the users that have at least one activity
// tagged with the given mode.
func (r *Repository) UsersByTransportMode(ctx context.Context, mode string) ([]string, error) {
	const query = `
        SELECT DISTINCT user_id
        FROM activities
        WHERE transportation_mode = $1
        ORDER BY user_id`

	return r.queryStrings(ctx, query, mode)
}

// TransportModeCounts returns the activity count per transportation mode,
// unlabeled activities excluded.
func (r *Repository) TransportModeCounts(ctx context.Context) ([]domain.ModeCount, error) {
	const query = `
        SELECT transportation_mode, COUNT(*) AS activity_count
        FROM activities
        WHERE transportation_mode IS NOT NULL
        GROUP BY transportation_mode
        ORDER BY activity_count DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.ModeCount
	for rows.Next() {
		var mc domain.ModeCount
		if err := rows.Scan(&mc.Mode, &mc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, mc)
	}
	return counts, rows.Err()
}

// YearWithMostActivities returns the year holding the most activities.
func (r *Repository) YearWithMostActivities(ctx context.Context) (domain.YearCount, error) {
	const query = `
        SELECT EXTRACT(YEAR FROM start_time)::int AS year, COUNT(*) AS activity_count
        FROM activities
        GROUP BY year
        ORDER BY activity_count DESC
        LIMIT 1`

	var yc domain.YearCount
	err := r.pool.QueryRow(ctx, query).Scan(&yc.Year, &yc.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.YearCount{}, nil
	}
	return yc, err
}

// YearWithMostHours returns the year with the most recorded activity hours,
// each activity's duration floored to whole hours.
func (r *Repository) YearWithMostHours(ctx context.Context) (domain.YearHours, error) {
	const query = `
        SELECT EXTRACT(YEAR FROM start_time)::int AS year,
               SUM(FLOOR(EXTRACT(EPOCH FROM (end_time - start_time)) / 3600))::bigint AS total_hours
        FROM activities
        GROUP BY year
        ORDER BY total_hours DESC
        LIMIT 1`

	var yh domain.YearHours
	err := r.pool.QueryRow(ctx, query).Scan(&yh.Year, &yh.Hours)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.YearHours{}, nil
	}
	return yh, err
}

// TotalDistanceWalked sums the haversine distances between consecutive
// trackpoints of the user's walking activities in the given year, in km.
func (r *Repository) TotalDistanceWalked(ctx context.Context, userID string, year int) (float64, error) {
	const activitiesQuery = `
        SELECT id FROM activities
        WHERE user_id = $1
          AND transportation_mode = 'walk'
          AND EXTRACT(YEAR FROM start_time) = $2`

	activityIDs, err := r.queryStrings(ctx, activitiesQuery, userID, year)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, activityID := range activityIDs {
		rows, err := r.pool.Query(ctx,
			`SELECT lat, lon FROM trackpoints WHERE activity_id = $1 ORDER BY recorded_at ASC`,
			activityID,
		)
		if err != nil {
			return 0, err
		}

		var prevLat, prevLon float64
		first := true
		for rows.Next() {
			var lat, lon float64
			if err := rows.Scan(&lat, &lon); err != nil {
				rows.Close()
				return 0, err
			}
			if !first {
				total += geo.HaversineKm(prevLat, prevLon, lat, lon)
			}
			prevLat, prevLon = lat, lon
			first = false
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// TopUsersByAltitudeGain returns the n users with the largest summed positive
// altitude deltas over timestamp-ordered trackpoints, converted feet to
// meters and rounded. Sentinel altitudes are excluded.
func (r *Repository) TopUsersByAltitudeGain(ctx context.Context, n int) ([]domain.UserGain, error) {
	const query = `
        SELECT user_id, ROUND(SUM(altitude_gain) * 0.3048)::bigint AS total_altitude_gain_meters
        FROM (
            SELECT a.user_id,
                   GREATEST(t.altitude - LAG(t.altitude) OVER (PARTITION BY t.activity_id ORDER BY t.recorded_at), 0) AS altitude_gain
            FROM trackpoints t
            JOIN activities a ON t.activity_id = a.id
            WHERE t.altitude > -505
        ) gains
        GROUP BY user_id
        ORDER BY total_altitude_gain_meters DESC
        LIMIT $1`

	rows, err := r.pool.Query(ctx, query, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gains []domain.UserGain
	for rows.Next() {
		var ug domain.UserGain
		if err := rows.Scan(&ug.UserID, &ug.Meters); err != nil {
			return nil, err
		}
		gains = append(gains, ug)
	}
	return gains, rows.Err()
}

// UsersWithInvalidActivities returns, per user, the number of activities
// containing a consecutive timestamp gap of at least five minutes.
func (r *Repository) UsersWithInvalidActivities(ctx context.Context) ([]domain.UserCount, error) {
	const query = `
        SELECT user_id, COUNT(DISTINCT activity_id) AS invalid_activity_count
        FROM (
            SELECT a.user_id,
                   t.activity_id,
                   EXTRACT(EPOCH FROM (t.recorded_at - LAG(t.recorded_at) OVER (
                       PARTITION BY t.activity_id ORDER BY t.recorded_at
                   ))) AS gap_seconds
            FROM trackpoints t
            JOIN activities a ON t.activity_id = a.id
        ) gaps
        WHERE gap_seconds >= 300
        GROUP BY user_id
        ORDER BY invalid_activity_count DESC`

	return r.queryUserCounts(ctx, query)
}

// UsersInBoundingBox returns the users with at least one trackpoint inside
// the box, edges inclusive.
func (r *Repository) UsersInBoundingBox(ctx context.Context, box domain.BoundingBox) ([]string, error) {
	const query = `
        SELECT DISTINCT a.user_id
        FROM trackpoints t
        JOIN activities a ON t.activity_id = a.id
        WHERE t.lat BETWEEN $1 AND $2
          AND t.lon BETWEEN $3 AND $4
        ORDER BY a.user_id`

	return r.queryStrings(ctx, query, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
}

// MostUsedTransportModes returns each labeled user's most frequent mode,
// sorted by user.
func (r *Repository) MostUsedTransportModes(ctx context.Context) ([]domain.UserMode, error) {
	const query = `
        SELECT user_id, transportation_mode
        FROM (
            SELECT user_id, transportation_mode,
                   ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY COUNT(*) DESC, transportation_mode ASC) AS mode_rank
            FROM activities
            WHERE transportation_mode IS NOT NULL
            GROUP BY user_id, transportation_mode
        ) ranked_modes
        WHERE mode_rank = 1
        ORDER BY user_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modes []domain.UserMode
	for rows.Next() {
		var um domain.UserMode
		if err := rows.Scan(&um.UserID, &um.Mode); err != nil {
			return nil, err
		}
		modes = append(modes, um)
	}
	return modes, rows.Err()
}

func (r *Repository) queryUserCounts(ctx context.Context, query string, args ...interface{}) ([]domain.UserCount, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.UserCount
	for rows.Next() {
		var uc domain.UserCount
		if err := rows.Scan(&uc.UserID, &uc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, uc)
	}
	return counts, rows.Err()
}

func (r *Repository) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func formatValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case time.Time:
		return value.UTC().Format("2006-01-02 15:04:05")
	case [16]byte:
		// pgx scans UUID columns into [16]byte by default.
		return fmt.Sprintf("%x-%x-%x-%x-%x", value[0:4], value[4:6], value[6:8], value[8:10], value[10:16])
	default:
		return fmt.Sprint(value)
	}
}
