// Package report renders the fixed analytical query battery into a plain
// text report.
package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"text/tabwriter"

	"example.com/geolife/internal/domain"
)

// ForbiddenCityBox is the default bounding box for the visited-landmark
// query, covering the Forbidden City in Beijing.
var ForbiddenCityBox = domain.BoundingBox{
	MinLat: 39.9155, MaxLat: 39.9165,
	MinLon: 116.3965, MaxLon: 116.3975,
}

// Config carries the report parameters.
type Config struct {
	FirstRowLimit int
	TopUserCount  int
	WalkUserID    string
	WalkYear      int
	Box           domain.BoundingBox
}

// DefaultConfig returns the standard report parameters.
func DefaultConfig() Config {
	return Config{
		FirstRowLimit: 10,
		TopUserCount:  20,
		WalkUserID:    "112",
		WalkYear:      2008,
		Box:           ForbiddenCityBox,
	}
}

// Writer runs the query battery against an Analytics implementation and
// renders the results. A failing query degrades its own section and is
// logged; it never aborts the report.
type Writer struct {
	analytics domain.Analytics
	cfg       Config
	logger    *log.Logger
}

// NewWriter constructs a report writer.
func NewWriter(analytics domain.Analytics, cfg Config, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.New(log.Writer(), "[report] ", log.LstdFlags)
	}
	return &Writer{analytics: analytics, cfg: cfg, logger: logger}
}

// Write renders the full report to out.
func (w *Writer) Write(ctx context.Context, out io.Writer) error {
	buf := bufio.NewWriter(out)

	w.writeFirstRows(ctx, buf)
	w.writeCounts(ctx, buf)
	w.writeAverageActivities(ctx, buf)
	w.writeTopUsersByActivity(ctx, buf)
	w.writeUsersByMode(ctx, buf, "taxi")
	w.writeModeCounts(ctx, buf)
	w.writeBusiestYear(ctx, buf)
	w.writeDistanceWalked(ctx, buf)
	w.writeAltitudeGain(ctx, buf)
	w.writeInvalidActivities(ctx, buf)
	w.writeBoundingBoxVisitors(ctx, buf)
	w.writeMostUsedModes(ctx, buf)

	return buf.Flush()
}

func (w *Writer) writeFirstRows(ctx context.Context, out io.Writer) {
	for _, entity := range []string{domain.EntityUsers, domain.EntityActivities, domain.EntityTrackPoints} {
		w.logger.Printf("querying first rows from %s", entity)
		table, err := w.analytics.FirstRows(ctx, entity, w.cfg.FirstRowLimit)
		if err != nil {
			w.logger.Printf("error fetching first rows from %s: %v", entity, err)
			fmt.Fprintf(out, "No data found in the %s table or an error occurred.\n\n", entity)
			continue
		}
		if len(table.Rows) == 0 {
			fmt.Fprintf(out, "No data found in the %s table or an error occurred.\n\n", entity)
			continue
		}
		fmt.Fprintf(out, "First %d rows of the %s table:\n", w.cfg.FirstRowLimit, entity)
		writeTable(out, table.Headers, table.Rows)
		fmt.Fprintln(out)
	}
}

func (w *Writer) writeCounts(ctx context.Context, out io.Writer) {
	w.logger.Printf("running entity count query")
	counts, err := w.analytics.Counts(ctx)
	if err != nil {
		w.logger.Printf("error during entity count query: %v", err)
		fmt.Fprintf(out, "No data available for entity counts.\n\n")
		return
	}
	writeTable(out, []string{"Entity", "Count"}, [][]string{
		{domain.EntityUsers, fmt.Sprint(counts.Users)},
		{domain.EntityActivities, fmt.Sprint(counts.Activities)},
		{domain.EntityTrackPoints, fmt.Sprint(counts.TrackPoints)},
	})
	fmt.Fprintln(out)
}

func (w *Writer) writeAverageActivities(ctx context.Context, out io.Writer) {
	w.logger.Printf("calculating average number of activities per user")
	average, err := w.analytics.AverageActivitiesPerUser(ctx)
	if err != nil {
		w.logger.Printf("error calculating average activities per user: %v", err)
		fmt.Fprintf(out, "No data available for average activities per user.\n\n")
		return
	}
	fmt.Fprintf(out, "Average number of activities per user: %v\n\n", average)
}

func (w *Writer) writeTopUsersByActivity(ctx context.Context, out io.Writer) {
	w.logger.Printf("fetching top %d users by activity count", w.cfg.TopUserCount)
	top, err := w.analytics.TopUsersByActivityCount(ctx, w.cfg.TopUserCount)
	if err != nil {
		w.logger.Printf("error fetching top users by activity count: %v", err)
		top = nil
	}
	if len(top) == 0 {
		fmt.Fprintf(out, "No valid data for top %d users by activity count.\n\n", w.cfg.TopUserCount)
		return
	}
	rows := make([][]string, len(top))
	for i, uc := range top {
		rows[i] = []string{uc.UserID, fmt.Sprint(uc.Count)}
	}
	fmt.Fprintf(out, "Top %d users by activity count:\n", w.cfg.TopUserCount)
	writeTable(out, []string{"user_id", "activity_count"}, rows)
	fmt.Fprintln(out)
}

func (w *Writer) writeUsersByMode(ctx context.Context, out io.Writer, mode string) {
	w.logger.Printf("fetching users who used %q as transportation mode", mode)
	users, err := w.analytics.UsersByTransportMode(ctx, mode)
	if err != nil {
		w.logger.Printf("error fetching users by transport mode %q: %v", mode, err)
		users = nil
	}
	if len(users) == 0 {
		fmt.Fprintf(out, "No users found with %s as transport mode.\n\n", mode)
		return
	}
	rows := make([][]string, len(users))
	for i, id := range users {
		rows[i] = []string{id}
	}
	fmt.Fprintf(out, "Users who have used %s as transport mode:\n", mode)
	writeTable(out, []string{"user_id"}, rows)
	fmt.Fprintln(out)
}

func (w *Writer) writeModeCounts(ctx context.Context, out io.Writer) {
	w.logger.Printf("fetching counts for each transportation mode")
	modes, err := w.analytics.TransportModeCounts(ctx)
	if err != nil {
		w.logger.Printf("error fetching transportation modes and counts: %v", err)
		modes = nil
	}
	if len(modes) == 0 {
		fmt.Fprintf(out, "No data available for transportation modes with counts.\n\n")
		return
	}
	rows := make([][]string, len(modes))
	for i, mc := range modes {
		rows[i] = []string{mc.Mode, fmt.Sprint(mc.Count)}
	}
	fmt.Fprintln(out, "Transportation modes with activity counts:")
	writeTable(out, []string{"transportation_mode", "activity_count"}, rows)
	fmt.Fprintln(out)
}

func (w *Writer) writeBusiestYear(ctx context.Context, out io.Writer) {
	w.logger.Printf("fetching years with the most activities and hours")
	mostActive, activeErr := w.analytics.YearWithMostActivities(ctx)
	mostHours, hoursErr := w.analytics.YearWithMostHours(ctx)
	if activeErr != nil || hoursErr != nil || mostActive.Year == 0 || mostHours.Year == 0 {
		if activeErr != nil {
			w.logger.Printf("error fetching year with most activities: %v", activeErr)
		}
		if hoursErr != nil {
			w.logger.Printf("error fetching year with most hours: %v", hoursErr)
		}
		fmt.Fprintf(out, "No data available for year with most activities or hours.\n\n")
		return
	}
	fmt.Fprintf(out, "Year with the most activities: %d with %d activities.\n", mostActive.Year, mostActive.Count)
	fmt.Fprintf(out, "Year with the most recorded hours: %d with %d hours.\n", mostHours.Year, mostHours.Hours)
	if mostActive.Year == mostHours.Year {
		fmt.Fprintln(out, "Yes, the year with the most activities is also the year with the most recorded hours.")
	} else {
		fmt.Fprintln(out, "No, the year with the most activities is different from the year with the most recorded hours.")
	}
	fmt.Fprintln(out)
}

func (w *Writer) writeDistanceWalked(ctx context.Context, out io.Writer) {
	w.logger.Printf("calculating total distance walked by user %s in %d", w.cfg.WalkUserID, w.cfg.WalkYear)
	distance, err := w.analytics.TotalDistanceWalked(ctx, w.cfg.WalkUserID, w.cfg.WalkYear)
	if err != nil {
		w.logger.Printf("error calculating total distance walked: %v", err)
		fmt.Fprintf(out, "No data available for total distance walked by user %s in %d.\n\n", w.cfg.WalkUserID, w.cfg.WalkYear)
		return
	}
	fmt.Fprintf(out, "Total distance walked by user %s in %d: %v kilometers.\n\n", w.cfg.WalkUserID, w.cfg.WalkYear, distance)
}

func (w *Writer) writeAltitudeGain(ctx context.Context, out io.Writer) {
	w.logger.Printf("fetching top %d users by altitude gain", w.cfg.TopUserCount)
	gains, err := w.analytics.TopUsersByAltitudeGain(ctx, w.cfg.TopUserCount)
	if err != nil {
		w.logger.Printf("error fetching top users by altitude gain: %v", err)
		gains = nil
	}
	if len(gains) == 0 {
		fmt.Fprintf(out, "No data available for top users by altitude gain.\n\n")
		return
	}
	rows := make([][]string, len(gains))
	for i, g := range gains {
		rows[i] = []string{g.UserID, fmt.Sprint(g.Meters)}
	}
	fmt.Fprintf(out, "Top %d users by total altitude gain:\n", w.cfg.TopUserCount)
	writeTable(out, []string{"user_id", "total_gain_meters"}, rows)
	fmt.Fprintln(out)
}

func (w *Writer) writeInvalidActivities(ctx context.Context, out io.Writer) {
	w.logger.Printf("fetching users with invalid activities")
	counts, err := w.analytics.UsersWithInvalidActivities(ctx)
	if err != nil {
		w.logger.Printf("error fetching users with invalid activities: %v", err)
		counts = nil
	}
	if len(counts) == 0 {
		fmt.Fprintf(out, "No data available for users with invalid activities.\n\n")
		return
	}
	rows := make([][]string, len(counts))
	for i, uc := range counts {
		rows[i] = []string{uc.UserID, fmt.Sprint(uc.Count)}
	}
	fmt.Fprintln(out, "Users with invalid activities sorted by invalid count:")
	writeTable(out, []string{"user_id", "invalid_activity_count"}, rows)
	fmt.Fprintln(out)
}

func (w *Writer) writeBoundingBoxVisitors(ctx context.Context, out io.Writer) {
	w.logger.Printf("checking for users in the Forbidden City")
	users, err := w.analytics.UsersInBoundingBox(ctx, w.cfg.Box)
	if err != nil {
		w.logger.Printf("error fetching users in bounding box: %v", err)
		users = nil
	}
	if len(users) == 0 {
		fmt.Fprintf(out, "No users found in the Forbidden City.\n\n")
		return
	}
	rows := make([][]string, len(users))
	for i, id := range users {
		rows[i] = []string{id}
	}
	fmt.Fprintln(out, "Users who have visited the Forbidden City:")
	writeTable(out, []string{"user_id"}, rows)
	fmt.Fprintln(out)
}

func (w *Writer) writeMostUsedModes(ctx context.Context, out io.Writer) {
	w.logger.Printf("fetching users' most used transportation modes")
	modes, err := w.analytics.MostUsedTransportModes(ctx)
	if err != nil {
		w.logger.Printf("error fetching most used transportation modes: %v", err)
		modes = nil
	}
	if len(modes) == 0 {
		fmt.Fprintf(out, "No data available for users' most used transportation mode.\n\n")
		return
	}
	rows := make([][]string, len(modes))
	for i, um := range modes {
		rows[i] = []string{um.UserID, um.Mode}
	}
	fmt.Fprintln(out, "Users with their most used transportation mode:")
	writeTable(out, []string{"user_id", "most_used_transportation_mode"}, rows)
	fmt.Fprintln(out)
}

func writeTable(out io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}
