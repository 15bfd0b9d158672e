// Package geolife handles the Geolife dataset on disk: parsing trajectory and
// label records, normalizing trajectory files in place, and extracting users,
// activities, and trackpoints for loading.
package geolife

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Timestamp layouts used by the dataset. Trajectory files and label files
// disagree on the date separator.
const (
	trackTimeLayout = "2006-01-02 15:04:05"
	labelTimeLayout = "2006/01/02 15:04:05"
)

// rawFieldCount is the minimum field count of an uncleaned trajectory row:
// lat, lon, flag, altitude, days, date, time.
const rawFieldCount = 7

// cleanFieldCount is the field count of a cleaned trajectory row:
// lat, lon, altitude, timestamp.
const cleanFieldCount = 4

// ErrEmptyFile marks a trajectory file with no data rows.
var ErrEmptyFile = errors.New("trajectory file has no data rows")

// ParseError describes a malformed record. It is row-level and recoverable:
// callers skip the offending row.
type ParseError struct {
	Line   int
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: bad %s: %s", e.Line, e.Field, e.Reason)
}

// rawRecord is one uncleaned trajectory row with the fields the normalizer
// cares about. Altitude stays raw text so range repair can substitute the
// sentinel instead of failing the row.
type rawRecord struct {
	Lat      string
	Lon      string
	Altitude string
	Date     string
	Time     string
}

// splitRawRecord splits an uncleaned trajectory row. Rows with fewer than
// seven fields yield a ParseError.
func splitRawRecord(line string, lineNo int) (rawRecord, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < rawFieldCount {
		return rawRecord{}, &ParseError{Line: lineNo, Field: "record", Reason: fmt.Sprintf("expected %d fields, got %d", rawFieldCount, len(fields))}
	}
	return rawRecord{
		Lat:      fields[0],
		Lon:      fields[1],
		Altitude: fields[3],
		Date:     fields[5],
		Time:     fields[6],
	}, nil
}

func parseTrackTime(value string) (time.Time, error) {
	return time.Parse(trackTimeLayout, value)
}

// Point is a fully typed cleaned trajectory row.
type Point struct {
	Lat      float64
	Lon      float64
	Altitude int
	Time     time.Time
}

// ParseTrackPoint parses one cleaned trajectory row of the form
// "lat,lon,altitude,timestamp".
func ParseTrackPoint(line string, lineNo int) (Point, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < cleanFieldCount {
		return Point{}, &ParseError{Line: lineNo, Field: "record", Reason: fmt.Sprintf("expected %d fields, got %d", cleanFieldCount, len(fields))}
	}

	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Point{}, &ParseError{Line: lineNo, Field: "latitude", Reason: err.Error()}
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Point{}, &ParseError{Line: lineNo, Field: "longitude", Reason: err.Error()}
	}
	alt, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Point{}, &ParseError{Line: lineNo, Field: "altitude", Reason: err.Error()}
	}
	ts, err := time.Parse(trackTimeLayout, fields[3])
	if err != nil {
		return Point{}, &ParseError{Line: lineNo, Field: "timestamp", Reason: err.Error()}
	}

	return Point{Lat: lat, Lon: lon, Altitude: int(alt), Time: ts}, nil
}

// Label is one transportation-mode annotation covering a time interval.
type Label struct {
	Start time.Time
	End   time.Time
	Mode  string
}

// ParseLabel parses one tab-separated label row of the form
// "start\tend\tmode".
func ParseLabel(line string, lineNo int) (Label, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(fields) != 3 {
		return Label{}, &ParseError{Line: lineNo, Field: "record", Reason: fmt.Sprintf("expected 3 fields, got %d", len(fields))}
	}

	start, err := time.Parse(labelTimeLayout, strings.TrimSpace(fields[0]))
	if err != nil {
		return Label{}, &ParseError{Line: lineNo, Field: "start time", Reason: err.Error()}
	}
	end, err := time.Parse(labelTimeLayout, strings.TrimSpace(fields[1]))
	if err != nil {
		return Label{}, &ParseError{Line: lineNo, Field: "end time", Reason: err.Error()}
	}
	mode := strings.TrimSpace(fields[2])
	if mode == "" {
		return Label{}, &ParseError{Line: lineNo, Field: "mode", Reason: "empty"}
	}

	return Label{Start: start, End: end, Mode: mode}, nil
}

// ReadFirstLast returns the timestamps of the first and last data rows of a
// cleaned trajectory file. A file with no data rows yields ErrEmptyFile.
func ReadFirstLast(path string) (start, end time.Time, err error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	defer f.Close()

	var first, last string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first == "" {
			first = line
		}
		last = line
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if first == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	startPoint, err := ParseTrackPoint(first, 1)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endPoint, err := ParseTrackPoint(last, -1)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	return startPoint.Time, endPoint.Time, nil
}
