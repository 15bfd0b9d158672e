package geolife

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTrackPoint(t *testing.T) {
	point, err := ParseTrackPoint("39.984702,116.318417,492,2008-10-23 02:53:04", 1)
	require.NoError(t, err)

	require.Equal(t, 39.984702, point.Lat)
	require.Equal(t, 116.318417, point.Lon)
	require.Equal(t, 492, point.Altitude)
	require.Equal(t, time.Date(2008, 10, 23, 2, 53, 4, 0, time.UTC), point.Time)
}

func TestParseTrackPointTruncatesFractionalAltitude(t *testing.T) {
	point, err := ParseTrackPoint("39.9,116.3,492.7,2008-10-23 02:53:04", 1)
	require.NoError(t, err)
	require.Equal(t, 492, point.Altitude)
}

func TestParseTrackPointMalformed(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"too few fields", "39.9,116.3,492"},
		{"bad latitude", "north,116.3,492,2008-10-23 02:53:04"},
		{"bad longitude", "39.9,east,492,2008-10-23 02:53:04"},
		{"bad altitude", "39.9,116.3,high,2008-10-23 02:53:04"},
		{"bad timestamp", "39.9,116.3,492,2008/10/23 02:53:04"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTrackPoint(tc.line, 7)

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			require.Equal(t, 7, parseErr.Line)
		})
	}
}

func TestParseLabel(t *testing.T) {
	label, err := ParseLabel("2008/04/02 11:24:21\t2008/04/02 11:50:45\ttrain", 2)
	require.NoError(t, err)

	require.Equal(t, time.Date(2008, 4, 2, 11, 24, 21, 0, time.UTC), label.Start)
	require.Equal(t, time.Date(2008, 4, 2, 11, 50, 45, 0, time.UTC), label.End)
	require.Equal(t, "train", label.Mode)
}

func TestParseLabelMalformed(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"wrong field count", "2008/04/02 11:24:21\ttrain"},
		{"bad start time", "04/02/2008 11:24:21\t2008/04/02 11:50:45\ttrain"},
		{"empty mode", "2008/04/02 11:24:21\t2008/04/02 11:50:45\t"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLabel(tc.line, 3)

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestReadFirstLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "20081023025304.plt")
	content := "39.984702,116.318417,492,2008-10-23 02:53:04\n" +
		"39.984683,116.31845,492,2008-10-23 02:53:10\n" +
		"39.984686,116.318417,492,2008-10-23 02:53:15\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	start, end, err := ReadFirstLast(path)
	require.NoError(t, err)

	require.Equal(t, time.Date(2008, 10, 23, 2, 53, 4, 0, time.UTC), start)
	require.Equal(t, time.Date(2008, 10, 23, 2, 53, 15, 0, time.UTC), end)
}

func TestReadFirstLastSinglePoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "single.plt")
	require.NoError(t, os.WriteFile(path, []byte("39.9,116.3,492,2008-10-23 02:53:04\n"), 0o644))

	start, end, err := ReadFirstLast(path)
	require.NoError(t, err)
	require.Equal(t, start, end)
}

func TestReadFirstLastEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.plt")
	require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0o644))

	_, _, err := ReadFirstLast(path)
	require.ErrorIs(t, err, ErrEmptyFile)
}
