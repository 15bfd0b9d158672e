package geolife

import (
	"bufio"
	"os"
	"time"
)

// LabelKey identifies a labeled interval. Matching against activities is
// exact: both endpoints must agree to the second.
type LabelKey struct {
	Start time.Time
	End   time.Time
}

// BuildLabelLookup reads a user's label file into a (start, end) -> mode map.
//
// A missing file is not an error: most users have no labels, so an empty map
// and a nil error are returned. A malformed line aborts the read; the lookup
// built so far is returned alongside the error and the caller decides whether
// to proceed with the partial map.
func BuildLabelLookup(path string) (map[LabelKey]string, error) {
	lookup := make(map[LabelKey]string)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lookup, nil
		}
		return lookup, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			// Header row.
			continue
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		label, err := ParseLabel(line, lineNo)
		if err != nil {
			return lookup, err
		}
		lookup[LabelKey{Start: label.Start, End: label.End}] = label.Mode
	}
	if err := scanner.Err(); err != nil {
		return lookup, err
	}

	return lookup, nil
}
