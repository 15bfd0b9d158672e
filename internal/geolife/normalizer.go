package geolife

import (
	"bufio"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// sentinelHeader is the first line of an uncleaned trajectory file. Its
// absence means the file was already normalized and must be left alone.
const sentinelHeader = "Geolife trajectory"

// headerLines is the number of header lines in an uncleaned trajectory file,
// including the sentinel.
const headerLines = 6

// CleaningConfig holds the thresholds applied during file normalization.
type CleaningConfig struct {
	MinAltitude     float64
	MaxAltitude     float64
	InvalidAltitude int
	MaxTrackPoints  int
}

// DefaultCleaningConfig returns the thresholds used for the Geolife dataset:
// altitudes outside [-505, 29035] feet are replaced with -777, and files with
// more than 2501 trackpoints are dropped entirely.
func DefaultCleaningConfig() CleaningConfig {
	return CleaningConfig{
		MinAltitude:     -505,
		MaxAltitude:     29035,
		InvalidAltitude: -777,
		MaxTrackPoints:  2501,
	}
}

// CleanResult reports what a single CleanFile call did.
type CleanResult struct {
	Deleted      int  // duplicate rows dropped
	Updated      int  // rows whose altitude was replaced with the sentinel
	ShouldDelete bool // file exceeds the trackpoint ceiling; caller removes it
}

// CleanSummary aggregates CleanFile results across a dataset walk.
type CleanSummary struct {
	FilesCleaned int
	FilesRemoved int
	Deleted      int
	Updated      int
}

// Normalizer rewrites trajectory files in place: altitude repair, date/time
// merge, duplicate-timestamp suppression, and oversized-file detection.
type Normalizer struct {
	cfg    CleaningConfig
	logger *log.Logger
}

// NewNormalizer constructs a Normalizer with explicit thresholds.
func NewNormalizer(cfg CleaningConfig, logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[normalizer] ", log.LstdFlags)
	}
	return &Normalizer{cfg: cfg, logger: logger}
}

// CleanFile normalizes one trajectory file in place. A file without the
// sentinel header is treated as already cleaned and left untouched. A file
// holding more data rows than the ceiling is not edited; the caller is told
// to delete it. Individual malformed rows never fail the call; only opening
// or rewriting the file can.
func (n *Normalizer) CleanFile(path string) (CleanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return CleanResult{}, err
	}

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != sentinelHeader {
		f.Close()
		n.logger.Printf("file %s already processed; skipping", path)
		return CleanResult{}, scanner.Err()
	}

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return CleanResult{}, err
	}
	f.Close()

	// The sentinel was consumed above; the remaining header lines precede
	// the data rows.
	if len(lines) < headerLines-1 {
		lines = nil
	} else {
		lines = lines[headerLines-1:]
	}

	if len(lines) > n.cfg.MaxTrackPoints {
		return CleanResult{ShouldDelete: true}, nil
	}

	seen := make(map[string]struct{}, len(lines))
	cleaned := make([]string, 0, len(lines))
	var result CleanResult

	for i, line := range lines {
		record, err := splitRawRecord(line, i+headerLines+1)
		if err != nil {
			continue
		}

		altitude, repaired := n.cleanAltitude(record.Altitude)
		if repaired {
			result.Updated++
		}

		timestamp, ok := combineDateTime(record.Date, record.Time)
		if !ok {
			continue
		}

		if _, dup := seen[timestamp]; dup {
			result.Deleted++
			continue
		}
		seen[timestamp] = struct{}{}

		cleaned = append(cleaned, fmt.Sprintf("%s,%s,%s,%s", record.Lat, record.Lon, altitude, timestamp))
	}

	if err := writeLines(path, cleaned); err != nil {
		return CleanResult{}, err
	}
	return result, nil
}

// CleanDataset walks every Trajectory directory under root, normalizing each
// .plt file and removing files that exceed the trackpoint ceiling.
func (n *Normalizer) CleanDataset(root string) (CleanSummary, error) {
	var summary CleanSummary

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".plt") {
			return nil
		}
		if filepath.Base(filepath.Dir(path)) != "Trajectory" {
			return nil
		}

		result, cleanErr := n.CleanFile(path)
		if cleanErr != nil {
			n.logger.Printf("error cleaning %s: %v", path, cleanErr)
			return nil
		}

		if result.ShouldDelete {
			if rmErr := os.Remove(path); rmErr != nil {
				n.logger.Printf("error removing oversized file %s: %v", path, rmErr)
				return nil
			}
			summary.FilesRemoved++
			n.logger.Printf("file removed due to excessive trackpoints: %s", path)
			return nil
		}

		summary.FilesCleaned++
		summary.Deleted += result.Deleted
		summary.Updated += result.Updated
		return nil
	})
	if err != nil {
		return summary, err
	}

	n.logger.Printf("cleaning done: %d files cleaned, %d removed, %d duplicate rows deleted, %d altitudes repaired",
		summary.FilesCleaned, summary.FilesRemoved, summary.Deleted, summary.Updated)
	return summary, nil
}

// cleanAltitude returns the altitude to write and whether it was replaced
// with the sentinel. Valid altitudes pass through with their original text.
func (n *Normalizer) cleanAltitude(raw string) (string, bool) {
	alt, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || alt < n.cfg.MinAltitude || alt > n.cfg.MaxAltitude {
		return strconv.Itoa(n.cfg.InvalidAltitude), true
	}
	return strings.TrimSpace(raw), false
}

// combineDateTime merges separate date and time fields into the canonical
// timestamp representation. Rows that fail to combine are dropped silently.
func combineDateTime(date, timeOfDay string) (string, bool) {
	merged := strings.TrimSpace(date) + " " + strings.TrimSpace(timeOfDay)
	if _, err := parseTrackTime(merged); err != nil {
		return "", false
	}
	return merged, true
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
