package geolife

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"example.com/geolife/internal/domain"
)

// LabelFileName is the per-user label file inside a user directory.
const LabelFileName = "labels.txt"

// TrajectoryDirName is the per-user directory holding .plt files.
const TrajectoryDirName = "Trajectory"

// ScanUsers enumerates the dataset: one user per subdirectory of datasetPath,
// flagged as labeled when the directory name appears in labeledIDsPath.
//
// Failing to list the dataset directory or to read the labeled-ID file aborts
// the whole pass; everything downstream degrades per file instead.
func ScanUsers(datasetPath, labeledIDsPath string) ([]domain.User, error) {
	entries, err := os.ReadDir(datasetPath)
	if err != nil {
		return nil, fmt.Errorf("listing dataset directory: %w", err)
	}

	labeled, err := readLabeledIDs(labeledIDsPath)
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		_, hasLabels := labeled[id]
		users = append(users, domain.User{ID: id, HasLabels: hasLabels})
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func readLabeledIDs(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading labeled IDs: %w", err)
	}
	defer f.Close()

	ids := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			ids[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading labeled IDs: %w", err)
	}
	return ids, nil
}
