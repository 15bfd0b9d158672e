package geolife

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/geolife/internal/domain"
)

func TestScanUsers(t *testing.T) {
	dir := t.TempDir()
	datasetPath := filepath.Join(dir, "Data")
	require.NoError(t, os.MkdirAll(filepath.Join(datasetPath, "010"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(datasetPath, "000"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(datasetPath, "stray.txt"), []byte("not a user"), 0o644))

	labeledIDsPath := filepath.Join(dir, "labeled_ids.txt")
	require.NoError(t, os.WriteFile(labeledIDsPath, []byte("010\r\n"), 0o644))

	users, err := ScanUsers(datasetPath, labeledIDsPath)
	require.NoError(t, err)

	require.Equal(t, []domain.User{
		{ID: "000", HasLabels: false},
		{ID: "010", HasLabels: true},
	}, users)
}

func TestScanUsersMissingDataset(t *testing.T) {
	dir := t.TempDir()
	labeledIDsPath := filepath.Join(dir, "labeled_ids.txt")
	require.NoError(t, os.WriteFile(labeledIDsPath, []byte("010\n"), 0o644))

	_, err := ScanUsers(filepath.Join(dir, "missing"), labeledIDsPath)
	require.Error(t, err)
}

func TestScanUsersMissingLabeledIDs(t *testing.T) {
	dir := t.TempDir()
	datasetPath := filepath.Join(dir, "Data")
	require.NoError(t, os.MkdirAll(filepath.Join(datasetPath, "000"), 0o755))

	_, err := ScanUsers(datasetPath, filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
}
