package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const datasetExtension = ".parquet"

// BuildGenerationPath partitions generation records by UTC day.
func BuildGenerationPath(questionID string, generatedAt time.Time) (string, error) {
	if err := validatePathComponent(questionID, "question id"); err != nil {
		return "", err
	}
	ts := generatedAt.UTC()
	return path.Join(
		"generations",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		questionID+".json",
	), nil
}

func BuildDatasetPath(connectionID string, exportedAt time.Time) (string, error) {
	return BuildDatasetKey(connectionID, fmt.Sprintf("golden-%d%s", exportedAt.UTC().Unix(), datasetExtension))
}

// BuildDatasetKey addresses one exported dataset file by name.
func BuildDatasetKey(connectionID, name string) (string, error) {
	prefix, err := DatasetPrefix(connectionID)
	if err != nil {
		return "", err
	}
	if err := validatePathComponent(name, "dataset name"); err != nil {
		return "", err
	}
	if !strings.HasSuffix(name, datasetExtension) {
		return "", fmt.Errorf("invalid dataset name: %q", name)
	}
	return prefix + name, nil
}

// DatasetPrefix is the listing prefix for a connection's datasets, with a
// trailing slash.
func DatasetPrefix(connectionID string) (string, error) {
	if err := validatePathComponent(connectionID, "connection id"); err != nil {
		return "", err
	}
	return "datasets/" + connectionID + "/", nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
