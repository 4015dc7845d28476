package types

import (
	"regexp"
	"time"
)

// SizeUninitialized marks a dataset whose row count is unknown or invalid.
// The catalog refuses to store it.
const SizeUninitialized int64 = -1

var datasetNamePattern = regexp.MustCompile(`^[A-Za-z0-9_ ]+$`)

// Dataset is the catalog identity of a named collection of points.
type Dataset struct {
	ID   string `json:"id"`   // UUID, generated on creation.
	Name string `json:"name"` // Letters, digits, underscore and space.
	Size int64  `json:"size"` // Number of rows tagged with ID in the data table.
}

// ValidateDatasetName returns ErrInvalidName unless name matches the
// permitted character set.
func ValidateDatasetName(name string) error {
	if !datasetNamePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// Point is a single timestamped position on a trajectory.
type Point struct {
	TrajectoryID string    `json:"trajectory_id"`
	Time         time.Time `json:"time"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	Altitude     float64   `json:"altitude,omitempty"`
	Speed        float64   `json:"speed,omitempty"`
	Label        string    `json:"label,omitempty"`
}

// DatasetRecord is the input to dataset creation: a name and the points to
// tag with the dataset's id.
type DatasetRecord struct {
	Name   string
	Points []Point
}
