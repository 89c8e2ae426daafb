package measurement

import "errors"

var (
	// ErrMissingMeasurement is returned when no report arrived for a timestep or a
	// required metric is absent from the table.
	ErrMissingMeasurement = errors.New("measurement: missing measurement")
	// ErrConflictingMeasurement is returned when two records for the same timestep
	// share a key that is not declared mergeable.
	ErrConflictingMeasurement = errors.New("measurement: conflicting measurement")
)
